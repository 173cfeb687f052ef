package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/EMSC/internal/domain"
)

type fakeChannel struct {
	exchange, key string
	msgs          []amqp.Publishing
	err           error
	closed        int
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange, f.key = exchange, key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed++
	return nil
}

func TestPublish_PersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := New(ch, "emsc", "emsc.run")

	rr := domain.RunReport{
		RunID:      "4a8f3c2e-0000-4000-8000-000000000001",
		FinishedAt: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		Items: []domain.ItemResult{{
			Dataset: "Acknowledged", Status: domain.StatusProcessed,
			Counts: &domain.DatasetCounts{Dataset: "Acknowledged", Recent: 2, Matching: 1, NonMatching: 1},
		}},
	}
	rr.Finalize()
	require.NoError(t, p.Publish(context.Background(), rr))

	require.Len(t, ch.msgs, 1)
	msg := ch.msgs[0]
	assert.Equal(t, "emsc", ch.exchange)
	assert.Equal(t, "emsc.run", ch.key)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, rr.RunID, msg.MessageId)
	assert.Equal(t, "ok", msg.Headers["x-emsc-outcome"])
	assert.Equal(t, int32(1), msg.Headers["x-emsc-processed"])

	var back domain.RunReport
	require.NoError(t, json.Unmarshal(msg.Body, &back))
	assert.Equal(t, rr.RunID, back.RunID)
	assert.Equal(t, 2, back.Items[0].Counts.Recent)
}

func TestPublish_PropagatesError(t *testing.T) {
	p := New(&fakeChannel{err: errors.New("channel closed")}, "", "q")
	assert.Error(t, p.Publish(context.Background(), domain.RunReport{RunID: "x"}))
}

func TestClose_Idempotent(t *testing.T) {
	ch := &fakeChannel{}
	p := New(ch, "", "q")
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, ch.closed)
}
