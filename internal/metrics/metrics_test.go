package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/EMSC/internal/domain"
)

func sampleReport() domain.RunReport {
	start := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	rr := domain.RunReport{
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Items: []domain.ItemResult{
			{
				Dataset: "Acknowledged", Status: domain.StatusProcessed,
				Counts: &domain.DatasetCounts{Dataset: "Acknowledged", Recent: 5, Matching: 2, NonMatching: 3},
				File:   &domain.FileResult{Status: domain.FileStatusDeleted},
			},
			{Dataset: "Resolved", Status: domain.StatusNotFound, ErrorCode: domain.ErrCodeFileNotFound},
		},
	}
	rr.Finalize()
	return rr
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Observe(sampleReport())

	path := filepath.Join(t.TempDir(), "emsc.prom")
	require.NoError(t, r.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)

	assert.Contains(t, text, `emsc_cases{category="ems",dataset="Acknowledged"} 5`)
	assert.Contains(t, text, `emsc_cases{category="backbone",dataset="Acknowledged"} 2`)
	assert.Contains(t, text, `emsc_cases{category="cce",dataset="Acknowledged"} 3`)
	assert.Contains(t, text, `emsc_dataset_status{dataset="Resolved",status="not_found"} 1`)
	assert.Contains(t, text, `emsc_dataset_status{dataset="Resolved",status="processed"} 0`)
	assert.Contains(t, text, `emsc_cleanup_files_total{status="deleted"} 1`)
	assert.Contains(t, text, `emsc_runs_total{outcome="partial"} 1`)
	assert.Contains(t, text, `emsc_last_run_duration_seconds 1.5`)
	assert.NotContains(t, text, `emsc_cases{category="ems",dataset="Resolved"}`)
}

func TestObserve_FailedRunClearsPreviousCases(t *testing.T) {
	r := New()
	r.Observe(sampleReport())

	failed := sampleReport()
	failed.Items[0].Status = domain.StatusFailed
	failed.Items[0].ErrorCode = domain.ErrCodeParseFailed
	failed.Items[0].Counts = nil
	failed.Items[0].File = nil
	r.Observe(failed)

	path := filepath.Join(t.TempDir(), "emsc.prom")
	require.NoError(t, r.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)

	assert.NotContains(t, text, `emsc_cases{category="ems",dataset="Acknowledged"}`)
	assert.NotContains(t, text, `emsc_cases{category="backbone",dataset="Acknowledged"}`)
	assert.Contains(t, text, `emsc_dataset_status{dataset="Acknowledged",status="failed"} 1`)
	assert.Contains(t, text, `emsc_dataset_status{dataset="Acknowledged",status="processed"} 0`)

	// 下一次成功运行重新写入计数。
	r.Observe(sampleReport())
	require.NoError(t, r.WriteTextfile(path))
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `emsc_cases{category="ems",dataset="Acknowledged"} 5`)
}

func TestPush(t *testing.T) {
	var (
		gotPath string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.Observe(sampleReport())
	require.NoError(t, r.Push(context.Background(), srv.URL, "emsc", srv.Client()))

	assert.Equal(t, "/metrics/job/emsc", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestPush_EmptyURL(t *testing.T) {
	assert.Error(t, New().Push(context.Background(), "", "emsc", nil))
}

func TestHandler_ServesRegistry(t *testing.T) {
	r := New()
	r.Observe(sampleReport())

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "emsc_last_run_timestamp_seconds"))
}
