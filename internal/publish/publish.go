// Package publish 把运行结果作为一条持久化 JSON 消息发到 RabbitMQ。
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/John-Robertt/EMSC/internal/domain"
)

// Channel 是 Publisher 依赖的最小 AMQP 通道能力（测试中替换为假实现）。
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	ch         Channel
	conn       *amqp.Connection
	exchange   string
	routingKey string
}

// Dial 连接 broker 并打开通道；exchange 非空时声明为 durable topic exchange。
// exchange 为空表示默认 exchange，此时 routingKey 即队列名。
func Dial(url, exchange, routingKey string) (*Publisher, error) {
	if routingKey == "" {
		return nil, errors.New("routing key 为空")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败：%w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建通道失败：%w", err)
	}
	if exchange != "" {
		if err := ch.ExchangeDeclare(
			exchange, // name
			"topic",  // kind
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("声明 exchange 失败：%w", err)
		}
	}
	p := New(ch, exchange, routingKey)
	p.conn = conn
	return p, nil
}

// New 用已有通道构造 Publisher。
func New(ch Channel, exchange, routingKey string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, routingKey: routingKey}
}

// Publish 发送一条消息；MessageId 为 run id，便于消费端去重。
func (p *Publisher) Publish(ctx context.Context, rr domain.RunReport) error {
	body, err := json.Marshal(rr)
	if err != nil {
		return fmt.Errorf("序列化运行结果失败：%w", err)
	}

	outcome := "ok"
	if rr.ErrorCode != "" {
		outcome = rr.ErrorCode
	}
	return p.ch.PublishWithContext(ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    rr.RunID,
			Timestamp:    rr.FinishedAt,
			Type:         "emsc.run",
			Headers: amqp.Table{
				"x-emsc-outcome":   outcome,
				"x-emsc-processed": int32(rr.Summary.Processed),
				"x-emsc-failed":    int32(rr.Summary.Failed + rr.Summary.NotFound),
			},
			Body: body,
		},
	)
}

// Close 关闭通道与连接；重复调用安全。
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
