package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/John-Robertt/EMSC/internal/config"
	"github.com/John-Robertt/EMSC/internal/domain"
	"github.com/John-Robertt/EMSC/internal/history"
	"github.com/John-Robertt/EMSC/internal/infra/httpx"
	"github.com/John-Robertt/EMSC/internal/metrics"
	"github.com/John-Robertt/EMSC/internal/publish"
)

// Sink 消费一次运行的最终结果（控制台之外的输出）。
type Sink interface {
	Name() string
	Send(ctx context.Context, rr domain.RunReport) error
}

// HistorySink 把结果写入 SQL 历史表。
type HistorySink struct {
	Store *history.Store
}

func (HistorySink) Name() string { return "history" }

func (s HistorySink) Send(ctx context.Context, rr domain.RunReport) error {
	return s.Store.Save(ctx, rr)
}

// MetricsSink 刷新指标，并按配置写 textfile / 推送 Pushgateway。
type MetricsSink struct {
	Recorder    *metrics.Recorder
	Textfile    string
	Pushgateway string
	Job         string
	Client      *http.Client
}

func (MetricsSink) Name() string { return "metrics" }

func (s MetricsSink) Send(ctx context.Context, rr domain.RunReport) error {
	s.Recorder.Observe(rr)

	var errs []error
	if s.Textfile != "" {
		if err := s.Recorder.WriteTextfile(s.Textfile); err != nil {
			errs = append(errs, fmt.Errorf("写 textfile 失败：%w", err))
		}
	}
	if s.Pushgateway != "" {
		if err := s.Recorder.Push(ctx, s.Pushgateway, s.Job, s.Client); err != nil {
			errs = append(errs, fmt.Errorf("推送 pushgateway 失败：%w", err))
		}
	}
	return errors.Join(errs...)
}

// PublishSink 把结果发布到 RabbitMQ。
type PublishSink struct {
	Publisher *publish.Publisher
}

func (PublishSink) Name() string { return "publish" }

func (s PublishSink) Send(ctx context.Context, rr domain.RunReport) error {
	return s.Publisher.Publish(ctx, rr)
}

// Sinks 是按配置构建出的 sink 集合，以及需要在退出时释放的资源。
type Sinks struct {
	List     []Sink
	Recorder *metrics.Recorder

	closers []func() error
}

// Close 释放所有 sink 持有的连接。
func (s *Sinks) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// BuildSinks 按配置打开 sink。
//
// 外部服务不可用时只记录警告并跳过对应 sink：计数报告不依赖它们。
// 只有配置层面的错误（例如代理地址非法）才返回 error。
func BuildSinks(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger) (*Sinks, error) {
	if log == nil {
		log = zap.NewNop()
	}
	out := &Sinks{}

	if eff.MetricsTextfile != "" || eff.MetricsPushgateway != "" || eff.MetricsListen != "" {
		var client *http.Client
		if eff.MetricsPushgateway != "" {
			c, err := httpx.NewPushClient(eff.MetricsProxy)
			if err != nil {
				return nil, fmt.Errorf("metrics.proxy 无效：%w", err)
			}
			client = c
		}
		out.Recorder = metrics.New()
		out.List = append(out.List, MetricsSink{
			Recorder:    out.Recorder,
			Textfile:    eff.MetricsTextfile,
			Pushgateway: eff.MetricsPushgateway,
			Job:         eff.MetricsJob,
			Client:      client,
		})
	}

	if eff.HistoryDriver != "" {
		st, err := history.Open(ctx, eff.HistoryDriver, eff.HistoryDSN)
		if err != nil {
			log.Warn("history 不可用，跳过", zap.String("driver", eff.HistoryDriver), zap.Error(err))
		} else {
			out.List = append(out.List, HistorySink{Store: st})
			out.closers = append(out.closers, st.Close)
		}
	}

	if eff.PublishURL != "" {
		p, err := publish.Dial(eff.PublishURL, eff.PublishExchange, eff.PublishRoutingKey)
		if err != nil {
			log.Warn("publish 不可用，跳过", zap.String("exchange", eff.PublishExchange), zap.Error(err))
		} else {
			out.List = append(out.List, PublishSink{Publisher: p})
			out.closers = append(out.closers, p.Close)
		}
	}

	return out, nil
}
