// Package metrics 把运行结果导出为 Prometheus 指标：
// node_exporter textfile、Pushgateway 推送，或 watch 模式下的 /metrics。
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/John-Robertt/EMSC/internal/domain"
)

var statuses = []string{domain.StatusProcessed, domain.StatusFailed, domain.StatusNotFound}

// Recorder 持有独立的 registry，避免污染全局默认 registry。
type Recorder struct {
	reg *prometheus.Registry

	cases       *prometheus.GaugeVec
	status      *prometheus.GaugeVec
	cleanup     *prometheus.CounterVec
	lastRunTS   prometheus.Gauge
	runDuration prometheus.Gauge
	runsTotal   *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{reg: prometheus.NewRegistry()}
	r.cases = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "emsc",
		Name:      "cases",
		Help:      "Export rows inside the trailing window by dataset and category (ems, backbone, cce)",
	}, []string{"dataset", "category"})
	r.status = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "emsc",
		Name:      "dataset_status",
		Help:      "1 for the status of the dataset in the last run, 0 otherwise",
	}, []string{"dataset", "status"})
	r.cleanup = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emsc",
		Name:      "cleanup_files_total",
		Help:      "Export files released by status",
	}, []string{"status"})
	r.lastRunTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "emsc",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last finished run",
	})
	r.runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "emsc",
		Name:      "last_run_duration_seconds",
		Help:      "Wall time of the last run",
	})
	r.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emsc",
		Name:      "runs_total",
		Help:      "Finished runs by outcome",
	}, []string{"outcome"})

	r.reg.MustRegister(r.cases, r.status, r.cleanup, r.lastRunTS, r.runDuration, r.runsTotal)
	return r
}

// Registry 暴露底层 registry（测试与自定义导出使用）。
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Observe 用一次运行结果刷新指标。
func (r *Recorder) Observe(rr domain.RunReport) {
	for _, it := range rr.Items {
		for _, s := range statuses {
			v := 0.0
			if it.Status == s {
				v = 1
			}
			r.status.WithLabelValues(it.Dataset, s).Set(v)
		}
		if it.Counts != nil {
			r.cases.WithLabelValues(it.Dataset, "ems").Set(float64(it.Counts.Recent))
			r.cases.WithLabelValues(it.Dataset, "backbone").Set(float64(it.Counts.Matching))
			r.cases.WithLabelValues(it.Dataset, "cce").Set(float64(it.Counts.NonMatching))
		} else {
			// 本次没有计数：移除上一次的值，避免与 status 指标矛盾。
			r.cases.DeletePartialMatch(prometheus.Labels{"dataset": it.Dataset})
		}
		if it.File != nil && it.File.Status != "" {
			r.cleanup.WithLabelValues(it.File.Status).Inc()
		}
	}

	outcome := "ok"
	switch {
	case rr.ErrorCode != "":
		outcome = rr.ErrorCode
	case rr.Summary.Failed > 0 || rr.Summary.NotFound > 0:
		outcome = "partial"
	}
	r.runsTotal.WithLabelValues(outcome).Inc()

	if !rr.FinishedAt.IsZero() {
		r.lastRunTS.Set(float64(rr.FinishedAt.Unix()))
		r.runDuration.Set(rr.FinishedAt.Sub(rr.StartedAt).Seconds())
	}
}

// WriteTextfile 原子写出 textfile collector 格式。
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

// Push 把当前指标推送到 Pushgateway（整组替换）。
func (r *Recorder) Push(ctx context.Context, url, job string, client *http.Client) error {
	if url == "" {
		return errors.New("pushgateway url 为空")
	}
	p := push.New(url, job).Gatherer(r.reg)
	if client != nil {
		p = p.Client(client)
	}
	return p.PushContext(ctx)
}

// Handler 返回 /metrics handler。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Server 是 watch 模式下的指标 HTTP 服务。
type Server struct {
	srv *http.Server
}

func NewServer(addr string, r *Recorder) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

// Serve 阻塞直到服务关闭；正常关闭返回 nil。
func (s *Server) Serve() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }
