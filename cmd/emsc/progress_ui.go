package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/EMSC/internal/app/run"
	"github.com/John-Robertt/EMSC/internal/config"
	"github.com/John-Robertt/EMSC/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 把运行过程写到 stderr；stdout 只留给计数报告。
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time
	ok        int
	fail      int
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = time.Now()
	p.ok, p.fail = 0, 0

	fmt.Fprintf(p.w, "[%s] EMSC run\n", p.startedAt.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintf(p.w, "  dir: %s\n", eff.Dir)
	fmt.Fprintf(p.w, "  datasets: %s\n", formatStringListJSON(eff.Labels()))
	fmt.Fprintf(p.w, "  zone: %s\n", eff.ZoneName)
	fmt.Fprintf(p.w, "  window: %s\n", eff.Window)
	fmt.Fprintf(p.w, "  keyword: %s\n", truncate(eff.Keyword, 60))
	fmt.Fprintf(p.w, "  select: %s\n", eff.Select)
	fmt.Fprintf(p.w, "  cleanup: %s\n", formatCleanup(eff))
	fmt.Fprintf(p.w, "  exclude_dirs: %s\n", formatStringListJSON(eff.ExcludeDirs))
	if eff.MetricsTextfile != "" || eff.MetricsPushgateway != "" || eff.MetricsListen != "" {
		fmt.Fprintf(p.w, "  metrics: textfile=%s push=%s listen=%s proxy=%s\n",
			orOff(eff.MetricsTextfile), formatURL(eff.MetricsPushgateway), orOff(eff.MetricsListen), formatURL(eff.MetricsProxy),
		)
	}
	if eff.HistoryDriver != "" {
		fmt.Fprintf(p.w, "  history: %s\n", eff.HistoryDriver)
	}
	if eff.PublishURL != "" {
		fmt.Fprintf(p.w, "  publish: %s exchange=%q key=%s\n", formatURL(eff.PublishURL), eff.PublishExchange, eff.PublishRoutingKey)
	}
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d datasets=%d (%s)\n",
			intField(fields, "files"), intField(fields, "datasets"), formatShortDuration(dur),
		)
	case "load":
		fmt.Fprintf(p.w, "加载: loaded=%d/%d (%s)\n",
			intField(fields, "loaded"), intField(fields, "total"), formatShortDuration(dur),
		)
	case "count":
		fmt.Fprintf(p.w, "统计: datasets=%d cutoff=%s (%s)\n",
			intField(fields, "datasets"), stringField(fields, "cutoff"), formatShortDuration(dur),
		)
	case "cleanup":
		fmt.Fprintf(p.w, "收尾: mode=%s released=%d failed=%d (%s)\n",
			stringField(fields, "mode"), intField(fields, "released"), intField(fields, "failed"), formatShortDuration(dur),
		)
		fmt.Fprintf(p.w, "完成: ok=%d fail=%d elapsed=%s\n", p.ok, p.fail, formatShortDuration(time.Since(p.startedAt)))
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnDatasetDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s OK rows=%d (%s)\n", idx, total, res.Dataset, res.Rows, formatShortDuration(dur))
	case domain.StatusFailed:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			idx, total, res.Dataset, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s %s (%s)\n", idx, total, res.Dataset, strings.ToUpper(res.Status), formatShortDuration(dur))
	}
}

func formatCleanup(eff config.EffectiveConfig) string {
	if eff.Cleanup == domain.CleanupArchive {
		return "archive -> " + eff.ArchiveDir
	}
	return eff.Cleanup
}

func orOff(s string) string {
	if strings.TrimSpace(s) == "" {
		return "off"
	}
	return s
}

// formatURL 只展示 scheme 与 host，隐去凭据。
func formatURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("%s://%s (auth=%s)", u.Scheme, u.Host, auth)
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func intField(fields map[string]any, key string) int {
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
