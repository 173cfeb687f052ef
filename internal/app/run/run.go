package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/EMSC/internal/app"
	"github.com/John-Robertt/EMSC/internal/cleanup"
	"github.com/John-Robertt/EMSC/internal/config"
	"github.com/John-Robertt/EMSC/internal/domain"
	"github.com/John-Robertt/EMSC/internal/normalize"
	"github.com/John-Robertt/EMSC/internal/report"
	"github.com/John-Robertt/EMSC/internal/scan"
	"github.com/John-Robertt/EMSC/internal/table"
	"github.com/John-Robertt/EMSC/internal/window"
)

// Options 是一次运行的外部依赖；零值可用。
type Options struct {
	// Now 返回当前时刻（测试注入固定时钟）；默认 time.Now。
	Now func() time.Time
	// Stdout 接收控制台报告；默认丢弃。
	Stdout io.Writer
	Logger *zap.Logger
	// Sinks 在运行结束后并发接收 RunReport；失败只记日志。
	Sinks []Sink
	// NewRunID 默认 uuid.NewString。
	NewRunID func() string
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Stdout == nil {
		o.Stdout = io.Discard
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.NewRunID == nil {
		o.NewRunID = uuid.NewString
	}
	return o
}

// Execute 执行一次完整流程：定位 → 加载 → 计数 → 报告 → 收尾，并返回 RunReport。
// 所有工作流错误都降级为数据集级失败或运行级错误码，不会向上返回 error。
func Execute(ctx context.Context, eff config.EffectiveConfig, opts Options) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, opts, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, opts Options, obs Observer) domain.RunReport {
	opts = opts.withDefaults()
	started := opts.Now()

	rr := domain.RunReport{
		RunID:     opts.NewRunID(),
		Dir:       eff.Dir,
		StartedAt: started,
		Window:    eff.Window,
		Items:     make([]domain.ItemResult, 0, len(eff.Datasets)),
	}
	log := opts.Logger.With(zap.String("run_id", rr.RunID))
	log.Debug("run 开始", zap.String("dir", eff.Dir), zap.Duration("window", eff.Window), zap.String("zone", eff.ZoneName))

	if obs != nil {
		obs.OnStart(eff)
	}

	finish := func() domain.RunReport {
		rr.FinishedAt = opts.Now()
		rr.Finalize()
		fanOut(ctx, log, opts.Sinks, rr)
		log.Info("run 完成",
			zap.Int("processed", rr.Summary.Processed),
			zap.Int("failed", rr.Summary.Failed),
			zap.Int("not_found", rr.Summary.NotFound),
			zap.String("error_code", rr.ErrorCode),
		)
		return rr
	}

	matcher, err := normalize.NewMatcher(eff.Keyword)
	if err != nil {
		return failRun(&rr, opts.Stdout, log, domain.ErrCodeConfigInvalid, err.Error(), finish)
	}

	// 1) 定位
	scanStarted := time.Now()
	files, err := scan.ScanExports(eff.Dir, eff.ExcludeDirs)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return failRun(&rr, opts.Stdout, log, domain.ErrCodeUnexpected, fmt.Sprintf("扫描失败：%v", err), finish)
		}
		// 目录不存在与“没有文件”等价。
		log.Warn("扫描目录不存在", zap.String("dir", eff.Dir))
		files = nil
	}
	located, groupErr := app.GroupByDataset(files, eff.Datasets, eff.Select)
	if obs != nil {
		found := 0
		for _, l := range located {
			if l.Found {
				found++
			}
		}
		obs.OnPhaseDone("scan", map[string]any{
			"files":    len(files),
			"datasets": found,
		}, time.Since(scanStarted))
	}
	if groupErr != nil && !errors.Is(groupErr, app.ErrNoFilesFound) {
		return failRun(&rr, opts.Stdout, log, domain.ErrCodeUnexpected, groupErr.Error(), finish)
	}
	if errors.Is(groupErr, app.ErrNoFilesFound) {
		for _, l := range located {
			rr.Items = append(rr.Items, notFoundItem(eff.Dir, l.Dataset))
		}
		// 没有任何文件被加载，因此收尾阶段不触碰任何文件。
		return failRun(&rr, opts.Stdout, log, domain.ErrCodeNoFilesFound, report.NoFilesMessage(eff.Labels()), finish)
	}

	// 2) 加载 + 规范化
	held := cleanup.New(cleanup.Options{Mode: eff.Cleanup, ArchiveDir: eff.ArchiveDir})
	loadStarted := time.Now()
	rowsByIdx := make(map[int][]domain.NormalizedRow, len(located))
	for i, l := range located {
		oneStarted := time.Now()
		var it domain.ItemResult
		if !l.Found {
			it = notFoundItem(eff.Dir, l.Dataset)
		} else {
			var rows []domain.NormalizedRow
			it, rows = loadOne(l, eff, matcher)
			if it.Status == domain.StatusProcessed {
				held.Acquire(l.Dataset.Name, l.File.AbsPath)
				rowsByIdx[i] = rows
			}
		}
		logItem(log, it, l)
		rr.Items = append(rr.Items, it)
		if obs != nil {
			obs.OnDatasetDone(i+1, len(located), it, time.Since(oneStarted))
		}
	}
	if obs != nil {
		obs.OnPhaseDone("load", map[string]any{
			"loaded": held.Len(),
			"total":  len(located),
		}, time.Since(loadStarted))
	}

	// 3) 计数：now 在加载后取，且换算到配置时区。
	countStarted := time.Now()
	now := opts.Now().In(eff.Location)
	rr.EvaluatedAt = now
	counts := make([]domain.DatasetCounts, 0, len(rowsByIdx))
	for i := range rr.Items {
		rows, ok := rowsByIdx[i]
		if !ok {
			continue
		}
		ds := located[i].Dataset
		c := window.Count(ds.Name, ds.DisplayLabel(), rows, now, eff.Window)
		rr.Items[i].Counts = &c
		counts = append(counts, c)
	}
	rep := window.Build(now, eff.Window, counts...)
	if obs != nil {
		obs.OnPhaseDone("count", map[string]any{
			"datasets": len(counts),
			"cutoff":   window.Cutoff(now, eff.Window).Format(time.RFC3339),
		}, time.Since(countStarted))
	}

	if err := report.Console(opts.Stdout, rr, rep, eff.Labels()); err != nil {
		log.Warn("写控制台报告失败", zap.Error(err))
	}

	// 4) 收尾：只处理成功加载的文件，每个文件独立。
	cleanupStarted := time.Now()
	results := held.Release()
	var released, failed int
	for _, res := range results {
		idx := itemIndex(rr.Items, res.Dataset)
		if idx < 0 {
			continue
		}
		f := res.File
		rr.Items[idx].File = &f
		if res.ErrorCode != "" {
			failed++
			log.Warn("收尾失败",
				zap.String("dataset", res.Dataset),
				zap.String("src", f.Src),
				zap.String("error_code", res.ErrorCode),
				zap.String("error", f.Error),
			)
			continue
		}
		released++
		log.Debug("收尾完成", zap.String("dataset", res.Dataset), zap.String("src", f.Src), zap.String("status", f.Status))
	}
	if obs != nil {
		obs.OnPhaseDone("cleanup", map[string]any{
			"mode":     eff.Cleanup,
			"released": released,
			"failed":   failed,
		}, time.Since(cleanupStarted))
	}

	return finish()
}

func loadOne(l app.Located, eff config.EffectiveConfig, m normalize.Matcher) (domain.ItemResult, []domain.NormalizedRow) {
	it := domain.ItemResult{
		Dataset: l.Dataset.Name,
		Label:   l.Dataset.DisplayLabel(),
		File:    &domain.FileResult{Src: l.File.AbsPath},
	}

	tbl, err := table.Load(l.File.AbsPath, eff.TimeColumn, eff.TextColumn)
	if err != nil {
		it.Status = domain.StatusFailed
		it.ErrorCode = table.Code(err)
		if it.ErrorCode == "" {
			it.ErrorCode = domain.ErrCodeUnexpected
		}
		it.ErrorMsg = errorMessage(it.ErrorCode, l.File.AbsPath, err)
		return it, nil
	}
	it.Rows = tbl.Len()

	rows, err := normalize.Rows(tbl, normalize.Options{
		TimeColumn: eff.TimeColumn,
		TextColumn: eff.TextColumn,
		Location:   eff.Location,
		Matcher:    m,
	})
	if err != nil {
		it.Status = domain.StatusFailed
		it.ErrorCode = domain.ErrCodeMissingColumn
		it.ErrorMsg = err.Error()
		return it, nil
	}
	it.Status = domain.StatusProcessed
	return it, rows
}

// errorMessage 生成控制台失败行的内容：file_not_found 只给路径。
func errorMessage(code, path string, err error) string {
	if code == domain.ErrCodeFileNotFound {
		return path
	}
	var te *table.Error
	if errors.As(err, &te) && te.Err != nil {
		return te.Err.Error()
	}
	return err.Error()
}

func notFoundItem(dir string, ds domain.Dataset) domain.ItemResult {
	return domain.ItemResult{
		Dataset:   ds.Name,
		Label:     ds.DisplayLabel(),
		Status:    domain.StatusNotFound,
		ErrorCode: domain.ErrCodeFileNotFound,
		ErrorMsg:  filepath.Join(dir, "*"+ds.Pattern+"*"),
	}
}

func failRun(rr *domain.RunReport, stdout io.Writer, log *zap.Logger, code, msg string, finish func() domain.RunReport) domain.RunReport {
	rr.ErrorCode = code
	rr.ErrorMsg = msg
	log.Warn("run 失败", zap.String("error_code", code), zap.String("error", msg))
	if err := report.Failure(stdout, code, msg); err != nil {
		log.Warn("写控制台报告失败", zap.Error(err))
	}
	return finish()
}

func logItem(log *zap.Logger, it domain.ItemResult, l app.Located) {
	if it.Status == domain.StatusProcessed {
		log.Debug("数据集已加载",
			zap.String("dataset", it.Dataset),
			zap.String("file", l.File.RelPath),
			zap.Int("candidates", l.Candidates),
			zap.Int("rows", it.Rows),
		)
		return
	}
	log.Warn("数据集失败",
		zap.String("dataset", it.Dataset),
		zap.String("error_code", it.ErrorCode),
		zap.String("error", it.ErrorMsg),
	)
}

func itemIndex(items []domain.ItemResult, dataset string) int {
	for i := range items {
		if items[i].Dataset == dataset {
			return i
		}
	}
	return -1
}

// fanOut 并发把结果交给所有 sink；单个 sink 失败不影响其他 sink。
func fanOut(ctx context.Context, log *zap.Logger, sinks []Sink, rr domain.RunReport) {
	if len(sinks) == 0 {
		return
	}
	var g errgroup.Group
	for _, s := range sinks {
		s := s
		g.Go(func() error {
			started := time.Now()
			if err := s.Send(ctx, rr); err != nil {
				log.Warn("sink 失败", zap.String("sink", s.Name()), zap.Error(err))
				return err
			}
			log.Debug("sink 完成", zap.String("sink", s.Name()), zap.Duration("took", time.Since(started)))
			return nil
		})
	}
	_ = g.Wait()
}
