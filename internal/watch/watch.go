// Package watch 监听导出目录，当每个数据集都有候选文件时触发一次运行。
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/John-Robertt/EMSC/internal/app"
	"github.com/John-Robertt/EMSC/internal/domain"
	"github.com/John-Robertt/EMSC/internal/scan"
)

// RunFunc 执行一次完整运行；Watcher 保证它不会并发调用。
type RunFunc func(ctx context.Context)

type Options struct {
	Dir         string
	ExcludeDirs []string
	Datasets    []domain.Dataset
	Select      string
	Debounce    time.Duration
	Logger      *zap.Logger
}

type Watcher struct {
	opts Options
	run  RunFunc
	fw   *fsnotify.Watcher
	log  *zap.Logger

	excluded []string
}

func New(opts Options, run RunFunc) (*Watcher, error) {
	if run == nil {
		return nil, errors.New("run 不能为空")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.Select == "" {
		opts.Select = scan.SelectNewest
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	excluded := make([]string, 0, len(opts.ExcludeDirs))
	for _, x := range opts.ExcludeDirs {
		if x = strings.TrimSpace(x); x == "" {
			continue
		}
		if !filepath.IsAbs(x) {
			x = filepath.Join(opts.Dir, x)
		}
		excluded = append(excluded, filepath.Clean(x))
	}

	return &Watcher{opts: opts, run: run, fw: fw, log: log, excluded: excluded}, nil
}

// Run 阻塞直到 ctx 取消；返回前关闭底层 fsnotify watcher。
//
// 启动时若文件已齐全则立即运行一次；之后相关文件的 create/write/rename
// 事件在静默 Debounce 后触发检查。运行在事件循环内同步执行，因此不会重叠。
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	if err := w.addTree(w.opts.Dir); err != nil {
		return err
	}
	w.log.Info("开始监听", zap.String("dir", w.opts.Dir), zap.Duration("debounce", w.opts.Debounce))

	w.maybeRun(ctx)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("停止监听")
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !w.handle(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.opts.Debounce)
			}
			timerC = timer.C

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("监听错误", zap.Error(err))

		case <-timerC:
			timerC = nil
			w.maybeRun(ctx)
		}
	}
}

// handle 处理单个事件；返回 true 表示需要（重新）开始防抖计时。
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if w.isExcluded(ev.Name) {
		return false
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}

	// 新建子目录：补上监听（fsnotify 不递归）。
	if ev.Op&fsnotify.Create != 0 {
		if isDir(ev.Name) {
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warn("添加监听失败", zap.String("dir", ev.Name), zap.Error(err))
			}
			return true
		}
	}

	base := filepath.Base(ev.Name)
	for _, ds := range w.opts.Datasets {
		if ds.Pattern != "" && strings.Contains(base, ds.Pattern) {
			w.log.Debug("导出文件变化", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			return true
		}
	}
	return false
}

func (w *Watcher) maybeRun(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ready, err := w.ready()
	if err != nil {
		w.log.Warn("检查导出文件失败", zap.Error(err))
		return
	}
	if !ready {
		w.log.Debug("导出文件未齐全，继续等待")
		return
	}
	w.log.Info("导出文件已齐全，开始运行")
	w.run(ctx)
}

func (w *Watcher) ready() (bool, error) {
	files, err := scan.ScanExports(w.opts.Dir, w.opts.ExcludeDirs)
	if err != nil {
		return false, err
	}
	located, err := app.GroupByDataset(files, w.opts.Datasets, w.opts.Select)
	if err != nil {
		if errors.Is(err, app.ErrNoFilesFound) {
			return false, nil
		}
		return false, err
	}
	for _, l := range located {
		if !l.Found {
			return false, nil
		}
	}
	return len(located) > 0, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != root && d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.isExcluded(path) {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
}

func (w *Watcher) isExcluded(path string) bool {
	path = filepath.Clean(path)
	for _, base := range w.excluded {
		if path == base || strings.HasPrefix(path, base+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
