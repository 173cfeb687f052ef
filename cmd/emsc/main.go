package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/John-Robertt/EMSC/internal/app/run"
	"github.com/John-Robertt/EMSC/internal/config"
	"github.com/John-Robertt/EMSC/internal/history"
	"github.com/John-Robertt/EMSC/internal/metrics"
	"github.com/John-Robertt/EMSC/internal/watch"
)

func main() {
	env := defaultEnv()
	root := newRootCmd(env)
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(exitCode(env.stderr, err))
	}
}

// exitError 携带进程退出码；工作流内的失败不会产生它（始终退出 0）。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(stderr io.Writer, err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(stderr, ee.err)
		return ee.code
	}
	// cobra 自身的参数错误。
	fmt.Fprintf(stderr, "参数错误：%v\n", err)
	return 2
}

// cliEnv 收拢进程级依赖，测试中整体替换。
type cliEnv struct {
	stdout io.Writer
	stderr io.Writer
	// progress 非空时输出进度（仅交互终端）。
	progress io.Writer

	getwd     func() (string, error)
	home      func() (string, error)
	now       func() time.Time
	newLogger func(level string) (*zap.Logger, error)
}

func defaultEnv() cliEnv {
	env := cliEnv{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		getwd:     os.Getwd,
		home:      os.UserHomeDir,
		now:       time.Now,
		newLogger: newLogger,
	}
	if isTTY(os.Stderr) {
		env.progress = os.Stderr
	}
	return env
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lv, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lv)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

type cliFlags struct {
	config  string
	dir     string
	window  time.Duration
	keyword string
	zone    string
	sel     string
	cleanup string
	verbose bool
}

func newRootCmd(env cliEnv) *cobra.Command {
	fl := &cliFlags{}

	root := &cobra.Command{
		Use:   "emsc",
		Short: "统计 EMS 导出文件中最近时间窗内的告警数量",
		Long: `emsc 在下载目录中查找 EMS 导出文件（Acknowledged / Resolved），
统计最近时间窗内的告警数，并按关键字（默认 WxBB）拆分为 Backbone 与 CCE，
输出后删除（或归档）已处理的导出文件。

不带子命令等同于 "emsc run"；"emsc history" 查看已持久化的运行记录。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, env, fl)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&fl.config, "config", "", "配置文件路径（默认读取 ./emsc.yaml，可选）")
	pf.StringVar(&fl.dir, "dir", "", "导出文件所在目录（默认 ~/Downloads）")
	pf.DurationVar(&fl.window, "window", config.DefaultWindow, "时间窗长度")
	pf.StringVar(&fl.keyword, "keyword", config.DefaultKeyword, "Backbone 关键字（大小写不敏感）")
	pf.StringVar(&fl.zone, "zone", config.DefaultZone, "本地时区（IANA 名称）")
	pf.StringVar(&fl.sel, "select", "newest", "同一数据集有多个文件时的选择规则：newest|first")
	pf.StringVar(&fl.cleanup, "cleanup", "delete", "处理完成后的收尾：delete|archive|keep")
	pf.BoolVarP(&fl.verbose, "verbose", "v", false, "输出 debug 日志")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "运行一次（默认命令）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, env, fl)
		},
	})
	hf := &historyFlags{}
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "查看最近的运行记录（需要配置 history）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, env, fl, hf)
		},
	}
	historyCmd.Flags().StringSliceVar(&hf.datasets, "dataset", nil, "数据集名称（默认全部已配置的数据集）")
	historyCmd.Flags().IntVar(&hf.limit, "limit", 10, "每个数据集最多返回的记录数")
	root.AddCommand(historyCmd)

	root.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "监听目录，导出文件齐全时自动运行",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, env, fl)
		},
	})
	return root
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

func loadConfig(cmd *cobra.Command, env cliEnv, fl *cliFlags) (config.EffectiveConfig, error) {
	cwd, err := env.getwd()
	if err != nil {
		return config.EffectiveConfig{}, &exitError{code: 1, err: fmt.Errorf("读取当前目录失败：%w", err)}
	}
	home, err := env.home()
	if err != nil {
		return config.EffectiveConfig{}, &exitError{code: 1, err: fmt.Errorf("读取 home 目录失败：%w", err)}
	}

	eff, err := config.LoadEffective(cwd, home, config.CLIArgs{
		ConfigPath: fl.config,
		Dir:        fl.dir,
		DirSet:     changed(cmd, "dir"),
		Window:     fl.window,
		WindowSet:  changed(cmd, "window"),
		Keyword:    fl.keyword,
		KeywordSet: changed(cmd, "keyword"),
		Zone:       fl.zone,
		ZoneSet:    changed(cmd, "zone"),
		Select:     fl.sel,
		SelectSet:  changed(cmd, "select"),
		Cleanup:    fl.cleanup,
		CleanupSet: changed(cmd, "cleanup"),
		Verbose:    fl.verbose,
	})
	if err != nil {
		return config.EffectiveConfig{}, &exitError{code: 2, err: err}
	}
	return eff, nil
}

// prepare 加载配置并构建 logger 与 sink；返回的 cleanup 必须调用。
func prepare(cmd *cobra.Command, env cliEnv, fl *cliFlags) (config.EffectiveConfig, *zap.Logger, *run.Sinks, func(), error) {
	eff, err := loadConfig(cmd, env, fl)
	if err != nil {
		return config.EffectiveConfig{}, nil, nil, nil, err
	}
	log, err := env.newLogger(eff.LogLevel)
	if err != nil {
		return config.EffectiveConfig{}, nil, nil, nil, &exitError{code: 1, err: fmt.Errorf("初始化日志失败：%w", err)}
	}
	if eff.ConfigFile != "" {
		log.Debug("已读取配置文件", zap.String("path", eff.ConfigFile))
	}

	sinks, err := run.BuildSinks(cmd.Context(), eff, log)
	if err != nil {
		_ = log.Sync()
		return config.EffectiveConfig{}, nil, nil, nil, &exitError{code: 2, err: err}
	}
	cleanup := func() {
		if err := sinks.Close(); err != nil {
			log.Warn("关闭 sink 失败", zap.Error(err))
		}
		_ = log.Sync()
	}
	return eff, log, sinks, cleanup, nil
}

func runOnce(cmd *cobra.Command, env cliEnv, fl *cliFlags) error {
	eff, log, sinks, cleanup, err := prepare(cmd, env, fl)
	if err != nil {
		return err
	}
	defer cleanup()

	var obs run.Observer
	if env.progress != nil {
		obs = newProgressUI(env.progress)
	}
	run.ExecuteWithObserver(cmd.Context(), eff, run.Options{
		Now:    env.now,
		Stdout: env.stdout,
		Logger: log,
		Sinks:  sinks.List,
	}, obs)
	return nil
}

func runWatch(cmd *cobra.Command, env cliEnv, fl *cliFlags) error {
	eff, log, sinks, cleanup, err := prepare(cmd, env, fl)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if eff.MetricsListen != "" && sinks.Recorder != nil {
		srv := metrics.NewServer(eff.MetricsListen, sinks.Recorder)
		go func() {
			if err := srv.Serve(); err != nil {
				log.Error("metrics 服务退出", zap.String("addr", eff.MetricsListen), zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	w, err := watch.New(watch.Options{
		Dir:         eff.Dir,
		ExcludeDirs: eff.ExcludeDirs,
		Datasets:    eff.Datasets,
		Select:      eff.Select,
		Debounce:    eff.Debounce,
		Logger:      log,
	}, func(ctx context.Context) {
		var obs run.Observer
		if env.progress != nil {
			obs = newProgressUI(env.progress)
		}
		run.ExecuteWithObserver(ctx, eff, run.Options{
			Now:    env.now,
			Stdout: env.stdout,
			Logger: log,
			Sinks:  sinks.List,
		}, obs)
	})
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("初始化监听失败：%w", err)}
	}
	if err := w.Run(ctx); err != nil {
		return &exitError{code: 1, err: fmt.Errorf("监听失败：%w", err)}
	}
	return nil
}

type historyFlags struct {
	datasets []string
	limit    int
}

// runHistory 以 JSON 数组输出各数据集最近的运行记录（按数据集顺序，组内从新到旧）。
func runHistory(cmd *cobra.Command, env cliEnv, fl *cliFlags, hf *historyFlags) error {
	eff, err := loadConfig(cmd, env, fl)
	if err != nil {
		return err
	}
	if eff.HistoryDriver == "" {
		return &exitError{code: 2, err: errors.New("未配置 history.driver，没有可查询的记录")}
	}
	if hf.limit <= 0 {
		return &exitError{code: 2, err: fmt.Errorf("--limit 必须大于 0，实际是 %d", hf.limit)}
	}

	st, err := history.Open(cmd.Context(), eff.HistoryDriver, eff.HistoryDSN)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("打开 history 失败：%w", err)}
	}
	defer st.Close()

	names := hf.datasets
	if len(names) == 0 {
		for _, ds := range eff.Datasets {
			names = append(names, ds.Name)
		}
	}

	out := make([]history.Record, 0, len(names)*hf.limit)
	for _, name := range names {
		recs, err := st.Recent(cmd.Context(), name, hf.limit)
		if err != nil {
			return &exitError{code: 1, err: fmt.Errorf("查询 %s 失败：%w", name, err)}
		}
		out = append(out, recs...)
	}

	enc := json.NewEncoder(env.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return &exitError{code: 1, err: fmt.Errorf("输出记录失败：%w", err)}
	}
	return nil
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
