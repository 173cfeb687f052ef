package run

import (
	"time"

	"github.com/John-Robertt/EMSC/internal/config"
	"github.com/John-Robertt/EMSC/internal/domain"
)

// Observer 用于把“运行进度/阶段/数据集结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做进度输出（stdout 只留给计数报告）。
// - 事件在调用 ExecuteWithObserver 的 goroutine 上同步发出；watch 模式下多次运行串行。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用：scan、load、count、cleanup。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnDatasetDone 在某个数据集加载完成（成功或失败）时调用。
	OnDatasetDone(idx, total int, res domain.ItemResult, dur time.Duration)
}
