// Package window 负责“最近 N 小时”过滤与三类计数，不做任何 I/O。
package window

import (
	"time"

	"github.com/John-Robertt/EMSC/internal/domain"
)

// Cutoff 返回窗口下界；行时刻必须严格大于它才计入。
func Cutoff(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}

// InWindow 判断单行是否落在窗口内（null 行永远不在）。
func InWindow(r domain.NormalizedRow, cutoff time.Time) bool {
	return r.Valid && r.Local.After(cutoff)
}

// Count 统计单个数据集：
//   - Recent：窗口内行数
//   - Matching：窗口内且命中关键字的行数
//   - NonMatching：Recent - Matching
func Count(name, label string, rows []domain.NormalizedRow, now time.Time, window time.Duration) domain.DatasetCounts {
	cutoff := Cutoff(now, window)
	c := domain.DatasetCounts{Dataset: name, Label: label}
	for _, r := range rows {
		if !InWindow(r, cutoff) {
			continue
		}
		c.Recent++
		if r.Match {
			c.Matching++
		}
	}
	c.NonMatching = c.Recent - c.Matching
	return c
}

// Build 按传入顺序组装报告。
func Build(now time.Time, window time.Duration, counts ...domain.DatasetCounts) domain.Report {
	out := make([]domain.DatasetCounts, len(counts))
	copy(out, counts)
	return domain.Report{Now: now, Window: window, Datasets: out}
}
