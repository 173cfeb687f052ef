// Package cleanup 管理已加载导出文件的收尾（删除/归档/保留）。
//
// 只有成功加载的文件才会被 Acquire；Release 对每个文件独立执行，
// 单个文件失败不影响其他文件，也不会让进程失败。
package cleanup

import (
	"errors"
	"os"

	"github.com/John-Robertt/EMSC/internal/app/planner"
	"github.com/John-Robertt/EMSC/internal/domain"
	"github.com/John-Robertt/EMSC/internal/infra/fsx"
)

type Options struct {
	Mode       string
	ArchiveDir string
}

// Result 是单个文件的收尾结果。
type Result struct {
	Dataset   string
	ErrorCode string
	File      domain.FileResult
}

// Set 持有本次运行中需要收尾的文件。零值不可用，请使用 New。
type Set struct {
	opts Options
	held []planner.Held
}

func New(opts Options) *Set {
	if opts.Mode == "" {
		opts.Mode = domain.CleanupDelete
	}
	return &Set{opts: opts}
}

// Acquire 登记一个已成功加载的文件。
func (s *Set) Acquire(dataset, absPath string) {
	s.held = append(s.held, planner.Held{Dataset: dataset, AbsPath: absPath})
}

// Len 返回已登记的文件数。
func (s *Set) Len() int { return len(s.held) }

// Release 执行收尾，并按 Acquire 顺序返回结果。
//
// 文件已不存在记为 missing，不算失败。
func (s *Set) Release() []Result {
	if len(s.held) == 0 {
		return nil
	}

	if s.opts.Mode == domain.CleanupKeep {
		out := make([]Result, 0, len(s.held))
		for _, h := range s.held {
			out = append(out, Result{
				Dataset: h.Dataset,
				File:    domain.FileResult{Src: h.AbsPath, Status: domain.FileStatusKept},
			})
		}
		return out
	}

	var st planner.ArchiveState
	if s.opts.Mode == domain.CleanupArchive {
		var err error
		st, err = planner.ReadArchiveState(s.opts.ArchiveDir)
		if err != nil {
			return s.failAll(domain.ErrCodeCleanupFailed, err)
		}
	}

	plans, err := planner.PlanRelease(s.opts.Mode, s.held, st)
	if err != nil {
		return s.failAll(domain.ErrCodeCleanupFailed, err)
	}

	out := make([]Result, 0, len(plans))
	for _, p := range plans {
		out = append(out, apply(p))
	}
	return out
}

func apply(p domain.ReleasePlan) Result {
	res := Result{
		Dataset: p.Dataset,
		File:    domain.FileResult{Src: p.SrcAbs, Dst: p.DstAbs},
	}

	switch p.Mode {
	case domain.CleanupDelete:
		removed, err := fsx.RemoveIfExists(p.SrcAbs)
		switch {
		case err != nil:
			res.fail(err)
		case removed:
			res.File.Status = domain.FileStatusDeleted
		default:
			res.File.Status = domain.FileStatusMissing
		}
	case domain.CleanupArchive:
		err := fsx.MoveNoOverwrite(p.SrcAbs, p.DstAbs)
		switch {
		case err == nil:
			res.File.Status = domain.FileStatusArchived
		case errors.Is(err, os.ErrNotExist) && !fsx.IsCrossDevice(err):
			res.File.Status = domain.FileStatusMissing
			res.File.Dst = ""
		default:
			res.fail(err)
		}
	}
	return res
}

func (r *Result) fail(err error) {
	r.File.Status = domain.FileStatusFailed
	r.File.Error = err.Error()
	r.ErrorCode = Code(err)
}

func (s *Set) failAll(code string, err error) []Result {
	out := make([]Result, 0, len(s.held))
	for _, h := range s.held {
		out = append(out, Result{
			Dataset:   h.Dataset,
			ErrorCode: code,
			File:      domain.FileResult{Src: h.AbsPath, Status: domain.FileStatusFailed, Error: err.Error()},
		})
	}
	return out
}

// Code 把文件系统错误映射为错误码。
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case fsx.IsCrossDevice(err):
		return domain.ErrCodeCrossDeviceMove
	case fsx.IsPathTypeConflict(err), errors.Is(err, os.ErrExist):
		return domain.ErrCodeTargetConflict
	default:
		return domain.ErrCodeCleanupFailed
	}
}
