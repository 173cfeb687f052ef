package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/EMSC/internal/domain"
)

// Held 是一个已成功加载、等待收尾的导出文件。
type Held struct {
	Dataset string
	AbsPath string
}

// ArchiveState 是归档目录的现状（只做 ReadDir，不读文件内容）。
type ArchiveState struct {
	Dir           string
	ExistingNames map[string]struct{}
}

// ReadArchiveState 读取归档目录已有的文件名。
// 目录不存在时返回空状态且不报错（首次归档时再创建）。
func ReadArchiveState(dir string) (ArchiveState, error) {
	st := ArchiveState{
		Dir:           dir,
		ExistingNames: map[string]struct{}{},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return ArchiveState{}, err
	}
	for _, e := range entries {
		st.ExistingNames[e.Name()] = struct{}{}
	}
	return st, nil
}

// PlanRelease 为已持有的文件生成确定性的收尾计划（不做任何删除/移动）。
//
// - delete：每个文件一条计划，Dst 为空
// - archive：目标名保留原文件名，冲突时分配 name__2.ext、name__3.ext ...
// - keep：不生成计划
//
// 同一路径被多个数据集持有时只规划一次。
func PlanRelease(mode string, held []Held, st ArchiveState) ([]domain.ReleasePlan, error) {
	switch mode {
	case domain.CleanupKeep:
		return nil, nil
	case domain.CleanupDelete, domain.CleanupArchive:
	default:
		return nil, fmt.Errorf("未知的 cleanup 模式：%q", mode)
	}

	used := make(map[string]struct{}, len(st.ExistingNames)+len(held))
	for n := range st.ExistingNames {
		used[n] = struct{}{}
	}

	seen := make(map[string]struct{}, len(held))
	plans := make([]domain.ReleasePlan, 0, len(held))
	for _, h := range held {
		if h.AbsPath == "" {
			return nil, fmt.Errorf("数据集 %q 的文件路径为空", h.Dataset)
		}
		if _, ok := seen[h.AbsPath]; ok {
			continue
		}
		seen[h.AbsPath] = struct{}{}

		p := domain.ReleasePlan{Dataset: h.Dataset, Mode: mode, SrcAbs: h.AbsPath}
		if mode == domain.CleanupArchive {
			dstName := allocName(filepath.Base(h.AbsPath), used)
			used[dstName] = struct{}{}
			p.DstAbs = filepath.Join(st.Dir, dstName)
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func allocName(name string, used map[string]struct{}) string {
	if _, ok := used[name]; !ok {
		return name
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s__%d%s", base, n, ext)
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
}
