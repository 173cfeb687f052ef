package app

import (
	"errors"

	"github.com/John-Robertt/EMSC/internal/domain"
	"github.com/John-Robertt/EMSC/internal/scan"
)

// ErrNoFilesFound 表示所有数据集都没有任何候选文件。
var ErrNoFilesFound = errors.New("no export files found")

// Located 是某个数据集的定位结果。
type Located struct {
	Dataset    domain.Dataset
	File       domain.ExportFile
	Found      bool
	Candidates int
}

// GroupByDataset 把扫描结果按数据集的文件名子串分组，并按 rule 为每个数据集挑选一个文件。
//
// - 结果顺序与 datasets 一致
// - 每个数据集独立：单个数据集无候选只标记 Found=false，不影响其他数据集
// - 所有数据集都无候选：返回 ErrNoFilesFound
func GroupByDataset(files []domain.ExportFile, datasets []domain.Dataset, rule string) ([]Located, error) {
	out := make([]Located, 0, len(datasets))
	found := 0
	for _, ds := range datasets {
		cands := scan.Partition(files, ds.Pattern)
		f, ok := scan.Select(cands, rule)
		if ok {
			found++
		}
		out = append(out, Located{
			Dataset:    ds,
			File:       f,
			Found:      ok,
			Candidates: len(cands),
		})
	}
	if found == 0 {
		return out, ErrNoFilesFound
	}
	return out, nil
}
