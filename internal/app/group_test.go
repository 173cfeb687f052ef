package app

import (
	"errors"
	"testing"
	"time"

	"github.com/John-Robertt/EMSC/internal/domain"
	"github.com/John-Robertt/EMSC/internal/scan"
)

func TestGroupByDataset_PerDatasetIndependent(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	files := []domain.ExportFile{
		{RelPath: "EMSv2-export-PCC_-_Acknowledged (1).csv", Name: "EMSv2-export-PCC_-_Acknowledged (1).csv", ModTime: base.Add(time.Hour)},
		{RelPath: "EMSv2-export-PCC_-_Acknowledged.csv", Name: "EMSv2-export-PCC_-_Acknowledged.csv", ModTime: base},
		{RelPath: "other.csv", Name: "other.csv", ModTime: base},
	}

	got, err := GroupByDataset(files, domain.DefaultDatasets(), scan.SelectNewest)
	if err != nil {
		t.Fatalf("只要有一个数据集命中就不应报错：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 个结果，实际 %d", len(got))
	}
	if !got[0].Found || got[0].Candidates != 2 || got[0].File.RelPath != "EMSv2-export-PCC_-_Acknowledged (1).csv" {
		t.Fatalf("Acknowledged 定位不正确：%+v", got[0])
	}
	if got[1].Found || got[1].Dataset.Name != "Resolved" {
		t.Fatalf("Resolved 应标记为未找到：%+v", got[1])
	}
}

func TestGroupByDataset_NoFilesFound(t *testing.T) {
	files := []domain.ExportFile{{RelPath: "x.csv", Name: "x.csv"}}

	got, err := GroupByDataset(files, domain.DefaultDatasets(), scan.SelectFirst)
	if !errors.Is(err, ErrNoFilesFound) {
		t.Fatalf("期望 ErrNoFilesFound，实际 %v", err)
	}
	for _, l := range got {
		if l.Found {
			t.Fatalf("不应有任何数据集命中：%+v", l)
		}
	}
}
