package scan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/EMSC/internal/domain"
)

const ackPattern = "EMSv2-export-PCC_-_Acknowledged"

func TestScanExports_RecursiveAndSorted(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "b", ackPattern+" (1).csv"))
	touch(t, filepath.Join(root, ackPattern+".csv"))
	touch(t, filepath.Join(root, "notes.txt"))

	got, err := ScanExports(root, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 3 {
		t.Fatalf("期望 3 个文件，实际 %d", len(got))
	}
	want := []string{ackPattern + ".csv", filepath.Join("b", ackPattern+" (1).csv"), "notes.txt"}
	for i := range want {
		if got[i].RelPath != want[i] {
			t.Fatalf("第 %d 个 rel 期望 %q，实际 %q", i, want[i], got[i].RelPath)
		}
	}
	if got[0].Ext != ".csv" || got[0].Name != ackPattern+".csv" {
		t.Fatalf("文件元信息不正确：%+v", got[0])
	}
}

func TestScanExports_ExcludeDirsFromConfig(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "archive", ackPattern+".csv"))
	touch(t, filepath.Join(root, "ok", ackPattern+".csv"))

	got, err := ScanExports(root, []string{"archive"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("期望 1 个文件，实际 %d", len(got))
	}
	wantRel := filepath.Join("ok", ackPattern+".csv")
	if got[0].RelPath != wantRel {
		t.Fatalf("期望 rel=%q，实际=%q", wantRel, got[0].RelPath)
	}
}

func TestScanExports_MissingRoot(t *testing.T) {
	_, err := ScanExports(filepath.Join(t.TempDir(), "nope"), nil)
	if !os.IsNotExist(err) {
		t.Fatalf("期望 not-exist 错误，实际 %v", err)
	}
}

func TestPartition_MatchesNameOnly(t *testing.T) {
	files := []domain.ExportFile{
		{RelPath: filepath.Join(ackPattern, "x.csv"), Name: "x.csv"},
		{RelPath: ackPattern + ".csv", Name: ackPattern + ".csv"},
		{RelPath: "EMSv2-export-PCC_-_Resolved.csv", Name: "EMSv2-export-PCC_-_Resolved.csv"},
	}

	got := Partition(files, ackPattern)
	if len(got) != 1 || got[0].Name != ackPattern+".csv" {
		t.Fatalf("只应按文件名匹配：%+v", got)
	}
	if Partition(files, "") != nil {
		t.Fatalf("空 pattern 不应匹配任何文件")
	}
}

func TestSelect_Rules(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	files := []domain.ExportFile{
		{RelPath: "a.csv", ModTime: base},
		{RelPath: "c.csv", ModTime: base.Add(2 * time.Hour)},
		{RelPath: "b.csv", ModTime: base.Add(2 * time.Hour)},
	}

	cases := []struct {
		rule string
		want string
	}{
		{SelectNewest, "b.csv"}, // 同一时间按 RelPath 打破平局
		{SelectFirst, "a.csv"},
		{"", "b.csv"},
	}
	for _, tc := range cases {
		got, ok := Select(files, tc.rule)
		if !ok {
			t.Fatalf("rule=%q 期望 ok=true", tc.rule)
		}
		if got.RelPath != tc.want {
			t.Fatalf("rule=%q 期望 %q，实际 %q", tc.rule, tc.want, got.RelPath)
		}
	}

	if _, ok := Select(nil, SelectNewest); ok {
		t.Fatalf("空候选应返回 ok=false")
	}
}

func TestSelect_NewestIndependentOfOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := domain.ExportFile{RelPath: "z.csv", ModTime: base.Add(time.Hour)}
	b := domain.ExportFile{RelPath: "a.csv", ModTime: base}

	x, _ := Select([]domain.ExportFile{a, b}, SelectNewest)
	y, _ := Select([]domain.ExportFile{b, a}, SelectNewest)
	if x.RelPath != "z.csv" || y.RelPath != "z.csv" {
		t.Fatalf("newest 不应依赖输入顺序：%q %q", x.RelPath, y.RelPath)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
