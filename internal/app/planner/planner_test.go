package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/EMSC/internal/domain"
)

func TestReadArchiveState_MissingDirIsEmpty(t *testing.T) {
	st, err := ReadArchiveState(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(st.ExistingNames) != 0 {
		t.Fatalf("期望空状态：%+v", st)
	}
}

func TestPlanRelease_ArchiveAllocatesFreeNames(t *testing.T) {
	root := t.TempDir()
	arch := filepath.Join(root, "archive")
	if err := os.MkdirAll(arch, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	write(t, filepath.Join(arch, "ack.csv"))
	write(t, filepath.Join(arch, "ack__2.csv"))

	st, err := ReadArchiveState(arch)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	held := []Held{
		{Dataset: "Acknowledged", AbsPath: filepath.Join(root, "ack.csv")},
		{Dataset: "Resolved", AbsPath: filepath.Join(root, "sub", "ack.csv")},
	}
	plans, err := PlanRelease(domain.CleanupArchive, held, st)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("期望 2 条计划：%+v", plans)
	}
	if got := filepath.Base(plans[0].DstAbs); got != "ack__3.csv" {
		t.Fatalf("第一条目标名不正确：%s", got)
	}
	if got := filepath.Base(plans[1].DstAbs); got != "ack__4.csv" {
		t.Fatalf("第二条目标名不正确：%s", got)
	}
}

func TestPlanRelease_DeleteAndKeep(t *testing.T) {
	held := []Held{
		{Dataset: "Acknowledged", AbsPath: "/d/a.csv"},
		{Dataset: "Resolved", AbsPath: "/d/a.csv"},
	}

	plans, err := PlanRelease(domain.CleanupDelete, held, ArchiveState{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(plans) != 1 || plans[0].DstAbs != "" || plans[0].Dataset != "Acknowledged" {
		t.Fatalf("同一路径只应规划一次：%+v", plans)
	}

	plans, err = PlanRelease(domain.CleanupKeep, held, ArchiveState{})
	if err != nil || len(plans) != 0 {
		t.Fatalf("keep 不应生成计划：%+v err=%v", plans, err)
	}

	if _, err := PlanRelease("shred", held, ArchiveState{}); err == nil {
		t.Fatalf("未知模式应报错")
	}
}

func TestAllocName_NoExtension(t *testing.T) {
	used := map[string]struct{}{"export": {}}
	if got := allocName("export", used); got != "export__2" {
		t.Fatalf("allocName 不正确：%s", got)
	}
}

func write(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写文件失败：%v", err)
	}
}
