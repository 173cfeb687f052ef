package window

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/EMSC/internal/domain"
)

var now = time.Date(2026, 1, 15, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))

func row(ago time.Duration, match bool) domain.NormalizedRow {
	at := now.Add(-ago)
	return domain.NormalizedRow{Valid: true, UTC: at.UTC(), Local: at, Match: match}
}

func TestCount_RecentAndMatching(t *testing.T) {
	rows := []domain.NormalizedRow{
		row(1*time.Hour, true),
		row(2*time.Hour, false),
		row(7*time.Hour+59*time.Minute, true),
		row(9*time.Hour, true), // 窗口外
		row(30*time.Hour, false),
	}

	got := Count("Acknowledged", "Acknowledge", rows, now, 8*time.Hour)
	want := domain.DatasetCounts{Dataset: "Acknowledged", Label: "Acknowledge", Recent: 3, Matching: 2, NonMatching: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("计数不正确 (-want +got):\n%s", diff)
	}
}

func TestCount_NullRowsExcluded(t *testing.T) {
	rows := []domain.NormalizedRow{
		row(time.Hour, false),
		{Valid: false, Match: true},
		{Valid: false},
	}
	got := Count("x", "x", rows, now, 8*time.Hour)
	if got.Recent != 1 || got.Matching != 0 || got.NonMatching != 1 {
		t.Fatalf("null 行不应计入：%+v", got)
	}
}

func TestCount_BoundaryIsStrict(t *testing.T) {
	rows := []domain.NormalizedRow{
		row(8*time.Hour, true),
		row(8*time.Hour-time.Nanosecond, true),
	}
	got := Count("x", "x", rows, now, 8*time.Hour)
	if got.Recent != 1 || got.Matching != 1 {
		t.Fatalf("恰好等于下界的行不应计入：%+v", got)
	}
}

func TestCount_ComparesInstantsAcrossZones(t *testing.T) {
	// 同一时刻用 UTC 表示，与 now 的时区无关。
	at := now.Add(-time.Hour).UTC()
	got := Count("x", "x", []domain.NormalizedRow{{Valid: true, UTC: at, Local: at}}, now, 8*time.Hour)
	if got.Recent != 1 {
		t.Fatalf("跨时区比较不正确：%+v", got)
	}
}

func TestCount_NonMatchingNeverNegative(t *testing.T) {
	rows := []domain.NormalizedRow{row(20*time.Hour, true), row(21*time.Hour, true), row(time.Hour, false)}
	got := Count("x", "x", rows, now, 8*time.Hour)
	if got.NonMatching < 0 || got.NonMatching != 1 {
		t.Fatalf("NonMatching 不正确：%+v", got)
	}
}

func TestCount_DatasetsAreIndependent(t *testing.T) {
	ack := []domain.NormalizedRow{row(time.Hour, true), row(time.Hour, true)}
	res := []domain.NormalizedRow{row(time.Hour, false)}

	a := Count("Acknowledged", "Acknowledge", ack, now, 8*time.Hour)
	r := Count("Resolved", "Resolved", res, now, 8*time.Hour)
	rep := Build(now, 8*time.Hour, a, r)

	if len(rep.Datasets) != 2 {
		t.Fatalf("期望 2 个数据集：%+v", rep.Datasets)
	}
	got := rep.Datasets[1]
	if got.Matching != 0 || got.NonMatching != 1 {
		t.Fatalf("Resolved 的计数应只来自自身行：%+v", got)
	}
	if rep.Datasets[0].Dataset != "Acknowledged" || rep.Datasets[1].Dataset != "Resolved" {
		t.Fatalf("报告顺序不正确：%+v", rep.Datasets)
	}
}
