package normalize

import (
	"fmt"
	"time"

	"github.com/John-Robertt/EMSC/internal/domain"
)

// Options 把原先写死的列名、时区与关键字显式化。
type Options struct {
	TimeColumn string
	TextColumn string
	Location   *time.Location
	Matcher    Matcher
}

// Rows 为表格每一行生成 NormalizedRow（顺序与 Table.Rows 一致）。
//
// - 时间戳无法解析：Valid=false，不影响其他行
// - 文本为 null：Match=false
func Rows(t domain.Table, opts Options) ([]domain.NormalizedRow, error) {
	tc, ok := t.ColumnIndex(opts.TimeColumn)
	if !ok {
		return nil, fmt.Errorf("缺少时间列 %q", opts.TimeColumn)
	}
	xc, ok := t.ColumnIndex(opts.TextColumn)
	if !ok {
		return nil, fmt.Errorf("缺少文本列 %q", opts.TextColumn)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	out := make([]domain.NormalizedRow, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		nr := domain.NormalizedRow{Index: i}

		if raw, ok := t.Value(i, tc); ok {
			if utc, ok := ParseInstant(raw); ok {
				nr.Valid = true
				nr.UTC = utc
				nr.Local = utc.In(loc)
			}
		}

		text, ok := t.Value(i, xc)
		nr.Match = opts.Matcher.Match(text, ok)

		out = append(out, nr)
	}
	return out, nil
}
