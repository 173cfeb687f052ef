package domain

import "strings"

// Table 是一个已加载导出文件的行式表格：列名保序、行保序、单元格为原始字符串。
type Table struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewTable 构造 Table 并建立列索引（列名做 TrimSpace；重复列名以首次出现为准）。
func NewTable(columns []string, rows [][]string) Table {
	cols := make([]string, len(columns))
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		cols[i] = c
		if _, ok := index[c]; !ok {
			index[c] = i
		}
	}
	return Table{Columns: cols, Rows: rows, index: index}
}

// ColumnIndex 返回列下标；列不存在时 ok=false。
func (t Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[strings.TrimSpace(name)]
	return i, ok
}

// Len 返回行数。
func (t Table) Len() int { return len(t.Rows) }

// Value 返回第 row 行、第 col 列的值。
// 缺失（短行）或属于 NA 记号的单元格视为 null，ok=false。
func (t Table) Value(row, col int) (string, bool) {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return "", false
	}
	r := t.Rows[row]
	if col >= len(r) {
		return "", false
	}
	v := r[col]
	if IsNA(v) {
		return "", false
	}
	return v, true
}

// naTokens 与常见表格工具读取 CSV 时的默认缺失值记号保持一致。
var naTokens = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// IsNA 判断单元格原始值是否为缺失值：与记号逐字节相等才算，" NA" 仍是文本。
func IsNA(v string) bool {
	_, ok := naTokens[v]
	return ok
}
