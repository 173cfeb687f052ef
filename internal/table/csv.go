package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/John-Robertt/EMSC/internal/domain"
)

// parseCSV 解析逗号分隔、带表头的 CSV。
//
// - 引号只在字段开头有特殊含义：未加引号字段中间的 " 按普通字符保留
// - 以引号开头的字段直到文件末尾都没有闭合：返回 *csv.ParseError（ErrQuote），上层归类为 parse_failed
// - 字段少于表头：缺失单元格视为 null
// - 字段多于表头：视为解析失败（无法确定多出来的值属于哪一列）
// - 空行跳过
func parseCSV(br *bufio.Reader) (domain.Table, error) {
	data, err := io.ReadAll(skipBOM(br))
	if err != nil {
		return domain.Table{}, err
	}
	if perr := unterminatedQuote(data); perr != nil {
		return domain.Table{}, perr
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Table{}, errors.New("文件为空，没有可解析的列")
		}
		return domain.Table{}, err
	}

	rows := make([][]string, 0, 256)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Table{}, err
		}
		if len(rec) > len(header) {
			line, _ := r.FieldPos(0)
			return domain.Table{}, fmt.Errorf("第 %d 行有 %d 个字段，表头只有 %d 列", line, len(rec), len(header))
		}
		rows = append(rows, rec)
	}
	return domain.NewTable(header, rows), nil
}

// unterminatedQuote 找出以引号开头、直到文件末尾仍未闭合的字段。
// 引号字段内 "" 为转义；闭合引号之后的字符仍属于同一字段。
func unterminatedQuote(data []byte) *csv.ParseError {
	line, col := 1, 0
	startLine, startCol := 0, 0
	inQuote, fieldStart := false, true
	for i := 0; i < len(data); i++ {
		c := data[i]
		col++
		switch {
		case inQuote:
			if c == '"' {
				if i+1 < len(data) && data[i+1] == '"' {
					i++
					col++
					continue
				}
				inQuote = false
			}
		case c == '"' && fieldStart:
			inQuote = true
			startLine, startCol = line, col
		}
		fieldStart = !inQuote && (c == ',' || c == '\n')
		if c == '\n' {
			line++
			col = 0
		}
	}
	if !inQuote {
		return nil
	}
	return &csv.ParseError{StartLine: startLine, Line: line, Column: startCol, Err: csv.ErrQuote}
}
