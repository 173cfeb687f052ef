package table

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/EMSC/internal/domain"
)

// Error 是加载阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case domain.ErrCodeFileNotFound:
		return fmt.Sprintf("文件不存在：%q", e.Path)
	case domain.ErrCodeMissingColumn:
		return fmt.Sprintf("%q 缺少必需列：%v", e.Path, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%q：%v", e.Path, e.Err)
		}
		return fmt.Sprintf("%s：%q", e.Code, e.Path)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load 读取一个导出文件并检查必需列。
//
// 格式判定：先看内容（跳过 BOM/空白后以 '<' 开头视为 HTML 表格），再看扩展名。
// 很多 Web 控制台的 "Excel 导出" 实际是 .xls 扩展名的 HTML 表格。
func Load(path string, required ...string) (domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Table{}, &Error{Code: domain.ErrCodeFileNotFound, Path: path, Err: err}
		}
		return domain.Table{}, &Error{Code: domain.ErrCodeUnexpected, Path: path, Err: err}
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var t domain.Table
	if isHTML(path, br) {
		t, err = parseHTML(br)
	} else {
		t, err = parseCSV(br)
	}
	if err != nil {
		return domain.Table{}, &Error{Code: domain.ErrCodeParseFailed, Path: path, Err: err}
	}

	var missing []string
	for _, c := range required {
		if _, ok := t.ColumnIndex(c); !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return domain.Table{}, &Error{Code: domain.ErrCodeMissingColumn, Path: path, Err: fmt.Errorf("%s", strings.Join(missing, ", "))}
	}
	return t, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func isHTML(path string, br *bufio.Reader) bool {
	head, _ := br.Peek(512)
	head = bytes.TrimPrefix(head, utf8BOM)
	head = bytes.TrimLeft(head, " \t\r\n")
	if len(head) > 0 && head[0] == '<' {
		return true
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	default:
		return false
	}
}

// skipBOM 丢弃 UTF-8 BOM，避免首列名带上不可见前缀导致找不到列。
func skipBOM(br *bufio.Reader) io.Reader {
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
