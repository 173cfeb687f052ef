// Package report 负责把计数渲染为控制台文本（stdout）。
//
// 格式是对外契约：标签、冒号后无空格、空行位置都不能改。
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/EMSC/internal/domain"
)

const nowLayout = "2006-01-02 15:04:05"

// Loaded 输出加载成功行。
func Loaded(w io.Writer) error {
	_, err := fmt.Fprintln(w, "✅ File loaded successfully!")
	return err
}

// Write 输出时间窗说明与每个数据集的三行计数。
//
// 每个数据集块后跟一个空行，最后一个块之后再多两个空行。
func Write(w io.Writer, rep domain.Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Checking for entries within %s hours of %s\n", Hours(rep.Window), rep.Now.Format(nowLayout))
	for i, c := range rep.Datasets {
		fmt.Fprintf(&b, "Number of EMS cases in %s:%d\n", c.Label, c.Recent)
		fmt.Fprintf(&b, "Number of Backbone cases in %s:%d\n", c.Label, c.Matching)
		fmt.Fprintf(&b, "Number of CCE cases in %s:%d\n", c.Label, c.NonMatching)
		b.WriteString("\n")
		if i == len(rep.Datasets)-1 {
			b.WriteString("\n\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Failure 按错误码选择前缀输出一行失败信息。
func Failure(w io.Writer, code, msg string) error {
	var prefix string
	switch code {
	case domain.ErrCodeFileNotFound:
		prefix = "❌ File not found: "
	case domain.ErrCodeParseFailed:
		prefix = "❌ Error parsing CSV: "
	default:
		prefix = "❌ Unexpected error: "
	}
	_, err := fmt.Fprintln(w, prefix+msg)
	return err
}

// NoFilesMessage 生成“所有数据集都没有候选文件”时的消息。
func NoFilesMessage(labels []string) string {
	return "No files found for " + strings.Join(labels, " or ")
}

// Hours 把时间窗格式化为小时数（8h → "8"，90m → "1.5"）。
func Hours(d time.Duration) string {
	return strconv.FormatFloat(d.Hours(), 'f', -1, 64)
}

// Console 渲染一次完整运行的控制台输出：
//   - 运行级失败（no_files_found）只输出一行
//   - 数据集级失败各输出一行
//   - 至少一个数据集成功时输出加载行与计数块
func Console(w io.Writer, rr domain.RunReport, rep domain.Report, labels []string) error {
	if rr.ErrorCode != "" {
		msg := rr.ErrorMsg
		if rr.ErrorCode == domain.ErrCodeNoFilesFound {
			msg = NoFilesMessage(labels)
		}
		return Failure(w, rr.ErrorCode, msg)
	}

	for _, it := range rr.Items {
		if it.Status == domain.StatusProcessed {
			continue
		}
		if err := Failure(w, it.ErrorCode, it.ErrorMsg); err != nil {
			return err
		}
	}

	if len(rep.Datasets) == 0 {
		return nil
	}
	if err := Loaded(w); err != nil {
		return err
	}
	return Write(w, rep)
}
