package table

import (
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/EMSC/internal/domain"
)

// parseHTML 解析 HTML 表格导出：取文档中第一个 <table>。
//
// 表头优先取 <thead> 中的 <th>；没有 thead 时取第一行（th 或 td）。
// 单元格文本做 TrimSpace 并把内部空白折叠为单个空格。
func parseHTML(r io.Reader) (domain.Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return domain.Table{}, err
	}

	tbl := doc.Find("table").First()
	if tbl.Length() == 0 {
		return domain.Table{}, errors.New("HTML 中没有 <table>")
	}

	trs := tbl.Find("tr")
	if trs.Length() == 0 {
		return domain.Table{}, errors.New("<table> 中没有任何行")
	}

	var header []string
	start := 0
	if th := tbl.Find("thead tr").First(); th.Length() > 0 {
		header = cellTexts(th)
		start = trs.IndexOfSelection(th) + 1
	} else {
		header = cellTexts(trs.First())
		start = 1
	}
	if len(header) == 0 {
		return domain.Table{}, errors.New("<table> 表头为空")
	}

	rows := make([][]string, 0, trs.Length())
	trs.Slice(start, trs.Length()).Each(func(_ int, tr *goquery.Selection) {
		cells := cellTexts(tr)
		if len(cells) == 0 {
			return
		}
		rows = append(rows, cells)
	})
	return domain.NewTable(header, rows), nil
}

func cellTexts(tr *goquery.Selection) []string {
	var out []string
	tr.ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
		out = append(out, strings.Join(strings.Fields(c.Text()), " "))
	})
	return out
}
