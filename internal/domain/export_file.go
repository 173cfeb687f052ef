package domain

import "time"

// ExportFile 描述一次扫描得到的导出文件（只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - 扫描阶段只做 stat，不读文件内容
type ExportFile struct {
	AbsPath string
	RelPath string
	Name    string // 含扩展名
	Ext     string // 小写，例如 ".csv"
	Size    int64
	ModTime time.Time
}
