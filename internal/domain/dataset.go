package domain

// Dataset 描述一类 EMS 导出（例如 Acknowledged / Resolved）。
//
// Pattern 是文件名子串匹配（区分大小写，与 EMS 下载文件名保持一致）；
// Label 只用于控制台输出（历史原因 Acknowledged 的输出标签是 "Acknowledge"）。
type Dataset struct {
	Name    string
	Label   string
	Pattern string
}

// DefaultDatasets 返回内置的两类导出，顺序即输出顺序。
func DefaultDatasets() []Dataset {
	return []Dataset{
		{Name: "Acknowledged", Label: "Acknowledge", Pattern: "EMSv2-export-PCC_-_Acknowledged"},
		{Name: "Resolved", Label: "Resolved", Pattern: "EMSv2-export-PCC_-_Resolved"},
	}
}

// DisplayLabel 返回输出标签；Label 为空时退化为 Name。
func (d Dataset) DisplayLabel() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Name
}
