package domain

import "time"

// NormalizedRow 是一行导出数据的派生视图：时间戳已解析、关键字已标注。
//
// Index 指向 Table.Rows 的下标（原始列通过 Table 访问，不做拷贝）。
// Valid=false 表示 firingStartTime 无法解析（null），此时 UTC/Local 为零值。
type NormalizedRow struct {
	Index int
	Valid bool
	UTC   time.Time
	Local time.Time
	Match bool
}

// DatasetCounts 是单个数据集在时间窗内的统计。
//
// 不变量：Matching 只由本数据集的行计算；NonMatching = Recent - Matching。
type DatasetCounts struct {
	Dataset     string `json:"dataset"`
	Label       string `json:"label"`
	Recent      int    `json:"recent"`
	Matching    int    `json:"matching"`
	NonMatching int    `json:"non_matching"`
}

// Report 是一次评估的纯计算结果（与输出格式、清理动作解耦）。
type Report struct {
	Now      time.Time       `json:"now"`
	Window   time.Duration   `json:"window"`
	Datasets []DatasetCounts `json:"datasets"`
}
