package domain

import "time"

const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusNotFound  = "not_found"
)

const (
	FileStatusDeleted  = "deleted"
	FileStatusArchived = "archived"
	FileStatusKept     = "kept"
	FileStatusMissing  = "missing"
	FileStatusFailed   = "failed"
)

const (
	ErrCodeNoFilesFound    = "no_files_found"
	ErrCodeFileNotFound    = "file_not_found"
	ErrCodeParseFailed     = "parse_failed"
	ErrCodeMissingColumn   = "missing_column"
	ErrCodeUnexpected      = "unexpected"
	ErrCodeCleanupFailed   = "cleanup_failed"
	ErrCodeConfigNotFound  = "config_not_found"
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeTargetConflict  = "target_conflict"
	ErrCodeCrossDeviceMove = "cross_device_move"
)

// RunReport 是一次运行的完整结果（控制台输出之外的 sink 都消费它）。
type RunReport struct {
	RunID string `json:"run_id"`
	Dir   string `json:"dir"`

	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
	Window      time.Duration `json:"window"`

	// ErrorCode/ErrorMsg 只用于运行级失败（例如 no_files_found）；数据集级失败写在 Items 中。
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	NotFound  int `json:"not_found"`
}

// ItemResult 是单个数据集的结果；Items 的顺序即配置中的数据集顺序。
type ItemResult struct {
	Dataset string `json:"dataset"`
	Label   string `json:"label"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Rows   int            `json:"rows"`
	Counts *DatasetCounts `json:"counts,omitempty"`
	File   *FileResult    `json:"file,omitempty"`
}

type FileResult struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) summary 由 items 计算得出
//
// items 不排序：数据集顺序是输出契约的一部分。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	r.EvaluatedAt = r.EvaluatedAt.UTC()

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusFailed:
			s.Failed++
		case StatusNotFound:
			s.NotFound++
		}
	}
	r.Summary = s
}
