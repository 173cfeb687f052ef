package domain

const (
	CleanupDelete  = "delete"
	CleanupArchive = "archive"
	CleanupKeep    = "keep"
)

// ReleasePlan 规划一个已加载导出文件的收尾动作（只描述 src/dst，不执行）。
//
// - delete：Dst 为空
// - archive：Dst 为归档目录下不冲突的目标路径
// - keep：不会出现在计划中
type ReleasePlan struct {
	Dataset string
	Mode    string
	SrcAbs  string
	DstAbs  string
}
