package scan

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/EMSC/internal/domain"
)

const (
	// SelectNewest 选择修改时间最新的候选（同一时间按 RelPath 字典序）。
	SelectNewest = "newest"
	// SelectFirst 选择遍历顺序中的第一个候选（即 RelPath 字典序最小）。
	SelectFirst = "first"
)

// ScanExports 递归扫描 root 下的普通文件，并应用目录排除规则。
//
// 规则：
// - excludeDirs：均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）
// - root 以下无法读取的子目录直接跳过（Downloads 下常见受保护目录）；root 本身读取失败则返回错误
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
func ScanExports(root string, excludeDirs []string) ([]domain.ExportFile, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, excludeDirs)

	files := make([]domain.ExportFile, 0, 64)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path != root && d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return walkErr
		}

		// 统一的排除判断：目录用 SkipDir，文件则直接跳过。
		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// 遍历与 stat 之间文件被删除（浏览器下载的临时文件常见）：跳过。
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		name := d.Name()
		files = append(files, domain.ExportFile{
			AbsPath: path,
			RelPath: rel,
			Name:    name,
			Ext:     strings.ToLower(filepath.Ext(name)),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// Partition 返回文件名包含 pattern 的候选（保持输入顺序）。
func Partition(files []domain.ExportFile, pattern string) []domain.ExportFile {
	if pattern == "" {
		return nil
	}
	out := make([]domain.ExportFile, 0, 4)
	for _, f := range files {
		if strings.Contains(f.Name, pattern) {
			out = append(out, f)
		}
	}
	return out
}

// Select 按规则从候选中挑出唯一文件；纯函数，不访问文件系统。
// 候选为空时 ok=false；未知规则按 SelectNewest 处理（配置层已校验）。
func Select(candidates []domain.ExportFile, rule string) (domain.ExportFile, bool) {
	if len(candidates) == 0 {
		return domain.ExportFile{}, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if rule == SelectFirst {
			if c.RelPath < best.RelPath {
				best = c
			}
			continue
		}
		switch {
		case c.ModTime.After(best.ModTime):
			best = c
		case c.ModTime.Equal(best.ModTime) && c.RelPath < best.RelPath:
			best = c
		}
	}
	return best, true
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
