package normalize

import (
	"strconv"
	"strings"
	"time"
)

// 按“最常见在前”排列。没有时区信息的布局由 time.Parse 解释为 UTC。
// 注意：解析时秒后面的小数部分即使布局里没写也会被接受。
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05 Z07:00",
	"2006-01-02 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"20060102",
}

// ParseInstant 把 ISO-8601 风格文本解析为 UTC 时刻。
//
// 无法解析时返回 ok=false（null），调用方不得把它当作致命错误。
// 纯数字：10 位按 Unix 秒、13 位按 Unix 毫秒，8 位按 YYYYMMDD。
func ParseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if isDigits(s) {
		switch len(s) {
		case 10:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.Unix(n, 0).UTC(), true
		case 13:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.UnixMilli(n).UTC(), true
		}
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
