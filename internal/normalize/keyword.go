package normalize

import (
	"errors"
	"strings"
)

// Matcher 做大小写不敏感的子串匹配；关键字在构造时统一转小写。
type Matcher struct {
	needle string
}

func NewMatcher(keyword string) (Matcher, error) {
	k := strings.TrimSpace(keyword)
	if k == "" {
		return Matcher{}, errors.New("keyword 不能为空")
	}
	return Matcher{needle: strings.ToLower(k)}, nil
}

// Match 判断文本是否包含关键字；valid=false（null）一律不匹配。
func (m Matcher) Match(text string, valid bool) bool {
	if !valid || m.needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), m.needle)
}
