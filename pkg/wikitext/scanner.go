package wikitext

import "strings"

// State 表格扫描状态。
type State int

const (
	Outside State = iota
	Inside
)

func (s State) String() string {
	if s == Inside {
		return "inside"
	}
	return "outside"
}

// Scanner 逐行判定是否处于表格内。初始为 Outside，无终态。
//
// 关闭条件沿用页面上一直以来的判定：去空白后以 "|}" 开头，且整行是 "||}" 的子串。
// 两个条件同时成立时只剩裸 "|}"；被 Normalize 合并出来的 "||}" 行不会关闭表格。
type Scanner struct {
	state State
}

// State 返回当前状态。
func (s *Scanner) State() State { return s.state }

// Feed 处理一行并返回该行是否应交给提取器。
// 表格起止标记行本身不转交。
func (s *Scanner) Feed(line string) bool {
	t := strings.TrimSpace(line)
	if strings.HasPrefix(t, TableOpen) {
		s.state = Inside
		return false
	}
	if strings.HasPrefix(t, TableClose) && strings.Contains("||}", t) {
		s.state = Outside
		return false
	}
	return s.state == Inside
}
