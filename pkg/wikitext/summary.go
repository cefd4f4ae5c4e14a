package wikitext

import (
	"regexp"
	"strconv"
)

var summaryRe = regexp.MustCompile(`(?i)(\{\{mbox\|type=policy\|text=\{\{center\|已提交条目数：''')(\d+)('''\s*目前得分：''')([\d.]+)('''\}\}\}\})`)

// ComposeSummary 改写页面上第一处汇总横幅中的条目数与得分。
func ComposeSummary(text string, count int, score string) (string, Outcome) {
	m := summaryRe.FindStringSubmatchIndex(text)
	if m == nil {
		return text, Absent
	}
	// m[4:6] 条目数，m[8:10] 得分
	out := text[:m[4]] + strconv.Itoa(count) + text[m[5]:m[8]] + score + text[m[9]:]
	if out == text {
		return text, Unchanged
	}
	return out, Changed
}
