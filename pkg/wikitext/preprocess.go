// Package wikitext 是贡献页/排行榜的标记变换引擎：
// 解析表格行中的计分模板、重算汇总、只改写被定位的模板片段，
// 以及按锚点把排行榜行拼接进共享页面。
//
// 所有操作均为纯函数（文本进、文本出），不做 I/O，可并发调用。
package wikitext

import (
	"regexp"
	"sort"
	"strings"
)

// 结构标记（字面量锚点）。
const (
	TableOpen    = "{|"
	TableClose   = "|}"
	RowSeparator = "|-"
)

var commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)

// StripComments 移除所有 <!-- ... --> 注释（含跨行），自左向右、非贪婪、不重叠。
// 未闭合的 "<!--" 原样保留。
func StripComments(text string) string {
	out, _ := stripComments(text)
	return out
}

// cut 表示去注释文本中位置 at 之前（含 at 处）累计删除了 removed 字节。
type cut struct{ at, removed int }

// OffsetMap 把 Clean 结果中的字节偏移映射回原始页面。
// Normalize 不改变长度，只有注释删除会造成偏移。
type OffsetMap struct {
	cuts []cut // 按 at 升序
}

// removedBefore 返回去注释位置 c 之前被删掉的字节数；at == c 的注释计入。
func (m OffsetMap) removedBefore(c int) int {
	i := sort.Search(len(m.cuts), func(i int) bool { return m.cuts[i].at > c })
	if i == 0 {
		return 0
	}
	return m.cuts[i-1].removed
}

// Raw 把 Clean 文本中的区间 [start, end) 映射回原文。
// 区间内部夹有注释（原文区间长度与之不同）时 ok 为 false。
func (m OffsetMap) Raw(start, end int) (rs, re int, ok bool) {
	rs = start + m.removedBefore(start)
	if end <= start {
		return rs, rs, end == start
	}
	re = end - 1 + m.removedBefore(end-1) + 1
	return rs, re, re-rs == end-start
}

func stripComments(text string) (string, OffsetMap) {
	if !strings.Contains(text, "<!--") {
		return text, OffsetMap{}
	}
	locs := commentRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, OffsetMap{}
	}
	var b strings.Builder
	b.Grow(len(text))
	m := OffsetMap{cuts: make([]cut, 0, len(locs))}
	prev, removed := 0, 0
	for _, loc := range locs {
		b.WriteString(text[prev:loc[0]])
		removed += loc[1] - loc[0]
		m.cuts = append(m.cuts, cut{at: b.Len(), removed: removed})
		prev = loc[1]
	}
	b.WriteString(text[prev:])
	return b.String(), m
}

// Normalize 把跨行书写的单元格合并为单个逻辑行：
//  1. 换行后紧跟 "|" 且不是行分隔符 "|-" 时，"\n|" 替换为 "||"（"\n|}" 同样会被合并）；
//  2. 随后把 "|-|" 拆回 "|-\n"。
//
// 两步替换都保持字节长度不变，因此规范化文本中的偏移可直接用于原文。
func Normalize(text string) string {
	if !strings.Contains(text, "\n|") && !strings.Contains(text, "|-|") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' && i+1 < len(text) && text[i+1] == '|' && !(i+2 < len(text) && text[i+2] == '-') {
			b.WriteString("||")
			i++
			continue
		}
		b.WriteByte(c)
	}
	return strings.ReplaceAll(b.String(), "|-|", "|-\n")
}

// Clean 是提取前的预处理：先去注释，再规范化。
// 提取出的行号与 AbsolutePosition 均相对于 Clean 的结果，而非原始页面。
func Clean(text string) string {
	out, _ := CleanMapped(text)
	return out
}

// CleanMapped 同 Clean，并返回回到原文的偏移映射。
func CleanMapped(text string) (string, OffsetMap) {
	stripped, m := stripComments(text)
	return Normalize(stripped), m
}

// splitLines 按 "\n" 切行并返回每行在 text 中的起始偏移。
func splitLines(text string) ([]string, []int) {
	lines := strings.Split(text, "\n")
	offs := make([]int, len(lines))
	off := 0
	for i, l := range lines {
		offs[i] = off
		off += len(l) + 1
	}
	return lines, offs
}
