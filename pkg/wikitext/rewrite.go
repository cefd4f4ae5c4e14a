package wikitext

import (
	"sort"
	"strings"
)

type edit struct {
	start, end int
	text       string
}

// Rewrite 只替换 updates 定位到的模板片段，其余字节保持不变。
//
// 定位与提取使用同一视图：行号与行内序号都按 Clean(text) 计算，
// 再经 OffsetMap 换算回原文区间，因此注释中的模板不参与计数。
// 目标片段与 OriginalTemplate 不一致、或片段内部夹有注释时跳过该片段。
// 没有任何片段被定位时返回 Absent；定位到但内容未变时返回 Unchanged。
func (e *Engine) Rewrite(text string, updates []UpdatedItem) (string, Outcome) {
	if len(updates) == 0 {
		return text, Unchanged
	}
	byLine := make(map[int]map[int]UpdatedItem)
	for _, u := range updates {
		m := byLine[u.LineNumber]
		if m == nil {
			m = make(map[int]UpdatedItem)
			byLine[u.LineNumber] = m
		}
		m[u.TemplateIndex] = u
	}

	clean, offsets := CleanMapped(text)
	lines, offs := splitLines(clean)
	var edits []edit
	found := false
	for num, set := range byLine {
		if num < 0 || num >= len(lines) {
			continue
		}
		ord := 0
		for _, sp := range e.tok.Segment(lines[num]) {
			if sp.Kind != SpanTemplate {
				continue
			}
			u, ok := set[ord]
			ord++
			if !ok {
				continue
			}
			if u.OriginalTemplate != "" && u.OriginalTemplate != sp.Template {
				continue
			}
			start := offs[num] + sp.Start
			rs, re, ok := offsets.Raw(start, start+len(sp.Text))
			if !ok {
				continue
			}
			found = true
			out := e.render(sp, u)
			if out != sp.Text {
				edits = append(edits, edit{start: rs, end: re, text: out})
			}
		}
	}
	if len(edits) == 0 {
		if found {
			return text, Unchanged
		}
		return text, Absent
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, ed := range edits {
		b.WriteString(text[prev:ed.start])
		b.WriteString(ed.text)
		prev = ed.end
	}
	b.WriteString(text[prev:])
	return b.String(), Changed
}

// Rewrite 使用默认模板名改写。
func Rewrite(text string, updates []UpdatedItem) (string, Outcome) {
	return defaultEngine.Rewrite(text, updates)
}

func (e *Engine) render(sp Span, u UpdatedItem) string {
	var b strings.Builder
	b.WriteString("{{")
	b.WriteString(e.tok.Name())
	b.WriteByte('|')
	b.WriteString(u.NewStatus.Resolve(sp.Status))
	switch {
	case u.NewScore.IsSet():
		b.WriteByte('|')
		b.WriteString(u.NewScore.Value())
	case u.NewScore.IsKeep() && sp.HasScore:
		b.WriteByte('|')
		b.WriteString(sp.Score)
	}
	b.WriteString("}}")
	switch {
	case u.NewRemark.IsSet():
		b.WriteString(FormatRemark(u.NewRemark.Value()))
	case u.NewRemark.IsKeep():
		b.WriteString(sp.Remark)
	}
	return b.String()
}
