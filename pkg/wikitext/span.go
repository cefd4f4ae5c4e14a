package wikitext

import (
	"regexp"
	"strings"
)

// DefaultTemplateName 是计分模板的默认名称。
const DefaultTemplateName = "2026SFEditasonStatus"

// SpanKind 片段类型。
type SpanKind int

const (
	SpanText SpanKind = iota
	SpanTemplate
)

// Span 是逻辑行中的一个有序片段。同一行所有片段的 Text 顺序拼接即为该行原文。
type Span struct {
	Kind  SpanKind
	Text  string // 原始字节；模板片段包含紧随其后的备注
	Start int    // 行内字节偏移

	// 以下字段仅对 SpanTemplate 有意义。
	Template string // 模板本体（不含备注）
	Status   string
	Score    string
	HasScore bool   // 是否存在第二个参数（可为空串）
	Remark   string // 原始备注标记（含 <br/><small> 包裹），无则为空
}

// Tokenizer 把一行切分为文本片段与模板片段。提取与改写共用同一个 Tokenizer，
// 保证两侧对“第 N 个模板”的理解一致。
type Tokenizer struct {
	name string
	re   *regexp.Regexp
}

// NewTokenizer 按模板名构造切分器；空名使用 DefaultTemplateName。
func NewTokenizer(templateName string) *Tokenizer {
	name := strings.TrimSpace(templateName)
	if name == "" {
		name = DefaultTemplateName
	}
	re := regexp.MustCompile(`\{\{` + regexp.QuoteMeta(name) +
		`\|([^|}]*)(?:\|([^}]*))?\}\}((?:<br\s*/?>\s*<small>.*?</small>)?)`)
	return &Tokenizer{name: name, re: re}
}

// Name 返回模板名。
func (t *Tokenizer) Name() string { return t.name }

// Segment 切分单行。没有模板时返回单个文本片段（空行返回 nil）。
func (t *Tokenizer) Segment(line string) []Span {
	if line == "" {
		return nil
	}
	if !strings.Contains(line, "{{") {
		return []Span{{Kind: SpanText, Text: line}}
	}
	locs := t.re.FindAllStringSubmatchIndex(line, -1)
	if len(locs) == 0 {
		return []Span{{Kind: SpanText, Text: line}}
	}
	spans := make([]Span, 0, 2*len(locs)+1)
	prev := 0
	for _, m := range locs {
		if m[0] > prev {
			spans = append(spans, Span{Kind: SpanText, Text: line[prev:m[0]], Start: prev})
		}
		sp := Span{
			Kind:     SpanTemplate,
			Text:     line[m[0]:m[1]],
			Start:    m[0],
			Template: line[m[0]:m[6]],
			Status:   line[m[2]:m[3]],
			Remark:   line[m[6]:m[7]],
		}
		if m[4] >= 0 {
			sp.Score = line[m[4]:m[5]]
			sp.HasScore = true
		}
		spans = append(spans, sp)
		prev = m[1]
	}
	if prev < len(line) {
		spans = append(spans, Span{Kind: SpanText, Text: line[prev:], Start: prev})
	}
	return spans
}

var remarkInnerRe = regexp.MustCompile(`<small>(.*?)</small>`)

// RemarkText 从备注标记中取出正文（去掉全角括号）。
func RemarkText(raw string) string {
	m := remarkInnerRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	s := strings.TrimSpace(m[1])
	s = strings.TrimPrefix(s, "（")
	s = strings.TrimSuffix(s, "）")
	return strings.TrimSpace(s)
}

// FormatRemark 渲染备注：去空白、去掉开头的 "#"，外加固定包裹。
// 正文为空时返回空串。
func FormatRemark(text string) string {
	s := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(text), "#"))
	if s == "" {
		return ""
	}
	return "<br/><small>（" + s + "）</small>"
}
