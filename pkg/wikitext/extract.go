package wikitext

import "strings"

// TemplateMatch 是从表格行中提取的一条计分模板记录。
type TemplateMatch struct {
	LineNumber       int    `json:"line_number" yaml:"line_number"`
	TemplateIndex    int    `json:"template_index" yaml:"template_index"`
	Status           string `json:"status" yaml:"status"`
	Score            string `json:"score" yaml:"score"`
	OriginalTemplate string `json:"original_template" yaml:"original_template"`
	Remark           string `json:"remark,omitempty" yaml:"remark,omitempty"`
	RelativePosition int    `json:"relative_position" yaml:"relative_position"`
	AbsolutePosition int    `json:"absolute_position" yaml:"absolute_position"`
	EntryName        string `json:"entry_name" yaml:"entry_name"`
	Line             string `json:"line" yaml:"line"`
}

// Line 是规范化文本中的一行及其片段。
type Line struct {
	Number int
	Offset int // 行首在文本中的字节偏移
	Text   string
	Inside bool
	Spans  []Span
}

// Document 是一次切分的结果。
type Document struct {
	Text  string
	Lines []Line
}

// Engine 绑定模板名的变换引擎。无内部可变状态，可并发使用。
type Engine struct {
	tok *Tokenizer
}

// NewEngine 按模板名构造引擎；空名使用 DefaultTemplateName。
func NewEngine(templateName string) *Engine {
	return &Engine{tok: NewTokenizer(templateName)}
}

var defaultEngine = NewEngine(DefaultTemplateName)

// TemplateName 返回引擎识别的模板名。
func (e *Engine) TemplateName() string { return e.tok.Name() }

// Segment 对已预处理的文本逐行扫描并切分片段。
// 只有表格内的行会被切分；其余行 Spans 为空。
func (e *Engine) Segment(text string) Document {
	lines, offs := splitLines(text)
	doc := Document{Text: text, Lines: make([]Line, len(lines))}
	var sc Scanner
	for i, l := range lines {
		ln := Line{Number: i, Offset: offs[i], Text: l}
		if sc.Feed(l) {
			ln.Inside = true
			ln.Spans = e.tok.Segment(l)
		}
		doc.Lines[i] = ln
	}
	return doc
}

// Extract 返回原始页面中所有表格内计分模板，按出现顺序。
func (e *Engine) Extract(raw string) []TemplateMatch {
	doc := e.Segment(Clean(raw))
	var items []TemplateMatch
	for _, ln := range doc.Lines {
		if !ln.Inside || len(ln.Spans) == 0 {
			continue
		}
		trimmed := strings.TrimSpace(ln.Text)
		name := entryName(ln.Text)
		idx := 0
		for _, sp := range ln.Spans {
			if sp.Kind != SpanTemplate {
				continue
			}
			items = append(items, TemplateMatch{
				LineNumber:       ln.Number,
				TemplateIndex:    idx,
				Status:           sp.Status,
				Score:            sp.Score,
				OriginalTemplate: sp.Template,
				Remark:           RemarkText(sp.Remark),
				RelativePosition: sp.Start,
				AbsolutePosition: ln.Offset + sp.Start,
				EntryName:        name,
				Line:             trimmed,
			})
			idx++
		}
	}
	return items
}

// Parse 提取并汇总。
func (e *Engine) Parse(raw string) AggregateResult {
	return Aggregate(e.Extract(raw))
}

// Parse 使用默认模板名解析页面。
func Parse(raw string) AggregateResult { return defaultEngine.Parse(raw) }

// entryName 取第二个 "|" 分隔单元格，去空白并去掉表头标记 "!"。
func entryName(line string) string {
	cells := strings.SplitN(line, "|", 3)
	if len(cells) < 2 {
		return ""
	}
	name := strings.TrimSpace(cells[1])
	if strings.HasPrefix(name, "!") {
		name = strings.TrimSpace(name[1:])
	}
	return name
}
