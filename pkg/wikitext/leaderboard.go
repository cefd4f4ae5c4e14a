package wikitext

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf16"
)

// ParticipantRecord 是一名参赛者本次运行的结果。
type ParticipantRecord struct {
	Username    string  `json:"username" yaml:"username"`
	EntryCount  int     `json:"entry_count" yaml:"entry_count"`
	TotalScore  float64 `json:"total_score" yaml:"total_score"`
	ImportScore float64 `json:"import_score" yaml:"import_score"`
	IsVeteran   bool    `json:"is_veteran" yaml:"is_veteran"`
	PageTitle   string  `json:"page_title" yaml:"page_title"`
	IsUpdated   bool    `json:"is_updated" yaml:"is_updated"`
}

// LeaderboardSection 是一个锚点表格及其渲染行。
type LeaderboardSection struct {
	Name string
	Rows string
	List []ParticipantRecord
}

// SectionOutcome 单个表格的拼接结果。
type SectionOutcome struct {
	Name    string
	Outcome Outcome
}

// Result 是 RenderLeaderboard 的输出。
type Result struct {
	Text      string
	Timestamp Outcome
	Sections  []SectionOutcome
}

// Changed 报告文本是否有任何变化。
func (r Result) Changed() bool {
	if r.Timestamp == Changed {
		return true
	}
	for _, s := range r.Sections {
		if s.Outcome == Changed {
			return true
		}
	}
	return false
}

// Missing 返回未找到锚点的部分名称。
func (r Result) Missing() []string {
	var out []string
	if r.Timestamp == Absent {
		out = append(out, "timestamp")
	}
	for _, s := range r.Sections {
		if s.Outcome == Absent {
			out = append(out, s.Name)
		}
	}
	return out
}

// Layout 描述排行榜页面的锚点与渲染文字。
type Layout struct {
	AllSection      string `json:"all_section" yaml:"all_section"`
	VeteranSection  string `json:"veteran_section" yaml:"veteran_section"`
	NewcomerSection string `json:"newcomer_section" yaml:"newcomer_section"`
	HeaderAnchor    string `json:"header_anchor" yaml:"header_anchor"`
	TimestampMarker string `json:"timestamp_marker" yaml:"timestamp_marker"`
	NewcomerMark    string `json:"newcomer_mark" yaml:"newcomer_mark"`
	PageLinkText    string `json:"page_link_text" yaml:"page_link_text"`
}

// DefaultLayout 返回现行页面使用的锚点。
func DefaultLayout() Layout {
	return Layout{
		AllSection:      "编者总榜",
		VeteranSection:  "熟练编者排行榜",
		NewcomerSection: "新星编者排行榜",
		HeaderAnchor:    "贡献详情页",
		TimestampMarker: "{{center|（以下排行约每小时更新一次）}}",
		NewcomerMark:    "🌱",
		PageLinkText:    "查看页面",
	}
}

// withDefaults 用默认值补齐空字段。
func (l Layout) withDefaults() Layout {
	d := DefaultLayout()
	if l.AllSection == "" {
		l.AllSection = d.AllSection
	}
	if l.VeteranSection == "" {
		l.VeteranSection = d.VeteranSection
	}
	if l.NewcomerSection == "" {
		l.NewcomerSection = d.NewcomerSection
	}
	if l.HeaderAnchor == "" {
		l.HeaderAnchor = d.HeaderAnchor
	}
	if l.TimestampMarker == "" {
		l.TimestampMarker = d.TimestampMarker
	}
	if l.NewcomerMark == "" {
		l.NewcomerMark = d.NewcomerMark
	}
	if l.PageLinkText == "" {
		l.PageLinkText = d.PageLinkText
	}
	return l
}

// EmptyRows 空列表时的占位行。
const EmptyRows = "|- \n| colspan=\"5\" style=\"text-align: center;\" | 暂无数据\n"

// Leaderboard 按 Layout 渲染并拼接排行榜。
type Leaderboard struct {
	layout Layout
}

// NewLeaderboard 构造渲染器；空字段取默认。
func NewLeaderboard(l Layout) *Leaderboard {
	return &Leaderboard{layout: l.withDefaults()}
}

var defaultLeaderboard = NewLeaderboard(DefaultLayout())

// Layout 返回生效的布局。
func (lb *Leaderboard) Layout() Layout { return lb.layout }

// SortParticipants 返回按总分降序、条目数降序稳定排序的副本。
func SortParticipants(in []ParticipantRecord) []ParticipantRecord {
	out := make([]ParticipantRecord, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].EntryCount > out[j].EntryCount
	})
	return out
}

// RenderRows 渲染表格行。markNewcomers 为真时在非熟练编者名前加标记。
func (lb *Leaderboard) RenderRows(list []ParticipantRecord, markNewcomers bool) string {
	if len(list) == 0 {
		return EmptyRows
	}
	rows := make([]string, len(list))
	for i, p := range list {
		user := fmt.Sprintf("[[User:%s|%s]]", p.Username, p.Username)
		if markNewcomers && !p.IsVeteran {
			user = lb.layout.NewcomerMark + " " + user
		}
		rows[i] = fmt.Sprintf("|- \n| %d || %s || %d || %s || [[%s|%s]]",
			i+1, user, p.EntryCount, FormatNumber(p.TotalScore), p.PageTitle, lb.layout.PageLinkText)
	}
	return strings.Join(rows, "\n")
}

// Sections 分组、排序并渲染三个表格，顺序为 总榜、熟练、新星。
func (lb *Leaderboard) Sections(records []ParticipantRecord) []LeaderboardSection {
	var vets, news []ParticipantRecord
	for _, p := range records {
		if p.IsVeteran {
			vets = append(vets, p)
		} else {
			news = append(news, p)
		}
	}
	all := SortParticipants(records)
	vets = SortParticipants(vets)
	news = SortParticipants(news)
	return []LeaderboardSection{
		{Name: lb.layout.AllSection, Rows: lb.RenderRows(all, true), List: all},
		{Name: lb.layout.VeteranSection, Rows: lb.RenderRows(vets, false), List: vets},
		{Name: lb.layout.NewcomerSection, Rows: lb.RenderRows(news, false), List: news},
	}
}

// SpliceTable 用 rows 替换 section 之后第一个表格的数据部分，保留表头。
//
// 定位：section → "{|" → "|}"；在表格内找表头锚点，再找其后第一个 "|-"。
// [分界点, "|}") 被替换为 rows + "\n"。任一锚点缺失返回 Absent。
func (lb *Leaderboard) SpliceTable(text, section, rows string) (string, Outcome) {
	si := strings.Index(text, section)
	if si < 0 {
		return text, Absent
	}
	ts := strings.Index(text[si:], TableOpen)
	if ts < 0 {
		return text, Absent
	}
	ts += si
	te := strings.Index(text[ts:], TableClose)
	if te < 0 {
		return text, Absent
	}
	te += ts
	table := text[ts:te]
	hi := strings.Index(table, lb.layout.HeaderAnchor)
	if hi < 0 {
		return text, Absent
	}
	sp := strings.Index(table[hi:], RowSeparator)
	if sp < 0 {
		return text, Absent
	}
	boundary := ts + hi + sp
	out := text[:boundary] + rows + "\n" + text[te:]
	if out == text {
		return text, Unchanged
	}
	return out, Changed
}

// SpliceTable 使用默认布局拼接。
func SpliceTable(text, section, rows string) (string, Outcome) {
	return defaultLeaderboard.SpliceTable(text, section, rows)
}

// 时间戳只在标记下一行起的这个范围内查找，按 UTF-16 码元计（🌱 这类字符占 2）。
const timestampSearchRange = 100

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

var (
	stampRe = regexp.MustCompile(`\{\{center\|（最近更新：.*?）\}\}`)
	utc8    = time.FixedZone("UTC+8", 8*3600)
)

// FormatTimestamp 格式化为 "2006年01月02日 15:04:05 UTC+8"。
func FormatTimestamp(now time.Time) string {
	return now.In(utc8).Format("2006年01月02日 15:04:05") + " UTC+8"
}

// TimestampLine 返回完整的时间戳行。
func TimestampLine(now time.Time) string {
	return "{{center|（最近更新：" + FormatTimestamp(now) + "）}}"
}

// UpdateTimestamp 维护标记之后的"最近更新"行：已有则替换，没有则插入。
// 标记处于最后一行时在文末追加。
func (lb *Leaderboard) UpdateTimestamp(text string, now time.Time) (string, Outcome) {
	marker := lb.layout.TimestampMarker
	at := strings.Index(text, marker)
	if at < 0 {
		return text, Absent
	}
	line := TimestampLine(now)
	after := at + len(marker)
	nl := strings.IndexByte(text[after:], '\n')
	if nl < 0 {
		return text + "\n" + line, Changed
	}
	next := after + nl + 1
	rest := text[next:]
	if loc := stampRe.FindStringIndex(rest); loc != nil && utf16Len(rest[:loc[0]]) < timestampSearchRange {
		if rest[loc[0]:loc[1]] == line {
			return text, Unchanged
		}
		return text[:next+loc[0]] + line + text[next+loc[1]:], Changed
	}
	return text[:next] + line + "\n" + text[next:], Changed
}

// UpdateTimestamp 使用默认布局。
func UpdateTimestamp(text string, now time.Time) (string, Outcome) {
	return defaultLeaderboard.UpdateTimestamp(text, now)
}

// Render 先更新时间戳，再依次拼接总榜、熟练、新星三个表格。
func (lb *Leaderboard) Render(records []ParticipantRecord, text string, now time.Time) Result {
	res := Result{}
	text, res.Timestamp = lb.UpdateTimestamp(text, now)
	for _, s := range lb.Sections(records) {
		var oc Outcome
		text, oc = lb.SpliceTable(text, s.Name, s.Rows)
		res.Sections = append(res.Sections, SectionOutcome{Name: s.Name, Outcome: oc})
	}
	res.Text = text
	return res
}

// RenderLeaderboard 使用默认布局渲染。
func RenderLeaderboard(records []ParticipantRecord, text string, now time.Time) Result {
	return defaultLeaderboard.Render(records, text, now)
}
