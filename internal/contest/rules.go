// Package contest 定义 2026 春节编辑松的计分规则：参赛页面识别、导入得分、
// 熟练编者判定与编辑摘要。页面文本的解析与改写由 pkg/wikitext 完成。
package contest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sfebot/pkg/contract"
	"sfebot/pkg/wikitext"
)

// Rules 是一届活动的全部常量。零值不可用，请从 DefaultRules 开始修改。
type Rules struct {
	// 提交页所在命名空间与（不含命名空间前缀的）列举前缀。
	Namespace  contract.Namespace `json:"namespace" yaml:"namespace"`
	ListPrefix string             `json:"list_prefix" yaml:"list_prefix"`
	// 完整标题前缀与后缀：用户名 = 标题去掉二者。
	TitlePrefix string `json:"title_prefix" yaml:"title_prefix"`
	TitleSuffix string `json:"title_suffix" yaml:"title_suffix"`

	Leaderboard contract.Title `json:"leaderboard" yaml:"leaderboard"`
	Template    string         `json:"template" yaml:"template"`

	ImportWeights  map[contract.Namespace]float64 `json:"import_weights" yaml:"import_weights"`
	ImportStart    time.Time                      `json:"import_start" yaml:"import_start"`
	ImportEnd      time.Time                      `json:"import_end" yaml:"import_end"`
	ImportPlaces   int                            `json:"import_places" yaml:"import_places"`
	ReviewedStatus string                         `json:"reviewed_status" yaml:"reviewed_status"`

	VeteranCutoff    time.Time `json:"veteran_cutoff" yaml:"veteran_cutoff"`
	VeteranThreshold int       `json:"veteran_threshold" yaml:"veteran_threshold"`
	VeteranLimit     int       `json:"veteran_limit" yaml:"veteran_limit"`

	SummaryTag string `json:"summary_tag" yaml:"summary_tag"`
}

// DefaultRules 返回 2026 年活动的规则。
func DefaultRules() Rules {
	return Rules{
		Namespace:   contract.NSProject,
		ListPrefix:  "2026年春节编辑松/提交/",
		TitlePrefix: "Qiuwen:2026年春节编辑松/提交/",
		TitleSuffix: "的贡献",
		Leaderboard: "Qiuwen:2026年春节编辑松/提交",
		Template:    "2026SFEditasonStatus",
		ImportWeights: map[contract.Namespace]float64{
			contract.NSMain:     0.02,
			contract.NSFile:     0.01,
			contract.NSTemplate: 0.01,
			206:                 0.01,
			contract.NSModule:   0.01,
		},
		ImportStart:      time.Date(2026, 1, 31, 16, 0, 0, 0, time.UTC),
		ImportEnd:        time.Date(2026, 2, 7, 3, 45, 54, 0, time.UTC),
		ImportPlaces:     5,
		ReviewedStatus:   "已审核",
		VeteranCutoff:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		VeteranThreshold: 50,
		VeteranLimit:     55,
		SummaryTag:       "bot(2026SFE)",
	}
}

// Validate 检查规则的静态一致性。
func (r Rules) Validate() error {
	switch {
	case r.ListPrefix == "" || r.TitlePrefix == "" || r.TitleSuffix == "":
		return fmt.Errorf("contest: title prefix/suffix empty: %w", contract.ErrInvalidInput)
	case r.Leaderboard == "":
		return fmt.Errorf("contest: leaderboard title empty: %w", contract.ErrInvalidInput)
	case r.VeteranThreshold <= 0 || r.VeteranLimit < r.VeteranThreshold:
		return fmt.Errorf("contest: veteran limit %d < threshold %d: %w", r.VeteranLimit, r.VeteranThreshold, contract.ErrInvalidInput)
	case r.ImportPlaces < 0:
		return fmt.Errorf("contest: import places %d: %w", r.ImportPlaces, contract.ErrInvalidInput)
	}
	return r.Window().Validate()
}

// Window 返回导入统计窗口。
func (r Rules) Window() contract.Window {
	return contract.Window{Start: r.ImportStart, End: r.ImportEnd}
}

// Participant 是一个参赛者的提交页。
type Participant struct {
	User  string
	Title contract.Title
}

// Username 从提交页标题取出用户名；不是提交页时返回 false。
func (r Rules) Username(t contract.Title) (string, bool) {
	s := string(t)
	if !strings.HasPrefix(s, r.TitlePrefix) || !strings.HasSuffix(s, r.TitleSuffix) {
		return "", false
	}
	u := strings.TrimSuffix(strings.TrimPrefix(s, r.TitlePrefix), r.TitleSuffix)
	// 子页面（含 "/"）与空用户名不是提交页
	if u == "" || strings.Contains(u, "/") {
		return "", false
	}
	return u, true
}

// Participants 过滤并保持列举顺序。
func (r Rules) Participants(titles []contract.Title) []Participant {
	out := make([]Participant, 0, len(titles))
	for _, t := range titles {
		if u, ok := r.Username(t); ok {
			out = append(out, Participant{User: u, Title: t})
		}
	}
	return out
}

// IsImportLine 报告一行是否为导入日志链接行。
func IsImportLine(line string) bool {
	return strings.Contains(line, "type=import") &&
		(strings.Contains(line, "Special:日志") || strings.Contains(line, "Special:Log"))
}

// FindImportItem 返回第一条位于导入日志行上的条目。
func FindImportItem(items []wikitext.TemplateMatch) (wikitext.TemplateMatch, bool) {
	for _, it := range items {
		if IsImportLine(it.Line) {
			return it, true
		}
	}
	return wikitext.TemplateMatch{}, false
}

// Namespaces 返回计分命名空间（升序）。
func (r Rules) Namespaces() []contract.Namespace {
	out := make([]contract.Namespace, 0, len(r.ImportWeights))
	for ns := range r.ImportWeights {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NamespaceError 记录单个命名空间的查询失败；该命名空间计 0 分。
type NamespaceError struct {
	NS  contract.Namespace
	Err error
}

func (e NamespaceError) Error() string { return fmt.Sprintf("namespace %d: %v", e.NS, e.Err) }
func (e NamespaceError) Unwrap() error  { return e.Err }

// ImportScore 按命名空间加权累计导入日志条数，保留 ImportPlaces 位小数。
// 单个命名空间失败不影响其余命名空间，失败列表一并返回；ctx 取消时立即返回。
func (r Rules) ImportScore(ctx context.Context, act contract.Activity, user string) (float64, []NamespaceError, error) {
	var (
		sum   float64
		fails []NamespaceError
	)
	w := r.Window()
	for _, ns := range r.Namespaces() {
		n, err := act.CountImports(ctx, user, ns, w)
		if err != nil {
			if ctx.Err() != nil {
				return 0, fails, ctx.Err()
			}
			fails = append(fails, NamespaceError{NS: ns, Err: err})
			continue
		}
		sum += float64(n) * r.ImportWeights[ns]
	}
	return wikitext.RoundTo(sum, r.ImportPlaces), fails, nil
}

// ImportCorrection 把导入条目的分值设为 score、状态设为已审核。
func (r Rules) ImportCorrection(item wikitext.TemplateMatch, score float64) wikitext.UpdatedItem {
	return wikitext.UpdatedItem{
		TemplateMatch: item,
		NewScore:      wikitext.Set(wikitext.FormatNumber(score)),
		NewStatus:     wikitext.Set(r.ReviewedStatus),
	}
}

// IsVeteran 判定截止时间前的贡献数是否达到阈值。查询失败由调用方决定降级。
func (r Rules) IsVeteran(ctx context.Context, act contract.Activity, user string) (bool, error) {
	n, err := act.CountEditsBefore(ctx, user, r.VeteranCutoff, r.VeteranLimit)
	if err != nil {
		return false, err
	}
	return n >= r.VeteranThreshold, nil
}

// PageSummary 是提交页的编辑摘要；importScore>0 时注明导入得分。
func (r Rules) PageSummary(importScore float64) string {
	s := r.SummaryTag + ": 更新总得分和条目数"
	if importScore > 0 {
		s += "（含导入得分 " + wikitext.FormatNumber(importScore) + "）"
	}
	return s
}

// LeaderboardSummary 是排行榜页的编辑摘要。
func (r Rules) LeaderboardSummary() string { return r.SummaryTag + ": 更新排行榜" }
