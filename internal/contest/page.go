package contest

import "sfebot/pkg/wikitext"

// Import 是一页导入条目的修正依据。
type Import struct {
	Item  wikitext.TemplateMatch
	Score float64
}

// PageUpdate 是一页提交页的计算结果（纯计算，不含 I/O）。
type PageUpdate struct {
	Text        string
	Changed     bool
	EntryCount  int
	TotalScore  float64 // 已保留 4 位小数
	ScoreText   string
	ImportScore float64
	HasImport   bool
	Items       wikitext.Outcome
	Banner      wikitext.Outcome
	Summary     string
}

// UpdatePage 应用导入修正（imp 可为 nil），重算总分，并改写汇总横幅。
// 条目数取自解析结果，不受修正影响。
// 导入条目未能在页面上定位（Items 为 Absent）时不采用修正，总分沿用解析结果。
func (r Rules) UpdatePage(eng *wikitext.Engine, text string, parsed wikitext.AggregateResult, imp *Import) PageUpdate {
	u := PageUpdate{EntryCount: parsed.EntryCount, Items: wikitext.Unchanged}
	total := parsed.TotalScore
	out := text
	if imp != nil {
		upd := []wikitext.UpdatedItem{r.ImportCorrection(imp.Item, imp.Score)}
		out, u.Items = eng.Rewrite(out, upd)
		if u.Items != wikitext.Absent {
			total = wikitext.Recompute(parsed.Items, upd).TotalScore
			u.HasImport = true
			u.ImportScore = imp.Score
		}
	}
	u.TotalScore = wikitext.RoundTo(total, 4)
	u.ScoreText = wikitext.FormatScore(total)
	out, u.Banner = wikitext.ComposeSummary(out, u.EntryCount, u.ScoreText)
	u.Text = out
	u.Changed = out != text
	u.Summary = r.PageSummary(u.ImportScore)
	return u
}

// Record 转为排行榜记录。
func (u PageUpdate) Record(p Participant, veteran, updated bool) wikitext.ParticipantRecord {
	return wikitext.ParticipantRecord{
		Username:    p.User,
		EntryCount:  u.EntryCount,
		TotalScore:  u.TotalScore,
		ImportScore: u.ImportScore,
		IsVeteran:   veteran,
		PageTitle:   string(p.Title),
		IsUpdated:   updated,
	}
}
