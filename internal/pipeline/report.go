package pipeline

import (
	"time"

	"sfebot/internal/contest"
	"sfebot/pkg/contract"
	"sfebot/pkg/wikitext"
)

// PageResult 是一页提交页的处理结果。
type PageResult struct {
	Participant contest.Participant
	Update      contest.PageUpdate
	Record      wikitext.ParticipantRecord
	// Saved: 实际产生了新版本。
	Saved    bool
	Err      error
	Duration time.Duration
}

// Status 返回终端与报告使用的状态词。
func (p PageResult) Status() string {
	switch {
	case p.Err != nil:
		return "fail"
	case p.Saved:
		return "changed"
	case p.Record.IsUpdated:
		return "dry-run"
	default:
		return "unchanged"
	}
}

// LeaderboardReport 是排行榜步骤的结果。
type LeaderboardReport struct {
	Title   contract.Title
	Result  wikitext.Result
	Changed bool
	Saved   bool
	// Skipped: 没有任何成功处理的参赛者，未触碰排行榜。
	Skipped bool
}

// Report 汇总一次运行。
type Report struct {
	Identity string
	DryRun   bool
	Listed   int
	// Pages 按列举顺序排列（含失败项）。
	Pages       []PageResult
	Records     []wikitext.ParticipantRecord
	Leaderboard LeaderboardReport
	Started     time.Time
	Finished    time.Time
}

// records 返回成功页面的记录，保持列举顺序。
func (r Report) records() []wikitext.ParticipantRecord {
	out := make([]wikitext.ParticipantRecord, 0, len(r.Pages))
	for _, p := range r.Pages {
		if p.Err == nil {
			out = append(out, p.Record)
		}
	}
	return out
}

// Failed 返回失败页面。
func (r Report) Failed() []PageResult {
	var out []PageResult
	for _, p := range r.Pages {
		if p.Err != nil {
			out = append(out, p)
		}
	}
	return out
}
