// Package report 汇总一次运行的结果：终端统计、GitHub 步骤摘要与表格导出。
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"sfebot/internal/pipeline"
	"sfebot/pkg/wikitext"
)

// Stats 是最终统计。只计成功处理的参赛者。
type Stats struct {
	Processed    int
	Failed       int
	Updated      int
	TotalEntries int
	TotalScore   float64
	ImportScore  float64
}

// Summarize 从运行报告计算统计。
func Summarize(rep pipeline.Report) Stats {
	s := Stats{Processed: len(rep.Records), Failed: len(rep.Failed())}
	for _, r := range rep.Records {
		if r.IsUpdated {
			s.Updated++
		}
		s.TotalEntries += r.EntryCount
		s.TotalScore += r.TotalScore
		s.ImportScore += r.ImportScore
	}
	return s
}

// WriteText 输出终端统计报告。
func (s Stats) WriteText(w io.Writer, dryRun bool) error {
	var b strings.Builder
	b.WriteString("=== 最终统计报告 ===\n")
	fmt.Fprintf(&b, "成功处理用户数: %d\n", s.Processed)
	if s.Failed > 0 {
		fmt.Fprintf(&b, "处理失败用户数: %d\n", s.Failed)
	}
	label := "页面更新数量"
	if dryRun {
		label = "待更新页面数量（演练）"
	}
	fmt.Fprintf(&b, "%s: %d\n", label, s.Updated)
	fmt.Fprintf(&b, "总条目数: %d\n", s.TotalEntries)
	fmt.Fprintf(&b, "总得分: %.2f\n", s.TotalScore)
	fmt.Fprintf(&b, "导入总得分: %.5f\n", s.ImportScore)
	b.WriteString("====================\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// StepSummary 渲染 GitHub Actions 步骤摘要（Markdown）。参与者按总分降序。
func StepSummary(rep pipeline.Report, now time.Time) string {
	s := Summarize(rep)
	rows := make([]wikitext.ParticipantRecord, len(rep.Records))
	copy(rows, rep.Records)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalScore > rows[j].TotalScore })

	var b strings.Builder
	b.WriteString("## 2026年春节编辑松机器人运行摘要 🚀\n\n")
	if rep.DryRun {
		b.WriteString("> 演练模式：未保存任何页面。\n\n")
	}
	fmt.Fprintf(&b, "- **参与总人数**: %d\n", s.Processed)
	fmt.Fprintf(&b, "- **本次更新页面数**: %d\n", s.Updated)
	fmt.Fprintf(&b, "- **总条目数**: %d\n", s.TotalEntries)
	fmt.Fprintf(&b, "- **总得分**: %s\n", wikitext.FormatScore(s.TotalScore))
	if s.Failed > 0 {
		fmt.Fprintf(&b, "- **处理失败**: %d\n", s.Failed)
	}
	b.WriteString("\n### 参与者详情\n\n")
	b.WriteString("| 用户 | 条目数 | 得分 | 资历 | 状态 |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, r := range rows {
		vet := "🆕"
		if r.IsVeteran {
			vet = "✅"
		}
		st := "无变化"
		if r.IsUpdated {
			st = "📝 已更新"
		}
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s |\n", mdEscape(r.Username), r.EntryCount, wikitext.FormatNumber(r.TotalScore), vet, st)
	}
	if failed := rep.Failed(); len(failed) > 0 {
		b.WriteString("\n### 处理失败\n\n")
		for _, p := range failed {
			fmt.Fprintf(&b, "- %s: `%s`\n", mdEscape(p.Participant.User), strings.ReplaceAll(p.Err.Error(), "`", "'"))
		}
	}
	fmt.Fprintf(&b, "\n摘要生成于 %s\n", now.UTC().Format(time.RFC3339))
	return b.String()
}

func mdEscape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

// AppendStepSummary 追加写入 path（通常是 $GITHUB_STEP_SUMMARY）；path 为空时不做任何事。
func AppendStepSummary(path, markdown string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, markdown); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
