package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"sfebot/internal/pipeline"
	"sfebot/pkg/wikitext"
)

var boardHeader = []any{"排名", "用户", "条目数", "得分", "导入得分", "资历", "贡献详情页"}

// ExportXLSX 把三个排行榜表格与处理明细写入 .xlsx，一个表格一张工作表。
// 排序与页面上的排行榜一致。
func ExportXLSX(path string, rep pipeline.Report, layout wikitext.Layout) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lb := wikitext.NewLeaderboard(layout)
	for i, sec := range lb.Sections(rep.Records) {
		name := sheetName(sec.Name)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}
		rows := make([][]any, 0, len(sec.List)+1)
		rows = append(rows, boardHeader)
		for n, p := range sec.List {
			vet := "新星"
			if p.IsVeteran {
				vet = "熟练"
			}
			rows = append(rows, []any{n + 1, p.Username, p.EntryCount, p.TotalScore, p.ImportScore, vet, p.PageTitle})
		}
		if err := writeRows(f, name, rows, bold); err != nil {
			return err
		}
	}

	const detail = "处理明细"
	if _, err := f.NewSheet(detail); err != nil {
		return err
	}
	rows := [][]any{{"用户", "页面", "状态", "条目数", "得分", "导入得分", "耗时(ms)", "错误"}}
	for _, p := range rep.Pages {
		msg := ""
		if p.Err != nil {
			msg = p.Err.Error()
		}
		rows = append(rows, []any{
			p.Participant.User, string(p.Participant.Title), p.Status(),
			p.Update.EntryCount, p.Update.TotalScore, p.Update.ImportScore,
			p.Duration.Milliseconds(), msg,
		})
	}
	if err := writeRows(f, detail, rows, bold); err != nil {
		return err
	}
	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(rows[0]))
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", last, 16)
}

// sheetName 截断到 31 个字符并替换非法字符。
func sheetName(s string) string {
	rs := []rune(s)
	for i, r := range rs {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			rs[i] = '_'
		}
	}
	if len(rs) > 31 {
		rs = rs[:31]
	}
	return string(rs)
}
