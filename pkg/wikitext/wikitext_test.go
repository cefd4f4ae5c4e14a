package wikitext

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEngine = NewEngine("Status")

func TestStripCommentsAndNormalize(t *testing.T) {
	in := "a<!-- x\ny -->b<!--c-->d<!-- open"
	assert.Equal(t, "abd<!-- open", StripComments(in))

	// "\n|" 合并，"\n|-" 保留
	assert.Equal(t, "| A || x|| y\n|-\n| B", Normalize("| A || x\n| y\n|-\n| B"))
	// "|-|" 拆回换行
	assert.Equal(t, "|-\n| B", Normalize("|-\n| B"))
	assert.Equal(t, "|-\nx", Normalize("|-|x"))

	for _, s := range []string{"{|\n| a\n| b\n|}", "x\n|-|y\n|z", ""} {
		assert.Len(t, Normalize(s), len(s), "规范化不应改变长度: %q", s)
	}
}

func TestScannerStates(t *testing.T) {
	var sc Scanner
	assert.Equal(t, Outside, sc.State())
	assert.False(t, sc.Feed("| outside"))
	assert.False(t, sc.Feed("  {| class=\"x\""))
	assert.Equal(t, Inside, sc.State())
	assert.True(t, sc.Feed("| A || B"))
	assert.False(t, sc.Feed(" |} "))
	assert.Equal(t, Outside, sc.State())
}

// 合并后的 "||}" 不关闭表格（沿用既有判定，记录为已知怪癖）。
func TestScannerMergedCloseQuirk(t *testing.T) {
	var sc Scanner
	sc.Feed("{|")
	assert.True(t, sc.Feed("||}"), "||} 行仍被视为表格内")
	assert.Equal(t, Inside, sc.State())
	assert.True(t, sc.Feed("|}x"), "|}x 不是 ||} 的子串")
	assert.False(t, sc.Feed("|}"))
	assert.Equal(t, Outside, sc.State())

	// 页面层面：以 "|-" 结尾时关闭行保持独立，表格后的模板不计
	closed := "{|\n|-\n| A || {{Status|pass|1}}\n|-\n|}\n{{Status|pass|9}}"
	assert.Equal(t, 1, testEngine.Parse(closed).EntryCount)

	// 单元格后紧跟的 "\n|}" 被合并为 "||}"，表格不关闭，后面的模板也被计入
	merged := "{|\n|-\n| A || {{Status|pass|1}}\n|}\n{{Status|pass|9}}"
	res := testEngine.Parse(merged)
	assert.Equal(t, 2, res.EntryCount)
	assert.Equal(t, "| A || {{Status|pass|1}}||}", res.Items[0].Line)
}

func TestParseSingleScored(t *testing.T) {
	page := "{|\n|-\n| A || {{Status|pass|5}}\n|-\n|}"
	res := testEngine.Parse(page)
	require.Equal(t, 1, res.EntryCount)
	assert.InDelta(t, 5.0, res.TotalScore, 1e-9)

	want := TemplateMatch{
		LineNumber:       2,
		TemplateIndex:    0,
		Status:           "pass",
		Score:            "5",
		OriginalTemplate: "{{Status|pass|5}}",
		RelativePosition: 7,
		AbsolutePosition: 6 + 7,
		EntryName:        "A",
		Line:             "| A || {{Status|pass|5}}",
	}
	if diff := cmp.Diff(want, res.Items[0]); diff != "" {
		t.Fatalf("提取结果不符 (-want +got):\n%s", diff)
	}
}

func TestParseUnscored(t *testing.T) {
	res := testEngine.Parse("{|\n|-\n| A || {{Status|pending}}\n|}")
	require.Equal(t, 1, res.EntryCount)
	assert.Equal(t, "", res.Items[0].Score)
	assert.Zero(t, res.TotalScore)
}

func TestParseOrdinalsAndRemarks(t *testing.T) {
	page := strings.Join([]string{
		"== 提交 ==",
		"{{Status|pass|9}} 表格外不计",
		"{| class=\"wikitable\"",
		"! 序号 !! 条目 !! 状态",
		"|-",
		"| 1 || 甲 || {{Status|pass|2}}<br/><small>（补充来源）</small> || {{Status|pass|1.5分}}",
		"|-",
		"| 2 || 乙 <!-- 备注 --> || {{Status|待定}} || {{Status|fail|abc}} || {{Status|pass|.5}}",
		"|}",
	}, "\n")
	res := testEngine.Parse(page)
	require.Equal(t, 5, res.EntryCount)
	assert.InDelta(t, 2+1.5+0.5, res.TotalScore, 1e-9)

	var ords []int
	for _, it := range res.Items {
		if it.LineNumber == 7 {
			ords = append(ords, it.TemplateIndex)
		}
	}
	assert.Equal(t, []int{0, 1, 2}, ords)
	assert.Equal(t, "补充来源", res.Items[0].Remark)
	assert.Equal(t, "{{Status|pass|2}}", res.Items[0].OriginalTemplate)
	assert.Equal(t, "1", res.Items[0].EntryName)

	// 偏移指向清理后的文本
	clean := Clean(page)
	for _, it := range res.Items {
		assert.Equal(t, it.OriginalTemplate, clean[it.AbsolutePosition:it.AbsolutePosition+len(it.OriginalTemplate)])
	}
}

func TestParseHeaderEntryName(t *testing.T) {
	res := testEngine.Parse("{|\n|-\n|! 标题 || {{Status|pass|1}}\n|-\n|}")
	require.Len(t, res.Items, 1)
	assert.Equal(t, "标题", res.Items[0].EntryName)
}

func TestParseMultilineCell(t *testing.T) {
	page := "{|\n|-\n| A\n| {{Status|pass|3}}\n|-\n| B || {{Status|pass|4}}\n|-\n|}"
	res := testEngine.Parse(page)
	require.Equal(t, 2, res.EntryCount)
	assert.Equal(t, "A", res.Items[0].EntryName)
	assert.InDelta(t, 7.0, res.TotalScore, 1e-9)
}

func TestParseScore(t *testing.T) {
	cases := map[string]float64{
		"5": 5, " 2.5 ": 2.5, "1.5分": 1.5, "-1": -1, ".25": 0.25, "3e1x": 30, "abc": 0, "": 0, "1e999": 0,
	}
	for in, want := range cases {
		got, _ := ParseScore(in)
		assert.Equal(t, want, got, "输入 %q", in)
	}
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "12.3457", FormatScore(12.34567))
	assert.Equal(t, "3", FormatScore(3))
	assert.Equal(t, "0.1", FormatScore(0.1+0.00000001))
	assert.Equal(t, "0.3", FormatScore(0.1+0.2))
	assert.Equal(t, 0.06, RoundTo(0.02*3, 5))
}

func TestRecomputeSumInvariant(t *testing.T) {
	page := "{|\n|-\n| A || {{Status|pass|2}} || {{Status|pass|3}}\n|-\n| B || {{Status|x|oops}}\n|-\n| C || {{Status|pass|4.25}}\n|-\n|}"
	items := testEngine.Extract(page)
	require.Len(t, items, 4)

	updates := []UpdatedItem{
		{TemplateMatch: items[0], NewScore: Set("10")},
		{TemplateMatch: items[1], NewScore: Clear()},
		{TemplateMatch: items[2], NewStatus: Set("已审核")},
	}
	res := Recompute(items, updates)
	assert.Equal(t, 4, res.EntryCount)

	var sum float64
	for _, it := range res.Items {
		v, _ := ParseScore(it.Score)
		sum += v
	}
	assert.True(t, math.Abs(sum-res.TotalScore) < 1e-9)
	assert.InDelta(t, 10+0+0+4.25, res.TotalScore, 1e-9)
	assert.Equal(t, "已审核", res.Items[2].Status)
	assert.Equal(t, "pass", items[0].Status, "原切片不应被修改")
}

func TestRewriteTargetsOnlySpans(t *testing.T) {
	page := "前言 {{Status|pass|1}}\n{|\n|-\n| A || {{Status|pass|5}} || {{Status|pending}}<br/><small>（旧）</small>\n|-\n|}\n"
	items := testEngine.Extract(page)
	require.Len(t, items, 2)

	out, oc := testEngine.Rewrite(page, []UpdatedItem{
		{TemplateMatch: items[1], NewScore: Set("0.02"), NewStatus: Set("已审核"), NewRemark: Set("#导入")},
	})
	assert.Equal(t, Changed, oc)
	assert.Equal(t, strings.Replace(page, "{{Status|pending}}<br/><small>（旧）</small>", "{{Status|已审核|0.02}}<br/><small>（导入）</small>", 1), out)

	out2, oc := testEngine.Rewrite(page, []UpdatedItem{
		{TemplateMatch: items[0], NewScore: Clear(), NewRemark: Set("  ")},
		{TemplateMatch: items[1], NewRemark: Clear()},
	})
	assert.Equal(t, Changed, oc)
	assert.Equal(t, "前言 {{Status|pass|1}}\n{|\n|-\n| A || {{Status|pass}} || {{Status|pending}}\n|-\n|}\n", out2)
}

func TestRewriteIdempotentAndRoundTrip(t *testing.T) {
	page := "{|\n|-\n| A || {{Status|pass|5}}\n|-\n| B || {{Status|pending}}\n|-\n| C <!-- c --> || {{Status|fail|x}}<br /> <small>（r）</small>\n|-\n|}"
	items := testEngine.Extract(page)
	require.Len(t, items, 3)

	var keep []UpdatedItem
	for _, it := range items {
		keep = append(keep, UpdatedItem{TemplateMatch: it, NewStatus: Set(it.Status)})
	}
	out, oc := testEngine.Rewrite(page, keep)
	assert.Equal(t, page, out)
	assert.Equal(t, Unchanged, oc)

	upd := []UpdatedItem{
		{TemplateMatch: items[0], NewScore: Set("7")},
		{TemplateMatch: items[2], NewStatus: Clear(), NewScore: Clear()},
	}
	once, oc := testEngine.Rewrite(page, upd)
	require.Equal(t, Changed, oc)
	twice, _ := testEngine.Rewrite(once, upd)
	assert.Equal(t, once, twice)

	// 不带原模板核对时，第二次定位成功且无变化
	for i := range upd {
		upd[i].OriginalTemplate = ""
	}
	again, oc := testEngine.Rewrite(once, upd)
	assert.Equal(t, once, again)
	assert.Equal(t, Unchanged, oc)
	assert.Contains(t, once, "{{Status|}}<br /> <small>（r）</small>")
	assert.Contains(t, once, "<!-- c -->", "注释应保留")
}

func TestRewriteGuardsAndAbsent(t *testing.T) {
	page := "{|\n|-\n| A || {{Status|pass|5}}\n|-\n|}"
	items := testEngine.Extract(page)
	require.Len(t, items, 1)

	stale := items[0]
	stale.OriginalTemplate = "{{Status|pass|4}}"
	out, oc := testEngine.Rewrite(page, []UpdatedItem{{TemplateMatch: stale, NewScore: Set("1")}})
	assert.Equal(t, page, out)
	assert.Equal(t, Absent, oc)

	missing := items[0]
	missing.LineNumber = 42
	_, oc = testEngine.Rewrite(page, []UpdatedItem{{TemplateMatch: missing, NewScore: Set("1")}})
	assert.Equal(t, Absent, oc)

	_, oc = testEngine.Rewrite(page, nil)
	assert.Equal(t, Unchanged, oc)
}

// 跨行书写的单元格：只替换目标模板，其余原始换行保留。
func TestRewriteKeepsUnnormalizedBytes(t *testing.T) {
	page := "{|\n|-\n| A\n| {{Status|pass|3}}\n|-\n|}"
	items := testEngine.Extract(page)
	require.Len(t, items, 1)
	out, oc := testEngine.Rewrite(page, []UpdatedItem{{TemplateMatch: items[0], NewScore: Set("4")}})
	assert.Equal(t, Changed, oc)
	assert.Equal(t, "{|\n|-\n| A\n| {{Status|pass|4}}\n|-\n|}", out)
}

// 注释中的同名模板不占序号，改写落在真正的模板上。
func TestRewriteSkipsCommentedTemplate(t *testing.T) {
	page := "{|\n|-\n| [https://example.org/index.php?title=Special:日志&type=import 导入] || <!-- {{Status|pass|0}} --> {{Status|pass|0}}\n|-\n|}"
	items := testEngine.Extract(page)
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].TemplateIndex)

	upd := []UpdatedItem{{TemplateMatch: items[0], NewScore: Set("0.5"), NewStatus: Set("已审核")}}
	out, oc := testEngine.Rewrite(page, upd)
	assert.Equal(t, Changed, oc)
	assert.Contains(t, out, "<!-- {{Status|pass|0}} --> {{Status|已审核|0.5}}")

	twice, _ := testEngine.Rewrite(out, upd)
	assert.Equal(t, out, twice)

	upd[0].OriginalTemplate = ""
	again, oc := testEngine.Rewrite(out, upd)
	assert.Equal(t, out, again)
	assert.Equal(t, Unchanged, oc)
}

// 表格上方跨行注释使原文行号与提取行号不同，仍应改写到位。
func TestRewriteAfterMultilineComment(t *testing.T) {
	page := "<!-- note\nmore -->\n{|\n|-\n| A || {{Status|pending|0}}\n|}\n"
	items := testEngine.Extract(page)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].LineNumber)

	out, oc := testEngine.Rewrite(page, []UpdatedItem{{TemplateMatch: items[0], NewScore: Set("3")}})
	assert.Equal(t, Changed, oc)
	assert.Equal(t, "<!-- note\nmore -->\n{|\n|-\n| A || {{Status|pending|3}}\n|}\n", out)
}

// 模板内部夹注释时无法按原文区间替换，按结构缺失处理。
func TestRewriteTemplateWithInnerComment(t *testing.T) {
	page := "{|\n|-\n| A || {{Status|pass<!-- x -->|5}}\n|}"
	items := testEngine.Extract(page)
	require.Len(t, items, 1)
	assert.Equal(t, "{{Status|pass|5}}", items[0].OriginalTemplate)

	out, oc := testEngine.Rewrite(page, []UpdatedItem{{TemplateMatch: items[0], NewScore: Set("6")}})
	assert.Equal(t, Absent, oc)
	assert.Equal(t, page, out)
}

func TestCleanMappedOffsets(t *testing.T) {
	raw := "ab<!-- x -->cd<!--y-->\n<!--z-->ef"
	clean, m := CleanMapped(raw)
	require.Equal(t, "abcd\nef", clean)

	rs, re, ok := m.Raw(2, 4) // "cd"
	require.True(t, ok)
	assert.Equal(t, "cd", raw[rs:re])

	rs, re, ok = m.Raw(5, 7) // "ef"
	require.True(t, ok)
	assert.Equal(t, "ef", raw[rs:re])

	_, _, ok = m.Raw(1, 3) // "bc" 中间夹注释
	assert.False(t, ok)

	rs, re, ok = (OffsetMap{}).Raw(1, 3)
	assert.True(t, ok)
	assert.Equal(t, []int{1, 3}, []int{rs, re})
}

func TestComposeSummary(t *testing.T) {
	page := "{{mbox|type=policy|text={{center|已提交条目数：'''3'''  目前得分：'''1.5'''}}}}\n正文"
	out, oc := ComposeSummary(page, 4, "2.25")
	assert.Equal(t, Changed, oc)
	assert.Equal(t, "{{mbox|type=policy|text={{center|已提交条目数：'''4'''  目前得分：'''2.25'''}}}}\n正文", out)

	same, oc := ComposeSummary(out, 4, "2.25")
	assert.Equal(t, Unchanged, oc)
	assert.Equal(t, out, same)

	upper := "{{MBOX|type=policy|text={{Center|已提交条目数：'''0'''目前得分：'''0'''}}}}"
	out, oc = ComposeSummary(upper, 1, "1")
	assert.Equal(t, Changed, oc)
	assert.Equal(t, "{{MBOX|type=policy|text={{Center|已提交条目数：'''1'''目前得分：'''1'''}}}}", out)

	_, oc = ComposeSummary("没有横幅", 1, "1")
	assert.Equal(t, Absent, oc)
}

func TestSortParticipantsStable(t *testing.T) {
	in := []ParticipantRecord{
		{Username: "A", TotalScore: 10, EntryCount: 3},
		{Username: "B", TotalScore: 10, EntryCount: 3},
		{Username: "C", TotalScore: 10, EntryCount: 5},
		{Username: "D", TotalScore: 12, EntryCount: 1},
	}
	got := SortParticipants(in)
	var names []string
	for _, p := range got {
		names = append(names, p.Username)
	}
	assert.Equal(t, []string{"D", "C", "A", "B"}, names)
	assert.Equal(t, "A", in[0].Username, "输入不应被重排")
}

func TestRenderRows(t *testing.T) {
	lb := NewLeaderboard(Layout{})
	rows := lb.RenderRows([]ParticipantRecord{
		{Username: "甲", EntryCount: 2, TotalScore: 3.5, IsVeteran: true, PageTitle: "P/甲"},
		{Username: "乙", EntryCount: 1, TotalScore: 1, PageTitle: "P/乙"},
	}, true)
	assert.Equal(t, "|- \n| 1 || [[User:甲|甲]] || 2 || 3.5 || [[P/甲|查看页面]]\n|- \n| 2 || 🌱 [[User:乙|乙]] || 1 || 1 || [[P/乙|查看页面]]", rows)
	assert.Equal(t, EmptyRows, lb.RenderRows(nil, true))
}

func TestSpliceTableScenario(t *testing.T) {
	text := "== 榜 ==\n{|\n! 贡献详情页\n|-\n| A || {{Status|pass|5}}\n|}"
	rows := "|-\n| 1 || B || 2 || 5 || [[x]]"
	out, oc := SpliceTable(text, "榜", rows)
	assert.Equal(t, Changed, oc)
	assert.Equal(t, "== 榜 ==\n{|\n! 贡献详情页\n"+rows+"\n|}", out)

	again, oc := SpliceTable(out, "榜", rows)
	assert.Equal(t, Unchanged, oc)
	assert.Equal(t, out, again)
}

func TestSpliceTableMissingAnchors(t *testing.T) {
	cases := map[string]string{
		"无章节":  "{|\n! 贡献详情页\n|-\n|}",
		"无表格":  "榜\n没有表格",
		"无闭合":  "榜\n{|\n! 贡献详情页\n|-\n",
		"无表头锚": "榜\n{|\n! 排名\n|-\n| 1\n|}",
		"无分隔":  "榜\n{|\n! 贡献详情页\n| 1\n|}",
	}
	for name, text := range cases {
		out, oc := SpliceTable(text, "榜", "|- \n| x")
		assert.Equal(t, Absent, oc, name)
		assert.Equal(t, text, out, name)
	}
}
