package contest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfebot/pkg/contract"
	"sfebot/pkg/wikitext"
	astatic "sfebot/plugins/activity/static"
)

const importURL = "[https://www.qiuwen.wiki/index.php?title=Special:日志&type=import&user=甲 导入日志]"

func samplePage() string {
	return strings.Join([]string{
		"{{mbox|type=policy|text={{center|已提交条目数：'''0'''  目前得分：'''0'''}}}}",
		`{| class="wikitable"`,
		"! 条目 !! 状态",
		"|-",
		"| 甲条目 || {{2026SFEditasonStatus|pass|1.5}}",
		"|-",
		"| " + importURL + " || {{2026SFEditasonStatus|pending}}",
		"|-",
		"|}",
	}, "\n")
}

func TestUsername(t *testing.T) {
	r := DefaultRules()
	cases := map[contract.Title]string{
		"Qiuwen:2026年春节编辑松/提交/甲的贡献":     "甲",
		"Qiuwen:2026年春节编辑松/提交/Foo Bar的贡献": "Foo Bar",
	}
	for title, want := range cases {
		got, ok := r.Username(title)
		require.True(t, ok, title)
		assert.Equal(t, want, got)
	}
	for _, bad := range []contract.Title{
		"Qiuwen:2026年春节编辑松/提交",
		"Qiuwen:2026年春节编辑松/提交/甲",
		"Qiuwen:2026年春节编辑松/提交/的贡献",
		"Qiuwen:2026年春节编辑松/提交/甲/存档的贡献",
		"User:甲的贡献",
	} {
		_, ok := r.Username(bad)
		assert.False(t, ok, bad)
	}

	ps := r.Participants([]contract.Title{"Qiuwen:2026年春节编辑松/提交/乙的贡献", "Qiuwen:2026年春节编辑松/提交/说明", "Qiuwen:2026年春节编辑松/提交/甲的贡献"})
	require.Len(t, ps, 2)
	assert.Equal(t, "乙", ps[0].User, "应保持列举顺序")
	assert.Equal(t, "甲", ps[1].User)
}

func TestIsImportLine(t *testing.T) {
	assert.True(t, IsImportLine("| "+importURL))
	assert.True(t, IsImportLine("[[Special:Log?type=import]]"))
	assert.False(t, IsImportLine("Special:日志 type=upload"))
	assert.False(t, IsImportLine("type=import 无链接"))
}

func TestImportScore(t *testing.T) {
	r := DefaultRules()
	act := astatic.FromFixture(astatic.Fixture{
		Imports: map[string]map[contract.Namespace]int{
			"甲": {0: 3, 6: 1, 828: 2, 2: 100},
		},
	})
	got, fails, err := r.ImportScore(context.Background(), act, "甲")
	require.NoError(t, err)
	assert.Empty(t, fails)
	// 3×0.02 + 1×0.01 + 2×0.01；用户命名空间不计分
	assert.InDelta(t, 0.09, got, 1e-12)
	assert.Equal(t, []contract.Namespace{0, 6, 10, 206, 828}, r.Namespaces())
}

type flakyActivity struct {
	failNS contract.Namespace
	n      int
}

func (f flakyActivity) CountImports(_ context.Context, _ string, ns contract.Namespace, _ contract.Window) (int, error) {
	if ns == f.failNS {
		return 0, contract.ErrRateLimited
	}
	return f.n, nil
}

func (f flakyActivity) CountEditsBefore(context.Context, string, time.Time, int) (int, error) {
	return 0, contract.ErrResponseInvalid
}

func TestImportScorePartialFailure(t *testing.T) {
	r := DefaultRules()
	got, fails, err := r.ImportScore(context.Background(), flakyActivity{failNS: 0, n: 1}, "甲")
	require.NoError(t, err)
	require.Len(t, fails, 1)
	assert.Equal(t, contract.Namespace(0), fails[0].NS)
	assert.ErrorIs(t, fails[0], contract.ErrRateLimited)
	assert.InDelta(t, 0.04, got, 1e-12)

	_, err = (flakyActivity{failNS: 0}).CountEditsBefore(context.Background(), "", time.Time{}, 1)
	assert.Error(t, err)
}

func TestImportScoreCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := DefaultRules().ImportScore(ctx, astatic.FromFixture(astatic.Fixture{}), "甲")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsVeteran(t *testing.T) {
	r := DefaultRules()
	act := astatic.FromFixture(astatic.Fixture{
		Edits: map[string]int{"老手": 80, "刚好": 50, "新人": 49},
		Fail:  []string{"坏"},
	})
	for user, want := range map[string]bool{"老手": true, "刚好": true, "新人": false, "无记录": false} {
		got, err := r.IsVeteran(context.Background(), act, user)
		require.NoError(t, err, user)
		assert.Equal(t, want, got, user)
	}
	_, err := r.IsVeteran(context.Background(), act, "坏")
	assert.True(t, errors.Is(err, contract.ErrResponseInvalid))
}

func TestUpdatePageWithImport(t *testing.T) {
	r := DefaultRules()
	eng := wikitext.NewEngine(r.Template)
	page := samplePage()
	parsed := eng.Parse(page)
	require.Equal(t, 2, parsed.EntryCount)
	item, ok := FindImportItem(parsed.Items)
	require.True(t, ok)

	u := r.UpdatePage(eng, page, parsed, &Import{Item: item, Score: 0.07})
	assert.True(t, u.Changed)
	assert.Equal(t, wikitext.Changed, u.Items)
	assert.Equal(t, wikitext.Changed, u.Banner)
	assert.Equal(t, 2, u.EntryCount)
	assert.InDelta(t, 1.57, u.TotalScore, 1e-9)
	assert.Equal(t, "1.57", u.ScoreText)
	assert.Contains(t, u.Text, "{{2026SFEditasonStatus|已审核|0.07}}")
	assert.Contains(t, u.Text, "已提交条目数：'''2'''  目前得分：'''1.57'''")
	assert.Equal(t, "bot(2026SFE): 更新总得分和条目数（含导入得分 0.07）", u.Summary)

	// 再次运行不再变化
	again := r.UpdatePage(eng, u.Text, eng.Parse(u.Text), &Import{Item: mustImport(t, eng, u.Text), Score: 0.07})
	assert.False(t, again.Changed)
	assert.Equal(t, u.Text, again.Text)

	rec := u.Record(Participant{User: "甲", Title: "Qiuwen:2026年春节编辑松/提交/甲的贡献"}, true, true)
	assert.Equal(t, wikitext.ParticipantRecord{
		Username: "甲", EntryCount: 2, TotalScore: u.TotalScore, ImportScore: 0.07,
		IsVeteran: true, PageTitle: "Qiuwen:2026年春节编辑松/提交/甲的贡献", IsUpdated: true,
	}, rec)
}

// 表格上方的跨行注释与导入行内被注释掉的模板都不影响定位。
func TestUpdatePageWithComments(t *testing.T) {
	r := DefaultRules()
	eng := wikitext.NewEngine(r.Template)
	page := "<!-- 说明\n第二行 -->\n" + strings.Replace(samplePage(),
		"|| {{2026SFEditasonStatus|pending}}",
		"|| <!-- {{2026SFEditasonStatus|pending}} --> {{2026SFEditasonStatus|pending}}", 1)
	parsed := eng.Parse(page)
	require.Equal(t, 2, parsed.EntryCount)
	item := mustImport(t, eng, page)

	u := r.UpdatePage(eng, page, parsed, &Import{Item: item, Score: 0.07})
	assert.Equal(t, wikitext.Changed, u.Items)
	assert.InDelta(t, 1.57, u.TotalScore, 1e-9)
	assert.Contains(t, u.Text, "<!-- {{2026SFEditasonStatus|pending}} --> {{2026SFEditasonStatus|已审核|0.07}}")
	assert.True(t, strings.HasPrefix(u.Text, "<!-- 说明\n第二行 -->\n"))
	assert.Contains(t, u.Text, "目前得分：'''1.57'''")
}

// 导入条目无法定位时横幅只反映页面上已有的得分。
func TestUpdatePageImportNotLocated(t *testing.T) {
	r := DefaultRules()
	eng := wikitext.NewEngine(r.Template)
	page := strings.Replace(samplePage(),
		"{{2026SFEditasonStatus|pending}}",
		"{{2026SFEditasonStatus|pending<!-- 待审 -->}}", 1)
	parsed := eng.Parse(page)
	item := mustImport(t, eng, page)

	u := r.UpdatePage(eng, page, parsed, &Import{Item: item, Score: 0.07})
	assert.Equal(t, wikitext.Absent, u.Items)
	assert.False(t, u.HasImport)
	assert.Zero(t, u.ImportScore)
	assert.InDelta(t, 1.5, u.TotalScore, 1e-9)
	assert.Contains(t, u.Text, "目前得分：'''1.5'''")
	assert.Contains(t, u.Text, "{{2026SFEditasonStatus|pending<!-- 待审 -->}}")
	assert.Equal(t, "bot(2026SFE): 更新总得分和条目数", u.Summary)
}

func mustImport(t *testing.T, eng *wikitext.Engine, text string) wikitext.TemplateMatch {
	t.Helper()
	it, ok := FindImportItem(eng.Parse(text).Items)
	require.True(t, ok)
	return it
}

func TestUpdatePageWithoutImport(t *testing.T) {
	r := DefaultRules()
	eng := wikitext.NewEngine(r.Template)
	page := "{{mbox|type=policy|text={{center|已提交条目数：'''1'''  目前得分：'''2.5'''}}}}\n{|\n|-\n| A || {{2026SFEditasonStatus|pass|2.5}}\n|-\n|}"
	u := r.UpdatePage(eng, page, eng.Parse(page), nil)
	assert.False(t, u.Changed)
	assert.Equal(t, wikitext.Unchanged, u.Banner)
	assert.False(t, u.HasImport)
	assert.Equal(t, "bot(2026SFE): 更新总得分和条目数", u.Summary)

	noBanner := "{|\n|-\n| A || {{2026SFEditasonStatus|pass|1}}\n|-\n|}"
	u = r.UpdatePage(eng, noBanner, eng.Parse(noBanner), nil)
	assert.Equal(t, wikitext.Absent, u.Banner)
	assert.Equal(t, noBanner, u.Text)
}

func TestRulesValidate(t *testing.T) {
	require.NoError(t, DefaultRules().Validate())
	r := DefaultRules()
	r.VeteranLimit = 10
	assert.ErrorIs(t, r.Validate(), contract.ErrInvalidInput)
	r = DefaultRules()
	r.ImportEnd = r.ImportStart.Add(-time.Second)
	assert.ErrorIs(t, r.Validate(), contract.ErrInvalidInput)
	r = DefaultRules()
	r.TitleSuffix = ""
	assert.Error(t, r.Validate())
	assert.Equal(t, "bot(2026SFE): 更新排行榜", DefaultRules().LeaderboardSummary())
}
