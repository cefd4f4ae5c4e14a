package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"sfebot/internal/contest"
	"sfebot/internal/diag"
	"sfebot/internal/rate"
	"sfebot/pkg/contract"
	astatic "sfebot/plugins/activity/static"
	smem "sfebot/plugins/store/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	prefix = "Qiuwen:2026年春节编辑松/提交/"
	board  = "Qiuwen:2026年春节编辑松/提交"
)

var fixedNow = time.Date(2026, 2, 3, 16, 30, 5, 0, time.UTC)

const boardPage = `{{center|（以下排行约每小时更新一次）}}
{{FakeH3|编者总榜}}
{| class="sf-table"
! 排名 !! 用户 !! 条目数 !! 得分 !! 贡献详情页
|-
| 1 || 旧 || 0 || 0 || [[旧|查看页面]]
|}
{{FakeH3|熟练编者排行榜}}
{| class="sf-table"
! 贡献详情页
|-
|}
{{FakeH3|新星编者排行榜}}
{| class="sf-table"
! 贡献详情页
|-
|}
`

func banner(n int, score string) string {
	return fmt.Sprintf("{{mbox|type=policy|text={{center|已提交条目数：'''%d'''  目前得分：'''%s'''}}}}", n, score)
}

// 甲：含导入日志行，需要修正；乙：已是最新。
func pages() map[string]string {
	jia := strings.Join([]string{
		banner(0, "0"),
		"{|",
		"|-",
		"| 甲条目 || {{2026SFEditasonStatus|pass|1.5}}",
		"|-",
		"| [https://www.qiuwen.wiki/index.php?title=Special:日志&type=import&user=甲 导入] || {{2026SFEditasonStatus|pending}}",
		"|-",
		"|}",
	}, "\n")
	yi := strings.Join([]string{
		banner(1, "2"),
		"{|",
		"|-",
		"| 乙条目 || {{2026SFEditasonStatus|pass|2}}",
		"|-",
		"|}",
	}, "\n")
	return map[string]string{
		prefix + "甲的贡献": jia,
		prefix + "乙的贡献": yi,
		prefix + "说明":    "不是提交页",
		board:            boardPage,
	}
}

func fixture() astatic.Fixture {
	return astatic.Fixture{
		Imports: map[string]map[contract.Namespace]int{"甲": {0: 2}},
		Edits:   map[string]int{"甲": 60, "乙": 3},
	}
}

func newStore(t *testing.T, mutate func(*smem.Options)) *smem.Store {
	t.Helper()
	o := smem.Options{Pages: pages()}
	if mutate != nil {
		mutate(&o)
	}
	s, err := smem.FromOptions(o)
	require.NoError(t, err)
	return s
}

func settings() Settings {
	return Settings{Concurrency: 2, Rules: contest.DefaultRules(), StoreName: "memory", Now: func() time.Time { return fixedNow }}
}

func TestRunEndToEnd(t *testing.T) {
	st := newStore(t, nil)
	rep, err := Run(context.Background(), Components{Store: st, Activity: astatic.FromFixture(fixture())}, settings(), nil)
	require.NoError(t, err)

	require.Len(t, rep.Pages, 2)
	assert.Equal(t, 3, rep.Listed, "排行榜本页不带尾部斜杠，不在列举范围")
	// 列举顺序：乙(U+4E59) 在 甲(U+7532) 之前
	assert.Equal(t, "乙", rep.Pages[0].Participant.User)
	assert.Equal(t, "unchanged", rep.Pages[0].Status())
	assert.Equal(t, "changed", rep.Pages[1].Status())

	jia := rep.Pages[1].Record
	assert.Equal(t, 2, jia.EntryCount)
	assert.InDelta(t, 1.54, jia.TotalScore, 1e-9)
	assert.InDelta(t, 0.04, jia.ImportScore, 1e-12)
	assert.True(t, jia.IsVeteran)
	assert.True(t, jia.IsUpdated)
	assert.False(t, rep.Pages[0].Record.IsVeteran)

	hist := st.History()
	require.Len(t, hist, 2)
	assert.Equal(t, contract.Title(prefix+"甲的贡献"), hist[0].Title)
	assert.Equal(t, "bot(2026SFE): 更新总得分和条目数（含导入得分 0.04）", hist[0].Summary)
	assert.Contains(t, hist[0].Text, "{{2026SFEditasonStatus|已审核|0.04}}")
	assert.Contains(t, hist[0].Text, "已提交条目数：'''2'''  目前得分：'''1.54'''")

	assert.Equal(t, contract.Title(board), hist[1].Title)
	assert.Equal(t, "bot(2026SFE): 更新排行榜", hist[1].Summary)
	text := hist[1].Text
	assert.Contains(t, text, "（最近更新：2026年02月04日 00:30:05 UTC+8）")
	assert.Contains(t, text, "| 1 || [[User:乙|乙]]", "乙 2 分排第一")
	assert.Contains(t, text, "| 2 || [[User:甲|甲]] || 2 || 1.54")
	assert.NotContains(t, text, "| 1 || 旧")
	assert.True(t, rep.Leaderboard.Saved)
	assert.Empty(t, rep.Leaderboard.Result.Missing())
	assert.False(t, rep.Finished.Before(rep.Started))
}

func TestRunIdempotent(t *testing.T) {
	st := newStore(t, nil)
	comp := Components{Store: st, Activity: astatic.FromFixture(fixture())}
	_, err := Run(context.Background(), comp, settings(), nil)
	require.NoError(t, err)
	n := len(st.History())

	rep, err := Run(context.Background(), comp, settings(), nil)
	require.NoError(t, err)
	assert.Len(t, st.History(), n, "第二次运行不应再保存")
	assert.False(t, rep.Leaderboard.Changed)
	for _, p := range rep.Pages {
		assert.Equal(t, "unchanged", p.Status(), p.Participant.User)
	}
}

func TestRunDryRun(t *testing.T) {
	st := newStore(t, nil)
	set := settings()
	set.DryRun = true
	rep, err := Run(context.Background(), Components{Store: st, Activity: astatic.FromFixture(fixture())}, set, nil)
	require.NoError(t, err)
	assert.Empty(t, st.History())
	assert.True(t, rep.DryRun)
	assert.Equal(t, "dry-run", rep.Pages[1].Status())
	assert.True(t, rep.Leaderboard.Changed)
	assert.False(t, rep.Leaderboard.Saved)
	assert.Contains(t, rep.Leaderboard.Result.Text, "[[User:甲|甲]]")
}

func TestRunPageFailuresAreSkipped(t *testing.T) {
	// 第一次保存（甲）冲突：甲失败，排行榜仍以乙更新
	st := newStore(t, func(o *smem.Options) { o.SaveFailures = []string{"conflict"} })
	rep, err := Run(context.Background(), Components{Store: st, Activity: astatic.FromFixture(fixture())}, settings(), nil)
	require.NoError(t, err)

	failed := rep.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "甲", failed[0].Participant.User)
	assert.ErrorIs(t, failed[0].Err, contract.ErrEditConflict)
	require.Len(t, rep.Records, 1)
	assert.Equal(t, "乙", rep.Records[0].Username)

	text, _ := st.Page(board)
	assert.Contains(t, text, "[[User:乙|乙]]")
	assert.NotContains(t, text, "[[User:甲|甲]]")
}

func TestRunNoSuccessSkipsLeaderboard(t *testing.T) {
	st := newStore(t, func(o *smem.Options) {
		o.ReadFailures = map[string]string{prefix + "甲的贡献": "auth", prefix + "乙的贡献": "invalid"}
	})
	rep, err := Run(context.Background(), Components{Store: st, Activity: astatic.FromFixture(fixture())}, settings(), nil)
	require.NoError(t, err)
	assert.True(t, rep.Leaderboard.Skipped)
	assert.Len(t, rep.Failed(), 2)
	assert.Empty(t, st.History())
}

func TestRunLeaderboardMissingFails(t *testing.T) {
	st := newStore(t, func(o *smem.Options) { delete(o.Pages, board) })
	_, err := Run(context.Background(), Components{Store: st, Activity: astatic.FromFixture(fixture())}, settings(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, contract.ErrPageMissing)
	assert.Equal(t, diag.CodeMissing, diag.Classify(err))
}

func TestRunVeteranFailureDegrades(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fx := fixture()
	fx.Fail = []string{"乙"}
	st := newStore(t, nil)
	rep, err := Run(context.Background(), Components{Store: st, Activity: astatic.FromFixture(fx)}, settings(), diag.NewLoggerWithCore("t", core))
	require.NoError(t, err)
	assert.Empty(t, rep.Failed())
	assert.False(t, rep.Records[0].IsVeteran)

	warns := logs.FilterMessage("veteran check failed, treated as newcomer").All()
	require.Len(t, warns, 1)
	assert.Equal(t, "乙", warns[0].ContextMap()["page"])
	assert.Equal(t, "protocol", warns[0].ContextMap()["code"])
}

func TestRunImportNamespaceFailureWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fx := fixture()
	fx.Fail = []string{"甲"}
	rep, err := Run(context.Background(), Components{Store: newStore(t, nil), Activity: astatic.FromFixture(fx)}, settings(), diag.NewLoggerWithCore("t", core))
	require.NoError(t, err)
	// 五个命名空间全部失败：导入得分为 0，条目仍被标为已审核
	assert.Len(t, logs.FilterMessage("import count failed, namespace scored 0").All(), 5)
	jia := rep.Pages[1]
	require.NoError(t, jia.Err)
	assert.Zero(t, jia.Record.ImportScore)
	assert.Contains(t, jia.Update.Text, "{{2026SFEditasonStatus|已审核|0}}")
	assert.Equal(t, "bot(2026SFE): 更新总得分和条目数", jia.Update.Summary)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Components{Store: newStore(t, nil), Activity: astatic.FromFixture(fixture())}, settings(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunStableOrderUnderConcurrency(t *testing.T) {
	ps := pages()
	var want []string
	for i := 0; i < 30; i++ {
		u := fmt.Sprintf("U%02d", i)
		want = append(want, u)
		ps[prefix+u+"的贡献"] = banner(0, "0") + "\n{|\n|-\n| x || {{2026SFEditasonStatus|pass|1}}\n|-\n|}"
	}
	delete(ps, prefix+"甲的贡献")
	delete(ps, prefix+"乙的贡献")
	st, err := smem.FromOptions(smem.Options{Pages: ps})
	require.NoError(t, err)
	set := settings()
	set.Concurrency = 8
	rep, err := Run(context.Background(), Components{Store: st, Activity: astatic.FromFixture(astatic.Fixture{})}, set, nil)
	require.NoError(t, err)
	var got []string
	for _, r := range rep.Records {
		got = append(got, r.Username)
	}
	assert.Equal(t, want, got)
	// 同分同条目数：排行榜按输入顺序
	text, _ := st.Page(board)
	assert.Less(t, strings.Index(text, "[[User:U00|U00]]"), strings.Index(text, "[[User:U29|U29]]"))
}

func TestRunWithGate(t *testing.T) {
	set := settings()
	set.Gate = rate.NewGate(map[rate.LimitKey]rate.Limits{"memory:read": {RPM: 60000, Burst: 50}}, nil)
	_, err := Run(context.Background(), Components{Store: newStore(t, nil), Activity: astatic.FromFixture(fixture())}, set, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput, "缺少分组键应失败")

	set.ReadKey = rate.DeriveKey("memory", nil, rate.ClassRead)
	set.EditKey = rate.DeriveKey("memory", nil, rate.ClassEdit)
	rep, err := Run(context.Background(), Components{Store: newStore(t, nil), Activity: astatic.FromFixture(fixture())}, set, nil)
	require.NoError(t, err)
	assert.True(t, rep.Leaderboard.Saved)
}

type verifyingStore struct {
	*smem.Store
	err error
}

func (v verifyingStore) Verify(context.Context) (string, error) { return "SFEBot", v.err }

func TestRunVerify(t *testing.T) {
	rep, err := Run(context.Background(), Components{Store: verifyingStore{Store: newStore(t, nil)}, Activity: astatic.FromFixture(fixture())}, settings(), nil)
	require.NoError(t, err)
	assert.Equal(t, "SFEBot", rep.Identity)

	_, err = Run(context.Background(), Components{Store: verifyingStore{Store: newStore(t, nil), err: contract.ErrAuth}, Activity: astatic.FromFixture(fixture())}, settings(), nil)
	assert.ErrorIs(t, err, contract.ErrAuth)
}

func TestSanity(t *testing.T) {
	_, err := Run(context.Background(), Components{}, Settings{}, nil)
	assert.Error(t, err)

	set := Settings{}
	require.NoError(t, sanity(Components{Store: newStore(t, nil), Activity: astatic.FromFixture(fixture())}, &set))
	assert.Equal(t, 1, set.Concurrency)
	assert.NotNil(t, set.Now)
	assert.Equal(t, contest.DefaultRules().Leaderboard, set.Rules.Leaderboard)
}
