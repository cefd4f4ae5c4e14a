package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"sfebot/internal/contest"
	"sfebot/internal/diag"
	"sfebot/internal/rate"
	"sfebot/pkg/contract"
	"sfebot/pkg/wikitext"
)

// - 单点并发：仅此层管理并发；存储与活动查询组件均为同步调用。
// - 单写者：一个 goroutine 负责一页的 读→算→写，同一标题不会被并发保存。
// - 稳定顺序：结果按列举顺序落位，排行榜输入与并发度无关。
// - 容错：单页失败记录后跳过；列举、排行榜与取消为整体失败。

// Components 聚合运行所需的外部协作者。
type Components struct {
	Store    contract.Store
	Activity contract.Activity
}

// Settings 运行期配置。
type Settings struct {
	Concurrency int
	// DryRun: 计算全部结果但不保存任何页面。
	DryRun bool
	Rules  contest.Rules
	Layout wikitext.Layout
	// StoreName 仅用于终端提示。
	StoreName string
	// 限流闸门（可选）：读类请求使用 ReadKey，编辑使用 EditKey。
	Gate    rate.Gate
	ReadKey rate.LimitKey
	EditKey rate.LimitKey
	// Now 为排行榜时间戳时钟；为空使用 time.Now。
	Now func() time.Time
}

// Run 执行：(Verify) → List → 并发处理各提交页 → 排行榜 → 报告。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (rep Report, err error) {
	if logger == nil {
		logger = diag.Nop()
	}
	if err := sanity(comp, &set); err != nil {
		return Report{}, fmt.Errorf("sanity: %w", err)
	}
	r := &runner{
		store:  comp.Store,
		act:    comp.Activity,
		set:    set,
		log:    logger,
		engine: wikitext.NewEngine(set.Rules.Template),
		board:  wikitext.NewLeaderboard(set.Layout),
	}
	if set.Gate != nil {
		r.store = gatedStore{Store: comp.Store, gate: set.Gate, read: set.ReadKey, edit: set.EditKey}
		r.act = gatedActivity{Activity: comp.Activity, gate: set.Gate, key: set.ReadKey}
	}
	rep = Report{DryRun: set.DryRun, Started: time.Now()}
	defer func() { rep.Finished = time.Now() }()

	// 可选：会话校验（mediawiki）
	if v, ok := comp.Store.(contract.Verifier); ok {
		vt := logger.Start("store", "verify")
		who, err := v.Verify(ctx)
		if err != nil {
			r.fail("store", "verify failed", "", nil, err)
			return rep, fmt.Errorf("verify: %w", err)
		}
		rep.Identity = who
		vt.FinishKV("verify", 0, map[string]string{"user": who})
	}

	lt := logger.Start("store", "list")
	titles, err := r.store.List(ctx, set.Rules.ListPrefix, set.Rules.Namespace)
	if err != nil {
		r.fail("store", "list failed", "", nil, err)
		return rep, fmt.Errorf("list: %w", err)
	}
	parts := set.Rules.Participants(titles)
	lt.FinishKV("list", int64(len(parts)), map[string]string{"titles": strconv.Itoa(len(titles))})
	rep.Listed = len(titles)

	if t := diag.GetTerminal(); t != nil {
		t.RunStart(set.Concurrency, set.StoreName, len(parts))
	}

	rep.Pages = r.processAll(ctx, parts)
	if cerr := ctx.Err(); cerr != nil {
		return rep, cerr
	}
	rep.Records = rep.records()

	if len(rep.Records) == 0 {
		logger.Warn("leaderboard", "", "no participant processed, skip leaderboard", "", nil)
		rep.Leaderboard.Skipped = true
		return rep, nil
	}
	rep.Leaderboard, err = r.leaderboard(ctx, rep.Records)
	if err != nil {
		return rep, fmt.Errorf("leaderboard: %w", err)
	}
	return rep, nil
}

type runner struct {
	store  contract.Store
	act    contract.Activity
	set    Settings
	log    *diag.Logger
	engine *wikitext.Engine
	board  *wikitext.Leaderboard
}

// processAll 以有界并发处理全部提交页；结果按输入下标落位。
func (r *runner) processAll(ctx context.Context, parts []contest.Participant) []PageResult {
	out := make([]PageResult, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.set.Concurrency)
	for i, p := range parts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out[i] = r.processPage(gctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// processPage 读取、修正、保存一页并判定资历。失败时 Err 非空，其余字段尽力填写。
func (r *runner) processPage(ctx context.Context, p contest.Participant) (res PageResult) {
	res.Participant = p
	t0 := time.Now()
	if t := diag.GetTerminal(); t != nil {
		t.PageStart(p.User)
	}
	defer func() {
		res.Duration = time.Since(t0)
		status := res.Status()
		if t := diag.GetTerminal(); t != nil {
			t.PageFinish(p.User, status, res.Duration)
		}
		diag.ObserveDuration("pipeline", "page", res.Duration.Milliseconds())
		if res.Err != nil {
			diag.IncOp("pipeline", "page", "error")
			return
		}
		diag.IncOp("pipeline", "page", "success")
	}()

	timer := r.log.StartWith("pipeline", "process", p.User)
	text, err := r.store.Read(ctx, p.Title)
	if err != nil {
		res.Err = fmt.Errorf("read %s: %w", p.Title, err)
		r.fail("store", "read failed", p.User, &t0, err)
		return res
	}

	parsed := r.engine.Parse(text)
	var imp *contest.Import
	if item, ok := contest.FindImportItem(parsed.Items); ok {
		score, fails, err := r.set.Rules.ImportScore(ctx, r.act, p.User)
		if err != nil {
			res.Err = fmt.Errorf("import score %s: %w", p.User, err)
			r.fail("activity", "import score failed", p.User, &t0, err)
			return res
		}
		for _, f := range fails {
			code := diag.Classify(f.Err)
			r.log.Warn("activity", string(code), "import count failed, namespace scored 0", p.User,
				map[string]string{"ns": strconv.Itoa(int(f.NS)), "err": f.Err.Error()})
			diag.IncError("activity", string(code))
		}
		imp = &contest.Import{Item: item, Score: score}
	}

	upd := r.set.Rules.UpdatePage(r.engine, text, parsed, imp)
	res.Update = upd
	if upd.Banner == wikitext.Absent {
		r.log.Warn("wikitext", "", "summary banner not found", p.User, nil)
	}
	if imp != nil && upd.Items == wikitext.Absent {
		r.log.Warn("wikitext", "", "import item not located for rewrite", p.User, nil)
	}

	updated := false
	if upd.Changed {
		if r.set.DryRun {
			updated = true
		} else {
			sr, err := r.store.Save(ctx, p.Title, upd.Text, upd.Summary)
			if err != nil {
				res.Err = fmt.Errorf("save %s: %w", p.Title, err)
				r.fail("store", "save failed", p.User, &t0, err)
				return res
			}
			updated = sr.Changed
			res.Saved = sr.Changed
		}
	}

	veteran, err := r.set.Rules.IsVeteran(ctx, r.act, p.User)
	if err != nil {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		code := diag.Classify(err)
		r.log.Warn("activity", string(code), "veteran check failed, treated as newcomer", p.User,
			map[string]string{"err": err.Error()})
		diag.IncError("activity", string(code))
	}

	res.Record = upd.Record(p, veteran, updated)
	timer.FinishKV("process", int64(upd.EntryCount), map[string]string{
		"score":   upd.ScoreText,
		"import":  wikitext.FormatNumber(upd.ImportScore),
		"changed": strconv.FormatBool(upd.Changed),
		"veteran": strconv.FormatBool(veteran),
	})
	return res
}

// leaderboard 重新渲染排行榜；仅在文本变化且非演练时保存。
func (r *runner) leaderboard(ctx context.Context, records []wikitext.ParticipantRecord) (LeaderboardReport, error) {
	title := r.set.Rules.Leaderboard
	lr := LeaderboardReport{Title: title}
	t0 := time.Now()
	timer := r.log.StartWith("leaderboard", "render", string(title))
	text, err := r.store.Read(ctx, title)
	if err != nil {
		r.fail("leaderboard", "read failed", string(title), &t0, err)
		return lr, err
	}
	res := r.board.Render(records, text, r.set.Now())
	lr.Result = res
	lr.Changed = res.Changed()
	if miss := res.Missing(); len(miss) > 0 {
		kv := make(map[string]string, len(miss))
		for i, m := range miss {
			kv["missing_"+strconv.Itoa(i)] = m
		}
		r.log.Warn("leaderboard", "", "anchors not found", string(title), kv)
	}
	if lr.Changed && !r.set.DryRun {
		sr, err := r.store.Save(ctx, title, res.Text, r.set.Rules.LeaderboardSummary())
		if err != nil {
			r.fail("leaderboard", "save failed", string(title), &t0, err)
			return lr, err
		}
		lr.Saved = sr.Changed
	}
	timer.FinishKV("render", int64(len(records)), map[string]string{
		"changed": strconv.FormatBool(lr.Changed),
		"saved":   strconv.FormatBool(lr.Saved),
	})
	diag.IncOp("leaderboard", "finish", "success")
	return lr, nil
}

// fail 统一记录错误事件与指标。
func (r *runner) fail(comp, msg, page string, since *time.Time, err error) {
	code := diag.Classify(err)
	kv := map[string]string{"err": err.Error()}
	var ue contract.UpstreamError
	if errors.As(err, &ue) {
		kv["http_status"] = strconv.Itoa(ue.UpstreamStatus())
	}
	r.log.ErrorWithKV(comp, string(code), msg, since, page, kv)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func sanity(c Components, s *Settings) error {
	if c.Store == nil || c.Activity == nil {
		return errors.New("pipeline: missing components")
	}
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Rules.TitlePrefix == "" {
		s.Rules = contest.DefaultRules()
	}
	if s.Gate != nil && (s.ReadKey == "" || s.EditKey == "") {
		return fmt.Errorf("pipeline: gate keys empty: %w", contract.ErrInvalidInput)
	}
	return s.Rules.Validate()
}
