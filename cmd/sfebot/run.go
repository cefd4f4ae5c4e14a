package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "sfebot/internal/config"
	"sfebot/internal/diag"
	"sfebot/internal/pipeline"
	"sfebot/internal/report"
	"sfebot/pkg/wikitext"
)

// globalOptions 为所有子命令共享的旗标。
type globalOptions struct {
	config   string
	logLevel string
}

// runOptions 为 run 的旗标；零值表示不覆盖配置。
type runOptions struct {
	dryRun      bool
	export      string
	concurrency int
	status      bool
	recordsOut  string
}

func (o *runOptions) overlay() cfgpkg.Config {
	var over cfgpkg.Config
	over.DryRun = o.dryRun
	if o.concurrency > 0 {
		over.Concurrency = o.concurrency
	}
	over.Report.Export = o.export
	return over
}

func addRunFlags(c *cobra.Command, o *runOptions) {
	f := c.Flags()
	f.BoolVar(&o.dryRun, "dry-run", false, "只计算与报告，不保存任何页面")
	f.StringVar(&o.export, "export", "", "将排行榜导出为 .xlsx（覆盖配置）")
	f.IntVar(&o.concurrency, "concurrency", 0, "并发度（覆盖配置）")
	f.BoolVar(&o.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	f.StringVar(&o.recordsOut, "records-out", "", "将参赛者记录写为 JSON（供 leaderboard 子命令离线重放）")
}

func newRunCmd(g *globalOptions) *cobra.Command {
	ro := &runOptions{}
	c := &cobra.Command{
		Use:   "run",
		Short: "处理全部提交页并更新排行榜",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, g, ro)
		},
	}
	addRunFlags(c, ro)
	return c
}

// configFile 决定配置来源：旗标 > $SFEBOT_CONFIG_FILE > 工作目录下的默认文件。
func configFile(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if s := os.Getenv("SFEBOT_CONFIG_FILE"); s != "" {
		return s
	}
	for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

// loadConfig 合并 默认值 < 文件 < ENV < CLI，并做静态校验。
func loadConfig(g *globalOptions, over cfgpkg.Config) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()
	if path := configFile(g.config); path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	env, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, fmt.Errorf("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, env)
	if g.logLevel != "" {
		over.Logging.Level = g.logLevel
	}
	cfg = cfgpkg.Merge(cfg, over)
	if err := cfgpkg.Validate(cfg); err != nil {
		return cfg, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}

func runPipeline(cmd *cobra.Command, g *globalOptions, ro *runOptions) error {
	start := time.Now()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	corrID := uuid.NewString()
	// 先以默认级别记录配置阶段的错误，配置合并后按最终级别重建。
	logger := diag.NewLogger(corrID, "info")
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(g, ro.overlay())
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), err.Error(), &start)
		_ = dumpConfig(stderr, cfg)
		return &exitError{code: exitConfig, err: err}
	}
	_ = logger.Sync()
	logger = diag.NewLogger(corrID, cfg.Logging.Level)

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "assemble: "+err.Error(), &start)
		return fail(exitConfig, "装配失败: %w", err)
	}
	logger.DebugStart("config", "effective", "", effectiveKV(cfg))

	term := diag.NewTerminal(stderr, ro.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := logger.Start("pipeline", "run")
	rep, runErr := pipelineRun(ctx, comp, set, logger)
	outErr := emitReports(stdout, cfg, ro, set.Layout, rep)
	if runErr != nil {
		code := diag.Classify(runErr)
		logger.Error("pipeline", string(code), runErr.Error(), &start)
		diag.IncOp("pipeline", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		term.RunFinish(false, time.Since(start))
		if errors.Is(runErr, context.Canceled) {
			return &exitError{code: exitRuntime}
		}
		return fail(exitRuntime, "运行失败: %w", runErr)
	}
	if outErr != nil {
		logger.Error("report", string(diag.Classify(outErr)), outErr.Error(), &start)
		term.RunFinish(false, time.Since(start))
		return fail(exitRuntime, "报告输出失败: %w", outErr)
	}
	t.FinishKV("run", int64(len(rep.Pages)), map[string]string{
		"failed":  strconv.Itoa(len(rep.Failed())),
		"dry_run": strconv.FormatBool(rep.DryRun),
	})
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	term.RunFinish(true, time.Since(start))
	return nil
}

// emitReports 输出统计、GitHub 步骤摘要、xlsx 与记录文件；运行在 sanity 阶段失败时什么都不写。
func emitReports(w io.Writer, cfg cfgpkg.Config, ro *runOptions, layout wikitext.Layout, rep pipeline.Report) error {
	if rep.Started.IsZero() {
		return nil
	}
	var errs []error
	if err := report.Summarize(rep).WriteText(w, rep.DryRun); err != nil {
		errs = append(errs, err)
	}
	if path := os.Getenv("GITHUB_STEP_SUMMARY"); path != "" {
		if err := report.AppendStepSummary(path, report.StepSummary(rep, time.Now())); err != nil {
			errs = append(errs, fmt.Errorf("step summary: %w", err))
		}
	}
	if cfg.Report.Export != "" && len(rep.Records) > 0 {
		if err := report.ExportXLSX(cfg.Report.Export, rep, layout); err != nil {
			errs = append(errs, fmt.Errorf("export: %w", err))
		}
	}
	if ro.recordsOut != "" {
		if err := writeJSON(ro.recordsOut, rep.Records); err != nil {
			errs = append(errs, fmt.Errorf("records: %w", err))
		}
	}
	return errors.Join(errs...)
}

// effectiveKV 输出运行时配置摘要（不含任何选项内容，避免泄露凭据）。
func effectiveKV(cfg cfgpkg.Config) map[string]string {
	return map[string]string{
		"concurrency": strconv.Itoa(cfg.Concurrency),
		"dry_run":     strconv.FormatBool(cfg.DryRun),
		"store":       cfg.Components.Store,
		"activity":    cfg.Components.Activity,
		"read_rpm":    strconv.Itoa(cfg.Limits.Read.RPM),
		"edit_rpm":    strconv.Itoa(cfg.Limits.Edit.RPM),
		"export":      cfg.Report.Export,
	}
}

// dumpConfig 打印不含 Options 的有效配置，便于诊断。
func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	c.Options = cfgpkg.Options{}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	fprintf(w, "有效配置:\n%s\n", b)
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
