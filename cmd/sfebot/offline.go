package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "sfebot/internal/config"
	"sfebot/internal/contest"
	"sfebot/pkg/wikitext"
)

// parse 与 leaderboard 为离线子命令：只读本地文件，不访问站点。

func newParseCmd(g *globalOptions) *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "parse FILE",
		Short: "解析本地提交页文本，输出条目数、得分与条目明细（FILE 为 - 时读 STDIN）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, cfgpkg.Config{})
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}
			rules, _ := cfgpkg.ResolveRules(cfg)
			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return fail(exitRuntime, "读取失败: %w", err)
			}
			res := wikitext.NewEngine(rules.Template).Parse(text)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return writeParse(cmd.OutOrStdout(), res)
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出完整解析结果")
	return c
}

func writeParse(w io.Writer, res wikitext.AggregateResult) error {
	fprintf(w, "条目数: %d\n得分: %s\n", res.EntryCount, wikitext.FormatScore(res.TotalScore))
	if len(res.Items) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fprintf(tw, "行\t序\t状态\t得分\t条目\n")
	for _, it := range res.Items {
		name := it.EntryName
		if contest.IsImportLine(it.Line) {
			name = "（导入日志）"
		}
		fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", it.LineNumber, it.TemplateIndex, it.Status, it.Score, name)
	}
	return tw.Flush()
}

func newLeaderboardCmd(g *globalOptions) *cobra.Command {
	var (
		recordsPath string
		outPath     string
		nowFlag     string
	)
	c := &cobra.Command{
		Use:   "leaderboard --records FILE PAGE",
		Short: "用记录文件离线重绘排行榜页面文本（PAGE 为 - 时读 STDIN）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, cfgpkg.Config{})
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}
			layout, _ := cfgpkg.ResolveLayout(cfg)
			now := time.Now()
			if nowFlag != "" {
				if now, err = time.Parse(time.RFC3339, nowFlag); err != nil {
					return fail(exitConfig, "--now: %w", err)
				}
			}
			records, err := loadRecords(recordsPath)
			if err != nil {
				return fail(exitConfig, "记录文件解析失败: %w", err)
			}
			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return fail(exitRuntime, "读取失败: %w", err)
			}
			res := wikitext.NewLeaderboard(layout).Render(records, text, now)
			for _, m := range res.Missing() {
				fprintf(cmd.ErrOrStderr(), "提示：未找到锚点 %s，该部分未更新\n", m)
			}
			if outPath == "" || outPath == "-" {
				_, err = io.WriteString(cmd.OutOrStdout(), res.Text)
				return err
			}
			if err := os.WriteFile(outPath, []byte(res.Text), 0o644); err != nil {
				return fail(exitRuntime, "写出失败: %w", err)
			}
			return nil
		},
	}
	f := c.Flags()
	f.StringVar(&recordsPath, "records", "", "参赛者记录（JSON/YAML 数组，字段同 run --records-out）")
	f.StringVar(&outPath, "out", "", "输出文件；缺省写 STDOUT")
	f.StringVar(&nowFlag, "now", "", "更新时间戳（RFC3339）；缺省为当前时间")
	_ = c.MarkFlagRequired("records")
	return c
}

func loadRecords(path string) ([]wikitext.ParticipantRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []wikitext.ParticipantRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		err = dec.Decode(&out)
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&out)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}
