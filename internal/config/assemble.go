package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sfebot/internal/contest"
	"sfebot/internal/pipeline"
	"sfebot/internal/rate"
	"sfebot/pkg/contract"
	"sfebot/pkg/registry"
	"sfebot/pkg/wikitext"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q invalid", cfg.Logging.Level)
	}
	d := Defaults()
	if name := effName(cfg.Components.Store, d.Components.Store); registry.Store[name] == nil {
		return fmt.Errorf("config: store %q not registered", name)
	}
	if name := effName(cfg.Components.Activity, d.Components.Activity); registry.Activity[name] == nil {
		return fmt.Errorf("config: activity %q not registered", name)
	}
	for _, l := range []struct {
		name string
		lim  RateLimit
	}{{"read", cfg.Limits.Read}, {"edit", cfg.Limits.Edit}} {
		if l.lim.RPM < 0 || l.lim.Burst < 0 {
			return fmt.Errorf("config: limits.%s must be >= 0", l.name)
		}
	}
	if _, err := ResolveRules(cfg); err != nil {
		return err
	}
	if _, err := ResolveLayout(cfg); err != nil {
		return err
	}
	return nil
}

// ResolveRules 以默认规则为底叠加 contest 覆盖。
// 覆盖中出现 import_weights 时整体替换权重表，而非逐键合并。
func ResolveRules(cfg Config) (contest.Rules, error) {
	rules := contest.DefaultRules()
	if len(cfg.Contest) > 0 {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(cfg.Contest, &probe); err != nil {
			return rules, fmt.Errorf("config: contest: %w", err)
		}
		if _, ok := probe["import_weights"]; ok {
			rules.ImportWeights = nil
		}
		if err := strictUnmarshal(cfg.Contest, &rules); err != nil {
			return rules, fmt.Errorf("config: contest: %w", err)
		}
	}
	if err := rules.Validate(); err != nil {
		return rules, fmt.Errorf("config: contest: %w", err)
	}
	return rules, nil
}

// ResolveLayout 以默认锚点为底叠加 layout 覆盖。
func ResolveLayout(cfg Config) (wikitext.Layout, error) {
	layout := wikitext.DefaultLayout()
	if err := strictUnmarshal(cfg.Layout, &layout); err != nil {
		return layout, fmt.Errorf("config: layout: %w", err)
	}
	return layout, nil
}

// Assemble 构造 Components 与 Settings（含限流 Gate 与读写分组键）。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults()
	sn := effName(cfg.Components.Store, d.Components.Store)
	an := effName(cfg.Components.Activity, d.Components.Activity)

	store, err := registry.Store[sn](cfg.Options.Store)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("store %s: %w", sn, err)
	}
	// 同名且无独立选项时复用存储实例（同一会话与令牌）。
	var act contract.Activity
	if a, ok := store.(contract.Activity); ok && an == sn && len(cfg.Options.Activity) == 0 {
		act = a
	} else {
		act, err = registry.Activity[an](cfg.Options.Activity)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("activity %s: %w", an, err)
		}
	}

	rules, _ := ResolveRules(cfg)
	layout, _ := ResolveLayout(cfg)

	readKey := rate.DeriveKey(sn, cfg.Options.Store, rate.ClassRead)
	editKey := rate.DeriveKey(sn, cfg.Options.Store, rate.ClassEdit)
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{
		readKey: {RPM: cfg.Limits.Read.RPM, Burst: cfg.Limits.Read.Burst},
		editKey: {RPM: cfg.Limits.Edit.RPM, Burst: cfg.Limits.Edit.Burst},
	}, nil)

	comp := pipeline.Components{Store: store, Activity: act}
	set := pipeline.Settings{
		Concurrency: cfg.Concurrency,
		DryRun:      cfg.DryRun,
		Rules:       rules,
		Layout:      layout,
		StoreName:   sn,
		Gate:        gate,
		ReadKey:     readKey,
		EditKey:     editKey,
	}
	return comp, set, nil
}

func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
