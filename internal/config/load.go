package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 是本程序环境变量的统一前缀。
const EnvPrefix = "SFEBOT_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Concurrency: 1,
		Logging:     Logging{Level: "info"},
		Components: Components{
			Store:    "mediawiki",
			Activity: "mediawiki",
		},
	}
}

// LoadFile 按扩展名解析配置文件：.yaml/.yml 走 YAML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(b)
	default:
		return LoadJSON("", b)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadYAML 将 YAML 转为等价 JSON 后按 LoadJSON 的严格规则解码，
// 两种格式因此共享同一套字段名与未知字段检查。
func LoadYAML(raw []byte) (Config, error) {
	b, err := yamlToJSON(raw)
	if err != nil {
		return Config{}, err
	}
	return LoadJSON("", b)
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(jsonable(v))
}

// jsonable 把 yaml.v3 产出的 map[any]any（例如整数键的命名空间权重）转成字符串键。
func jsonable(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = jsonable(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = jsonable(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonable(e)
		}
		return out
	default:
		return v
	}
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。DryRun 只能被打开。
func Merge(base, over Config) Config {
	out := base
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	out.DryRun = out.DryRun || over.DryRun
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// 组件名（空不覆盖）
	if over.Components.Store != "" {
		out.Components.Store = over.Components.Store
	}
	if over.Components.Activity != "" {
		out.Components.Activity = over.Components.Activity
	}

	// Options（完整替换对应键）
	if len(over.Options.Store) > 0 {
		out.Options.Store = cloneRaw(over.Options.Store)
	}
	if len(over.Options.Activity) > 0 {
		out.Options.Activity = cloneRaw(over.Options.Activity)
	}

	out.Limits.Read = mergeLimit(out.Limits.Read, over.Limits.Read)
	out.Limits.Edit = mergeLimit(out.Limits.Edit, over.Limits.Edit)

	if len(over.Contest) > 0 {
		out.Contest = cloneRaw(over.Contest)
	}
	if len(over.Layout) > 0 {
		out.Layout = cloneRaw(over.Layout)
	}
	if over.Report.Export != "" {
		out.Report.Export = over.Report.Export
	}
	return out
}

func mergeLimit(base, over RateLimit) RateLimit {
	if over.RPM != 0 {
		base.RPM = over.RPM
	}
	if over.Burst != 0 {
		base.Burst = over.Burst
	}
	return base
}

// envVars 是 ENV 覆盖的键集合（统一前缀 SFEBOT_）。零值视为未设置。
type envVars struct {
	Concurrency     int    `env:"CONCURRENCY"`
	DryRun          bool   `env:"DRY_RUN"`
	LogLevel        string `env:"LOG_LEVEL"`
	Store           string `env:"STORE"`
	Activity        string `env:"ACTIVITY"`
	StoreOptions    string `env:"STORE_OPTIONS_JSON"`
	ActivityOptions string `env:"ACTIVITY_OPTIONS_JSON"`
	ReadRPM         int    `env:"LIMITS_READ_RPM"`
	ReadBurst       int    `env:"LIMITS_READ_BURST"`
	EditRPM         int    `env:"LIMITS_EDIT_RPM"`
	EditBurst       int    `env:"LIMITS_EDIT_BURST"`
	Contest         string `env:"CONTEST_JSON"`
	Export          string `env:"EXPORT"`
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析 envVars 中的键）。
// 数值或布尔格式错误、原样 JSON 非法时返回错误。
func EnvOverlay(environ []string) (Config, error) {
	var ev envVars
	opts := env.Options{Prefix: EnvPrefix, Environment: envMap(environ)}
	if err := env.ParseWithOptions(&ev, opts); err != nil {
		return Config{}, fmt.Errorf("env: %w", err)
	}
	over := Config{
		Concurrency: ev.Concurrency,
		DryRun:      ev.DryRun,
		Logging:     Logging{Level: strings.TrimSpace(ev.LogLevel)},
		Components: Components{
			Store:    strings.TrimSpace(ev.Store),
			Activity: strings.TrimSpace(ev.Activity),
		},
		Limits: Limits{
			Read: RateLimit{RPM: ev.ReadRPM, Burst: ev.ReadBurst},
			Edit: RateLimit{RPM: ev.EditRPM, Burst: ev.EditBurst},
		},
		Report: Report{Export: strings.TrimSpace(ev.Export)},
	}
	var err error
	if over.Options.Store, err = rawJSON(EnvPrefix+"STORE_OPTIONS_JSON", ev.StoreOptions); err != nil {
		return Config{}, err
	}
	if over.Options.Activity, err = rawJSON(EnvPrefix+"ACTIVITY_OPTIONS_JSON", ev.ActivityOptions); err != nil {
		return Config{}, err
	}
	if over.Contest, err = rawJSON(EnvPrefix+"CONTEST_JSON", ev.Contest); err != nil {
		return Config{}, err
	}
	return over, nil
}

// rawJSON: 空值视为未设置，避免清空现有配置。
func rawJSON(key, val string) (json.RawMessage, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil, nil
	}
	if !json.Valid([]byte(val)) {
		return nil, fmt.Errorf("env: %s is not valid JSON", key)
	}
	return json.RawMessage(val), nil
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
