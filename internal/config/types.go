package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 均使用 snake_case；未知字段在解析期失败。
type Config struct {
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// DryRun: 只计算不保存。
	DryRun  bool    `json:"dry_run" yaml:"dry_run"`
	Logging Logging `json:"logging" yaml:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components" yaml:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options" yaml:"options"`
	// 读/写两类请求的限速。
	Limits Limits `json:"limits" yaml:"limits"`

	// Contest: 活动规则的局部覆盖，叠加在默认规则之上。
	Contest json.RawMessage `json:"contest,omitempty" yaml:"contest,omitempty"`
	// Layout: 排行榜锚点的局部覆盖；空字段使用默认值。
	Layout json.RawMessage `json:"layout,omitempty" yaml:"layout,omitempty"`

	Report Report `json:"report" yaml:"report"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level" yaml:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Store    string `json:"store" yaml:"store"`
	Activity string `json:"activity" yaml:"activity"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Store    json.RawMessage `json:"store,omitempty" yaml:"store,omitempty"`
	Activity json.RawMessage `json:"activity,omitempty" yaml:"activity,omitempty"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	Read RateLimit `json:"read" yaml:"read"`
	Edit RateLimit `json:"edit" yaml:"edit"`
}

// RateLimit: 每分钟请求数与突发量；RPM=0 表示不限速。
type RateLimit struct {
	RPM   int `json:"rpm" yaml:"rpm"`
	Burst int `json:"burst" yaml:"burst"`
}

// Report: 运行结束后的产物。
type Report struct {
	// Export: .xlsx 导出路径；空则不导出。
	Export string `json:"export" yaml:"export"`
}
