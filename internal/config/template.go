package config

import (
	"encoding/json"
	"strings"
)

// DefaultTemplateConfig 返回面向正式站点的配置模板：
// - mediawiki 存储与活动数据共用一个客户端，凭据从 ENV 读取；
// - 读/写请求给出保守限速；
// - 选项包含所有键，值为空或默认。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Concurrency: 2,
		Logging:     Logging{Level: "info"},
		Components:  d.Components,
		Limits: Limits{
			Read: RateLimit{RPM: 120, Burst: 5},
			Edit: RateLimit{RPM: 30, Burst: 1},
		},
	}
	cfg.Options.Store = json.RawMessage(`{
  "api_url": "https://www.qiuwenbaike.cn/api.php",
  "user_agent": "",
  "access_token_env": "MW_ACCESS_TOKEN",
  "client_id_env": "MW_CLIENT_ID",
  "client_secret_env": "MW_CLIENT_SECRET",
  "token_url": "",
  "maxlag": 5,
  "timeout_seconds": 30,
  "max_retries": 3,
  "retry_base_ms": 500,
  "retry_max_ms": 8000
}`)
	return cfg
}

// DotEnvTemplate 返回 .env 模板内容（由 init-config 写出）。
func DotEnvTemplate() string {
	var b strings.Builder
	b.WriteString("# sfebot .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源\n")
	b.WriteString("SFEBOT_CONFIG_FILE=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{
		"CONCURRENCY", "DRY_RUN", "LOG_LEVEL", "STORE", "ACTIVITY",
		"STORE_OPTIONS_JSON", "ACTIVITY_OPTIONS_JSON",
		"LIMITS_READ_RPM", "LIMITS_READ_BURST", "LIMITS_EDIT_RPM", "LIMITS_EDIT_BURST",
		"CONTEST_JSON", "EXPORT",
	} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 站点凭据（二选一：静态访问令牌，或 OAuth2 client credentials）\n")
	b.WriteString("MW_ACCESS_TOKEN=\n")
	b.WriteString("MW_CLIENT_ID=\n")
	b.WriteString("MW_CLIENT_SECRET=\n")
	return b.String()
}
