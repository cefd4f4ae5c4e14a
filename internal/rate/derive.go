package rate

import (
	"encoding/json"
	"net/url"
	"strings"
)

// 请求类别：读（查询/读取）与写（编辑）分别限速。
const (
	ClassRead = "read"
	ClassEdit = "edit"
)

// DeriveKey 从存储组件名与其原样 Options JSON 推导限流分组键：
// 带 api_url 的组件按站点主机分组（同一站点的多个配置共享额度），否则按组件名。
func DeriveKey(store string, raw json.RawMessage, class string) LimitKey {
	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	scope := store
	if s, ok := obj["api_url"].(string); ok && s != "" {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			scope = store + ":" + strings.ToLower(u.Host)
		}
	}
	return LimitKey(scope + ":" + class)
}
