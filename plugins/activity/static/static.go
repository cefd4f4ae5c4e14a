// Package static 从固定数据回答活动查询，用于离线运行与测试。
package static

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sfebot/pkg/contract"
)

// Fixture 是活动数据：用户 → 命名空间 → 导入条数；用户 → 截止前贡献数。
type Fixture struct {
	Imports map[string]map[contract.Namespace]int `json:"imports,omitempty" yaml:"imports,omitempty"`
	Edits   map[string]int                        `json:"edits,omitempty" yaml:"edits,omitempty"`
	// Fail: 查询这些用户时返回 ErrResponseInvalid。
	Fail []string `json:"fail,omitempty" yaml:"fail,omitempty"`
}

// Options: Path 指向 JSON/YAML 文件（按扩展名判断）；也可直接内联 Fixture。
type Options struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	Fixture
}

// Activity 实现 contract.Activity。
type Activity struct {
	fx   Fixture
	fail map[string]struct{}
}

// New 从原样 JSON 选项构造。
func New(raw json.RawMessage) (*Activity, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("static options: %w", err)
		}
	}
	fx := o.Fixture
	if o.Path != "" {
		loaded, err := LoadFixture(o.Path)
		if err != nil {
			return nil, err
		}
		fx = merge(loaded, fx)
	}
	return FromFixture(fx), nil
}

// FromFixture 直接从数据构造。
func FromFixture(fx Fixture) *Activity {
	a := &Activity{fx: fx, fail: make(map[string]struct{}, len(fx.Fail))}
	for _, u := range fx.Fail {
		a.fail[u] = struct{}{}
	}
	return a
}

// LoadFixture 读取 .json/.yaml/.yml 文件。
func LoadFixture(path string) (Fixture, error) {
	var fx Fixture
	b, err := os.ReadFile(path)
	if err != nil {
		return fx, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		err = dec.Decode(&fx)
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&fx)
	}
	if err != nil {
		return fx, fmt.Errorf("fixture %s: %w", path, err)
	}
	return fx, nil
}

// merge: over 中的内联条目覆盖文件内容。
func merge(base, over Fixture) Fixture {
	if base.Imports == nil {
		base.Imports = map[string]map[contract.Namespace]int{}
	}
	for u, m := range over.Imports {
		base.Imports[u] = m
	}
	if base.Edits == nil {
		base.Edits = map[string]int{}
	}
	for u, n := range over.Edits {
		base.Edits[u] = n
	}
	base.Fail = append(base.Fail, over.Fail...)
	return base
}

var _ contract.Activity = (*Activity)(nil)

// CountImports 返回固定条数；窗口仅做合法性校验。
func (a *Activity) CountImports(ctx context.Context, user string, ns contract.Namespace, w contract.Window) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := w.Validate(); err != nil {
		return 0, err
	}
	if _, bad := a.fail[user]; bad {
		return 0, fmt.Errorf("static: %s: %w", user, contract.ErrResponseInvalid)
	}
	return a.fx.Imports[user][ns], nil
}

// CountEditsBefore 返回 min(固定贡献数, limit)。
func (a *Activity) CountEditsBefore(ctx context.Context, user string, cutoff time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, bad := a.fail[user]; bad {
		return 0, fmt.Errorf("static: %s: %w", user, contract.ErrResponseInvalid)
	}
	n := a.fx.Edits[user]
	if limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}
