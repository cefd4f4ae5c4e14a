package registry

import (
	"bytes"
	"encoding/json"

	"sfebot/pkg/contract"
	astatic "sfebot/plugins/activity/static"
	sfs "sfebot/plugins/store/filesystem"
	smem "sfebot/plugins/store/memory"
	mw "sfebot/plugins/wiki/mediawiki"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewStore 工厂签名：接收原样 JSON Options。
type NewStore func(raw json.RawMessage) (contract.Store, error)

// NewActivity 工厂签名：接收原样 JSON Options。
type NewActivity func(raw json.RawMessage) (contract.Activity, error)

// Store 工厂注册表（显式、零反射）。
var Store = map[string]NewStore{
	// mediawiki: 站点 Action API
	"mediawiki": func(raw json.RawMessage) (contract.Store, error) {
		var opts mw.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mw.FromOptions(opts)
	},
	// fs: 本地目录树，一个标题一个文件
	"fs": func(raw json.RawMessage) (contract.Store, error) {
		var opts sfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sfs.New(&opts)
	},
	// memory: 进程内存储（演练/测试）
	"memory": func(raw json.RawMessage) (contract.Store, error) {
		var opts smem.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return smem.FromOptions(opts)
	},
}

// Activity 工厂注册表。
var Activity = map[string]NewActivity{
	"mediawiki": func(raw json.RawMessage) (contract.Activity, error) {
		var opts mw.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mw.FromOptions(opts)
	},
	// static: 固定数据（JSON/YAML）
	"static": func(raw json.RawMessage) (contract.Activity, error) { return astatic.New(raw) },
}
