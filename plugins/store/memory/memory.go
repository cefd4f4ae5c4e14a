// Package memory 提供进程内的页面存储，供测试、演练与集成联调使用。
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"sfebot/pkg/contract"
)

// Options 定义可选项。
type Options struct {
	// Pages: 初始页面（标题 → 全文）。
	Pages map[string]string `json:"pages,omitempty" yaml:"pages,omitempty"`
	// SaveFailures: 依次作用于第 1、2、… 次 Save 的故障序列。
	// 取值：""（正常）、"rate_limited"、"conflict"、"auth"、"invalid"。序列用尽后恒为正常。
	SaveFailures []string `json:"save_failures,omitempty" yaml:"save_failures,omitempty"`
	// ReadFailures: 读取这些标题时返回对应故障。
	ReadFailures map[string]string `json:"read_failures,omitempty" yaml:"read_failures,omitempty"`
}

// SaveRecord 记录一次成功写入。
type SaveRecord struct {
	Title   contract.Title
	Text    string
	Summary string
}

// Store 是带状态的 contract.Store 实现。
type Store struct {
	mu       sync.RWMutex
	pages    map[contract.Title]string
	history  []SaveRecord
	failSave []string
	failRead map[contract.Title]string
	saves    atomic.Int32
	rev      int64
}

// New 从原样 JSON 选项构造 Store。
func New(raw json.RawMessage) (*Store, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("memory options: %w", err)
		}
	}
	return FromOptions(o)
}

// FromOptions 直接从结构化选项构造。
func FromOptions(o Options) (*Store, error) {
	s := &Store{
		pages:    make(map[contract.Title]string, len(o.Pages)),
		failSave: append([]string(nil), o.SaveFailures...),
		failRead: make(map[contract.Title]string, len(o.ReadFailures)),
	}
	for _, f := range o.SaveFailures {
		if err := checkFailure(f); err != nil {
			return nil, err
		}
	}
	for t, txt := range o.Pages {
		s.pages[contract.NormalizeTitle(t)] = txt
	}
	for t, f := range o.ReadFailures {
		if err := checkFailure(f); err != nil {
			return nil, err
		}
		if failures[f] != nil {
			s.failRead[contract.NormalizeTitle(t)] = f
		}
	}
	return s, nil
}

// failures: 故障名 → 对应哨兵错误。
var failures = map[string]error{
	"":             nil,
	"rate_limited": contract.ErrRateLimited,
	"conflict":     contract.ErrEditConflict,
	"auth":         contract.ErrAuth,
	"invalid":      contract.ErrResponseInvalid,
}

func checkFailure(name string) error {
	if _, ok := failures[name]; !ok {
		return fmt.Errorf("memory: %w: unknown failure %q", contract.ErrInvalidInput, name)
	}
	return nil
}

var _ contract.Store = (*Store)(nil)

// Read 实现 contract.PageReader。
func (s *Store) Read(ctx context.Context, title contract.Title) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title = contract.NormalizeTitle(string(title))
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.failRead[title]; ok {
		return "", fmt.Errorf("%s: %w", title, failures[f])
	}
	txt, ok := s.pages[title]
	if !ok {
		return "", fmt.Errorf("%s: %w", title, contract.ErrPageMissing)
	}
	return txt, nil
}

// Save 实现 contract.PageWriter。
func (s *Store) Save(ctx context.Context, title contract.Title, text, summary string) (contract.SaveResult, error) {
	title = contract.NormalizeTitle(string(title))
	res := contract.SaveResult{Title: title}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	n := int(s.saves.Add(1))
	if n <= len(s.failSave) {
		if e := failures[s.failSave[n-1]]; e != nil {
			return res, fmt.Errorf("%s: %w", title, e)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.pages[title]; ok && cur == text {
		return res, nil
	}
	s.pages[title] = text
	s.rev++
	s.history = append(s.history, SaveRecord{Title: title, Text: text, Summary: summary})
	res.Changed = true
	res.RevID = s.rev
	return res, nil
}

// List 实现 contract.PageLister。命名空间仅按常用前缀区分。
func (s *Store) List(ctx context.Context, prefix string, ns contract.Namespace) ([]contract.Title, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := prefix
	if name := nsPrefix(ns); name != "" {
		want = name + ":" + prefix
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []contract.Title
	for t := range s.pages {
		if strings.HasPrefix(string(t), want) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func nsPrefix(ns contract.Namespace) string {
	switch ns {
	case contract.NSUser:
		return "User"
	case contract.NSProject:
		return "Qiuwen"
	case contract.NSFile:
		return "File"
	case contract.NSTemplate:
		return "Template"
	case contract.NSModule:
		return "Module"
	}
	return ""
}

// History 返回成功写入的副本（按发生顺序）。
func (s *Store) History() []SaveRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SaveRecord(nil), s.history...)
}

// Page 返回当前页面文本。
func (s *Store) Page(title contract.Title) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txt, ok := s.pages[contract.NormalizeTitle(string(title))]
	return txt, ok
}
