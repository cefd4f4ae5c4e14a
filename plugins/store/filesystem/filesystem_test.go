package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sfebot/pkg/contract"
)

func newFS(t *testing.T, atomic bool) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(&Options{Root: dir, Atomic: &atomic})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s, dir
}

// TestSaveAtomic 原子写入并且不残留临时文件。
func TestSaveAtomic(t *testing.T) {
	s, dir := newFS(t, true)
	title := contract.Title("Qiuwen:2026年春节编辑松/提交/甲的贡献")
	res, err := s.Save(context.Background(), title, "v1", "init")
	if err != nil || !res.Changed {
		t.Fatalf("save: %+v %v", res, err)
	}
	p := filepath.Join(dir, "Qiuwen%3A2026年春节编辑松", "提交", "甲的贡献.wiki")
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "v1" {
		t.Fatalf("unexpected file %v %q", err, string(b))
	}
	entries, _ := os.ReadDir(filepath.Dir(p))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

// 内容不变时不写盘，Changed=false。
func TestSaveNoChange(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		s, _ := newFS(t, atomic)
		ctx := context.Background()
		if _, err := s.Save(ctx, "P", "same", ""); err != nil {
			t.Fatalf("save: %v", err)
		}
		res, err := s.Save(ctx, "P", "same", "")
		if err != nil || res.Changed {
			t.Fatalf("atomic=%v 预期未变化: %+v %v", atomic, res, err)
		}
		res, err = s.Save(ctx, "P", "new", "")
		if err != nil || !res.Changed {
			t.Fatalf("atomic=%v 预期变化: %+v %v", atomic, res, err)
		}
		got, _ := s.Read(ctx, "P")
		if got != "new" {
			t.Fatalf("read got %q", got)
		}
	}
}

// TestReadMissing 不存在的页面返回 ErrPageMissing。
func TestReadMissing(t *testing.T) {
	s, _ := newFS(t, true)
	if _, err := s.Read(context.Background(), "Nope"); !errors.Is(err, contract.ErrPageMissing) {
		t.Fatalf("expect ErrPageMissing, got %v", err)
	}
}

// TestPathInvalid 越界标题被拒绝。
func TestPathInvalid(t *testing.T) {
	s, _ := newFS(t, true)
	if _, err := s.Save(context.Background(), "a/../../b", "x", ""); !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("expect path invalid, got %v", err)
	}
}

// TestList 按命名空间与前缀过滤，结果有序。
func TestList(t *testing.T) {
	s, _ := newFS(t, true)
	ctx := context.Background()
	for _, title := range []contract.Title{
		"Qiuwen:2026年春节编辑松/提交/乙的贡献",
		"Qiuwen:2026年春节编辑松/提交/甲的贡献",
		"Qiuwen:2026年春节编辑松/提交",
		"Qiuwen:其他",
		"2026年春节编辑松/提交/主命名空间",
		"User:甲",
	} {
		if _, err := s.Save(ctx, title, "x", ""); err != nil {
			t.Fatalf("save %s: %v", title, err)
		}
	}
	got, err := s.List(ctx, "2026年春节编辑松/提交/", contract.NSProject)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []contract.Title{
		"Qiuwen:2026年春节编辑松/提交/乙的贡献",
		"Qiuwen:2026年春节编辑松/提交/甲的贡献",
	}
	if len(got) != len(want) {
		t.Fatalf("list got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list[%d]=%q 预期 %q", i, got[i], want[i])
		}
	}

	main, _ := s.List(ctx, "2026", contract.NSMain)
	if len(main) != 1 || main[0] != "2026年春节编辑松/提交/主命名空间" {
		t.Fatalf("main ns got %v", main)
	}
	if _, err := s.List(ctx, "", contract.Namespace(999)); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("unmapped ns 应报 ErrInvalidInput, got %v", err)
	}
}

// TestSaveCanceled 已取消的 ctx 立即返回。
func TestSaveCanceled(t *testing.T) {
	s, _ := newFS(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Save(ctx, "P", "x", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect canceled, got %v", err)
	}
}

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New(&Options{}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect ErrInvalidInput, got %v", err)
	}
}
