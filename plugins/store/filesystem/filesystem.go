// Package filesystem 把页面存放在本地目录树中：一个标题对应一个文件。
// 用于离线调试与演练（dry run 之外的本地回放）。
package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sfebot/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// Root: 页面根目录（必需）。
	Root string `json:"root" yaml:"root"`
	// Atomic: 是否使用原子替换（同目录临时文件 + rename）。
	// 默认值：true。未提供该字段时采用原子写；显式 false 可关闭。
	Atomic *bool `json:"atomic,omitempty" yaml:"atomic,omitempty"`
	// Ext: 页面文件扩展名，默认 ".wiki"。
	Ext string `json:"ext,omitempty" yaml:"ext,omitempty"`
	// Namespaces: 命名空间编号到标题前缀的映射，List 据此过滤。
	// 为空使用 DefaultNamespaces。
	Namespaces map[contract.Namespace]string `json:"namespaces,omitempty" yaml:"namespaces,omitempty"`
	// PermFile/PermDir: 可选权限；为 0 表示使用默认。
	PermFile os.FileMode `json:"perm_file,omitempty" yaml:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty" yaml:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 使用默认。
	BufSize int `json:"buf_size,omitempty" yaml:"buf_size,omitempty"`
}

// DefaultNamespaces 与站点的命名空间前缀一致。
func DefaultNamespaces() map[contract.Namespace]string {
	return map[contract.Namespace]string{
		contract.NSMain:     "",
		contract.NSUser:     "User",
		contract.NSProject:  "Qiuwen",
		contract.NSFile:     "File",
		contract.NSTemplate: "Template",
		contract.NSModule:   "Module",
	}
}

// FS 是基于目录树的 contract.Store。
type FS struct {
	root    string
	atomic  bool
	ext     string
	ns      map[contract.Namespace]string
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Store。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.Root) == "" {
		return nil, fmt.Errorf("fs store: %w: root required", contract.ErrInvalidInput)
	}
	bsz := opts.BufSize
	if bsz <= 0 {
		bsz = 64 * 1024
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	atomic := true
	if opts.Atomic != nil {
		atomic = *opts.Atomic
	}
	ext := opts.Ext
	if ext == "" {
		ext = ".wiki"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	ns := opts.Namespaces
	if len(ns) == 0 {
		ns = DefaultNamespaces()
	}
	return &FS{root: opts.Root, atomic: atomic, ext: ext, ns: ns, permF: pf, permD: pd, bufSize: bsz}, nil
}

var _ contract.Store = (*FS)(nil)

// Read 读取标题对应文件的全文；文件不存在返回 ErrPageMissing。
func (s *FS) Read(ctx context.Context, title contract.Title) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.mapPath(title)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", title, contract.ErrPageMissing)
		}
		return "", err
	}
	return string(b), nil
}

// Save 以整页替换的方式写入。内容与现有文件相同时不写盘，返回 Changed=false。
func (s *FS) Save(ctx context.Context, title contract.Title, text, summary string) (contract.SaveResult, error) {
	res := contract.SaveResult{Title: title}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	dest, err := s.mapPath(title)
	if err != nil {
		return res, err
	}
	if cur, err := os.ReadFile(dest); err == nil && string(cur) == text {
		return res, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), s.permD); err != nil {
		return res, err
	}
	r := strings.NewReader(text)
	if s.atomic {
		err = s.writeAtomic(ctx, dest, r)
	} else {
		err = s.writeOverwrite(ctx, dest, r)
	}
	if err != nil {
		return res, err
	}
	res.Changed = true
	return res, nil
}

// List 遍历根目录，返回命名空间 ns 下以 prefix 开头的标题（按字典序）。
func (s *FS) List(ctx context.Context, prefix string, ns contract.Namespace) ([]contract.Title, error) {
	nsName, ok := s.ns[ns]
	if !ok {
		return nil, fmt.Errorf("fs store: %w: namespace %d not mapped", contract.ErrInvalidInput, ns)
	}
	want := prefix
	if nsName != "" {
		want = nsName + ":" + prefix
	}
	var out []contract.Title
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), s.ext) || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		t, err := contract.PathTitle(strings.TrimSuffix(filepath.ToSlash(rel), s.ext))
		if err != nil {
			return nil
		}
		if s.namespaceOf(t) != ns || !strings.HasPrefix(string(t), want) {
			return nil
		}
		out = append(out, t)
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// namespaceOf 按已知前缀判断标题的命名空间；未知前缀视为主命名空间。
func (s *FS) namespaceOf(t contract.Title) contract.Namespace {
	name, _, found := strings.Cut(string(t), ":")
	if !found {
		return contract.NSMain
	}
	for id, n := range s.ns {
		if n != "" && strings.EqualFold(n, name) {
			return id
		}
	}
	return contract.NSMain
}

// mapPath: 标题 → 根目录下的文件路径，附带越界校验。
func (s *FS) mapPath(title contract.Title) (string, error) {
	rel, err := contract.TitlePath(title)
	if err != nil {
		return "", err
	}
	rel = filepath.FromSlash(rel) + s.ext
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(s.root, rel), nil
}

func (s *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, s.permF)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, s.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (s *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, s.permF)

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	bw := bufio.NewWriterSize(tmp, s.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 最佳努力：同步父目录
	_ = syncDir(dir)
	return nil
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
