package contract

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// NormalizeTitle 规范化页面标题：
// - 下划线视为空格；
// - 去除首尾空白，合并连续空白；
// - 去掉首尾多余的 "/"。
func NormalizeTitle(s string) Title {
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, "/")
	return Title(s)
}

// TitlePath 把标题映射为相对路径（正斜杠分隔）：
// "/" 保留为目录层级，":" 与平台不安全字符转写为 "%XX"。
// 任何段为空、"." 或 ".." 时返回 ErrPathInvalid。
func TitlePath(t Title) (string, error) {
	s := string(NormalizeTitle(string(t)))
	if s == "" {
		return "", ErrPathInvalid
	}
	segs := strings.Split(s, "/")
	for i, seg := range segs {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrPathInvalid
		}
		segs[i] = escapeSegment(seg)
	}
	return path.Join(segs...), nil
}

func escapeSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		switch r {
		case ':', '\\', '*', '?', '"', '<', '>', '|', '%':
			fmt.Fprintf(&b, "%%%02X", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PathTitle 是 TitlePath 的逆映射。
func PathTitle(p string) (Title, error) {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	s, err := url.PathUnescape(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathInvalid, err)
	}
	return NormalizeTitle(s), nil
}
