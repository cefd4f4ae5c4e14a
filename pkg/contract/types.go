package contract

import "time"

// Title: 页面标题（含命名空间前缀），如 "Qiuwen:2026年春节编辑松/提交"。
type Title string

func (t Title) String() string { return string(t) }

// Namespace: 页面命名空间编号。
type Namespace int

// 常用命名空间。
const (
	NSMain     Namespace = 0
	NSUser     Namespace = 2
	NSProject  Namespace = 4
	NSFile     Namespace = 6
	NSTemplate Namespace = 10
	NSModule   Namespace = 828
)

// Window: 左闭右闭的时间窗口（UTC）。
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate 要求两端非零且 Start 不晚于 End。
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() || w.End.Before(w.Start) {
		return ErrInvalidInput
	}
	return nil
}

// SaveResult: 一次保存的结果。Changed=false 表示内容与现有版本相同，未产生新版本。
type SaveResult struct {
	Title   Title
	Changed bool
	RevID   int64
}
