package contract

import "context"

// PageWriter: 以整页替换的方式保存页面。
// 约束：
//  1. 同一 Title 单写者（由编排层保证）；
//  2. 内容未变时返回 SaveResult{Changed:false}，不视为错误；
//  3. ctx 取消/超时需尽快返回；
//  4. 重试策略由实现决定，冲突返回 ErrEditConflict。
type PageWriter interface {
	Save(ctx context.Context, title Title, text, summary string) (SaveResult, error)
}

// Store: 文档存储的完整能力。
type Store interface {
	PageReader
	PageWriter
	PageLister
}

// Verifier: 可选扩展。实现方可在运行前校验会话/凭据，返回当前身份名。
type Verifier interface {
	Verify(ctx context.Context) (string, error)
}
