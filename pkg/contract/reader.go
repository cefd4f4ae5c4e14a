package contract

import "context"

// PageReader: 读取页面当前版本的全文。
// 约束：
// 1) 页面不存在返回 ErrPageMissing（可被 errors.Is 识别）；
// 2) 不做任何解析，原样返回；
// 3) ctx 取消/超时需尽快返回。
type PageReader interface {
	Read(ctx context.Context, title Title) (string, error)
}

// PageLister: 按前缀枚举某命名空间下的页面。prefix 不含命名空间前缀。
// 返回顺序由实现决定，但同一输入需稳定。
type PageLister interface {
	List(ctx context.Context, prefix string, ns Namespace) ([]Title, error)
}
