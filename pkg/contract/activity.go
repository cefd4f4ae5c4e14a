package contract

import (
	"context"
	"time"
)

// Activity: 参与者活动查询。
type Activity interface {
	// CountImports 统计 user 在窗口内、指定命名空间的导入日志条数。
	CountImports(ctx context.Context, user string, ns Namespace, w Window) (int, error)
	// CountEditsBefore 统计 user 在 cutoff 之前的贡献数，最多返回 limit。
	CountEditsBefore(ctx context.Context, user string, cutoff time.Time, limit int) (int, error)
}
