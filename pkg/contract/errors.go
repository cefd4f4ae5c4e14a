package contract

import "errors"

// 最小错误分类（用于上层策略判定与 diag.Classify）。
var (
	// ErrPathInvalid: 页面标题映射为无效/越界路径（例如 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrPageMissing: 页面不存在。
	ErrPageMissing = errors.New("page missing")
	// ErrEditConflict: 保存时与他人编辑冲突。
	ErrEditConflict = errors.New("edit conflict")
	// ErrAuth: 凭据缺失/无效或会话未登录。
	ErrAuth = errors.New("auth failed")
	// ErrRateLimited: 上游限流（maxlag/ratelimited/429）。
	ErrRateLimited = errors.New("rate limited")
	// ErrResponseInvalid: 上游响应无法解析或缺少必需字段。
	ErrResponseInvalid = errors.New("response invalid")
	// ErrInvalidInput: 调用参数不合法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
