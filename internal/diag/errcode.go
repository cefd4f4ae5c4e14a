package diag

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"sfebot/pkg/contract"
)

// Code 是日志与指标使用的错误分类，与退出码无关。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeNetwork   Code = "network"
	CodeProtocol  Code = "protocol"
	CodeInvariant Code = "invariant"
	CodeBudget    Code = "budget"
	CodeAuth      Code = "auth"
	CodeConflict  Code = "conflict"
	CodeMissing   Code = "missing"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// sentinels 按顺序匹配，先命中者生效。
var sentinels = []struct {
	err  error
	code Code
}{
	{context.Canceled, CodeCancel},
	{context.DeadlineExceeded, CodeCancel},
	{contract.ErrAuth, CodeAuth},
	{contract.ErrRateLimited, CodeBudget},
	{contract.ErrEditConflict, CodeConflict},
	{contract.ErrPageMissing, CodeMissing},
	{contract.ErrResponseInvalid, CodeProtocol},
	{contract.ErrInvariantViolation, CodeInvariant},
	{contract.ErrInvalidInput, CodeInvariant},
	{contract.ErrPathInvalid, CodeInvariant},
}

// Classify 把错误归入 Code。只看哨兵错误与错误类型，不匹配字符串。
// 没有哨兵的上游错误按 HTTP 状态码归类。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	var ue contract.UpstreamError
	if errors.As(err, &ue) {
		switch st := ue.UpstreamStatus(); {
		case st == http.StatusTooManyRequests:
			return CodeBudget
		case st == http.StatusUnauthorized || st == http.StatusForbidden:
			return CodeAuth
		case st >= 500:
			return CodeNetwork
		case st >= 400:
			return CodeProtocol
		}
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	return CodeUnknown
}
