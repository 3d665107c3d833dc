package httpapi

import (
	"net/http"

	"residence-data/internal/domain"

	"go.uber.org/zap"
)

// Result 统一响应信封
// - code: 2000 成功 / -1 失败
// - type: 'success' | 'error'
// - message: string
// - kind: 失败时的领域错误类别（NotFound / Conflict / InvalidState / ...）
// - result: any
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

// Fail 未分类错误按 Internal 输出
func Fail(kind domain.ErrorKind, message string) Result[any] {
	k := string(kind)
	if k == "" {
		k = "Internal"
	}
	return Result[any]{Code: ResultError, Type: "error", Message: message, Kind: k, Result: nil}
}

// statusForKind 领域错误类别 -> HTTP 状态码
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError 只输出领域消息；内部原因写日志
func writeError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, Fail(kind, domain.PublicMessage(err)))
}
