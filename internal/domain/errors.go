package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 稳定的错误类别（HTTP 层据此映射状态码）
type ErrorKind string

const (
	KindNotFound          ErrorKind = "NotFound"
	KindConflict          ErrorKind = "Conflict"
	KindInvalidState      ErrorKind = "InvalidState"
	KindInvalidTransition ErrorKind = "InvalidTransition"
	KindUnavailable       ErrorKind = "Unavailable"
	KindValidation        ErrorKind = "Validation"
)

// Error 领域错误：Kind + 面向用户的消息；Err 为内部原因（不对外输出）
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error { return newError(KindNotFound, format, args...) }

func Conflictf(format string, args ...any) error { return newError(KindConflict, format, args...) }

func InvalidStatef(format string, args ...any) error {
	return newError(KindInvalidState, format, args...)
}

func InvalidTransitionf(format string, args ...any) error {
	return newError(KindInvalidTransition, format, args...)
}

func Validationf(format string, args ...any) error { return newError(KindValidation, format, args...) }

// Unavailable 存储/事务失败（超时、死锁、连接断开）
func Unavailable(cause error) error {
	return &Error{Kind: KindUnavailable, Message: "service temporarily unavailable, please retry", Err: cause}
}

// KindOf 返回错误类别；非领域错误返回空串
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind 便捷判断
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage 对外消息：领域错误返回 Message，其它错误不泄露细节
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
