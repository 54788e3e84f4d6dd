package errorutil

import (
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind string

const (
	KindMissingLookup Kind = "MISSING_LOOKUP" // 引用的区域/用户在参照表中不存在
	KindEmptyLedger   Kind = "EMPTY_LEDGER"   // 账本为空，比率无定义
	KindInvalidInput  Kind = "INVALID_INPUT"  // 输入表格式错误
	KindSink          Kind = "SINK"           // 输出写入失败
	KindInternal      Kind = "INTERNAL"
)

// Error 错误结构（包含可重试标记）
type Error struct {
	Kind       Kind   `json:"kind"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	DevDetails string `json:"dev_details,omitempty"`
	cause      error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap 支持 errors.Is / errors.As
func (e *Error) Unwrap() error {
	return e.cause
}

// Is 同类错误视为相等
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind != "" && t.Kind == e.Kind && t.Message == ""
}

// 哨兵错误，用于 errors.Is 判断分类
var (
	ErrMissingLookup = &Error{Kind: KindMissingLookup}
	ErrEmptyLedger   = &Error{Kind: KindEmptyLedger}
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrSink          = &Error{Kind: KindSink}
)

// Retriable 创建可重试错误（网络错误、临时故障等）
func Retriable(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Code:      500,
		Message:   message,
		Retryable: true,
		cause:     cause,
	}
}

// NonRetriable 创建不可重试错误（参数错误、业务规则错误等）
func NonRetriable(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Code:      400,
		Message:   message,
		Retryable: false,
	}
}

// MissingLookup 参照表缺失
// table: 参照表名（region / user），key: 未找到的键
func MissingLookup(table, key string) *Error {
	return &Error{
		Kind:       KindMissingLookup,
		Code:       422,
		Message:    fmt.Sprintf("%s %q has no entry in lookup table", table, key),
		Retryable:  false,
		DevDetails: table,
	}
}

// EmptyLedger 账本为空
func EmptyLedger(view string) *Error {
	return &Error{
		Kind:    KindEmptyLedger,
		Code:    422,
		Message: fmt.Sprintf("view %s requires a non-empty ledger", view),
	}
}

// InvalidInput 输入格式错误
func InvalidInput(message string, cause error) *Error {
	return &Error{
		Kind:    KindInvalidInput,
		Code:    400,
		Message: message,
		cause:   cause,
	}
}

// SinkFailure 输出写入失败
// retryable 为 true 时发布端会按退避策略重试
func SinkFailure(sink string, cause error, retryable bool) *Error {
	return &Error{
		Kind:       KindSink,
		Code:       503,
		Message:    fmt.Sprintf("sink %s write failed", sink),
		Retryable:  retryable,
		DevDetails: sink,
		cause:      cause,
	}
}

// Wrap 包装错误（自动判断是否可重试）
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	// 默认为不可重试错误
	return &Error{
		Kind:       KindInternal,
		Code:       500,
		Message:    err.Error(),
		Retryable:  false,
		DevDetails: fmt.Sprintf("%+v", err),
	}
}

// IsRetryable 判断错误是否值得重试
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
