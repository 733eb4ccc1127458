// Package errors provides the structured error codes used across docqa.
//
// Error Code Format: AABBCCC (7 digits)
//
//	AA  (00-99): Service/Module code
//	BB  (00-99): Category code
//	CCC (000-999): Sequence number
//
// Usage:
//
//	// Using predefined errors
//	return errors.ErrInvalidParam.WithMessage("question is required")
//
//	// Wrapping underlying errors
//	return errors.ErrIndexWrite.WithCause(err)
//
//	// Matching by code
//	if errors.Is(err, errors.ErrEmbeddingProvider) { ... }
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Errno 结构化错误：错误码、HTTP/gRPC 状态以及英文和俄文消息。
// 预定义的 Errno 不可修改，With* 方法总是返回副本。
type Errno struct {
	Code      int        `json:"code"`
	HTTP      int        `json:"-"`
	GRPCCode  codes.Code `json:"-"`
	MessageEN string     `json:"message"`
	// MessageRU 面向聊天用户。
	MessageRU string `json:"message_ru,omitempty"`

	cause error
}

func (e *Errno) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("errno %d: %s: %v", e.Code, e.MessageEN, e.cause)
	}
	return fmt.Sprintf("errno %d: %s", e.Code, e.MessageEN)
}

func (e *Errno) Unwrap() error {
	return e.cause
}

func (e *Errno) Cause() error {
	return e.cause
}

func (e *Errno) clone() *Errno {
	c := *e
	return &c
}

// WithCause 返回携带底层错误的副本，errors.Is 仍按错误码匹配。
func (e *Errno) WithCause(cause error) *Errno {
	c := e.clone()
	c.cause = cause
	return c
}

func (e *Errno) WithMessage(msg string) *Errno {
	c := e.clone()
	c.MessageEN = msg
	return c
}

func (e *Errno) WithMessagef(format string, args ...any) *Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

func (e *Errno) WithMessages(en, ru string) *Errno {
	c := e.clone()
	c.MessageEN = en
	c.MessageRU = ru
	return c
}

// Message 按语言返回消息，ru 缺失时回退到英文。
func (e *Errno) Message(lang string) string {
	switch lang {
	case "ru", "ru-RU", "ru_RU", "russian":
		if e.MessageRU != "" {
			return e.MessageRU
		}
	}
	return e.MessageEN
}

// Detail 返回本地化消息，并附上底层错误。
func (e *Errno) Detail(lang string) string {
	if e.cause == nil {
		return e.Message(lang)
	}
	return e.Message(lang) + ": " + e.cause.Error()
}

func (e *Errno) HTTPStatus() int {
	if e.HTTP != 0 {
		return e.HTTP
	}
	return http.StatusInternalServerError
}

func (e *Errno) GRPCStatus() codes.Code {
	if e.GRPCCode != codes.OK {
		return e.GRPCCode
	}
	return codes.Internal
}

// Is 按错误码比较。
func (e *Errno) Is(target error) bool {
	if t, ok := target.(*Errno); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code int, httpStatus int, grpcCode codes.Code, messageEN, messageRU string) *Errno {
	return &Errno{
		Code:      code,
		HTTP:      httpStatus,
		GRPCCode:  grpcCode,
		MessageEN: messageEN,
		MessageRU: messageRU,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Format 支持 %+v 输出状态码与错误链。
func (e *Errno) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "errno %d [HTTP %d, gRPC %s]: %s", e.Code, e.HTTP, e.GRPCCode.String(), e.MessageEN)
			if e.MessageRU != "" {
				_, _ = fmt.Fprintf(s, " (%s)", e.MessageRU)
			}
			if e.cause != nil {
				_, _ = fmt.Fprintf(s, "\ncaused by: %+v", e.cause)
			}
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}
