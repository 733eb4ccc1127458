package errors

import (
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/grpc/codes"
)

// 服务代码 (AA)。
const (
	ServiceCommon = 0
	ServiceDocQA  = 20
)

// 类别代码 (BB)。01-06 为客户端错误，07-12 为服务端错误。
const (
	CategorySuccess   = 0
	CategoryRequest   = 1
	CategoryResource  = 4
	CategoryConflict  = 5
	CategoryRateLimit = 6
	CategoryInternal  = 7
	CategoryStorage   = 8
	CategoryNetwork   = 10
	CategoryTimeout   = 11
	CategoryConfig    = 12
)

type status struct {
	http int
	grpc codes.Code
}

// 类别到 HTTP/gRPC 状态的默认映射，未列出的类别按内部错误处理。
var categoryStatus = map[int]status{
	CategorySuccess:   {http.StatusOK, codes.OK},
	CategoryRequest:   {http.StatusBadRequest, codes.InvalidArgument},
	CategoryResource:  {http.StatusNotFound, codes.NotFound},
	CategoryConflict:  {http.StatusConflict, codes.Aborted},
	CategoryRateLimit: {http.StatusTooManyRequests, codes.ResourceExhausted},
	CategoryNetwork:   {http.StatusBadGateway, codes.Unavailable},
	CategoryTimeout:   {http.StatusGatewayTimeout, codes.DeadlineExceeded},
	CategoryConfig:    {http.StatusInternalServerError, codes.FailedPrecondition},
}

func statusOf(category int) status {
	if s, ok := categoryStatus[category]; ok {
		return s
	}
	return status{http.StatusInternalServerError, codes.Internal}
}

// MakeCode 按 AABBCCC 格式组装错误码。
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// ParseCode 拆分错误码。
func ParseCode(code int) (service, category, sequence int) {
	return code / 100000, GetCategory(code), code % 1000
}

func GetCategory(code int) int {
	return (code % 100000) / 1000
}

func IsClientError(code int) bool {
	c := GetCategory(code)
	return c >= CategoryRequest && c <= CategoryRateLimit
}

func IsServerError(code int) bool {
	c := GetCategory(code)
	return c >= CategoryInternal && c <= CategoryConfig
}

// StatusOf 返回错误码对应的 HTTP 状态：已注册的错误码使用其自身配置，否则按类别推断。
func StatusOf(code int) int {
	if code == 0 {
		return http.StatusOK
	}
	if e, ok := Lookup(code); ok {
		return e.HTTPStatus()
	}
	return statusOf(GetCategory(code)).http
}

var (
	registry   = make(map[int]*Errno)
	registryMu sync.RWMutex
)

// Register 登记错误码，重复登记直接 panic。
func Register(e *Errno) *Errno {
	registryMu.Lock()
	defer registryMu.Unlock()

	if prev, ok := registry[e.Code]; ok {
		panic(fmt.Sprintf("errno %d registered twice (%q, %q)", e.Code, prev.MessageEN, e.MessageEN))
	}
	registry[e.Code] = e
	return e
}

func Lookup(code int) (*Errno, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[code]
	return e, ok
}

// define 创建并登记错误码，HTTP/gRPC 状态取类别默认值。
func define(service, category, seq int, en, ru string, grpc ...codes.Code) *Errno {
	s := statusOf(category)
	if len(grpc) > 0 {
		s.grpc = grpc[0]
	}
	return Register(New(MakeCode(service, category, seq), s.http, s.grpc, en, ru))
}

// FromError 取错误链中的第一个 Errno，其余错误包装为 ErrInternal。
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

func IsCode(err error, code int) bool {
	return GetCode(err) == code
}

// GetCode 返回错误码，非 Errno 返回 -1。
func GetCode(err error) int {
	var e *Errno
	if As(err, &e) {
		return e.Code
	}
	return -1
}
