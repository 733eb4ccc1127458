package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

// IsRetryableError 判断供应商错误是否为暂时性错误。
// 408、429、5xx 与网络层错误可重试；取消、超时与熔断打开不可重试。
func IsRetryableError(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrOpen),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}

	if code, ok := StatusCode(err); ok {
		return code == http.StatusRequestTimeout ||
			code == http.StatusTooManyRequests ||
			code >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	return strings.Contains(err.Error(), "connection reset")
}

// StatusCode 从 httpclient 或 go-openai 的错误中取出 HTTP 状态码。
func StatusCode(err error) (int, bool) {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

// RetryAfter 返回服务端要求的等待时间，没有时为 0。
func RetryAfter(err error) time.Duration {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
