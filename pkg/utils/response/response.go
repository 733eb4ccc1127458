// Package response writes the JSON envelope shared by every docqa HTTP endpoint.
package response

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/pkg/utils/errors"
)

// RequestIDKey is the gin context key holding the request identifier.
const RequestIDKey = "request_id"

// Response is the envelope: Code 0 carries Data, anything else carries Message.
type Response struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	// Timestamp in Unix milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`
}

func Success(data any) *Response {
	return &Response{Message: errors.OK.MessageEN, Data: data}
}

// Err renders e in lang; the cause, if any, follows the message. A nil e is a success.
func Err(e *errors.Errno, lang string) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{Code: e.Code, Message: e.Detail(lang)}
}

func (r *Response) IsSuccess() bool { return r.Code == 0 }

// HTTPStatus maps Code through the errno registry, falling back to its category.
func (r *Response) HTTPStatus() int {
	return errors.StatusOf(r.Code)
}

// OK writes a success envelope.
func OK(c *gin.Context, data any) {
	write(c, Success(data))
}

// Fail writes err as an error envelope. Errors outside the errno taxonomy are
// reported as internal errors.
func Fail(c *gin.Context, err error) {
	write(c, Err(errors.FromError(err), Lang(c)))
}

// Lang picks the message language: ?lang= first, then Accept-Language.
func Lang(c *gin.Context) string {
	lang := c.Query("lang")
	if lang == "" {
		lang = c.GetHeader("Accept-Language")
	}
	if strings.HasPrefix(strings.ToLower(lang), "ru") {
		return "ru"
	}
	return "en"
}

func write(c *gin.Context, r *Response) {
	r.Timestamp = time.Now().UnixMilli()
	if id := c.GetString(RequestIDKey); id != "" {
		r.RequestID = id
	}
	c.JSON(r.HTTPStatus(), r)
}
