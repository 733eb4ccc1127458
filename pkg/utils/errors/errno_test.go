package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestMakeAndParseCode(t *testing.T) {
	code := MakeCode(ServiceDocQA, CategoryStorage, 2)
	assert.Equal(t, 2008002, code)

	service, category, seq := ParseCode(code)
	assert.Equal(t, ServiceDocQA, service)
	assert.Equal(t, CategoryStorage, category)
	assert.Equal(t, 2, seq)

	assert.True(t, IsServerError(code))
	assert.False(t, IsClientError(code))
	assert.True(t, IsClientError(ErrInvalidRequest.Code))
}

func TestErrno_WithCauseKeepsIdentity(t *testing.T) {
	cause := stderrors.New("disk full")
	err := ErrIndexWrite.WithCause(cause)

	assert.True(t, Is(err, ErrIndexWrite))
	assert.False(t, Is(err, ErrIndexCorruption))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
	// 原始错误不应被修改
	assert.Nil(t, ErrIndexWrite.Cause())
}

func TestErrno_NestedChain(t *testing.T) {
	inner := ErrProviderTimeout.WithCause(context.DeadlineExceeded)
	outer := ErrIndexWrite.WithCause(fmt.Errorf("embed chunks: %w", inner))

	assert.True(t, Is(outer, ErrIndexWrite))
	assert.True(t, Is(outer, ErrProviderTimeout))
	assert.ErrorIs(t, outer, context.DeadlineExceeded)
	assert.Equal(t, ErrIndexWrite.Code, GetCode(outer))
	assert.True(t, IsCode(outer, ErrIndexWrite.Code))
}

func TestErrno_Message(t *testing.T) {
	assert.Equal(t, "Index is corrupted", ErrIndexCorruption.Message("en"))
	assert.Equal(t, "Индекс повреждён", ErrIndexCorruption.Message("ru"))

	custom := ErrNoDocuments.WithMessages("nothing in docs", "пусто")
	assert.Equal(t, "пусто", custom.Message("ru-RU"))
	assert.Equal(t, ErrNoDocuments.Code, custom.Code)

	detail := ErrGeneration.WithCause(stderrors.New("boom")).Detail("ru")
	assert.Equal(t, "Ошибка генерации ответа: boom", detail)
}

func TestErrno_StatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, ErrProviderTimeout.HTTPStatus())
	assert.Equal(t, codes.DeadlineExceeded, ErrProviderTimeout.GRPCStatus())
	assert.Equal(t, http.StatusInternalServerError, (&Errno{}).HTTPStatus())
	assert.Equal(t, codes.Internal, (&Errno{}).GRPCStatus())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusOf(0))
	assert.Equal(t, http.StatusConflict, StatusOf(ErrReloadInProgress.Code))
	assert.Equal(t, http.StatusBadGateway, StatusOf(ErrGeneration.Code))
	assert.Equal(t, http.StatusTooManyRequests, StatusOf(MakeCode(99, CategoryRateLimit, 1)))
	assert.Equal(t, codes.DataLoss, ErrIndexCorruption.GRPCStatus())
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	plain := FromError(stderrors.New("plain"))
	require.NotNil(t, plain)
	assert.Equal(t, ErrInternal.Code, plain.Code)

	wrapped := FromError(fmt.Errorf("ctx: %w", ErrNoDocuments))
	assert.Equal(t, ErrNoDocuments.Code, wrapped.Code)
	assert.Equal(t, -1, GetCode(stderrors.New("x")))
}

func TestRegister_DuplicatePanics(t *testing.T) {
	_, ok := Lookup(ErrIndexWrite.Code)
	require.True(t, ok)

	assert.Panics(t, func() {
		Register(New(ErrIndexWrite.Code, http.StatusInternalServerError, codes.Internal, "dup", "dup"))
	})
}

func TestErrno_Format(t *testing.T) {
	err := ErrGeneration.WithCause(stderrors.New("upstream 500"))
	verbose := fmt.Sprintf("%+v", err)
	assert.Contains(t, verbose, "HTTP 502")
	assert.Contains(t, verbose, "caused by: upstream 500")
	assert.Equal(t, err.Error(), fmt.Sprintf("%s", err))
}
