package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

var errBusy = &httpclient.StatusError{StatusCode: 503, Body: "busy"}

func quick(attempts int) Policy {
	return Policy{
		Attempts:  attempts,
		BaseDelay: time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
		Factor:    2,
	}
}

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		failFirst int
		failWith  error
		wantCalls int
		check     func(t *testing.T, err error)
	}{
		{
			name:      "first call succeeds",
			attempts:  3,
			wantCalls: 1,
			check:     func(t *testing.T, err error) { require.NoError(t, err) },
		},
		{
			name:      "succeeds after transient failures",
			attempts:  3,
			failFirst: 2,
			failWith:  errBusy,
			wantCalls: 3,
			check:     func(t *testing.T, err error) { require.NoError(t, err) },
		},
		{
			name:      "exhausted",
			attempts:  3,
			failFirst: 10,
			failWith:  errBusy,
			wantCalls: 3,
			check: func(t *testing.T, err error) {
				var ex *ExhaustedError
				require.ErrorAs(t, err, &ex)
				assert.Equal(t, 3, ex.Attempts)
				assert.True(t, IsExhausted(err))
				code, ok := StatusCode(err)
				assert.True(t, ok)
				assert.Equal(t, 503, code)
			},
		},
		{
			name:      "permanent error is returned as is",
			attempts:  3,
			failFirst: 10,
			failWith:  &httpclient.StatusError{StatusCode: 401},
			wantCalls: 1,
			check: func(t *testing.T, err error) {
				assert.False(t, IsExhausted(err))
				var se *httpclient.StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, 401, se.StatusCode)
			},
		},
		{
			name:      "single attempt does not wrap",
			attempts:  0,
			failFirst: 10,
			failWith:  errBusy,
			wantCalls: 1,
			check: func(t *testing.T, err error) {
				assert.Same(t, errBusy, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), quick(tt.attempts), func(context.Context) error {
				calls++
				if calls <= tt.failFirst {
					return tt.failWith
				}
				return nil
			})
			tt.check(t, err)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestDo_CustomClassifierAndHook(t *testing.T) {
	errFlaky := errors.New("flaky")
	p := quick(4)
	p.Retryable = func(err error) bool { return errors.Is(err, errFlaky) }
	var waits []int
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { waits = append(waits, attempt) }

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, waits)
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, BaseDelay: time.Hour, Factor: 1}
	p.OnRetry = func(int, error, time.Duration) { cancel() }

	calls := 0
	err := Do(ctx, p, func(context.Context) error {
		calls++
		return errBusy
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, quick(3), func(context.Context) error {
		t.Fatal("must not be called")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Factor: 2}

	assert.Equal(t, 100*time.Millisecond, p.delay(1, errBusy))
	assert.Equal(t, 200*time.Millisecond, p.delay(2, errBusy))
	assert.Equal(t, 800*time.Millisecond, p.delay(4, errBusy))
	assert.Equal(t, time.Second, p.delay(8, errBusy))

	limited := &httpclient.StatusError{StatusCode: 429, RetryAfter: 3 * time.Second}
	assert.Equal(t, 3*time.Second, p.delay(1, fmt.Errorf("embed: %w", limited)))

	p.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := p.delay(2, errBusy)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
		assert.Greater(t, d, 100*time.Millisecond-time.Nanosecond)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 500*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 10*time.Second, p.MaxDelay)

	q := p.WithAttempts(1)
	assert.Equal(t, 1, q.Attempts)
	assert.Equal(t, 3, p.Attempts)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"breaker open", ErrOpen, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), false},
		{"http 503", errBusy, true},
		{"http 429", &httpclient.StatusError{StatusCode: 429}, true},
		{"http 408", &httpclient.StatusError{StatusCode: 408}, true},
		{"http 400", &httpclient.StatusError{StatusCode: 400}, false},
		{"openai 500", &openai.APIError{HTTPStatusCode: 500, Message: "server"}, true},
		{"openai 401", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, false},
		{"openai request 502", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "api"}, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"reset", errors.New("read tcp: connection reset by peer"), true},
		{"plain", errors.New("invalid model"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	assert.Zero(t, RetryAfter(errors.New("x")))
	assert.Equal(t, 2*time.Second, RetryAfter(&httpclient.StatusError{StatusCode: 429, RetryAfter: 2 * time.Second}))
}
