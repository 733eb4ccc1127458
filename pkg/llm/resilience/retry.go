// Package resilience 为供应商调用提供退避重试与熔断。
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/kart-io/logger"
)

// Policy 描述一次调用的重试策略。
type Policy struct {
	// Attempts 总尝试次数，包含首次调用；小于 1 时按 1 处理。
	Attempts int
	// BaseDelay 第一次重试前的等待时间。
	BaseDelay time.Duration
	// MaxDelay 单次等待的上限。
	MaxDelay time.Duration
	// Factor 每次重试后等待时间的倍数。
	Factor float64
	// Jitter 在 [0, Jitter) 比例内随机缩短等待时间，0 表示不抖动。
	Jitter float64
	// Retryable 判断错误是否值得重试，nil 时使用 IsRetryableError。
	Retryable func(error) bool
	// OnRetry 在每次等待前回调，可用于计数。
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy 三次尝试，500ms 起步，翻倍，上限 10s。
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
		Factor:    2,
		Jitter:    0.2,
	}
}

// WithAttempts 返回修改了尝试次数的副本。
func (p Policy) WithAttempts(n int) Policy {
	p.Attempts = n
	return p
}

// ExhaustedError 表示所有尝试都失败。
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do 按策略执行 fn。
// 不可重试的错误原样返回；重试耗尽时返回 *ExhaustedError。
// 上下文取消时返回 ctx.Err()。
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := max(p.Attempts, 1)
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := p.delay(attempt, err)
		logger.Debugw("retrying provider call",
			"attempt", attempt,
			"wait", wait.String(),
			"error", err.Error(),
		)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	if attempts == 1 {
		return err
	}
	return &ExhaustedError{Attempts: attempts, Err: err}
}

// delay 计算第 attempt 次失败后的等待时间，服务端给出的 Retry-After 优先。
func (p Policy) delay(attempt int, err error) time.Duration {
	if ra := RetryAfter(err); ra > 0 {
		return ra
	}
	d := float64(p.BaseDelay)
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	for i := 1; i < attempt; i++ {
		d *= factor
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d -= d * p.Jitter * rand.Float64()
	}
	return time.Duration(d)
}

// IsExhausted 判断错误是否因重试耗尽产生。
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}
