package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kart-io/logger"
)

// ErrOpen 熔断器处于打开状态，调用被拒绝。
var ErrOpen = errors.New("resilience: breaker open")

// State 熔断器状态。
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig 熔断器配置。
type BreakerConfig struct {
	// FailureThreshold 连续失败多少次后打开。
	FailureThreshold int
	// OpenTimeout 打开后多久进入半开。
	OpenTimeout time.Duration
	// HalfOpenProbes 半开状态允许同时放行的探测调用数。
	HalfOpenProbes int
	// Now 时钟，测试中可替换。
	Now func() time.Time
}

// DefaultBreakerConfig 连续 5 次失败打开，1 分钟后单路探测。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      time.Minute,
		HalfOpenProbes:   1,
	}
}

// Snapshot 熔断器的只读快照。
type Snapshot struct {
	State    State
	Failures int
	OpenedAt time.Time
}

// Breaker 连续失败计数熔断器。
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

// NewBreaker 创建熔断器，零值字段取默认值。
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = def.HalfOpenProbes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{name: name, cfg: cfg}
}

// Do 在熔断器保护下执行 fn。上下文取消不计为失败。
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return ErrOpen
		}
		b.transition(HalfOpen)
	}
	if b.state == HalfOpen {
		if b.probes >= b.cfg.HalfOpenProbes {
			return ErrOpen
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.probes--
	}
	switch {
	case err == nil:
		b.failures = 0
		if b.state != Closed {
			b.transition(Closed)
		}
	case errors.Is(err, context.Canceled):
	default:
		b.failures++
		if b.state == HalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.cfg.Now()
			b.transition(Open)
		}
	}
}

// transition 需持有锁。
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	logger.Infow("breaker state changed", "breaker", b.name, "from", b.state.String(), "to", to.String())
	b.state = to
	if to != HalfOpen {
		b.probes = 0
	}
}

// State 返回当前状态；打开超时后报告半开。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.cfg.Now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		return HalfOpen
	}
	return b.state
}

// Snapshot 返回当前计数。
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{State: b.state, Failures: b.failures, OpenedAt: b.openedAt}
}

// Reset 强制关闭熔断器。
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.transition(Closed)
}

// DoWithBreaker 每次尝试都经过熔断器；熔断打开时立即停止重试。
func DoWithBreaker(ctx context.Context, p Policy, b *Breaker, fn func(context.Context) error) error {
	return Do(ctx, p, func(ctx context.Context) error {
		return b.Do(ctx, fn)
	})
}
