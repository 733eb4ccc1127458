package llm

import (
	"context"

	"github.com/kart-io/docqa/pkg/llm/resilience"
)

// ResilientChatProvider 为 ChatProvider 增加退避重试与熔断。
type ResilientChatProvider struct {
	provider ChatProvider
	policy   resilience.Policy
	breaker  *resilience.Breaker
}

var _ ChatProvider = (*ResilientChatProvider)(nil)

// NewResilientChatProvider 包装 provider；breaker 为 nil 时使用默认熔断配置。
func NewResilientChatProvider(provider ChatProvider, policy resilience.Policy, breaker *resilience.Breaker) *ResilientChatProvider {
	if breaker == nil {
		breaker = resilience.NewBreaker(provider.Name(), resilience.DefaultBreakerConfig())
	}
	return &ResilientChatProvider{provider: provider, policy: policy, breaker: breaker}
}

// Chat 每次尝试都经过熔断器。
func (r *ResilientChatProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	var answer string
	err := resilience.DoWithBreaker(ctx, r.policy, r.breaker, func(ctx context.Context) error {
		var err error
		answer, err = r.provider.Chat(ctx, messages)
		return err
	})
	return answer, err
}

func (r *ResilientChatProvider) Name() string {
	return r.provider.Name()
}

// Breaker 暴露熔断器，供健康检查读取状态。
func (r *ResilientChatProvider) Breaker() *resilience.Breaker {
	return r.breaker
}
