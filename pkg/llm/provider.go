// Package llm 定义 Embedding 与 Chat 供应商接口，以及按名称创建供应商的注册表。
package llm

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// EmbeddingProvider 文本向量化供应商。
// Embed 返回的向量与输入一一对应，顺序一致。
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// ChatProvider 对话补全供应商。解码参数在创建时固定。
type ChatProvider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// Provider 同时提供 Embedding 与 Chat。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// Role 消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Settings 创建供应商的参数。零值字段由供应商取默认值。
type Settings struct {
	BaseURL      string
	APIKey       string
	Organization string
	// Model 同一供应商实例只服务一个模型：Embedding 或 Chat。
	Model   string
	Timeout time.Duration
	// Temperature 与 MaxTokens 只对 Chat 生效。
	Temperature float32
	MaxTokens   int
}

// Factory 根据 Settings 构造供应商。
type Factory func(Settings) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register 以 name 注册供应商工厂，通常在供应商包的 init 中调用。
// 重复注册或 factory 为 nil 时 panic。
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factory == nil {
		panic("llm: Register factory is nil for " + name)
	}
	if _, dup := factories[name]; dup {
		panic("llm: Register called twice for " + name)
	}
	factories[name] = factory
}

// Open 创建名为 name 的供应商。
func Open(name string, s Settings) (Provider, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q (registered: %v)", name, Providers())
	}
	return factory(s)
}

// NewEmbeddingProvider 创建 Embedding 供应商。
func NewEmbeddingProvider(name string, s Settings) (EmbeddingProvider, error) {
	return Open(name, s)
}

// NewChatProvider 创建 Chat 供应商。
func NewChatProvider(name string, s Settings) (ChatProvider, error) {
	return Open(name, s)
}

// Providers 返回已注册的供应商名称，按字典序排列。
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return slices.Sorted(maps.Keys(factories))
}
