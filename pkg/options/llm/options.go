// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var (
	_ options.IOptions = (*EmbeddingOptions)(nil)
	_ options.IOptions = (*ChatOptions)(nil)
)

// ProviderOptions 定义 LLM 供应商通用配置。
type ProviderOptions struct {
	// Provider 供应商名称（openai, ollama）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，为空时使用供应商默认值。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥，为空时读取 OPENAI_API_KEY。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Timeout 单次请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// EmbeddingOptions Embedding 供应商及批处理配置。
type EmbeddingOptions struct {
	ProviderOptions `mapstructure:",squash"`

	// BatchSize 每次请求的文本数量。
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`

	// BatchInterval 批次之间的最小间隔，0 表示不限速。
	BatchInterval time.Duration `json:"batch-interval" mapstructure:"batch-interval"`

	// Concurrency 并发批次数，1 表示顺序执行。
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
}

// ChatOptions Chat 供应商及解码参数配置。
type ChatOptions struct {
	ProviderOptions `mapstructure:",squash"`

	// Temperature 越低回答越确定、措辞越保守。
	Temperature float32 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens 回答长度的硬上限。
	MaxTokens int `json:"max-tokens" mapstructure:"max-tokens"`
}

// NewEmbeddingOptions 创建默认 Embedding 配置。
func NewEmbeddingOptions() *EmbeddingOptions {
	return &EmbeddingOptions{
		ProviderOptions: ProviderOptions{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Timeout:    60 * time.Second,
			MaxRetries: 3,
		},
		BatchSize:     20,
		BatchInterval: 500 * time.Millisecond,
		Concurrency:   1,
	}
}

// NewChatOptions 创建默认 Chat 配置。
func NewChatOptions() *ChatOptions {
	return &ChatOptions{
		ProviderOptions: ProviderOptions{
			Provider:   "openai",
			Model:      "gpt-4o-mini",
			Timeout:    120 * time.Second,
			MaxRetries: 2,
		},
		Temperature: 0.1,
		MaxTokens:   500,
	}
}

func (o *ProviderOptions) addFlags(fs *pflag.FlagSet, prefix string) {
	fs.StringVar(&o.Provider, prefix+"provider", o.Provider, "Provider name (openai, ollama).")
	fs.StringVar(&o.BaseURL, prefix+"base-url", o.BaseURL, "API base URL, empty for the provider default.")
	fs.StringVar(&o.APIKey, prefix+"api-key", o.APIKey, "API key, defaults to $OPENAI_API_KEY.")
	fs.StringVar(&o.Model, prefix+"model", o.Model, "Model name.")
	fs.DurationVar(&o.Timeout, prefix+"timeout", o.Timeout, "Timeout of a single provider call.")
	fs.IntVar(&o.MaxRetries, prefix+"max-retries", o.MaxRetries, "Maximum number of retries.")
	fs.StringVar(&o.Organization, prefix+"organization", o.Organization, "Organization ID (optional).")
}

func (o *ProviderOptions) validate(group string) []error {
	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("%s.provider is required", group))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("%s.model is required", group))
	}
	// OpenAI 供应商需要 API key
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s.api-key is required for openai provider", group))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must be positive", group))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%s.max-retries must not be negative", group))
	}
	return errs
}

func (o *ProviderOptions) complete() {
	if o.APIKey == "" {
		o.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// AddFlags adds flags for embedding options to the specified FlagSet.
func (o *EmbeddingOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	prefix := options.Join(prefixes...) + "embedding."
	o.addFlags(fs, prefix)
	fs.IntVar(&o.BatchSize, prefix+"batch-size", o.BatchSize, "Number of texts per embedding request.")
	fs.DurationVar(&o.BatchInterval, prefix+"batch-interval", o.BatchInterval, "Minimum pause between batches, 0 disables pacing.")
	fs.IntVar(&o.Concurrency, prefix+"concurrency", o.Concurrency, "Number of batches in flight.")
}

// Validate validates the embedding options.
func (o *EmbeddingOptions) Validate() []error {
	if o == nil {
		return nil
	}
	errs := o.validate("embedding")
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding.batch-size must be positive"))
	}
	if o.BatchInterval < 0 {
		errs = append(errs, fmt.Errorf("embedding.batch-interval must not be negative"))
	}
	if o.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("embedding.concurrency must be positive"))
	}
	return errs
}

// Complete completes the embedding options with defaults.
func (o *EmbeddingOptions) Complete() error {
	o.complete()
	return nil
}

// AddFlags adds flags for chat options to the specified FlagSet.
func (o *ChatOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	prefix := options.Join(prefixes...) + "chat."
	o.addFlags(fs, prefix)
	fs.Float32Var(&o.Temperature, prefix+"temperature", o.Temperature, "Sampling temperature; lower is more deterministic.")
	fs.IntVar(&o.MaxTokens, prefix+"max-tokens", o.MaxTokens, "Hard cap on the answer length in tokens.")
}

// Validate validates the chat options.
func (o *ChatOptions) Validate() []error {
	if o == nil {
		return nil
	}
	errs := o.validate("chat")
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat.temperature must be in [0, 2]"))
	}
	if o.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("chat.max-tokens must be positive"))
	}
	return errs
}

// Complete completes the chat options with defaults.
func (o *ChatOptions) Complete() error {
	o.complete()
	return nil
}
