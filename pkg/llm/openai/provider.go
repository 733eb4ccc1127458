// Package openai 基于 go-openai 实现 llm.Provider，兼容任何提供 OpenAI 协议的服务。
//
//	import _ "github.com/kart-io/docqa/pkg/llm/openai"
//
//	p, err := llm.NewChatProvider("openai", llm.Settings{APIKey: key, Model: "gpt-4o-mini"})
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kart-io/docqa/pkg/llm"
)

const ProviderName = "openai"

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second
)

// ErrMissingAPIKey 未配置 API key。
var ErrMissingAPIKey = errors.New("openai: api key is required")

func init() {
	llm.Register(ProviderName, func(s llm.Settings) (llm.Provider, error) {
		return New(s)
	})
}

// Provider 一个 OpenAI 模型的客户端。
type Provider struct {
	model       string
	temperature float32
	maxTokens   int
	client      *openai.Client
}

// New 创建供应商。HTTP 客户端不重试，重试由上层负责。
func New(s llm.Settings) (*Provider, error) {
	if s.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if s.BaseURL == "" {
		s.BaseURL = defaultBaseURL
	}
	if s.Model == "" {
		s.Model = defaultModel
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}

	cc := openai.DefaultConfig(s.APIKey)
	cc.BaseURL = s.BaseURL
	cc.OrgID = s.Organization
	cc.HTTPClient = &http.Client{Timeout: s.Timeout}

	return &Provider{
		model:       s.Model,
		temperature: s.Temperature,
		maxTokens:   s.MaxTokens,
		client:      openai.NewClientWithConfig(cc),
	}, nil
}

func (p *Provider) Name() string { return ProviderName }

// Embed 按响应中的 index 回填，保证与输入顺序一致。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai: embedding index %d out of range [0,%d)", d.Index, len(out))
		}
		out[d.Index] = d.Embedding
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("openai: no embedding returned for input %d", i)
		}
	}
	return out, nil
}

func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Chat 返回第一个候选回复。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: completion has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
