// Package ollama 通过 Ollama 的 REST API 实现 llm.Provider。
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

const ProviderName = "ollama"

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "nomic-embed-text"
	defaultTimeout = 120 * time.Second
)

func init() {
	llm.Register(ProviderName, func(s llm.Settings) (llm.Provider, error) {
		return New(s), nil
	})
}

// Provider 一个 Ollama 模型的客户端。
type Provider struct {
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
	http        *httpclient.Client
}

// New 创建供应商，零值字段取本地默认值。
func New(s llm.Settings) *Provider {
	if s.BaseURL == "" {
		s.BaseURL = defaultBaseURL
	}
	if s.Model == "" {
		s.Model = defaultModel
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}
	return &Provider{
		baseURL:     strings.TrimRight(s.BaseURL, "/"),
		model:       s.Model,
		temperature: s.Temperature,
		maxTokens:   s.MaxTokens,
		http:        httpclient.NewClient(s.Timeout, 0),
	}
}

func (p *Provider) Name() string { return ProviderName }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed 调用 /api/embed。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embedResponse
	if err := p.http.PostJSON(ctx, p.baseURL+"/api/embed", nil, embedRequest{Model: p.model, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: %d inputs, %d embeddings", len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  struct {
		Temperature float32 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type chatResponse struct {
	Message message `json:"message"`
	Done    bool    `json:"done"`
}

// Chat 调用 /api/chat，非流式。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	req := chatRequest{Model: p.model, Messages: make([]message, len(messages))}
	for i, m := range messages {
		req.Messages[i] = message{Role: string(m.Role), Content: m.Content}
	}
	req.Options.Temperature = p.temperature
	req.Options.NumPredict = p.maxTokens

	var resp chatResponse
	if err := p.http.PostJSON(ctx, p.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return resp.Message.Content, nil
}

// Ping 检查服务可达，用于启动时探活。
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	if err := p.http.DoJSON(req, nil); err != nil {
		return fmt.Errorf("ollama ping: %w", err)
	}
	return nil
}
