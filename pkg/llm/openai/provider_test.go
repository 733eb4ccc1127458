package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/json"
)

const testAPIKey = "test-key"

func serve(t *testing.T, model string, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(llm.Settings{
		BaseURL:     srv.URL + "/v1",
		APIKey:      testAPIKey,
		Model:       model,
		Timeout:     5 * time.Second,
		Temperature: 0.1,
		MaxTokens:   500,
	})
	require.NoError(t, err)
	return p
}

func TestNew(t *testing.T) {
	p, err := New(llm.Settings{APIKey: testAPIKey})
	require.NoError(t, err)
	assert.Equal(t, defaultModel, p.model)
	assert.Equal(t, ProviderName, p.Name())

	_, err = New(llm.Settings{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, llm.Providers(), ProviderName)

	p, err := llm.NewChatProvider(ProviderName, llm.Settings{APIKey: testAPIKey, Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.(*Provider).model)
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	p := serve(t, "text-embedding-3-small", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer "+testAPIKey, r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		assert.Equal(t, "text-embedding-3-small", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		],"model":"text-embedding-3-small"}`))
	})

	vectors, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)

	none, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEmbed_MissingIndex(t *testing.T) {
	p := serve(t, "text-embedding-3-small", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1]}]}`))
	})

	_, err := p.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "input 1")
}

func TestChat_SendsDecodingParameters(t *testing.T) {
	p := serve(t, "gpt-4o-mini", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model       string  `json:"model"`
			Temperature float32 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.InDelta(t, 0.1, req.Temperature, 1e-6)
		assert.Equal(t, 500, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[
			{"index":0,"message":{"role":"assistant","content":"Paris"},"finish_reason":"stop"}
		]}`))
	})

	answer, err := p.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "rules"},
		{Role: llm.RoleUser, Content: "capital of France?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris", answer)
}

func TestChat_NoChoices(t *testing.T) {
	p := serve(t, "gpt-4o-mini", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	})

	_, err := p.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	assert.ErrorContains(t, err, "no choices")
}

func TestChat_APIError(t *testing.T) {
	p := serve(t, "gpt-4o-mini", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	})

	_, err := p.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.Error(t, err)

	var apiErr *goopenai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatusCode)
}
