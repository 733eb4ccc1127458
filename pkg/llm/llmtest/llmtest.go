// Package llmtest provides deterministic in-process providers for tests.
package llmtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/kart-io/docqa/pkg/llm"
)

var (
	_ llm.EmbeddingProvider = (*HashEmbedder)(nil)
	_ llm.ChatProvider      = (*StubChat)(nil)
)

// HashEmbedder maps every word of a text into one of Dim buckets, so texts
// sharing words get similar vectors and identical texts get identical ones.
type HashEmbedder struct {
	Dim int

	mu    sync.Mutex
	err   error
	calls atomic.Int64
	texts atomic.Int64
}

// NewHashEmbedder creates a HashEmbedder with the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

// Name implements llm.EmbeddingProvider.
func (h *HashEmbedder) Name() string { return "hash" }

// FailWith makes subsequent calls return err; nil restores normal behavior.
func (h *HashEmbedder) FailWith(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

// Calls returns the number of Embed/EmbedSingle calls.
func (h *HashEmbedder) Calls() int64 { return h.calls.Load() }

// Texts returns the number of texts embedded so far.
func (h *HashEmbedder) Texts() int64 { return h.texts.Load() }

// Embed implements llm.EmbeddingProvider.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	h.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	err := h.err
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	h.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, h.Dim)
	}
	return out, nil
}

// EmbedSingle implements llm.EmbeddingProvider.
func (h *HashEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := h.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

// Vector returns the bag-of-words bucket vector for text. Text without words maps to the zero vector.
func Vector(text string, dim int) []float32 {
	v := make([]float32, dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool { return unicode.IsPunct(r) })
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(dim)]++
	}
	return v
}

// ChatFunc computes a reply for the given conversation.
type ChatFunc func(ctx context.Context, messages []llm.Message) (string, error)

// StubChat records every conversation it receives and answers with Reply.
type StubChat struct {
	Reply ChatFunc

	mu    sync.Mutex
	calls [][]llm.Message
}

// NewStubChat creates a StubChat that always answers with answer.
func NewStubChat(answer string) *StubChat {
	return &StubChat{Reply: func(context.Context, []llm.Message) (string, error) { return answer, nil }}
}

// Name implements llm.ChatProvider.
func (s *StubChat) Name() string { return "stub" }

// Chat implements llm.ChatProvider.
func (s *StubChat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]llm.Message(nil), messages...))
	s.mu.Unlock()
	return s.Reply(ctx, messages)
}

// Calls returns a copy of the recorded conversations.
func (s *StubChat) Calls() [][]llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]llm.Message(nil), s.calls...)
}

// LastCall returns the most recent conversation, or nil.
func (s *StubChat) LastCall() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}
