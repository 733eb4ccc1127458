// Package history 维护按用户划分、长度受限的对话历史。
package history

import (
	"context"

	"github.com/kart-io/docqa/pkg/llm"
)

// DefaultLimit 默认保留的条目数（5 轮问答）。
const DefaultLimit = 10

// Entry 是一条对话记录。
type Entry struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

// Store 定义对话历史存储。
// 每次 Append 追加一问一答两条记录，超出上限时从最旧的一轮开始丢弃，问答对不会被拆开。
type Store interface {
	// Append 追加一轮问答。
	Append(ctx context.Context, userID, question, answer string) error

	// Get 返回用户的历史，未知用户返回空切片。
	Get(ctx context.Context, userID string) ([]Entry, error)

	// Clear 清除用户的历史。
	Clear(ctx context.Context, userID string) error
}

// NormalizeLimit 将上限调整为不小于 2 的偶数。
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	limit -= limit % 2
	if limit < 2 {
		limit = 2
	}
	return limit
}

func pair(question, answer string) []Entry {
	return []Entry{
		{Role: llm.RoleUser, Content: question},
		{Role: llm.RoleAssistant, Content: answer},
	}
}

// ToMessages 将历史转换为 LLM 消息。
func ToMessages(entries []Entry) []llm.Message {
	msgs := make([]llm.Message, len(entries))
	for i, e := range entries {
		msgs[i] = llm.Message{Role: e.Role, Content: e.Content}
	}
	return msgs
}
