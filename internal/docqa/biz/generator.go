package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/history"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// DefaultHistoryWindow 传给模型的历史条目数（2 轮问答）。
const DefaultHistoryWindow = 4

// GeneratorConfig 生成器配置。
type GeneratorConfig struct {
	// Locale 提示词模板。
	Locale *Locale
	// HistoryWindow 最多携带的历史条目数，奇数向下取偶，保证问答成对。
	HistoryWindow int
}

// Generator 负责答案生成。温度和最大 token 数由 chat 供应商配置决定。
type Generator struct {
	chatProvider llm.ChatProvider
	config       *GeneratorConfig
}

// NewGenerator 创建生成器实例。
func NewGenerator(chatProvider llm.ChatProvider, config *GeneratorConfig) *Generator {
	cfg := GeneratorConfig{Locale: &Russian, HistoryWindow: DefaultHistoryWindow}
	if config != nil {
		if config.Locale != nil {
			cfg.Locale = config.Locale
		}
		if config.HistoryWindow >= 0 {
			cfg.HistoryWindow = config.HistoryWindow - config.HistoryWindow%2
		}
	}
	return &Generator{chatProvider: chatProvider, config: &cfg}
}

// BuildMessages 组装发送给模型的消息：系统提示、最近的历史、上下文与问题。
func (g *Generator) BuildMessages(question, contextText string, hist []history.Entry) []llm.Message {
	if w := g.config.HistoryWindow; len(hist) > w {
		hist = hist[len(hist)-w:]
	}
	// 截取后不能以回答开头
	for len(hist) > 0 && hist[0].Role != llm.RoleUser {
		hist = hist[1:]
	}

	messages := make([]llm.Message, 0, len(hist)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: g.config.Locale.SystemPrompt})
	messages = append(messages, history.ToMessages(hist)...)
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf(g.config.Locale.UserTurn, contextText, question),
	})
	return messages
}

// Generate 生成答案。供应商超时返回 ErrProviderTimeout，其他失败返回 ErrGeneration。
func (g *Generator) Generate(ctx context.Context, question, contextText string, hist []history.Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.ErrGeneration.WithCause(err)
	}

	messages := g.BuildMessages(question, contextText, hist)
	answer, err := g.chatProvider.Chat(ctx, messages)
	if err != nil {
		logger.Errorw("Answer generation failed", "provider", g.chatProvider.Name(), "error", err)
		if llm.IsTimeout(err) {
			return "", errors.ErrProviderTimeout.WithCause(err)
		}
		return "", errors.ErrGeneration.WithCause(err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", errors.ErrGeneration.WithMessage("model returned an empty answer")
	}

	logger.Debugw("Answer generated", "provider", g.chatProvider.Name(), "messages", len(messages), "length", len(answer))
	return answer, nil
}
