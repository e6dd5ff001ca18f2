package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/apex/log"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/metrics"
	"github.com/zhouzirui/janvani/backend/internal/model/chat"
)

// Options 控制 LLM 客户端行为。
type Options struct {
	// RetryOnce 失败后用同一输入最多重试一次。
	RetryOnce bool
	// Prompt 为空时使用 DefaultPrompt。
	Prompt *PromptTemplate
	// Provider 仅用于指标标签。
	Provider string
	// Timeout 单次模型调用的上限，<=0 表示只依赖调用方的 ctx。
	Timeout time.Duration
}

// Service wraps the chat model in an eino chain: system prompt, history, user query.
type Service struct {
	chain       compose.Runnable[map[string]any, *schema.Message]
	detectChain compose.Runnable[map[string]any, *schema.Message]
	system      string
	retryOnce   bool
	provider    string
	timeout     time.Duration
}

// NewService creates a new AI service instance
func NewService(ctx context.Context, chatModel model.BaseChatModel, opts Options) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	detect := compose.NewChain[map[string]any, *schema.Message]()
	detect.AppendChatTemplate(prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(detectSystemPrompt),
		schema.UserMessage("{text}"),
	))
	detect.AppendChatModel(chatModel)

	detectRunnable, err := detect.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile detection chain: %w", err)
	}

	tmpl := DefaultPrompt()
	if opts.Prompt != nil {
		tmpl = *opts.Prompt
	}
	provider := opts.Provider
	if provider == "" {
		provider = "ark"
	}

	return &Service{
		chain:       runnable,
		detectChain: detectRunnable,
		system:      tmpl.Build(),
		retryOnce:   opts.RetryOnce,
		provider:    provider,
		timeout:     opts.Timeout,
	}, nil
}

// GenerateReply asks the model for a reply to prompt given the prior turns. History must already be
// bounded by the caller; turns are sent in their pivot-language form.
func (s *Service) GenerateReply(ctx context.Context, prompt string, history []chat.Turn) (string, error) {
	const op = "ai.GenerateReply"

	if strings.TrimSpace(prompt) == "" {
		return "", errs.New(errs.KindInvalidInput, op, "prompt is empty")
	}

	input := map[string]any{
		"system":  s.system,
		"history": buildHistoryMessages(history),
		"query":   prompt,
	}

	reply, err := s.invoke(ctx, s.chain, "generate", input)
	if err != nil && s.retryOnce && ctx.Err() == nil {
		log.WithError(err).Warn("ai.generate.retry")
		reply, err = s.invoke(ctx, s.chain, "generate", input)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"history": len(history),
		}).WithError(err).Error("ai.generate.failed")
		return "", errs.E(errs.KindGenerationFailed, op, err)
	}

	log.WithFields(log.Fields{
		"history": len(history),
		"length":  len(reply),
	}).Debug("ai.generate")
	return reply, nil
}

// DetectLanguage asks the model which of the candidate codes text is written in. The answer
// is always one of candidates.
func (s *Service) DetectLanguage(ctx context.Context, text string, candidates []string) (string, error) {
	const op = "ai.DetectLanguage"

	if strings.TrimSpace(text) == "" {
		return "", errs.New(errs.KindInvalidInput, op, "text is empty")
	}
	if len(candidates) == 0 {
		return "", errs.New(errs.KindInvalidInput, op, "no candidate languages")
	}

	reply, err := s.invoke(ctx, s.detectChain, "detect", map[string]any{
		"candidates": strings.Join(candidates, ", "),
		"text":       text,
	})
	if err != nil {
		return "", errs.E(errs.KindGenerationFailed, op, err)
	}

	code, ok := parseLanguageCode(reply, candidates)
	if !ok {
		return "", errs.E(errs.KindGenerationFailed, op, fmt.Errorf("no known language code in %q", reply))
	}
	return code, nil
}

func (s *Service) invoke(ctx context.Context, chain compose.Runnable[map[string]any, *schema.Message], operation string, input map[string]any) (reply string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveProvider(s.provider, operation, start, err) }()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	msg, err := chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", errors.New("model returned empty content")
	}
	return strings.TrimSpace(msg.Content), nil
}

func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		text := turn.PivotText
		if text == "" {
			text = turn.Text
		}
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(text))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(text, nil))
		}
	}
	return history
}

const detectSystemPrompt = `You are a language detection assistant. ` +
	`Reply with only the ISO 639-1 code of the language the user's message is written in, ` +
	`chosen from: {candidates}.`

// parseLanguageCode 取回复中第一个属于候选集合的词。
func parseLanguageCode(reply string, candidates []string) (string, bool) {
	known := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		known[strings.ToLower(c)] = struct{}{}
	}
	words := strings.FieldsFunc(strings.ToLower(reply), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if _, ok := known[w]; ok {
			return w, true
		}
	}
	return "", false
}
