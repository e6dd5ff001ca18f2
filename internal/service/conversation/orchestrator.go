// Package conversation sequences one chat turn: translate the user message into the pivot
// language, ask the model with bounded history, translate the reply back, then commit both turns.
// Any failure aborts the turn and leaves the session untouched.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/metrics"
	"github.com/zhouzirui/janvani/backend/internal/model/chat"
	"github.com/zhouzirui/janvani/backend/internal/model/language"
	chatservice "github.com/zhouzirui/janvani/backend/internal/service/chat"
)

// Translator converts text between catalog languages.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Generator produces an assistant reply in the pivot language.
type Generator interface {
	GenerateReply(ctx context.Context, prompt string, history []chat.Turn) (string, error)
}

// Detector guesses which of the candidate languages a message is written in.
type Detector interface {
	DetectLanguage(ctx context.Context, text string, candidates []string) (string, error)
}

// Config 编排参数。
type Config struct {
	PivotLanguage string
	// HistoryLimit 传给模型的最大历史轮数 K。
	HistoryLimit int
}

// TurnRequest is one incoming chat message.
type TurnRequest struct {
	SessionID string
	Text      string
	Language  string
}

// TurnResult is the committed outcome of a turn.
type TurnResult struct {
	SessionID string
	Reply     string
	Language  string
	User      chat.Turn
	Assistant chat.Turn
}

// Orchestrator owns no state itself; the session store is injected.
type Orchestrator struct {
	translator Translator
	generator  Generator
	detector   Detector
	sessions   *chatservice.Service
	catalog    language.Store
	cfg        Config
	candidates []string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithDetector enables language detection for messages that arrive without a language.
func WithDetector(d Detector) Option {
	return func(o *Orchestrator) {
		o.detector = d
	}
}

// New wires the orchestrator.
func New(translator Translator, generator Generator, sessions *chatservice.Service, catalog language.Store, cfg Config, opts ...Option) *Orchestrator {
	cfg.PivotLanguage = language.Normalize(cfg.PivotLanguage)
	if cfg.PivotLanguage == "" {
		cfg.PivotLanguage = "en"
	}
	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	}
	o := &Orchestrator{
		translator: translator,
		generator:  generator,
		sessions:   sessions,
		catalog:    catalog,
		cfg:        cfg,
	}
	for _, entry := range catalog.List() {
		if entry.ProviderCode != "" {
			o.candidates = append(o.candidates, entry.Code)
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PivotLanguage returns the language the model is queried in.
func (o *Orchestrator) PivotLanguage() string {
	return o.cfg.PivotLanguage
}

// HandleTurn runs translate-in, generate and translate-out for one message. Turns for the same
// session are serialised; the user and assistant turns are appended together only on success.
// An empty Language is detected from the text and the reply is given in the detected language.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (res TurnResult, err error) {
	const op = "conversation.HandleTurn"

	start := time.Now()
	code := language.Normalize(req.Language)
	defer func() {
		metrics.ChatTurnsTotal.WithLabelValues(metricLanguage(o.catalog, code), metrics.Outcome(err)).Inc()
	}()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return TurnResult{}, errs.New(errs.KindInvalidInput, op, "message is required")
	}
	if !chat.ValidSessionID(req.SessionID) {
		return TurnResult{}, errs.New(errs.KindInvalidInput, op, "invalid session id")
	}
	if code == "" {
		code = o.detectLanguage(ctx, req.SessionID, text)
	}
	if _, ok := o.catalog.FindByCode(code); !ok {
		return TurnResult{}, errs.E(errs.KindInvalidLanguage, op, fmt.Errorf("unknown language %q", req.Language))
	}

	lease, err := o.sessions.Acquire(ctx, req.SessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("%s: acquire session: %w", op, err)
	}
	defer lease.Release()

	pivot := o.cfg.PivotLanguage

	// 1. translate in
	pivotText := text
	if code != pivot {
		if pivotText, err = o.translator.Translate(ctx, text, code, pivot); err != nil {
			return TurnResult{}, o.abort(req.SessionID, "translate_in", err)
		}
	}

	// 2. generate with bounded history
	history := lease.Recent(o.cfg.HistoryLimit)
	pivotReply, err := o.generator.GenerateReply(ctx, pivotText, history)
	if err != nil {
		return TurnResult{}, o.abort(req.SessionID, "generate", err)
	}

	// 3. translate out
	reply := pivotReply
	if code != pivot {
		if reply, err = o.translator.Translate(ctx, pivotReply, pivot, code); err != nil {
			return TurnResult{}, o.abort(req.SessionID, "translate_out", err)
		}
	}

	user := chat.Turn{Role: chat.RoleUser, Text: text, Language: code, PivotText: pivotText}
	assistant := chat.Turn{Role: chat.RoleAssistant, Text: reply, Language: code, PivotText: pivotReply}
	if err := lease.Append(user, assistant); err != nil {
		return TurnResult{}, o.abort(req.SessionID, "append", err)
	}

	committed := lease.Recent(2)
	log.WithFields(log.Fields{
		"session":  req.SessionID,
		"language": code,
		"history":  len(history),
		"turns":    lease.Len(),
		"duration": time.Since(start).String(),
	}).Info("chat.turn")

	return TurnResult{
		SessionID: req.SessionID,
		Reply:     reply,
		Language:  code,
		User:      committed[0],
		Assistant: committed[1],
	}, nil
}

// Transcript returns every stored turn of the session, oldest first.
func (o *Orchestrator) Transcript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	const op = "conversation.Transcript"
	if !chat.ValidSessionID(sessionID) {
		return nil, errs.New(errs.KindInvalidInput, op, "invalid session id")
	}
	return o.sessions.Transcript(ctx, sessionID)
}

// Reset drops the whole session.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) error {
	if !chat.ValidSessionID(sessionID) {
		return errs.New(errs.KindInvalidInput, "conversation.Reset", "invalid session id")
	}
	o.sessions.Delete(ctx, sessionID)
	return nil
}

// detectLanguage 检测失败时退回枢轴语言，与只填写了枢轴语言的请求等价。
func (o *Orchestrator) detectLanguage(ctx context.Context, sessionID, text string) string {
	pivot := o.cfg.PivotLanguage
	if o.detector == nil {
		return pivot
	}

	detected, err := o.detector.DetectLanguage(ctx, text, o.candidates)
	if err == nil {
		if entry, ok := o.catalog.FindByCode(detected); ok {
			log.WithFields(log.Fields{"session": sessionID, "language": entry.Code}).Debug("chat.language.detected")
			return entry.Code
		}
		err = fmt.Errorf("detected language %q is not in the catalog", detected)
	}
	log.WithFields(log.Fields{
		"session":  sessionID,
		"fallback": pivot,
	}).WithError(err).Warn("chat.language.detect_failed")
	return pivot
}

func (o *Orchestrator) abort(sessionID, stage string, err error) error {
	entry := log.WithFields(log.Fields{
		"session": sessionID,
		"stage":   stage,
		"kind":    string(errs.KindOf(err)),
	}).WithError(err)
	if errors.Is(err, context.Canceled) {
		entry.Info("chat.turn.canceled")
	} else {
		entry.Warn("chat.turn.failed")
	}
	return err
}

// metricLanguage keeps label cardinality bounded to catalog codes.
func metricLanguage(catalog language.Store, code string) string {
	if _, ok := catalog.FindByCode(code); ok {
		return code
	}
	return "unknown"
}
