package conversation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/chat"
	"github.com/zhouzirui/janvani/backend/internal/model/language"
	chatservice "github.com/zhouzirui/janvani/backend/internal/service/chat"
	"github.com/zhouzirui/janvani/backend/internal/service/conversation"
)

type translateKey struct{ text, source, target string }

type fakeTranslator struct {
	mu      sync.Mutex
	answers map[translateKey]string
	failOn  string // "in", "out" or ""
	calls   int
}

func (f *fakeTranslator) Translate(_ context.Context, text, source, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if (f.failOn == "in" && target == "en") || (f.failOn == "out" && source == "en") {
		return "", errs.New(errs.KindTranslationUnavailable, "fake", "provider returned 503")
	}
	if out, ok := f.answers[translateKey{text, source, target}]; ok {
		return out, nil
	}
	return fmt.Sprintf("%s(%s)", target, text), nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	reply    string
	err      error
	prompts  []string
	historys [][]chat.Turn
}

func (f *fakeGenerator) GenerateReply(_ context.Context, prompt string, history []chat.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.historys = append(f.historys, history)
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return "re:" + prompt, nil
}

func newOrchestrator(tr conversation.Translator, gen conversation.Generator, limit int) (*conversation.Orchestrator, *chatservice.Service) {
	sessions := chatservice.NewService(chatservice.DefaultOptions())
	catalog := language.NewMemoryStore(language.Seed())
	return conversation.New(tr, gen, sessions, catalog, conversation.Config{PivotLanguage: "en", HistoryLimit: limit}), sessions
}

func TestHandleTurnRTIScenario(t *testing.T) {
	tr := &fakeTranslator{answers: map[translateKey]string{
		{"How do I file an RTI?", "hi", "en"}:     "How do I file an RTI?",
		{"File Form A with the PIO.", "en", "hi"}: "PIO के पास फॉर्म A दाखिल करें।",
	}}
	gen := &fakeGenerator{reply: "File Form A with the PIO."}
	orch, sessions := newOrchestrator(tr, gen, 10)
	ctx := context.Background()

	res, err := orch.HandleTurn(ctx, conversation.TurnRequest{
		SessionID: "s1",
		Text:      "How do I file an RTI?",
		Language:  "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "PIO के पास फॉर्म A दाखिल करें।", res.Reply)
	assert.Equal(t, "hi", res.Language)
	assert.Equal(t, []string{"How do I file an RTI?"}, gen.prompts)
	assert.Empty(t, gen.historys[0], "history excludes the current turn")

	turns, err := sessions.Transcript(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, chat.RoleUser, turns[0].Role)
	assert.Equal(t, "How do I file an RTI?", turns[0].Text)
	assert.Equal(t, chat.RoleAssistant, turns[1].Role)
	assert.Equal(t, "PIO के पास फॉर्म A दाखिल करें।", turns[1].Text)
	assert.Equal(t, "File Form A with the PIO.", turns[1].PivotText)
	assert.Equal(t, turns[1].ID, res.Assistant.ID)
}

func TestHandleTurnPivotLanguageSkipsTranslation(t *testing.T) {
	tr := &fakeTranslator{}
	gen := &fakeGenerator{}
	orch, _ := newOrchestrator(tr, gen, 10)

	res, err := orch.HandleTurn(context.Background(), conversation.TurnRequest{SessionID: "s1", Text: "hello", Language: "EN"})
	require.NoError(t, err)
	assert.Equal(t, "re:hello", res.Reply)
	assert.Zero(t, tr.calls)
}

func TestHandleTurnFailureLeavesSessionUnchanged(t *testing.T) {
	tests := []struct {
		name string
		tr   *fakeTranslator
		gen  *fakeGenerator
		want error
	}{
		{"translate in", &fakeTranslator{failOn: "in"}, &fakeGenerator{}, errs.TranslationUnavailable},
		{"generate", &fakeTranslator{}, &fakeGenerator{err: errs.New(errs.KindGenerationFailed, "fake", "429")}, errs.GenerationFailed},
		{"translate out", &fakeTranslator{failOn: "out"}, &fakeGenerator{}, errs.TranslationUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch, sessions := newOrchestrator(tt.tr, tt.gen, 10)
			ctx := context.Background()

			// seed one successful turn with a working translator
			ok := conversation.New(&fakeTranslator{}, &fakeGenerator{}, sessions,
				language.NewMemoryStore(language.Seed()), conversation.Config{PivotLanguage: "en"})
			_, err := ok.HandleTurn(ctx, conversation.TurnRequest{SessionID: "s1", Text: "first", Language: "hi"})
			require.NoError(t, err)

			before, err := sessions.Transcript(ctx, "s1")
			require.NoError(t, err)

			_, err = orch.HandleTurn(ctx, conversation.TurnRequest{SessionID: "s1", Text: "second", Language: "hi"})
			assert.ErrorIs(t, err, tt.want)

			after, err := sessions.Transcript(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestHandleTurnHistoryIsBounded(t *testing.T) {
	const k = 4
	gen := &fakeGenerator{}
	orch, _ := newOrchestrator(&fakeTranslator{}, gen, k)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := orch.HandleTurn(ctx, conversation.TurnRequest{SessionID: "s1", Text: fmt.Sprintf("q%d", i), Language: "ta"})
		require.NoError(t, err)
	}

	for i, history := range gen.historys {
		assert.LessOrEqual(t, len(history), k, "call %d", i)
	}
	last := gen.historys[len(gen.historys)-1]
	require.Len(t, last, k)
	assert.Equal(t, "en(q13)", last[k-2].PivotText, "history carries pivot text")
}

func TestHandleTurnValidation(t *testing.T) {
	tests := []struct {
		name string
		req  conversation.TurnRequest
		want error
	}{
		{"empty message", conversation.TurnRequest{SessionID: "s1", Text: "  ", Language: "hi"}, errs.InvalidInput},
		{"bad session id", conversation.TurnRequest{SessionID: "a b", Text: "x", Language: "hi"}, errs.InvalidInput},
		{"unknown language", conversation.TurnRequest{SessionID: "s1", Text: "x", Language: "zz"}, errs.InvalidLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTranslator{}
			orch, sessions := newOrchestrator(tr, &fakeGenerator{}, 10)

			_, err := orch.HandleTurn(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, tr.calls)
			assert.Zero(t, sessions.Len())
		})
	}
}

func TestHandleTurnSessionFull(t *testing.T) {
	sessions := chatservice.NewService(chatservice.Options{MaxTurns: 2})
	orch := conversation.New(&fakeTranslator{}, &fakeGenerator{}, sessions,
		language.NewMemoryStore(language.Seed()), conversation.Config{PivotLanguage: "en", HistoryLimit: 10})
	ctx := context.Background()

	_, err := orch.HandleTurn(ctx, conversation.TurnRequest{SessionID: "s1", Text: "one", Language: "en"})
	require.NoError(t, err)

	_, err = orch.HandleTurn(ctx, conversation.TurnRequest{SessionID: "s1", Text: "two", Language: "en"})
	assert.ErrorIs(t, err, errs.SessionFull)
}

func TestConcurrentTurnsKeepPairsTogether(t *testing.T) {
	orch, sessions := newOrchestrator(&fakeTranslator{}, &fakeGenerator{}, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := orch.HandleTurn(ctx, conversation.TurnRequest{SessionID: "s1", Text: fmt.Sprintf("m%d", i), Language: "en"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	turns, err := sessions.Transcript(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 20)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, "re:"+turns[i].Text, turns[i+1].Text)
	}
}

func TestTranscriptAndReset(t *testing.T) {
	orch, _ := newOrchestrator(&fakeTranslator{}, &fakeGenerator{}, 10)
	ctx := context.Background()

	_, err := orch.HandleTurn(ctx, conversation.TurnRequest{SessionID: "s1", Text: "hello", Language: "en"})
	require.NoError(t, err)

	turns, err := orch.Transcript(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)

	require.NoError(t, orch.Reset(ctx, "s1"))
	_, err = orch.Transcript(ctx, "s1")
	assert.ErrorIs(t, err, chatservice.ErrSessionNotFound)

	assert.ErrorIs(t, orch.Reset(ctx, ""), errs.InvalidInput)
}

type fakeDetector struct {
	code       string
	err        error
	candidates []string
}

func (f *fakeDetector) DetectLanguage(_ context.Context, _ string, candidates []string) (string, error) {
	f.candidates = candidates
	return f.code, f.err
}

func TestHandleTurnDetectsMissingLanguage(t *testing.T) {
	tr := &fakeTranslator{answers: map[translateKey]string{
		{"RTI कैसे दाखिल करें?", "hi", "en"}: "How do I file an RTI?",
		{"File Form A.", "en", "hi"}:         "फॉर्म A दाखिल करें।",
	}}
	det := &fakeDetector{code: "hi"}
	sessions := chatservice.NewService(chatservice.DefaultOptions())
	orch := conversation.New(tr, &fakeGenerator{reply: "File Form A."}, sessions,
		language.NewMemoryStore(language.Seed()), conversation.Config{PivotLanguage: "en", HistoryLimit: 10},
		conversation.WithDetector(det))

	res, err := orch.HandleTurn(context.Background(), conversation.TurnRequest{SessionID: "s1", Text: "RTI कैसे दाखिल करें?"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Language)
	assert.Equal(t, "फॉर्म A दाखिल करें।", res.Reply)
	assert.Equal(t, "hi", res.User.Language)
	assert.Contains(t, det.candidates, "ta")
}

func TestHandleTurnDetectionFallsBackToPivot(t *testing.T) {
	tests := []struct {
		name string
		det  *fakeDetector
	}{
		{"detector error", &fakeDetector{err: errs.New(errs.KindGenerationFailed, "fake", "timeout")}},
		{"code outside the catalog", &fakeDetector{code: "fr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTranslator{}
			orch := conversation.New(tr, &fakeGenerator{}, chatservice.NewService(chatservice.DefaultOptions()),
				language.NewMemoryStore(language.Seed()), conversation.Config{PivotLanguage: "en", HistoryLimit: 10},
				conversation.WithDetector(tt.det))

			res, err := orch.HandleTurn(context.Background(), conversation.TurnRequest{SessionID: "s1", Text: "hello"})
			require.NoError(t, err)
			assert.Equal(t, "en", res.Language)
			assert.Zero(t, tr.calls)
		})
	}
}

// gatedGenerator 阻塞在 release 上，并记录同时进入生成的最大并发数。
type gatedGenerator struct {
	mu        sync.Mutex
	active    int
	maxActive int
	entered   chan struct{}
	release   chan struct{}
}

func (g *gatedGenerator) GenerateReply(_ context.Context, prompt string, _ []chat.Turn) (string, error) {
	g.mu.Lock()
	g.active++
	if g.active > g.maxActive {
		g.maxActive = g.active
	}
	g.mu.Unlock()

	g.entered <- struct{}{}
	<-g.release

	g.mu.Lock()
	g.active--
	g.mu.Unlock()
	return "re:" + prompt, nil
}

func TestResetDuringTurnKeepsTurnsSerialised(t *testing.T) {
	gen := &gatedGenerator{entered: make(chan struct{}, 2), release: make(chan struct{})}
	orch, sessions := newOrchestrator(&fakeTranslator{}, gen, 10)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := orch.HandleTurn(ctx, conversation.TurnRequest{SessionID: "s1", Text: "first", Language: "en"})
		first <- err
	}()
	<-gen.entered

	require.NoError(t, orch.Reset(ctx, "s1"))

	second := make(chan error, 1)
	go func() {
		_, err := orch.HandleTurn(ctx, conversation.TurnRequest{SessionID: "s1", Text: "second", Language: "en"})
		second <- err
	}()

	select {
	case <-gen.entered:
		t.Fatal("second turn reached the model while the first still held the session")
	case <-time.After(50 * time.Millisecond):
	}

	close(gen.release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	turns, err := sessions.Transcript(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 4, "both successful turns are kept")
	assert.Equal(t, "first", turns[0].Text)
	assert.Equal(t, "second", turns[2].Text)

	gen.mu.Lock()
	defer gen.mu.Unlock()
	assert.Equal(t, 1, gen.maxActive)
}
