package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/chat"
)

// fakeModel 按顺序返回预设结果，并记录每次收到的消息。
type fakeModel struct {
	mu       sync.Mutex
	replies  []string
	failures []error
	inputs   [][]*schema.Message
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := len(f.inputs)
	f.inputs = append(f.inputs, input)
	if call < len(f.failures) && f.failures[call] != nil {
		return nil, f.failures[call]
	}
	reply := ""
	if call < len(f.replies) {
		reply = f.replies[call]
	}
	return schema.AssistantMessage(reply, nil), nil
}

func (f *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func TestGenerateReplySendsSystemHistoryAndQuery(t *testing.T) {
	fm := &fakeModel{replies: []string{" File Form A with the PIO. "}}
	svc, err := NewService(context.Background(), fm, Options{})
	require.NoError(t, err)

	history := []chat.Turn{
		{Role: chat.RoleUser, Text: "नमस्ते", PivotText: "Hello"},
		{Role: chat.RoleAssistant, Text: "नमस्ते!", PivotText: "Hello!"},
	}
	reply, err := svc.GenerateReply(context.Background(), "How do I file an RTI?", history)
	require.NoError(t, err)
	assert.Equal(t, "File Form A with the PIO.", reply)

	require.Equal(t, 1, fm.calls())
	msgs := fm.inputs[0]
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Right to Information")
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.Equal(t, "Hello!", msgs[2].Content)
	assert.Equal(t, "How do I file an RTI?", msgs[3].Content)
}

func TestGenerateReplyFailures(t *testing.T) {
	tests := []struct {
		name string
		fm   *fakeModel
	}{
		{"provider error", &fakeModel{failures: []error{errors.New("429 rate limited")}}},
		{"empty content", &fakeModel{replies: []string{"  "}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(context.Background(), tt.fm, Options{})
			require.NoError(t, err)

			_, err = svc.GenerateReply(context.Background(), "hi", nil)
			assert.ErrorIs(t, err, errs.GenerationFailed)
			assert.Equal(t, 1, tt.fm.calls(), "no retry unless enabled")
		})
	}
}

func TestGenerateReplyRetriesAtMostOnce(t *testing.T) {
	fm := &fakeModel{
		failures: []error{errors.New("timeout"), nil},
		replies:  []string{"", "second try"},
	}
	svc, err := NewService(context.Background(), fm, Options{RetryOnce: true})
	require.NoError(t, err)

	reply, err := svc.GenerateReply(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "second try", reply)
	assert.Equal(t, 2, fm.calls())

	always := &fakeModel{failures: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	svc, err = NewService(context.Background(), always, Options{RetryOnce: true})
	require.NoError(t, err)

	_, err = svc.GenerateReply(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, errs.GenerationFailed)
	assert.Equal(t, 2, always.calls())
}

func TestGenerateReplyRejectsEmptyPrompt(t *testing.T) {
	svc, err := NewService(context.Background(), &fakeModel{}, Options{})
	require.NoError(t, err)

	_, err = svc.GenerateReply(context.Background(), " ", nil)
	assert.ErrorIs(t, err, errs.InvalidInput)
}

func TestQueryWithBracesIsNotTreatedAsTemplate(t *testing.T) {
	fm := &fakeModel{replies: []string{"ok"}}
	svc, err := NewService(context.Background(), fm, Options{})
	require.NoError(t, err)

	_, err = svc.GenerateReply(context.Background(), "what is {fee}?", nil)
	require.NoError(t, err)
	assert.Equal(t, "what is {fee}?", fm.inputs[0][1].Content)
}

// blockingModel 一直等到 ctx 结束，模拟挂起的 provider。
type blockingModel struct {
	fakeModel
	deadlineSet bool
}

func (b *blockingModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	b.mu.Lock()
	_, b.deadlineSet = ctx.Deadline()
	b.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	_, err := b.Generate(ctx, input, opts...)
	return nil, err
}

func TestGenerateReplyHonoursTimeout(t *testing.T) {
	bm := &blockingModel{}
	svc, err := NewService(context.Background(), bm, Options{Timeout: 30 * time.Millisecond})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.GenerateReply(context.Background(), "How do I file an RTI?", nil)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errs.GenerationFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("GenerateReply did not return after the provider timeout")
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	assert.True(t, bm.deadlineSet)
}

func TestDetectLanguage(t *testing.T) {
	candidates := []string{"en", "hi", "ta"}
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"bare code", "hi", "hi"},
		{"code with punctuation", " 'TA'. ", "ta"},
		{"code in a sentence", "The language is hi", "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := &fakeModel{replies: []string{tt.reply}}
			svc, err := NewService(context.Background(), fm, Options{})
			require.NoError(t, err)

			got, err := svc.DetectLanguage(context.Background(), "आरटीआई कैसे दाखिल करें?", candidates)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			msgs := fm.inputs[0]
			require.Len(t, msgs, 2)
			assert.Contains(t, msgs[0].Content, "en, hi, ta")
			assert.Equal(t, "आरटीआई कैसे दाखिल करें?", msgs[1].Content)
		})
	}
}

func TestDetectLanguageFailures(t *testing.T) {
	fm := &fakeModel{replies: []string{"French"}}
	svc, err := NewService(context.Background(), fm, Options{})
	require.NoError(t, err)

	_, err = svc.DetectLanguage(context.Background(), "bonjour", []string{"en", "hi"})
	assert.ErrorIs(t, err, errs.GenerationFailed)

	_, err = svc.DetectLanguage(context.Background(), "  ", []string{"en"})
	assert.ErrorIs(t, err, errs.InvalidInput)
}
