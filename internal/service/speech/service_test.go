package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/language"
	"github.com/zhouzirui/janvani/backend/internal/model/speech"
	"github.com/zhouzirui/janvani/backend/internal/service/bhashini"
	"github.com/zhouzirui/janvani/backend/internal/service/bhashini/bhashinitest"
)

type fakeRecognizer struct {
	text string
	err  error
	got  language.Entry
}

func (f *fakeRecognizer) Name() string { return "fake" }

func (f *fakeRecognizer) Recognize(_ context.Context, _ []byte, _ string, lang language.Entry) (string, error) {
	f.got = lang
	return f.text, f.err
}

type fakeSynthesizer struct {
	calls int
	audio []byte
	err   error
}

func (f *fakeSynthesizer) Format() string { return "wav" }

func (f *fakeSynthesizer) Synthesize(context.Context, string, language.Entry) ([]byte, error) {
	f.calls++
	return f.audio, f.err
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	audio, ok := m.data[key]
	return audio, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, audio []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = audio
	return nil
}

func testCatalog() language.Store {
	return language.NewMemoryStore(append(language.Seed(), language.Entry{Code: "sa", DisplayName: "Sanskrit"}))
}

func TestSpeechToText(t *testing.T) {
	rec := &fakeRecognizer{text: "  आरटीआई कैसे दाखिल करें  "}
	svc := NewService(rec, &fakeSynthesizer{}, testCatalog())

	resp, err := svc.SpeechToText(context.Background(), &speech.ASRRequest{Audio: []byte("a"), Language: "HI"})
	require.NoError(t, err)
	assert.Equal(t, "आरटीआई कैसे दाखिल करें", resp.Text)
	assert.Equal(t, "hi", resp.Language)
	assert.Equal(t, "hi-IN", rec.got.SpeechLocale)
}

func TestSpeechToTextErrors(t *testing.T) {
	tests := []struct {
		name string
		rec  *fakeRecognizer
		req  *speech.ASRRequest
		want error
	}{
		{"empty audio", &fakeRecognizer{text: "x"}, &speech.ASRRequest{Language: "hi"}, errs.InvalidInput},
		{"missing language", &fakeRecognizer{text: "x"}, &speech.ASRRequest{Audio: []byte("a"), Language: "  "}, errs.InvalidInput},
		{"unknown language", &fakeRecognizer{text: "x"}, &speech.ASRRequest{Audio: []byte("a"), Language: "xx"}, errs.InvalidLanguage},
		{"unsupported language", &fakeRecognizer{text: "x"}, &speech.ASRRequest{Audio: []byte("a"), Language: "sa"}, errs.UnsupportedLanguage},
		{"provider error", &fakeRecognizer{err: errors.New("boom")}, &speech.ASRRequest{Audio: []byte("a"), Language: "hi"}, errs.SpeechRecognitionFailed},
		{"empty transcription", &fakeRecognizer{text: " "}, &speech.ASRRequest{Audio: []byte("a"), Language: "hi"}, errs.SpeechRecognitionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.rec, &fakeSynthesizer{}, testCatalog())
			_, err := svc.SpeechToText(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTextToSpeechUsesCache(t *testing.T) {
	synth := &fakeSynthesizer{audio: []byte("RIFF")}
	svc := NewService(&fakeRecognizer{}, synth, testCatalog(), WithCache(&memoryCache{}, time.Hour))
	ctx := context.Background()

	first, err := svc.TextToSpeech(ctx, &speech.TTSRequest{Text: "नमस्ते", Language: "hi"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "audio/wav", first.ContentType)

	second, err := svc.TextToSpeech(ctx, &speech.TTSRequest{Text: "नमस्ते", Language: "hi"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Audio, second.Audio)
	assert.Equal(t, 1, synth.calls)
}

func TestTextToSpeechErrors(t *testing.T) {
	tests := []struct {
		name  string
		synth *fakeSynthesizer
		req   *speech.TTSRequest
		want  error
	}{
		{"empty text", &fakeSynthesizer{audio: []byte("a")}, &speech.TTSRequest{Text: " ", Language: "hi"}, errs.InvalidInput},
		{"missing language", &fakeSynthesizer{audio: []byte("a")}, &speech.TTSRequest{Text: "x"}, errs.InvalidInput},
		{"unknown language", &fakeSynthesizer{audio: []byte("a")}, &speech.TTSRequest{Text: "x", Language: "xx"}, errs.InvalidLanguage},
		{"provider error", &fakeSynthesizer{err: errors.New("boom")}, &speech.TTSRequest{Text: "x", Language: "hi"}, errs.SpeechSynthesisFailed},
		{"empty audio", &fakeSynthesizer{}, &speech.TTSRequest{Text: "x", Language: "hi"}, errs.SpeechSynthesisFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&fakeRecognizer{}, tt.synth, testCatalog())
			_, err := svc.TextToSpeech(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBhashiniBackends(t *testing.T) {
	srv := bhashinitest.NewServer()
	defer srv.Close()
	srv.Recognize = func(language string, audio []byte) (string, bool) { return "heard " + language, true }
	srv.Synthesize = func(language, gender, text string) ([]byte, bool) { return []byte(gender + ":" + text), true }

	client := bhashini.NewClient(bhashini.Config{UserID: "u", APIKey: "k", ConfigURL: srv.ConfigURL()}, nil)
	svc := NewService(NewBhashiniRecognizer(client, 16000), NewBhashiniSynthesizer(client, 22050), testCatalog())
	ctx := context.Background()

	asr, err := svc.SpeechToText(ctx, &speech.ASRRequest{Audio: []byte("pcm"), Format: "wav", Language: "ta"})
	require.NoError(t, err)
	assert.Equal(t, "heard ta", asr.Text)
	assert.Equal(t, "bhashini", asr.Provider)

	tts, err := svc.TextToSpeech(ctx, &speech.TTSRequest{Text: "vanakkam", Language: "ta"})
	require.NoError(t, err)
	assert.Equal(t, []byte("female:vanakkam"), tts.Audio)
}

func TestCacheKeyDependsOnVoice(t *testing.T) {
	assert.Equal(t, CacheKey("hi", "female", "x"), CacheKey("hi", "female", "x"))
	assert.NotEqual(t, CacheKey("hi", "female", "x"), CacheKey("hi", "male", "x"))
	assert.NotEqual(t, CacheKey("hi", "female", "x"), CacheKey("mr", "female", "x"))
}
