package speech

import (
	"context"

	"github.com/zhouzirui/janvani/backend/internal/model/language"
	"github.com/zhouzirui/janvani/backend/internal/service/bhashini"
)

// BhashiniRecognizer 通过 ULCA asr 任务识别语音。
type BhashiniRecognizer struct {
	client     *bhashini.Client
	sampleRate int
}

// NewBhashiniRecognizer wraps the pipeline client.
func NewBhashiniRecognizer(client *bhashini.Client, sampleRate int) *BhashiniRecognizer {
	return &BhashiniRecognizer{client: client, sampleRate: sampleRate}
}

func (r *BhashiniRecognizer) Name() string { return "bhashini" }

func (r *BhashiniRecognizer) Recognize(ctx context.Context, audio []byte, format string, lang language.Entry) (string, error) {
	return r.client.Recognize(ctx, bhashini.RecognizeRequest{
		Audio:      audio,
		Format:     format,
		SampleRate: r.sampleRate,
		Language:   lang.ProviderCode,
	})
}

// BhashiniSynthesizer 通过 ULCA tts 任务合成 wav 音频，音色取自目录的 VoiceID。
type BhashiniSynthesizer struct {
	client     *bhashini.Client
	sampleRate int
}

// NewBhashiniSynthesizer wraps the pipeline client.
func NewBhashiniSynthesizer(client *bhashini.Client, sampleRate int) *BhashiniSynthesizer {
	return &BhashiniSynthesizer{client: client, sampleRate: sampleRate}
}

func (s *BhashiniSynthesizer) Format() string { return "wav" }

func (s *BhashiniSynthesizer) Synthesize(ctx context.Context, text string, lang language.Entry) ([]byte, error) {
	return s.client.Synthesize(ctx, bhashini.SynthesizeRequest{
		Text:       text,
		Language:   lang.ProviderCode,
		Gender:     lang.VoiceID,
		SampleRate: s.sampleRate,
	})
}
