package speech

import (
	"context"
	"fmt"
	"strings"
	"time"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/zhouzirui/janvani/backend/internal/metrics"
	"github.com/zhouzirui/janvani/backend/internal/model/language"
)

type recognizeAPI interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

// GoogleRecognizer 使用 Google Cloud Speech-to-Text 做同步识别，语言取目录中的 SpeechLocale。
// 认证依赖 Application Default Credentials。
type GoogleRecognizer struct {
	api        recognizeAPI
	closer     func() error
	sampleRate int
	timeout    time.Duration
}

// NewGoogleRecognizer dials the Speech API. timeout bounds each Recognize call.
func NewGoogleRecognizer(ctx context.Context, sampleRate int, timeout time.Duration) (*GoogleRecognizer, error) {
	client, err := gspeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleRecognizer{api: client, closer: client.Close, sampleRate: sampleRate, timeout: timeout}, nil
}

func (g *GoogleRecognizer) Name() string { return "google" }

// Close releases the underlying gRPC connection.
func (g *GoogleRecognizer) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}

func (g *GoogleRecognizer) Recognize(ctx context.Context, audio []byte, format string, lang language.Entry) (text string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveProvider("google", "asr", start, err) }()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	locale := lang.SpeechLocale
	if locale == "" {
		locale = lang.Code
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:     googleEncoding(format),
		LanguageCode: locale,
	}
	// wav/flac 头部自带采样率，其余编码需要显式给出。
	if cfg.Encoding != speechpb.RecognitionConfig_ENCODING_UNSPECIFIED && cfg.Encoding != speechpb.RecognitionConfig_FLAC {
		cfg.SampleRateHertz = int32(g.sampleRate)
		if cfg.Encoding == speechpb.RecognitionConfig_OGG_OPUS || cfg.Encoding == speechpb.RecognitionConfig_WEBM_OPUS {
			cfg.SampleRateHertz = 48000
		}
	}

	resp, err := g.api.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	})
	if err != nil {
		return "", err
	}

	var parts []string
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " "), nil
}

func googleEncoding(format string) speechpb.RecognitionConfig_AudioEncoding {
	switch format {
	case "flac":
		return speechpb.RecognitionConfig_FLAC
	case "ogg", "opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case "pcm", "raw", "linear16":
		return speechpb.RecognitionConfig_LINEAR16
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
