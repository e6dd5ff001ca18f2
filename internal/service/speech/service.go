package speech

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/language"
	"github.com/zhouzirui/janvani/backend/internal/model/speech"
)

// Recognizer 把一段完整音频转写为文本。
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, audio []byte, format string, lang language.Entry) (string, error)
}

// Synthesizer 把文本合成为音频。
type Synthesizer interface {
	// Format 返回合成音频的容器格式，例如 wav。
	Format() string
	Synthesize(ctx context.Context, text string, lang language.Entry) ([]byte, error)
}

// Service 语音服务核心业务逻辑：校验语言、调用 provider、把失败归一为 errs 类别。
type Service struct {
	recognizer  Recognizer
	synthesizer Synthesizer
	catalog     language.Store
	cache       AudioCache
	cacheTTL    time.Duration
	now         func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithCache enables the synthesized-audio cache.
func WithCache(cache AudioCache, ttl time.Duration) Option {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
			s.cacheTTL = ttl
		}
	}
}

// NewService 创建语音服务实例
func NewService(recognizer Recognizer, synthesizer Synthesizer, catalog language.Store, opts ...Option) *Service {
	s := &Service{
		recognizer:  recognizer,
		synthesizer: synthesizer,
		catalog:     catalog,
		cache:       NopCache{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SpeechToText 语音转文字。single-shot，无流式或部分结果。
func (s *Service) SpeechToText(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	const op = "speech.SpeechToText"

	if req == nil || len(req.Audio) == 0 {
		return nil, errs.New(errs.KindInvalidInput, op, "audio is empty")
	}

	code := language.Normalize(req.Language)
	if code == "" {
		return nil, errs.New(errs.KindInvalidInput, op, "language is required")
	}
	lang, err := s.lookup(op, code)
	if err != nil {
		return nil, err
	}

	text, err := s.recognizer.Recognize(ctx, req.Audio, strings.ToLower(strings.TrimSpace(req.Format)), lang)
	if err != nil {
		log.WithFields(log.Fields{
			"provider": s.recognizer.Name(),
			"language": code,
			"bytes":    len(req.Audio),
		}).WithError(err).Warn("speech.recognize.failed")
		return nil, errs.E(errs.KindSpeechRecognitionFailed, op, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.New(errs.KindSpeechRecognitionFailed, op, "empty transcription")
	}

	return &speech.ASRResponse{
		Text:      text,
		Language:  code,
		Provider:  s.recognizer.Name(),
		CreatedAt: s.now().UTC(),
	}, nil
}

// TextToSpeech 文字转语音，命中缓存时不调用 provider。
func (s *Service) TextToSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	const op = "speech.TextToSpeech"

	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, errs.New(errs.KindInvalidInput, op, "text is empty")
	}

	code := language.Normalize(req.Language)
	if code == "" {
		return nil, errs.New(errs.KindInvalidInput, op, "language is required")
	}
	lang, err := s.lookup(op, code)
	if err != nil {
		return nil, err
	}

	format := s.synthesizer.Format()
	key := CacheKey(lang.Code, lang.VoiceID, req.Text)

	if audio, ok, err := s.cache.Get(ctx, key); err != nil {
		log.WithError(err).Warn("speech.cache.get")
	} else if ok {
		return s.ttsResponse(audio, format, code, true), nil
	}

	audio, err := s.synthesizer.Synthesize(ctx, req.Text, lang)
	if err != nil {
		log.WithFields(log.Fields{
			"language": code,
			"chars":    len([]rune(req.Text)),
		}).WithError(err).Warn("speech.synthesize.failed")
		return nil, errs.E(errs.KindSpeechSynthesisFailed, op, err)
	}
	if len(audio) == 0 {
		return nil, errs.New(errs.KindSpeechSynthesisFailed, op, "empty audio")
	}

	if err := s.cache.Set(ctx, key, audio, s.cacheTTL); err != nil {
		log.WithError(err).Warn("speech.cache.set")
	}

	return s.ttsResponse(audio, format, code, false), nil
}

func (s *Service) ttsResponse(audio []byte, format, code string, cached bool) *speech.TTSResponse {
	return &speech.TTSResponse{
		Audio:       audio,
		Format:      format,
		ContentType: ContentType(format),
		Language:    code,
		Cached:      cached,
		CreatedAt:   s.now().UTC(),
	}
}

func (s *Service) lookup(op, code string) (language.Entry, error) {
	lang, ok := s.catalog.FindByCode(code)
	if !ok {
		return language.Entry{}, errs.E(errs.KindInvalidLanguage, op, fmt.Errorf("unknown language %q", code))
	}
	if lang.ProviderCode == "" {
		return language.Entry{}, errs.E(errs.KindUnsupportedLanguage, op, fmt.Errorf("no speech support for %q", code))
	}
	return lang, nil
}

// ContentType 返回音频格式对应的 MIME 类型。
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "audio/mpeg"
	case "ogg", "opus":
		return "audio/ogg"
	case "webm":
		return "audio/webm"
	case "flac":
		return "audio/flac"
	default:
		return "audio/wav"
	}
}
