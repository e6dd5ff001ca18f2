// Package errs 定义跨层共享的错误类型。Provider 客户端在边界处把原始错误包装成
// *Error，编排层和 HTTP 层只根据 Kind 分支，不再关心各家 provider 的返回结构。
package errs

import (
	"errors"
	"net/http"
	"strings"
)

// Kind 错误类别
type Kind string

const (
	KindUnknown                     Kind = ""
	KindInvalidInput                Kind = "invalid_input"
	KindInvalidLanguage             Kind = "invalid_language"
	KindSessionFull                 Kind = "session_full"
	KindUnsupportedLanguage         Kind = "unsupported_language"
	KindTranslationUnavailable      Kind = "translation_unavailable"
	KindSpeechRecognitionFailed     Kind = "speech_recognition_failed"
	KindSpeechSynthesisFailed       Kind = "speech_synthesis_failed"
	KindGenerationFailed            Kind = "generation_failed"
	KindStartupConfigurationMissing Kind = "startup_configuration_missing"
)

// Sentinel values so callers can write errors.Is(err, errs.TranslationUnavailable).
var (
	InvalidInput                = &Error{Kind: KindInvalidInput}
	InvalidLanguage             = &Error{Kind: KindInvalidLanguage}
	SessionFull                 = &Error{Kind: KindSessionFull}
	UnsupportedLanguage         = &Error{Kind: KindUnsupportedLanguage}
	TranslationUnavailable      = &Error{Kind: KindTranslationUnavailable}
	SpeechRecognitionFailed     = &Error{Kind: KindSpeechRecognitionFailed}
	SpeechSynthesisFailed       = &Error{Kind: KindSpeechSynthesisFailed}
	GenerationFailed            = &Error{Kind: KindGenerationFailed}
	StartupConfigurationMissing = &Error{Kind: KindStartupConfigurationMissing}
)

// Error 携带类别、操作名与底层错误。
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E 构造一个 *Error，包装底层 err。
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// New 使用纯文本消息构造 *Error。
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, which is what the sentinels rely on.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf 返回错误链上第一个 *Error 的类别。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsProviderFailure reports whether the kind belongs to an upstream provider.
func IsProviderFailure(kind Kind) bool {
	switch kind {
	case KindUnsupportedLanguage,
		KindTranslationUnavailable,
		KindSpeechRecognitionFailed,
		KindSpeechSynthesisFailed,
		KindGenerationFailed:
		return true
	}
	return false
}

// HTTPStatus 把错误映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	kind := KindOf(err)
	switch {
	case kind == KindInvalidInput, kind == KindInvalidLanguage:
		return http.StatusBadRequest
	case kind == KindSessionFull:
		return http.StatusConflict
	case IsProviderFailure(kind):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage 返回可以展示给终端用户的通用描述，不暴露 provider 细节。
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindInvalidInput:
		return "invalid request"
	case KindInvalidLanguage:
		return "unknown language"
	case KindSessionFull:
		return "conversation limit reached, please start a new session"
	case KindUnsupportedLanguage:
		return "language not supported by the translation service"
	case KindTranslationUnavailable:
		return "translation service unavailable"
	case KindSpeechRecognitionFailed:
		return "could not understand audio"
	case KindSpeechSynthesisFailed:
		return "speech synthesis failed"
	case KindGenerationFailed:
		return "assistant is unavailable, please try again"
	default:
		return "internal server error"
	}
}
