package translation

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex/log"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/language"
)

// Provider 是底层翻译服务，使用 provider 自己的语言标识。
type Provider interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Service 在目录代码与 provider 标识之间做映射，并把 provider 错误归一为 errs 类别。
type Service struct {
	provider Provider
	catalog  language.Store
}

// NewService wires a translator over the given provider.
func NewService(provider Provider, catalog language.Store) *Service {
	return &Service{provider: provider, catalog: catalog}
}

// Translate converts text from source to target. Identical languages and empty text are returned
// as-is without calling the provider. No retries.
func (s *Service) Translate(ctx context.Context, text, source, target string) (string, error) {
	const op = "translation.Translate"

	source, target = language.Normalize(source), language.Normalize(target)
	if source == target || strings.TrimSpace(text) == "" {
		return text, nil
	}

	src, err := s.providerCode(op, source)
	if err != nil {
		return "", err
	}
	tgt, err := s.providerCode(op, target)
	if err != nil {
		return "", err
	}

	out, err := s.provider.Translate(ctx, text, src, tgt)
	if err != nil {
		log.WithFields(log.Fields{
			"source": source,
			"target": target,
			"chars":  len([]rune(text)),
		}).WithError(err).Warn("translation.failed")
		return "", errs.E(errs.KindTranslationUnavailable, op, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", errs.New(errs.KindTranslationUnavailable, op, "provider returned empty translation")
	}
	return out, nil
}

func (s *Service) providerCode(op, code string) (string, error) {
	entry, ok := s.catalog.FindByCode(code)
	if !ok || entry.ProviderCode == "" {
		return "", errs.E(errs.KindUnsupportedLanguage, op, fmt.Errorf("no provider identifier for %q", code))
	}
	return entry.ProviderCode, nil
}
