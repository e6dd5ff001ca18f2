package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/janvani/backend/internal/errs"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
	assert.Equal(t, "translation_unavailable", Outcome(errs.New(errs.KindTranslationUnavailable, "op", "x")))
}

func TestObserveProviderCountsOutcome(t *testing.T) {
	before := testutil.ToFloat64(ProviderRequestsTotal.WithLabelValues("test", "op", "ok"))
	ObserveProvider("test", "op", time.Now(), nil)
	after := testutil.ToFloat64(ProviderRequestsTotal.WithLabelValues("test", "op", "ok"))

	assert.Equal(t, before+1, after)
}
