package diagnosis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/cache"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/circuitbreaker"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/fallback"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/invoker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pharyngitis = `{
  "code": "J02.9",
  "description": "Faringitis akut",
  "category": "Respiratory",
  "confidence_score": 0.82,
  "urgency": "routine",
  "proposed_referrals": [
    {"code": "J03.9", "description": "Tonsilitis akut", "clinical_reasoning": "Paling aman"},
    {"code": "J36", "description": "Abses peritonsil", "clinical_reasoning": "Moderat"},
    {"code": "J39.0", "description": "Abses retrofaring", "clinical_reasoning": "Agresif valid"}
  ]
}`

var chain = []string{"DEEPSEEK_V3", "GLM_CODING", "QWEN_TURBO"}

type reply struct {
	text  string
	err   error
	delay time.Duration
}

// scriptedInvoker answers per model key and records every call.
type scriptedInvoker struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []string
	reqs    []invoker.Request
}

func (s *scriptedInvoker) Invoke(_ context.Context, key string, req invoker.Request) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, key)
	s.reqs = append(s.reqs, req)
	r, ok := s.replies[key]
	s.mu.Unlock()
	if !ok {
		return "", models.NewProviderError(key, models.FailureUnknown, "no script", nil)
	}
	time.Sleep(r.delay)
	return r.text, r.err
}

type fakeSemantic struct {
	hit    *models.SemanticHit
	stored []string
}

func (f *fakeSemantic) Get(context.Context, string) (*models.SemanticHit, bool) {
	if f.hit == nil {
		return nil, false
	}
	h := *f.hit
	return &h, true
}

func (f *fakeSemantic) Set(_ context.Context, query string, _ models.ICD10Result, _ string) {
	f.stored = append(f.stored, query)
}

type recordingSink struct{ outcomes []models.DiagnosisOutcome }

func (r *recordingSink) Record(_ string, outcome models.DiagnosisOutcome) {
	r.outcomes = append(r.outcomes, outcome)
}

type harness struct {
	svc     *Service
	inv     *scriptedInvoker
	breaker *circuitbreaker.CircuitBreaker
	exact   *cache.ExactCache
	sink    *recordingSink
}

func newHarness(t *testing.T, replies map[string]reply, opts ...Option) *harness {
	t.Helper()
	breaker := circuitbreaker.New(circuitbreaker.NewMemoryStore(), circuitbreaker.DefaultSettings())
	exact := cache.NewExactCache(models.ExactCacheConfig{}, nil)
	inv := &scriptedInvoker{replies: replies}
	sink := &recordingSink{}

	opts = append([]Option{WithEventSink(sink)}, opts...)
	svc := NewService(exact, fallback.NewFallbackService(breaker, 30*time.Second), inv,
		Settings{Chain: chain}, opts...)
	return &harness{svc: svc, inv: inv, breaker: breaker, exact: exact, sink: sink}
}

func (h *harness) trip(key string) {
	for range h.breaker.Settings().FailureThreshold {
		h.breaker.RecordFailure(context.Background(), key, errors.New("down"))
	}
}

func TestDiagnoseRepeatIsServedFromExactCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]reply{"DEEPSEEK_V3": {text: pharyngitis}})

	first := h.svc.Diagnose(ctx, "Sakit tenggorokan faringitis akut", models.DiagnoseOptions{})
	require.True(t, first.Success)
	require.NotNil(t, first.Data)
	assert.Len(t, first.Data.ProposedReferrals, 3)
	assert.False(t, first.Metadata.FromCache)
	assert.Equal(t, "DEEPSEEK_V3", first.Metadata.Model)
	assert.Equal(t, 1, first.Metadata.Attempts)
	assert.NotZero(t, first.Metadata.Timestamp)
	assert.Empty(t, first.Error)

	second := h.svc.Diagnose(ctx, "  sakit tenggorokan, faringitis akut! ", models.DiagnoseOptions{})
	require.True(t, second.Success)
	assert.True(t, second.Metadata.FromCache)
	assert.Equal(t, models.CacheTierExact, second.Metadata.CacheTier)
	assert.Equal(t, "DEEPSEEK_V3", second.Metadata.Model)
	assert.Equal(t, *first.Data, *second.Data)

	assert.Equal(t, []string{"DEEPSEEK_V3"}, h.inv.calls)
	assert.Len(t, h.sink.outcomes, 2)

	snap := h.svc.Tracker().Snapshot()
	assert.EqualValues(t, 1, snap.ExactHits)
	assert.EqualValues(t, 1, snap.Misses)
}

func TestDiagnoseFallbackOrderingSkipsOpenCircuits(t *testing.T) {
	h := newHarness(t, map[string]reply{
		"DEEPSEEK_V3": {text: pharyngitis},
		"GLM_CODING":  {text: pharyngitis},
		"QWEN_TURBO":  {text: pharyngitis},
	})
	h.trip("DEEPSEEK_V3")
	h.trip("GLM_CODING")

	out := h.svc.Diagnose(context.Background(), "demam batuk", models.DiagnoseOptions{})

	require.True(t, out.Success)
	assert.Equal(t, "QWEN_TURBO", out.Metadata.Model)
	assert.Equal(t, []string{"QWEN_TURBO"}, h.inv.calls)
}

func TestDiagnoseNoHealthyModelsNeverInvokes(t *testing.T) {
	h := newHarness(t, nil)
	for _, key := range chain {
		h.trip(key)
	}

	out := h.svc.Diagnose(context.Background(), "demam batuk", models.DiagnoseOptions{})

	assert.False(t, out.Success)
	assert.Nil(t, out.Data)
	assert.Equal(t, models.FailureAllModelsUnavailable, out.ErrorKind)
	assert.Contains(t, out.Error, "try again in 30 seconds")
	assert.Empty(t, h.inv.calls)
	assert.NotZero(t, out.Metadata.Timestamp)
	assert.GreaterOrEqual(t, out.Metadata.LatencyMs, int64(0))
}

func TestDiagnosePadsMissingReferrals(t *testing.T) {
	h := newHarness(t, map[string]reply{
		"DEEPSEEK_V3": {text: `{"code":"J02.9","description":"Faringitis akut","clinical_notes":"nyeri telan"}`},
	})

	out := h.svc.Diagnose(context.Background(), "nyeri telan", models.DiagnoseOptions{})

	require.True(t, out.Success)
	require.Len(t, out.Data.ProposedReferrals, 1)
	ref := out.Data.ProposedReferrals[0]
	assert.Equal(t, "J02.9", ref.Code)
	assert.Equal(t, "Faringitis akut", ref.Description)
	assert.Equal(t, "nyeri telan", ref.ClinicalReasoning)
}

func TestDiagnoseMalformedReplyFallsThroughAndCountsAsFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]reply{
		"DEEPSEEK_V3": {text: "saya tidak yakin"},
		"GLM_CODING":  {text: pharyngitis},
	})

	out := h.svc.Diagnose(ctx, "demam", models.DiagnoseOptions{})

	require.True(t, out.Success)
	assert.Equal(t, "GLM_CODING", out.Metadata.Model)
	assert.Equal(t, 2, out.Metadata.Attempts)

	statuses := h.breaker.GetAllStatuses(ctx)
	assert.EqualValues(t, 1, statuses["DEEPSEEK_V3"].TotalFailures)
	assert.EqualValues(t, 0, statuses["GLM_CODING"].TotalFailures)
}

func TestDiagnoseAllFailedReportsLastKind(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]reply{
		"DEEPSEEK_V3": {err: models.NewProviderError("DEEPSEEK_V3", models.FailureRateLimited, "429", nil)},
		"GLM_CODING":  {err: models.NewProviderError("GLM_CODING", models.FailureServiceUnavailable, "503", nil)},
		"QWEN_TURBO":  {err: models.NewProviderError("QWEN_TURBO", models.FailureTimeout, "deadline", nil)},
	})

	out := h.svc.Diagnose(ctx, "demam", models.DiagnoseOptions{})

	assert.False(t, out.Success)
	assert.Equal(t, models.FailureTimeout, out.ErrorKind)
	assert.Equal(t, "All AI models failed: TIMEOUT. Please try again.", out.Error)
	assert.Equal(t, 3, out.Metadata.Attempts)
	assert.Equal(t, chain, h.inv.calls)

	_, cached := h.exact.Get(ctx, "demam")
	assert.False(t, cached, "failures are never cached")
	for _, key := range chain {
		assert.EqualValues(t, 1, h.breaker.GetAllStatuses(ctx)[key].TotalRequests)
	}
}

func TestDiagnoseChainOutlivesRequestDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	slowTimeout := reply{
		err:   models.NewTimeoutError("model", context.DeadlineExceeded),
		delay: 30 * time.Millisecond,
	}
	h := newHarness(t, map[string]reply{
		"DEEPSEEK_V3": slowTimeout,
		"GLM_CODING":  slowTimeout,
		"QWEN_TURBO":  {text: pharyngitis},
	})

	out := h.svc.Diagnose(ctx, "Sakit tenggorokan faringitis akut", models.DiagnoseOptions{})

	require.True(t, out.Success, out.Error)
	assert.Equal(t, "QWEN_TURBO", out.Metadata.Model)
	assert.Equal(t, 3, out.Metadata.Attempts)
	assert.Equal(t, chain, h.inv.calls)

	_, cached := h.exact.Get(context.Background(), "Sakit tenggorokan faringitis akut")
	assert.True(t, cached)
}

func TestDiagnosePunctuationOnlyQueriesDoNotShareAnAnswer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]reply{"DEEPSEEK_V3": {text: pharyngitis}})

	first := h.svc.Diagnose(ctx, "???", models.DiagnoseOptions{})
	second := h.svc.Diagnose(ctx, "!!!...", models.DiagnoseOptions{})

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.False(t, second.Metadata.FromCache)
	assert.Equal(t, []string{"DEEPSEEK_V3", "DEEPSEEK_V3"}, h.inv.calls)
}

func TestDiagnoseHidesAuthFailures(t *testing.T) {
	h := newHarness(t, map[string]reply{
		"DEEPSEEK_V3": {err: models.NewProviderError("DEEPSEEK_V3", models.FailureProviderAuth, "invalid key sk-123", nil)},
		"GLM_CODING":  {err: models.NewProviderError("GLM_CODING", models.FailureProviderAuth, "invalid key sk-456", nil)},
		"QWEN_TURBO":  {err: models.NewProviderError("QWEN_TURBO", models.FailureProviderAuth, "invalid key sk-789", nil)},
	})

	out := h.svc.Diagnose(context.Background(), "demam", models.DiagnoseOptions{})

	assert.Equal(t, models.FailureProviderAuth, out.ErrorKind)
	assert.Equal(t, "internal error", out.Error)
	assert.NotContains(t, out.Error, "sk-")
}

func TestDiagnosePinnedModelFallsThroughWithoutRepeat(t *testing.T) {
	h := newHarness(t, map[string]reply{
		"DEEPSEEK_V3": {text: pharyngitis},
		"GLM_CODING":  {err: models.NewProviderError("GLM_CODING", models.FailureConnection, "refused", nil)},
	})

	out := h.svc.Diagnose(context.Background(), "demam", models.DiagnoseOptions{Model: "glm_coding"})

	require.True(t, out.Success)
	assert.Equal(t, "DEEPSEEK_V3", out.Metadata.Model)
	assert.Equal(t, "GLM_CODING", out.Metadata.PinnedModel)
	assert.Equal(t, 2, out.Metadata.Attempts)
	assert.Equal(t, []string{"GLM_CODING", "DEEPSEEK_V3"}, h.inv.calls)
}

func TestDiagnosePinnedModelSucceeds(t *testing.T) {
	h := newHarness(t, map[string]reply{"QWEN_TURBO": {text: pharyngitis}})

	out := h.svc.Diagnose(context.Background(), "demam", models.DiagnoseOptions{Model: "QWEN_TURBO"})

	require.True(t, out.Success)
	assert.Equal(t, "QWEN_TURBO", out.Metadata.Model)
	assert.Equal(t, []string{"QWEN_TURBO"}, h.inv.calls)
}

func TestDiagnoseSkipCacheBypassesReadsButWrites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]reply{"DEEPSEEK_V3": {text: pharyngitis}})
	h.exact.Set(ctx, "demam", models.ICD10Result{Code: "OLD", Description: "stale"}, "GLM_CODING")

	temp := 0.7
	out := h.svc.Diagnose(ctx, "demam", models.DiagnoseOptions{SkipCache: true, Temperature: &temp})

	require.True(t, out.Success)
	assert.False(t, out.Metadata.FromCache)
	assert.Equal(t, "J02.9", out.Data.Code)
	require.Len(t, h.inv.reqs, 1)
	assert.InDelta(t, 0.7, h.inv.reqs[0].Temperature, 1e-9)
	assert.Equal(t, 800, h.inv.reqs[0].MaxTokens)

	entry, ok := h.exact.Get(ctx, "demam")
	require.True(t, ok)
	assert.Equal(t, "J02.9", entry.Result.Code)
}

func TestDiagnoseServesSemanticHit(t *testing.T) {
	sem := &fakeSemantic{hit: &models.SemanticHit{
		Entry: models.SemanticEntry{
			Query:  "demam tinggi tiga hari batuk kering",
			Result: models.ICD10Result{Code: "J06.9", Description: "ISPA"},
			Model:  "GLM_CODING",
		},
		Similarity: 0.97,
	}}
	h := newHarness(t, nil, WithSemanticCache(sem))

	out := h.svc.Diagnose(context.Background(), "demam tinggi 3 hari batuk kering", models.DiagnoseOptions{})

	require.True(t, out.Success)
	assert.True(t, out.Metadata.FromCache)
	assert.Equal(t, models.CacheTierSemantic, out.Metadata.CacheTier)
	assert.InDelta(t, 0.97, out.Metadata.Similarity, 1e-9)
	assert.Equal(t, "GLM_CODING", out.Metadata.Model)
	assert.Empty(t, h.inv.calls)
}

func TestDiagnoseWritesSemanticTierOnSuccess(t *testing.T) {
	sem := &fakeSemantic{}
	h := newHarness(t, map[string]reply{"DEEPSEEK_V3": {text: pharyngitis}}, WithSemanticCache(sem))

	out := h.svc.Diagnose(context.Background(), "nyeri tenggorokan", models.DiagnoseOptions{})

	require.True(t, out.Success)
	assert.Equal(t, []string{"nyeri tenggorokan"}, sem.stored)
}
