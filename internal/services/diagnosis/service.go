package diagnosis

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/config"
	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/fallback"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/invoker"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/metrics"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/prompt"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/request"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/worker"
	"github.com/sentra-ai/diagnosis-proxy/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const (
	defaultTemperature = 0.05
	defaultMaxTokens   = 800
)

// ExactCache is the hash-keyed cache tier.
type ExactCache interface {
	Get(ctx context.Context, query string) (*models.CacheEntry, bool)
	Set(ctx context.Context, query string, result models.ICD10Result, model string)
}

// SemanticCache is the similarity cache tier.
type SemanticCache interface {
	Get(ctx context.Context, query string) (*models.SemanticHit, bool)
	Set(ctx context.Context, query string, result models.ICD10Result, model string)
}

// EventSink receives every outcome for telemetry.
type EventSink interface {
	Record(queryHash string, outcome models.DiagnosisOutcome)
}

// Settings are the model-call defaults.
type Settings struct {
	Chain       []string
	Temperature float64
	MaxTokens   int
}

// Service answers diagnosis queries from the caches or the model chain.
type Service struct {
	exact    ExactCache
	semantic SemanticCache
	fallback *fallback.Service
	invoker  invoker.Invoker
	tracker  *metrics.CacheTracker
	pool     *worker.Pool
	events   EventSink
	settings Settings
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithSemanticCache enables the similarity tier.
func WithSemanticCache(sc SemanticCache) Option {
	return func(s *Service) { s.semantic = sc }
}

// WithWorkerPool moves semantic cache writes off the request path.
func WithWorkerPool(p *worker.Pool) Option {
	return func(s *Service) { s.pool = p }
}

// WithEventSink records each outcome.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithTracker shares a hit/miss tracker with the stats endpoint.
func WithTracker(t *metrics.CacheTracker) Option {
	return func(s *Service) { s.tracker = t }
}

// WithClock injects the time source used for metadata.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the orchestrator. exact must not be nil.
func NewService(exact ExactCache, fb *fallback.Service, inv invoker.Invoker, settings Settings, opts ...Option) *Service {
	if settings.Temperature <= 0 {
		settings.Temperature = defaultTemperature
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = defaultMaxTokens
	}
	s := &Service{
		exact:    exact,
		fallback: fb,
		invoker:  inv,
		tracker:  metrics.NewCacheTracker(),
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tracker exposes hit/miss statistics.
func (s *Service) Tracker() *metrics.CacheTracker { return s.tracker }

// Chain returns the configured fallback order.
func (s *Service) Chain() []string { return slices.Clone(s.settings.Chain) }

// Diagnose returns a well-formed outcome for query. It never returns an
// error: failures are reported in the outcome with a classified kind.
func (s *Service) Diagnose(ctx context.Context, query string, opts models.DiagnoseOptions) models.DiagnosisOutcome {
	start := s.now()
	requestID := opts.RequestID
	if requestID == "" {
		requestID = request.NewID()
	}
	pinned := config.NormalizeModelKey(opts.Model)

	fiberlog.Infof("[%s] Diagnose start (pinned=%q skipCache=%t)", requestID, pinned, opts.SkipCache)

	if !opts.SkipCache {
		if outcome, ok := s.fromCache(ctx, requestID, query, start); ok {
			outcome.Metadata.PinnedModel = pinned
			s.finish(query, metrics.SourceFromTier(outcome.Metadata.CacheTier), outcome)
			return outcome
		}
	}

	temperature := s.settings.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	req := invoker.Request{
		RequestID:   requestID,
		System:      prompt.System(),
		Prompt:      prompt.User(query),
		Temperature: temperature,
		MaxTokens:   s.settings.MaxTokens,
	}

	var result *models.ICD10Result
	attempt := func(ctx context.Context, key string) error {
		text, err := s.invoker.Invoke(ctx, key, req)
		if err != nil {
			return err
		}
		parsed, err := ParseResult(key, text)
		if err != nil {
			return err
		}
		result = parsed
		return nil
	}

	// Model calls carry their own timeouts; the chain and the cache write
	// finish even when the caller's deadline has passed.
	ctx = context.WithoutCancel(ctx)
	res := s.runChain(ctx, requestID, pinned, attempt)

	outcome := models.DiagnosisOutcome{
		Metadata: models.OutcomeMetadata{
			Attempts:    res.Attempts,
			PinnedModel: pinned,
			RequestID:   requestID,
		},
	}

	if res.Succeeded() {
		outcome.Success = true
		outcome.Data = result
		outcome.Metadata.Model = res.Model
		s.store(ctx, requestID, query, *result, res.Model)
	} else {
		outcome.ErrorKind = models.KindOf(res.Err)
		outcome.Error = failureMessage(res.Err)
		fiberlog.Errorf("[%s] Diagnose failed after %d attempt(s): %v", requestID, res.Attempts, res.Err)
	}

	s.stamp(&outcome, start)
	s.finish(query, metrics.SourceMiss, outcome)
	return outcome
}

// runChain tries the pinned model first, then the configured chain without
// it. A pinned model is attempted at most once per call.
func (s *Service) runChain(ctx context.Context, requestID, pinned string, attempt fallback.AttemptFunc) fallback.Result {
	chain := s.settings.Chain
	var first fallback.Result

	if pinned != "" {
		first = s.fallback.Execute(ctx, requestID, []string{pinned}, attempt)
		if first.Succeeded() {
			return first
		}
		fiberlog.Warnf("[%s] Pinned model %s unavailable, falling back to chain", requestID, pinned)
		chain = slices.DeleteFunc(slices.Clone(chain), func(key string) bool { return key == pinned })
		if len(chain) == 0 {
			return first
		}
	}

	rest := s.fallback.Execute(ctx, requestID, chain, attempt)
	rest.Attempts += first.Attempts
	rest.Blocked = append(first.Blocked, rest.Blocked...)
	return rest
}

func (s *Service) fromCache(ctx context.Context, requestID, query string, start time.Time) (models.DiagnosisOutcome, bool) {
	if entry, ok := s.exact.Get(ctx, query); ok {
		metrics.CacheLookups.WithLabelValues(string(models.CacheTierExact), "hit").Inc()
		fiberlog.Infof("[%s] Exact cache hit (model %s)", requestID, entry.Model)
		outcome := models.DiagnosisOutcome{
			Success: true,
			Data:    &entry.Result,
			Metadata: models.OutcomeMetadata{
				FromCache: true,
				Model:     entry.Model,
				CacheTier: models.CacheTierExact,
				RequestID: requestID,
			},
		}
		s.stamp(&outcome, start)
		return outcome, true
	}
	metrics.CacheLookups.WithLabelValues(string(models.CacheTierExact), "miss").Inc()

	if s.semantic == nil {
		return models.DiagnosisOutcome{}, false
	}

	hit, ok := s.semantic.Get(ctx, query)
	if !ok {
		metrics.CacheLookups.WithLabelValues(string(models.CacheTierSemantic), "miss").Inc()
		return models.DiagnosisOutcome{}, false
	}

	metrics.CacheLookups.WithLabelValues(string(models.CacheTierSemantic), "hit").Inc()
	fiberlog.Infof("[%s] Semantic cache hit (similarity %.3f, model %s)", requestID, hit.Similarity, hit.Entry.Model)
	outcome := models.DiagnosisOutcome{
		Success: true,
		Data:    &hit.Entry.Result,
		Metadata: models.OutcomeMetadata{
			FromCache:  true,
			Model:      hit.Entry.Model,
			CacheTier:  models.CacheTierSemantic,
			Similarity: hit.Similarity,
			RequestID:  requestID,
		},
	}
	s.stamp(&outcome, start)
	return outcome, true
}

// store writes both tiers. The exact tier is written inline so an immediate
// repeat is served from it; the semantic write needs an embedding call and
// goes to the pool when one is configured.
func (s *Service) store(ctx context.Context, requestID, query string, result models.ICD10Result, model string) {
	s.exact.Set(ctx, query, result, model)

	if s.semantic == nil {
		return
	}
	if s.pool == nil {
		s.semantic.Set(ctx, query, result, model)
		return
	}
	s.pool.Submit(worker.Task{
		Name:      "semantic-cache-write",
		RequestID: requestID,
		Run: func(ctx context.Context) error {
			s.semantic.Set(ctx, query, result, model)
			return nil
		},
	})
}

func (s *Service) stamp(outcome *models.DiagnosisOutcome, start time.Time) {
	now := s.now()
	outcome.Metadata.LatencyMs = now.Sub(start).Milliseconds()
	outcome.Metadata.Timestamp = now.UnixMilli()
}

func (s *Service) finish(query string, source metrics.Source, outcome models.DiagnosisOutcome) {
	latency := time.Duration(outcome.Metadata.LatencyMs) * time.Millisecond
	s.tracker.Record(source, latency, outcome.Metadata.Similarity)

	label := "failure"
	if outcome.Success {
		label = "success"
	}
	metrics.DiagnosisRequests.WithLabelValues(label, string(source)).Inc()

	if s.events != nil {
		s.events.Record(utils.HashQuery(query), outcome)
	}
}

// failureMessage is the caller-facing error text. Credential problems are
// never described.
func failureMessage(err error) string {
	safe := models.SanitizeError(err)
	switch safe.Kind {
	case models.FailureProviderAuth:
		return safe.Message
	case models.FailureAllModelsUnavailable:
		return safe.Message
	}
	code := safe.Code
	if code == "" {
		code = "UNKNOWN_ERROR"
	}
	return fmt.Sprintf("All AI models failed: %s. Please try again.", code)
}
