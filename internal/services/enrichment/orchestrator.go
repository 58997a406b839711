package enrichment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"threatlens/internal/domain"
	"threatlens/internal/observability"
	"threatlens/internal/ports"
)

const (
	minScore = 0.0
	maxScore = 10.0
)

var errInvalidScore = errors.New("provider returned a non-numeric score")

type Options struct {
	// Concurrency caps in-flight provider attempts for this orchestrator.
	Concurrency int
	Policy      Policy
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// Orchestrator fans an indicator out to its providers. Each instance owns its
// own concurrency budget.
type Orchestrator struct {
	registry *Registry
	policy   Policy
	sem      *semaphore.Weighted
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

var _ ports.Enricher = (*Orchestrator)(nil)

func NewOrchestrator(registry *Registry, opts Options) (*Orchestrator, error) {
	if registry == nil {
		return nil, &domain.ConfigurationError{Field: "providers", Reason: "registry is required"}
	}
	if opts.Concurrency < 1 {
		return nil, &domain.ConfigurationError{Field: "enrichment.concurrency", Reason: fmt.Sprintf("must be positive, got %d", opts.Concurrency)}
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry: registry,
		policy:   opts.Policy,
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		logger:   logger.Named("enrichment"),
		metrics:  opts.Metrics,
		now:      time.Now,
	}, nil
}

// Enrich returns one outcome per applicable provider, in no particular order.
// Provider failures never abort siblings. Cancelling ctx abandons in-flight
// calls; outcomes already collected are kept and the rest are reported as
// canceled.
func (o *Orchestrator) Enrich(ctx context.Context, ind domain.Indicator) []domain.EnrichmentOutcome {
	providers := o.registry.For(ind.Type)
	if len(providers) == 0 {
		return []domain.EnrichmentOutcome{}
	}

	outcomes := make([]domain.EnrichmentOutcome, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p ports.Provider) {
			defer wg.Done()
			outcomes[i] = o.dispatch(ctx, p, ind)
		}(i, p)
	}
	wg.Wait()
	return outcomes
}

// dispatch runs the retry loop for one provider and always yields an outcome.
func (o *Orchestrator) dispatch(ctx context.Context, p ports.Provider, ind domain.Indicator) domain.EnrichmentOutcome {
	start := o.now()
	log := o.logger.With(zap.String("provider", p.ID()), zap.String("indicator", ind.Value))

	var (
		sig      domain.Signal
		err      *domain.ProviderError
		attempts int
	)
	for attempts = 1; ; attempts++ {
		sig, err = o.attempt(ctx, p, ind)
		o.metrics.ObserveAttempt(p.ID(), err == nil)
		if err == nil || err.Kind == domain.ErrorKindCanceled || !err.Transient() || attempts >= o.policy.MaxAttempts {
			break
		}
		delay := o.policy.Backoff.Delay(attempts)
		log.Warn("provider attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.String("error_kind", string(err.Kind)),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if !sleep(ctx, delay) {
			err = &domain.ProviderError{Provider: p.ID(), Kind: domain.ErrorKindCanceled, Err: ctx.Err()}
			break
		}
	}

	out := domain.EnrichmentOutcome{
		ProviderID: p.ID(),
		SignalType: p.SignalType(),
		Attempts:   attempts,
		Latency:    o.now().Sub(start),
		EnrichedAt: o.now().UTC(),
	}
	if err == nil {
		out.Success = true
		out.Score = sig.Score
		out.RawDetail = sig.Detail
	} else {
		out.ErrorKind = err.Kind
		out.ErrorMessage = err.Error()
		if err.Kind != domain.ErrorKindCanceled {
			log.Warn("provider failed",
				zap.Int("attempts", attempts),
				zap.String("error_kind", string(err.Kind)),
				zap.Error(err))
		}
	}
	o.metrics.ObserveOutcome(p.ID(), out.Success, string(out.ErrorKind), out.Latency)
	return out
}

type invokeResult struct {
	sig domain.Signal
	err error
}

// attempt holds one concurrency slot for the duration of a single call. A
// provider that ignores its context is abandoned at the deadline; its late
// result lands in a buffered channel nobody reads.
func (o *Orchestrator) attempt(ctx context.Context, p ports.Provider, ind domain.Indicator) (domain.Signal, *domain.ProviderError) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return domain.Signal{}, &domain.ProviderError{Provider: p.ID(), Kind: domain.ErrorKindCanceled, Err: err}
	}
	defer o.sem.Release(1)

	actx, cancel := context.WithTimeout(ctx, o.policy.Timeout)
	defer cancel()

	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeResult{err: domain.NewPermanentError(p.ID(), domain.ErrorKindUnknown, fmt.Errorf("provider panic: %v", r))}
			}
		}()
		sig, err := p.Invoke(actx, ind.Value, ind.Type)
		done <- invokeResult{sig: sig, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return domain.Signal{}, classifyError(ctx, p.ID(), r.err)
		}
		if math.IsNaN(r.sig.Score) {
			return domain.Signal{}, domain.NewPermanentError(p.ID(), domain.ErrorKindUnknown, errInvalidScore)
		}
		r.sig.Score = math.Min(math.Max(r.sig.Score, minScore), maxScore)
		return r.sig, nil
	case <-actx.Done():
		if ctx.Err() != nil {
			return domain.Signal{}, &domain.ProviderError{Provider: p.ID(), Kind: domain.ErrorKindCanceled, Err: ctx.Err()}
		}
		return domain.Signal{}, domain.NewTransientError(p.ID(), domain.ErrorKindTimeout,
			fmt.Errorf("no answer within %s", o.policy.Timeout))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
