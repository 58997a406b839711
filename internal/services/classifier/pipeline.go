package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"threatlens/internal/domain"
	"threatlens/internal/observability"
	"threatlens/internal/ports"
	"threatlens/internal/services/scoring"
)

const DefaultReasonTimeout = 60 * time.Second

type Options struct {
	Thresholds    scoring.Thresholds
	ReasonTimeout time.Duration
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// Pipeline runs Plan, Observe and Reason for one indicator at a time. It holds
// no per-indicator state and is safe for concurrent use.
type Pipeline struct {
	reasoner      ports.Reasoner
	thresholds    scoring.Thresholds
	reasonTimeout time.Duration
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

var _ ports.Classifier = (*Pipeline)(nil)

func NewPipeline(reasoner ports.Reasoner, opts Options) (*Pipeline, error) {
	if reasoner == nil {
		return nil, &domain.ConfigurationError{Field: "reasoner", Reason: "is required"}
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	timeout := opts.ReasonTimeout
	if timeout <= 0 {
		timeout = DefaultReasonTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		reasoner:      reasoner,
		thresholds:    opts.Thresholds,
		reasonTimeout: timeout,
		logger:        logger.Named("classifier"),
		metrics:       opts.Metrics,
		now:           time.Now,
	}, nil
}

// Classify always returns a verdict. Reasoning failures of any kind degrade to
// an unknown verdict carrying the strongest observed score.
func (p *Pipeline) Classify(ctx context.Context, ind domain.Indicator, outcomes []domain.EnrichmentOutcome) domain.Verdict {
	now := p.now()
	agg := scoring.Aggregate(outcomes)
	plan := BuildPlan(ind, agg)
	observations := Observe(outcomes, now)

	base := domain.Verdict{
		Model:        p.reasoner.Model(),
		AverageScore: agg.AverageScore,
		MaxScore:     agg.MaxScore,
		ClassifiedAt: now.UTC(),
	}
	log := p.logger.With(zap.String("indicator", ind.Value), zap.String("type", string(ind.Type)))

	if agg.SuccessfulCount == 0 {
		v := base
		v.Model = ""
		v.RiskLevel = domain.RiskUnknown
		v.Reasoning = fmt.Sprintf("No enrichment source returned a signal (%d failed).", agg.FailedCount)
		p.metrics.ObserveFallback("no_signal")
		p.metrics.ObserveVerdict(string(v.RiskLevel))
		log.Info("classified without signals", zap.Int("failed", agg.FailedCount))
		return v
	}

	a, err := p.reason(ctx, ind, plan, observations, agg)
	if err != nil {
		reason := "unavailable"
		var perr *domain.ReasoningParseError
		if errors.As(err, &perr) {
			reason = "parse"
		}
		log.Warn("reasoning failed, using fallback verdict", zap.String("reason", reason), zap.Error(err))
		p.metrics.ObserveFallback(reason)

		v := base
		v.RiskLevel = domain.RiskUnknown
		v.RiskScore = agg.MaxScore
		v.Reasoning = "Reasoning could not be completed: " + err.Error()
		p.metrics.ObserveVerdict(string(v.RiskLevel))
		return v
	}

	score := p.thresholds.Align(a.RiskScore, agg)
	v := base
	v.RiskScore = score
	v.RiskLevel = p.thresholds.Level(score)
	v.Confidence = a.Confidence
	v.Reasoning = a.Reasoning
	v.KeyFactors = a.KeyFactors

	log.Info("classified",
		zap.String("risk_level", string(v.RiskLevel)),
		zap.Float64("risk_score", v.RiskScore),
		zap.Float64("reasoned_score", a.RiskScore),
		zap.String("reasoned_level", string(a.RiskLevel)),
		zap.Float64("confidence", v.Confidence))
	p.metrics.ObserveVerdict(string(v.RiskLevel))
	return v
}

func (p *Pipeline) reason(ctx context.Context, ind domain.Indicator, plan Plan, observations []string, agg domain.AggregateSignal) (Assessment, error) {
	rctx, cancel := context.WithTimeout(ctx, p.reasonTimeout)
	defer cancel()

	req := ports.ReasoningRequest{
		IndicatorType:  ind.Type,
		IndicatorValue: ind.Value,
		Plan:           plan.String(),
		Observations:   observations,
		AverageScore:   agg.AverageScore,
		MaxScore:       agg.MaxScore,
	}

	type result struct {
		raw string
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := p.reasoner.Reason(rctx, req)
		done <- result{raw, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Assessment{}, fmt.Errorf("reasoning service: %w", r.err)
		}
		return ParseAssessment(r.raw)
	case <-rctx.Done():
		return Assessment{}, fmt.Errorf("reasoning service: %w", rctx.Err())
	}
}
