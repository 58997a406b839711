// Package analysis ties enrichment, classification and persistence together
// for one indicator or a batch of them.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"threatlens/internal/domain"
	"threatlens/internal/ports"
)

var (
	ErrInvalidIndicator = errors.New("invalid indicator")
	ErrBatchTooLarge    = errors.New("batch too large")
	ErrEmptyBatch       = errors.New("no valid indicators in batch")
)

const (
	DefaultBatchConcurrency = 10
	DefaultBatchMax         = 50
)

// Store is the slice of persistence the service needs.
type Store interface {
	ports.IndicatorRepository
	ports.OutcomeRepository
	ports.VerdictRepository
	ports.JobRepository
}

type Options struct {
	BatchConcurrency int
	BatchMax         int
	Logger           *zap.Logger
}

type Service struct {
	store      Store
	enricher   ports.Enricher
	classifier ports.Classifier
	opts       Options
	logger     *zap.Logger
}

func New(store Store, enricher ports.Enricher, classifier ports.Classifier, opts Options) *Service {
	if opts.BatchConcurrency < 1 {
		opts.BatchConcurrency = DefaultBatchConcurrency
	}
	if opts.BatchMax < 1 {
		opts.BatchMax = DefaultBatchMax
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, enricher: enricher, classifier: classifier, opts: opts, logger: logger}
}

type Submission struct {
	Type   domain.IndicatorType
	Value  string
	Source string
	Tags   []string
}

type Submitted struct {
	Indicator domain.Indicator
	JobID     string
}

// Result is one finished analysis. Cached is set when Verdict was read back
// from storage instead of being produced now.
type Result struct {
	Indicator domain.Indicator
	Outcomes  []domain.EnrichmentOutcome
	Verdict   domain.Verdict
	Cached    bool
}

// Submit records the indicator (bumping last_seen for a known value) and
// queues a classification job for it.
func (s *Service) Submit(ctx context.Context, sub Submission) (Submitted, error) {
	ind, err := domain.NewIndicator(sub.Type, sub.Value)
	if err != nil {
		return Submitted{}, fmt.Errorf("%w: %v", ErrInvalidIndicator, err)
	}
	ind.Source = sub.Source
	ind.Tags = sub.Tags

	stored, err := s.store.UpsertIndicator(ctx, ind)
	if err != nil {
		return Submitted{}, fmt.Errorf("store indicator: %w", err)
	}
	jobID, err := s.store.Enqueue(ctx, stored.ID)
	if err != nil {
		return Submitted{}, fmt.Errorf("enqueue classification: %w", err)
	}
	s.logger.Info("indicator submitted",
		zap.String("indicator_id", stored.ID),
		zap.String("type", string(stored.Type)),
		zap.String("job_id", jobID))
	return Submitted{Indicator: stored, JobID: jobID}, nil
}

// Analyze runs enrichment and classification for ind and persists both. The
// verdict is always returned; a non-nil error reports what failed to persist.
func (s *Service) Analyze(ctx context.Context, ind domain.Indicator) (Result, error) {
	start := time.Now()
	outcomes := s.enricher.Enrich(ctx, ind)

	var errs []error
	if err := s.store.AppendOutcomes(ctx, ind.ID, outcomes); err != nil {
		s.logger.Error("persist outcomes", zap.String("indicator_id", ind.ID), zap.Error(err))
		errs = append(errs, fmt.Errorf("persist outcomes: %w", err))
	}

	verdict := s.classifier.Classify(ctx, ind, outcomes)
	if err := s.store.AppendVerdict(ctx, ind.ID, verdict); err != nil {
		s.logger.Error("persist verdict", zap.String("indicator_id", ind.ID), zap.Error(err))
		errs = append(errs, fmt.Errorf("persist verdict: %w", err))
	}

	s.logger.Info("indicator analyzed",
		zap.String("indicator_id", ind.ID),
		zap.String("value", ind.Value),
		zap.String("risk_level", string(verdict.RiskLevel)),
		zap.Float64("risk_score", verdict.RiskScore),
		zap.Int("outcomes", len(outcomes)),
		zap.Duration("took", time.Since(start)))

	return Result{Indicator: ind, Outcomes: outcomes, Verdict: verdict}, errors.Join(errs...)
}

// Classify returns the stored verdict for the indicator unless force is set
// or none exists, in which case it analyzes afresh.
func (s *Service) Classify(ctx context.Context, indicatorID string, force bool) (Result, error) {
	ind, err := s.store.GetIndicator(ctx, indicatorID)
	if err != nil {
		return Result{}, err
	}
	if !force {
		v, found, err := s.store.LatestVerdict(ctx, ind.ID)
		if err != nil {
			return Result{}, fmt.Errorf("latest verdict: %w", err)
		}
		if found {
			return Result{Indicator: ind, Verdict: v, Cached: true}, nil
		}
	}
	return s.Analyze(ctx, ind)
}

// Process is the job processor for the worker pool.
func (s *Service) Process(ctx context.Context, indicatorID string) error {
	ind, err := s.store.GetIndicator(ctx, indicatorID)
	if err != nil {
		return fmt.Errorf("load indicator %s: %w", indicatorID, err)
	}
	_, err = s.Analyze(ctx, ind)
	return err
}

type BatchItem struct {
	IndicatorID string
	Result      Result
	Err         error
}

// AnalyzeBatch analyzes up to BatchMax indicators concurrently. Unknown ids
// yield an item carrying domain.ErrNotFound; ErrEmptyBatch is returned when
// none of the ids resolve.
func (s *Service) AnalyzeBatch(ctx context.Context, indicatorIDs []string) ([]BatchItem, error) {
	if len(indicatorIDs) > s.opts.BatchMax {
		return nil, fmt.Errorf("%w: %d indicators, max %d", ErrBatchTooLarge, len(indicatorIDs), s.opts.BatchMax)
	}

	items := make([]BatchItem, len(indicatorIDs))
	indicators := make([]domain.Indicator, len(indicatorIDs))
	resolved := 0
	for i, id := range indicatorIDs {
		items[i].IndicatorID = id
		ind, err := s.store.GetIndicator(ctx, id)
		if err != nil {
			items[i].Err = err
			continue
		}
		indicators[i] = ind
		resolved++
	}
	if resolved == 0 {
		return items, ErrEmptyBatch
	}

	var g errgroup.Group
	g.SetLimit(s.opts.BatchConcurrency)
	for i := range items {
		if items[i].Err != nil {
			continue
		}
		g.Go(func() error {
			items[i].Result, items[i].Err = s.Analyze(ctx, indicators[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	s.logger.Info("batch analyzed", zap.Int("total", len(items)), zap.Int("failed", failed))
	return items, nil
}
