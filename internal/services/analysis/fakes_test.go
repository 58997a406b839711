package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"threatlens/internal/domain"
	"threatlens/internal/ports"
)

type memStore struct {
	mu         sync.Mutex
	indicators map[string]domain.Indicator
	outcomes   map[string][]domain.EnrichmentOutcome
	verdicts   map[string][]domain.Verdict
	jobs       []ports.ClassifyJob
	verdictErr error
}

func newMemStore() *memStore {
	return &memStore{
		indicators: make(map[string]domain.Indicator),
		outcomes:   make(map[string][]domain.EnrichmentOutcome),
		verdicts:   make(map[string][]domain.Verdict),
	}
}

func (m *memStore) UpsertIndicator(_ context.Context, ind domain.Indicator) (domain.Indicator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.indicators {
		if existing.Value == ind.Value {
			return existing, nil
		}
	}
	ind.ID = fmt.Sprintf("ind-%d", len(m.indicators)+1)
	m.indicators[ind.ID] = ind
	return ind, nil
}

func (m *memStore) GetIndicator(_ context.Context, id string) (domain.Indicator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ind, ok := m.indicators[id]
	if !ok {
		return ind, domain.ErrNotFound
	}
	return ind, nil
}

func (m *memStore) FindIndicator(_ context.Context, value string) (domain.Indicator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ind := range m.indicators {
		if ind.Value == value {
			return ind, nil
		}
	}
	return domain.Indicator{}, domain.ErrNotFound
}

func (m *memStore) AppendOutcomes(_ context.Context, id string, outcomes []domain.EnrichmentOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[id] = append(m.outcomes[id], outcomes...)
	return nil
}

func (m *memStore) ListOutcomes(_ context.Context, id string) ([]domain.EnrichmentOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[id], nil
}

func (m *memStore) AppendVerdict(_ context.Context, id string, v domain.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.verdictErr != nil {
		return m.verdictErr
	}
	m.verdicts[id] = append(m.verdicts[id], v)
	return nil
}

func (m *memStore) LatestVerdict(_ context.Context, id string) (domain.Verdict, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs := m.verdicts[id]
	if len(vs) == 0 {
		return domain.Verdict{}, false, nil
	}
	return vs[len(vs)-1], true, nil
}

func (m *memStore) CountByRiskLevel(context.Context) (map[domain.RiskLevel]int, error) {
	return nil, errors.New("unused")
}

func (m *memStore) Enqueue(_ context.Context, indicatorID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("job-%d", len(m.jobs)+1)
	m.jobs = append(m.jobs, ports.ClassifyJob{ID: id, IndicatorID: indicatorID})
	return id, nil
}

func (m *memStore) ClaimNext(context.Context) (ports.ClassifyJob, bool, error) {
	return ports.ClassifyJob{}, false, nil
}

func (m *memStore) ClaimJob(context.Context, string) (ports.ClassifyJob, bool, error) {
	return ports.ClassifyJob{}, false, nil
}

func (m *memStore) MarkCompleted(context.Context, string) error      { return nil }
func (m *memStore) MarkFailed(context.Context, string, string) error { return nil }

type stubEnricher struct {
	mu    sync.Mutex
	calls int
	score float64
}

func (e *stubEnricher) Enrich(_ context.Context, ind domain.Indicator) []domain.EnrichmentOutcome {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return []domain.EnrichmentOutcome{{ProviderID: "stub", SignalType: domain.SignalReputation, Success: true, Score: e.score, Attempts: 1}}
}

type stubClassifier struct{}

func (stubClassifier) Classify(_ context.Context, _ domain.Indicator, outcomes []domain.EnrichmentOutcome) domain.Verdict {
	top := 0.0
	for _, o := range outcomes {
		if o.Success && o.Score > top {
			top = o.Score
		}
	}
	level := domain.RiskLow
	if top >= 7 {
		level = domain.RiskHigh
	}
	return domain.Verdict{RiskLevel: level, RiskScore: top, MaxScore: top, Model: "stub"}
}
