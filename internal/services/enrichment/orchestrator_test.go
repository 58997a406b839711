package enrichment

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threatlens/internal/domain"
	"threatlens/internal/observability"
	"threatlens/internal/ports"
)

func fastPolicy(attempts int, timeout time.Duration) Policy {
	return Policy{
		Timeout:     timeout,
		MaxAttempts: attempts,
		Backoff:     Backoff{Initial: time.Millisecond, Multiplier: 1},
	}
}

func newOrchestrator(t *testing.T, concurrency int, policy Policy, ps ...ports.Provider) *Orchestrator {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.RegisterAll(ps...))
	reg.Seal()
	o, err := NewOrchestrator(reg, Options{Concurrency: concurrency, Policy: policy})
	require.NoError(t, err)
	return o
}

func byProvider(outcomes []domain.EnrichmentOutcome) map[string]domain.EnrichmentOutcome {
	m := make(map[string]domain.EnrichmentOutcome, len(outcomes))
	for _, o := range outcomes {
		m[o.ProviderID] = o
	}
	return m
}

func domainIndicator(t *testing.T) domain.Indicator {
	t.Helper()
	ind, err := domain.NewIndicator(domain.TypeDomain, "evil.example")
	require.NoError(t, err)
	return ind
}

func TestEnrich_NoProviders(t *testing.T) {
	o := newOrchestrator(t, 2, fastPolicy(3, time.Second), scoring("a", 1))
	ind, err := domain.NewIndicator(domain.TypeEmail, "x@example.com")
	require.NoError(t, err)

	out := o.Enrich(context.Background(), ind)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestEnrich_AllSucceed(t *testing.T) {
	o := newOrchestrator(t, 2, fastPolicy(3, time.Second), scoring("a", 2.0), scoring("b", 9.0))

	out := byProvider(o.Enrich(context.Background(), domainIndicator(t)))
	require.Len(t, out, 2)
	assert.True(t, out["a"].Success)
	assert.Equal(t, 2.0, out["a"].Score)
	assert.Equal(t, 9.0, out["b"].Score)
	assert.Equal(t, 1, out["b"].Attempts)
	assert.Equal(t, "b", out["b"].RawDetail["id"])
}

func TestEnrich_TimeoutRetriedThenSingleFailure(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// ignores its context entirely
	stuck := &fakeProvider{
		id:     "stuck",
		signal: domain.SignalReputation,
		types:  []domain.IndicatorType{domain.TypeDomain},
		invoke: func(context.Context, string) (domain.Signal, error) {
			<-release
			return domain.Signal{Score: 10}, nil
		},
	}
	o := newOrchestrator(t, 4, fastPolicy(3, 30*time.Millisecond), stuck, scoring("quick", 3.0))

	out := o.Enrich(context.Background(), domainIndicator(t))
	require.Len(t, out, 2)

	got := byProvider(out)
	assert.False(t, got["stuck"].Success)
	assert.Equal(t, domain.ErrorKindTimeout, got["stuck"].ErrorKind)
	assert.Equal(t, 3, got["stuck"].Attempts)
	assert.Equal(t, int32(3), stuck.calls.Load())

	assert.True(t, got["quick"].Success)
	assert.Less(t, got["quick"].Latency, 50*time.Millisecond)
}

func TestEnrich_PermanentErrorNotRetried(t *testing.T) {
	bad := failing("bad", domain.NewPermanentError("bad", domain.ErrorKindInvalidInput, errors.New("malformed")))
	o := newOrchestrator(t, 2, fastPolicy(3, time.Second), bad)

	out := o.Enrich(context.Background(), domainIndicator(t))
	require.Len(t, out, 1)
	assert.False(t, out[0].Success)
	assert.Equal(t, domain.ErrorKindInvalidInput, out[0].ErrorKind)
	assert.Equal(t, 1, out[0].Attempts)
	assert.Equal(t, int32(1), bad.calls.Load())
	assert.Contains(t, out[0].ErrorMessage, "malformed")
}

func TestEnrich_TransientThenSuccess(t *testing.T) {
	var n atomic.Int32
	flaky := &fakeProvider{
		id:     "flaky",
		signal: domain.SignalFeedMembership,
		types:  []domain.IndicatorType{domain.TypeDomain},
		invoke: func(context.Context, string) (domain.Signal, error) {
			if n.Add(1) < 3 {
				return domain.Signal{}, domain.NewTransientError("flaky", domain.ErrorKindNetwork, errors.New("reset"))
			}
			return domain.Signal{Score: 9}, nil
		},
	}
	o := newOrchestrator(t, 1, fastPolicy(3, time.Second), flaky)

	out := o.Enrich(context.Background(), domainIndicator(t))
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	assert.Equal(t, 3, out[0].Attempts)
	assert.Equal(t, domain.SignalFeedMembership, out[0].SignalType)
}

func TestEnrich_UnclassifiedErrorsArePermanent(t *testing.T) {
	o := newOrchestrator(t, 1, fastPolicy(3, time.Second), failing("plain", errors.New("boom")))

	out := o.Enrich(context.Background(), domainIndicator(t))
	require.Len(t, out, 1)
	assert.Equal(t, domain.ErrorKindUnknown, out[0].ErrorKind)
	assert.Equal(t, 1, out[0].Attempts)
}

func TestEnrich_PanicBecomesFailedOutcome(t *testing.T) {
	p := &fakeProvider{
		id:     "panics",
		types:  []domain.IndicatorType{domain.TypeDomain},
		invoke: func(context.Context, string) (domain.Signal, error) { panic("nil map") },
	}
	o := newOrchestrator(t, 1, fastPolicy(3, time.Second), p, scoring("fine", 1))

	got := byProvider(o.Enrich(context.Background(), domainIndicator(t)))
	assert.False(t, got["panics"].Success)
	assert.Equal(t, domain.ErrorKindUnknown, got["panics"].ErrorKind)
	assert.True(t, got["fine"].Success)
}

func TestEnrich_ScoresAreBounded(t *testing.T) {
	nan := scoring("nan", math.NaN())
	o := newOrchestrator(t, 2, fastPolicy(1, time.Second), scoring("big", 42), scoring("neg", -3), nan)

	got := byProvider(o.Enrich(context.Background(), domainIndicator(t)))
	assert.Equal(t, 10.0, got["big"].Score)
	assert.Equal(t, 0.0, got["neg"].Score)
	assert.False(t, got["nan"].Success)
}

func TestEnrich_CallerCancelKeepsCollectedOutcomes(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	hang := &fakeProvider{
		id:     "hang",
		types:  []domain.IndicatorType{domain.TypeDomain},
		invoke: func(context.Context, string) (domain.Signal, error) { <-release; return domain.Signal{}, nil },
	}
	o := newOrchestrator(t, 2, fastPolicy(3, 5*time.Second), scoring("fast", 4), hang)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	got := byProvider(o.Enrich(ctx, domainIndicator(t)))
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, got, 2)
	assert.True(t, got["fast"].Success)
	assert.Equal(t, 4.0, got["fast"].Score)
	assert.False(t, got["hang"].Success)
	assert.Equal(t, domain.ErrorKindCanceled, got["hang"].ErrorKind)
}

func TestEnrich_ConcurrencyBudget(t *testing.T) {
	var inFlight, peak atomic.Int32
	mk := func(id string) *fakeProvider {
		return &fakeProvider{
			id:    id,
			types: []domain.IndicatorType{domain.TypeDomain},
			invoke: func(context.Context, string) (domain.Signal, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				inFlight.Add(-1)
				return domain.Signal{Score: 1}, nil
			},
		}
	}
	o := newOrchestrator(t, 2, fastPolicy(1, time.Second), mk("p1"), mk("p2"), mk("p3"), mk("p4"), mk("p5"))

	out := o.Enrich(context.Background(), domainIndicator(t))
	assert.Len(t, out, 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestEnrich_RecordsMetrics(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(failing("down", domain.NewTransientError("down", domain.ErrorKindUpstream, errors.New("503")))))
	reg.Seal()
	m := observability.NewMetrics(prometheus.NewRegistry())
	o, err := NewOrchestrator(reg, Options{Concurrency: 1, Policy: fastPolicy(2, time.Second), Metrics: m})
	require.NoError(t, err)

	o.Enrich(context.Background(), domainIndicator(t))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("down", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("down", "false", "upstream")))
}

func TestNewOrchestrator_RejectsBadConfig(t *testing.T) {
	_, err := NewOrchestrator(NewRegistry(), Options{Concurrency: 0, Policy: DefaultPolicy()})
	assert.True(t, domain.IsConfigurationError(err))

	_, err = NewOrchestrator(nil, Options{Concurrency: 1, Policy: DefaultPolicy()})
	assert.True(t, domain.IsConfigurationError(err))
}
