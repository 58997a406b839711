package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threatlens/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func jobStatus(t *testing.T, s *Store, id string) string {
	t.Helper()
	var status string
	require.NoError(t, s.db.QueryRow(`SELECT status FROM classify_jobs WHERE id = ?`, id).Scan(&status))
	return status
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	s := openTestStore(t)

	applied, err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
}

func TestStore_UpsertIndicator(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	first, err := s.UpsertIndicator(ctx, domain.Indicator{Type: domain.TypeDomain, Value: "evil.example", Source: "manual", Tags: []string{"phish"}})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, base, first.FirstSeen)

	s.now = func() time.Time { return base.Add(time.Hour) }
	second, err := s.UpsertIndicator(ctx, domain.Indicator{Type: domain.TypeDomain, Value: "evil.example"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, base, second.FirstSeen)
	assert.Equal(t, base.Add(time.Hour), second.LastSeen)
	assert.Equal(t, []string{"phish"}, second.Tags)
	assert.Equal(t, "manual", second.Source)

	got, err := s.GetIndicator(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "evil.example", got.Value)

	_, err = s.FindIndicator(ctx, "nope.example")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetIndicator(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Outcomes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ind, err := s.UpsertIndicator(ctx, domain.Indicator{Type: domain.TypeIP, Value: "203.0.113.7"})
	require.NoError(t, err)

	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, s.AppendOutcomes(ctx, ind.ID, []domain.EnrichmentOutcome{
		{ProviderID: "abuseipdb", SignalType: domain.SignalReputation, Success: true, Score: 8.5,
			RawDetail: map[string]any{"is_tor": true}, Attempts: 1, Latency: 120 * time.Millisecond, EnrichedAt: at},
		{ProviderID: "sim-reputation", SignalType: domain.SignalReputation, ErrorKind: domain.ErrorKindRateLimited,
			ErrorMessage: "429", Attempts: 3, EnrichedAt: at.Add(time.Second)},
	}))

	got, err := s.ListOutcomes(ctx, ind.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.True(t, got[0].Success)
	assert.Equal(t, 8.5, got[0].Score)
	assert.Equal(t, true, got[0].RawDetail["is_tor"])
	assert.Equal(t, 120*time.Millisecond, got[0].Latency)
	assert.Equal(t, at, got[0].EnrichedAt)

	assert.False(t, got[1].Success)
	assert.Equal(t, domain.ErrorKindRateLimited, got[1].ErrorKind)
	assert.Equal(t, "429", got[1].ErrorMessage)
	assert.Equal(t, 3, got[1].Attempts)
	assert.Nil(t, got[1].RawDetail)

	empty, err := s.ListOutcomes(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_VerdictsLatestWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, err := s.UpsertIndicator(ctx, domain.Indicator{Type: domain.TypeDomain, Value: "a.example"})
	require.NoError(t, err)
	b, err := s.UpsertIndicator(ctx, domain.Indicator{Type: domain.TypeDomain, Value: "b.example"})
	require.NoError(t, err)

	_, found, err := s.LatestVerdict(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, found)

	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendVerdict(ctx, a.ID, domain.Verdict{RiskLevel: domain.RiskLow, RiskScore: 1, ClassifiedAt: t0}))
	require.NoError(t, s.AppendVerdict(ctx, a.ID, domain.Verdict{RiskLevel: domain.RiskHigh, RiskScore: 9, Confidence: 0.8,
		KeyFactors: []string{"listed in feed"}, Model: "heuristic-v1", AverageScore: 5.5, MaxScore: 9, ClassifiedAt: t0.Add(time.Minute)}))
	require.NoError(t, s.AppendVerdict(ctx, b.ID, domain.Verdict{RiskLevel: domain.RiskLow, RiskScore: 2, ClassifiedAt: t0}))

	v, found, err := s.LatestVerdict(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.RiskHigh, v.RiskLevel)
	assert.Equal(t, []string{"listed in feed"}, v.KeyFactors)
	assert.Equal(t, "heuristic-v1", v.Model)
	assert.Equal(t, t0.Add(time.Minute), v.ClassifiedAt)

	counts, err := s.CountByRiskLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.RiskLevel]int{domain.RiskHigh: 1, domain.RiskLow: 1}, counts)
}

func TestStore_JobLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ind, err := s.UpsertIndicator(ctx, domain.Indicator{Type: domain.TypeHash, Value: "d41d8cd98f00b204e9800998ecf8427e"})
	require.NoError(t, err)

	_, found, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	first, err := s.Enqueue(ctx, ind.ID)
	require.NoError(t, err)
	second, err := s.Enqueue(ctx, ind.ID)
	require.NoError(t, err)

	job, found, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first, job.ID)
	assert.Equal(t, ind.ID, job.IndicatorID)
	assert.Equal(t, "running", jobStatus(t, s, first))

	_, found, err = s.ClaimJob(ctx, first)
	require.NoError(t, err)
	assert.False(t, found, "running job cannot be claimed twice")

	job, found, err = s.ClaimJob(ctx, second)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, second, job.ID)

	require.NoError(t, s.MarkCompleted(ctx, first))
	require.NoError(t, s.MarkFailed(ctx, second, "boom"))
	assert.Equal(t, "completed", jobStatus(t, s, first))
	assert.Equal(t, "failed", jobStatus(t, s, second))
}
