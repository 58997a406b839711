package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threatlens/internal/domain"
)

func TestSimulated_Deterministic(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	whois := NewSimulatedWhois()
	whois.now = func() time.Time { return fixed }

	cases := []struct {
		p     interface {
			Invoke(context.Context, string, domain.IndicatorType) (domain.Signal, error)
		}
		value string
		typ   domain.IndicatorType
	}{
		{whois, "evil.example", domain.TypeDomain},
		{NewSimulatedReputation(), "198.51.100.23", domain.TypeIP},
		{NewSimulatedHash(), "44d88612fea8a8f36de82e1278abb02f", domain.TypeHash},
	}
	for _, c := range cases {
		a, err := c.p.Invoke(ctx, c.value, c.typ)
		require.NoError(t, err)
		b, err := c.p.Invoke(ctx, c.value, c.typ)
		require.NoError(t, err)
		assert.Equal(t, a, b, c.value)
		assert.GreaterOrEqual(t, a.Score, 0.0)
		assert.LessOrEqual(t, a.Score, 10.0)
	}
}

func TestSimulatedWhois_SuspiciousNamesAreYoung(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewSimulatedWhois()
	p.now = func() time.Time { return now }

	sig, err := p.Invoke(context.Background(), "https://login.phish-bank.example/x", domain.TypeURL)
	require.NoError(t, err)
	assert.Equal(t, "phish-bank.example", sig.Detail["domain"])

	created, err := time.Parse(time.RFC3339, sig.Detail["creation_date"].(string))
	require.NoError(t, err)
	assert.LessOrEqual(t, now.Sub(created), 90*24*time.Hour)
	assert.GreaterOrEqual(t, sig.Score, 3.0)
}

func TestSimulatedReputation_PrivateAddressesStayClean(t *testing.T) {
	sig, err := NewSimulatedReputation().Invoke(context.Background(), "10.1.2.3", domain.TypeIP)
	require.NoError(t, err)
	assert.LessOrEqual(t, sig.Detail["abuse_confidence_score"].(int), 30)
	assert.Equal(t, false, sig.Detail["is_tor"])
}

func TestWhoisScore(t *testing.T) {
	assert.Equal(t, 7.5, whoisScore(10, "RU", false))
	assert.Equal(t, 0.0, whoisScore(4000, "US", true))
	assert.Equal(t, 1.5, whoisScore(200, "DE", false))
}
