package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threatlens/internal/domain"
)

func TestRegistry_LookupByType(t *testing.T) {
	reg := NewRegistry()
	a := scoring("a", 1)
	b := &fakeProvider{id: "b", types: []domain.IndicatorType{domain.TypeIP, domain.TypeDomain}}
	require.NoError(t, reg.RegisterAll(a, b))
	reg.Seal()

	got := reg.For(domain.TypeDomain)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID())
	assert.Equal(t, "b", got[1].ID())
	assert.Len(t, reg.For(domain.TypeIP), 1)
	assert.Empty(t, reg.For(domain.TypeEmail))
	assert.Equal(t, []domain.IndicatorType{domain.TypeIP, domain.TypeDomain}, reg.TypesFor(b))
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(scoring("dup", 1)))

	err := reg.Register(scoring("dup", 2))
	require.Error(t, err)
	assert.True(t, domain.IsConfigurationError(err))
	assert.Len(t, reg.Providers(), 1)
}

func TestRegistry_RejectsAfterSealAndInapplicable(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&fakeProvider{id: "none"})
	assert.True(t, domain.IsConfigurationError(err))

	reg.Seal()
	err = reg.Register(scoring("late", 1))
	assert.True(t, domain.IsConfigurationError(err))
}
