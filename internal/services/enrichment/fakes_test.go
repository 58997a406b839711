package enrichment

import (
	"context"
	"sync/atomic"

	"threatlens/internal/domain"
)

type fakeProvider struct {
	id     string
	signal domain.SignalType
	types  []domain.IndicatorType
	invoke func(ctx context.Context, value string) (domain.Signal, error)
	calls  atomic.Int32
}

func (f *fakeProvider) ID() string                    { return f.id }
func (f *fakeProvider) SignalType() domain.SignalType { return f.signal }

func (f *fakeProvider) Applicable(t domain.IndicatorType) bool {
	for _, x := range f.types {
		if x == t {
			return true
		}
	}
	return false
}

func (f *fakeProvider) Invoke(ctx context.Context, value string, _ domain.IndicatorType) (domain.Signal, error) {
	f.calls.Add(1)
	return f.invoke(ctx, value)
}

func scoring(id string, score float64) *fakeProvider {
	return &fakeProvider{
		id:     id,
		signal: domain.SignalReputation,
		types:  []domain.IndicatorType{domain.TypeDomain},
		invoke: func(context.Context, string) (domain.Signal, error) {
			return domain.Signal{Score: score, Detail: map[string]any{"id": id}}, nil
		},
	}
}

func failing(id string, err error) *fakeProvider {
	return &fakeProvider{
		id:     id,
		signal: domain.SignalReputation,
		types:  []domain.IndicatorType{domain.TypeDomain},
		invoke: func(context.Context, string) (domain.Signal, error) {
			return domain.Signal{}, err
		},
	}
}
