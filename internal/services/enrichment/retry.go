package enrichment

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"threatlens/internal/domain"
)

// Backoff computes the wait between attempts. A Multiplier of 1 gives a fixed
// delay; anything larger grows exponentially up to Max.
type Backoff struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	// Jitter draws the delay uniformly from [0, computed delay].
	Jitter bool `yaml:"jitter"`
}

// Policy bounds a single provider dispatch.
type Policy struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     Backoff       `yaml:"backoff"`
}

func DefaultPolicy() Policy {
	return Policy{
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		Backoff: Backoff{
			Initial:    2 * time.Second,
			Max:        30 * time.Second,
			Multiplier: 1,
		},
	}
}

func (p Policy) Validate() error {
	switch {
	case p.Timeout <= 0:
		return &domain.ConfigurationError{Field: "enrichment.timeout", Reason: "must be positive"}
	case p.MaxAttempts < 1:
		return &domain.ConfigurationError{Field: "enrichment.max_attempts", Reason: "must be at least 1"}
	case p.Backoff.Initial < 0:
		return &domain.ConfigurationError{Field: "enrichment.backoff.initial", Reason: "must not be negative"}
	case p.Backoff.Multiplier < 1:
		return &domain.ConfigurationError{Field: "enrichment.backoff.multiplier", Reason: fmt.Sprintf("must be >= 1, got %v", p.Backoff.Multiplier)}
	case p.Backoff.Max > 0 && p.Backoff.Max < p.Backoff.Initial:
		return &domain.ConfigurationError{Field: "enrichment.backoff.max", Reason: "must not be below initial"}
	}
	return nil
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 || b.Initial <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if d > math.MaxInt64 {
		d = math.MaxInt64
	}
	delay := time.Duration(d)
	if b.Jitter && delay > 0 {
		delay = rand.N(delay + 1)
	}
	return delay
}
