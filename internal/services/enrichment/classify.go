package enrichment

import (
	"context"
	"errors"
	"net"

	"threatlens/internal/domain"
)

// classifyError maps whatever a provider returned onto a *domain.ProviderError.
// parent is the dispatch context: when it is done the failure is attributed to
// the caller, not the provider.
func classifyError(parent context.Context, providerID string, err error) *domain.ProviderError {
	if parent.Err() != nil {
		return &domain.ProviderError{Provider: providerID, Kind: domain.ErrorKindCanceled, Err: parent.Err()}
	}

	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		if pe.Kind == domain.ErrorKindNone {
			return &domain.ProviderError{Provider: providerID, Kind: domain.ErrorKindUnknown, Err: pe.Err}
		}
		if pe.Provider == "" {
			return &domain.ProviderError{Provider: providerID, Kind: pe.Kind, Err: pe.Err}
		}
		return pe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// The attempt context expired while the parent is still live.
		return domain.NewTransientError(providerID, domain.ErrorKindTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.NewTransientError(providerID, domain.ErrorKindTimeout, err)
		}
		return domain.NewTransientError(providerID, domain.ErrorKindNetwork, err)
	}

	return domain.NewPermanentError(providerID, domain.ErrorKindUnknown, err)
}
