package embed

import (
	"context"

	scherr "github.com/scholia-dev/scholia/internal/errors"
)

// UnavailableProvider is the degraded end of the provider chain. Every
// embedding call fails with a typed error; callers that see it fall
// back to keyword-only retrieval.
type UnavailableProvider struct{}

// Verify interface implementation at compile time
var _ Provider = (*UnavailableProvider)(nil)

// NewUnavailableProvider creates the degraded provider.
func NewUnavailableProvider() *UnavailableProvider {
	return &UnavailableProvider{}
}

func (e *UnavailableProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, scherr.New(scherr.ErrCodeNetworkUnavailable, "no embedding provider available", nil)
}

func (e *UnavailableProvider) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, scherr.New(scherr.ErrCodeNetworkUnavailable, "no embedding provider available", nil)
}

// Dimensions returns 0; there is no vector space without a provider.
func (e *UnavailableProvider) Dimensions() int { return 0 }

// ModelName returns the model identifier.
func (e *UnavailableProvider) ModelName() string { return "unavailable" }

// Available always reports false.
func (e *UnavailableProvider) Available(_ context.Context) bool { return false }

// Close releases resources.
func (e *UnavailableProvider) Close() error { return nil }
