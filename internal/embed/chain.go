package embed

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	scherr "github.com/scholia-dev/scholia/internal/errors"
)

// SelectOptions configures provider selection.
type SelectOptions struct {
	// Provider forces a specific variant: "remote", "local", "static",
	// or "off". Empty or "auto" walks the chain remote -> local ->
	// unavailable. Static is never auto-selected.
	Provider string

	Remote RemoteConfig
	Local  LocalConfig
}

// Chain wraps the selected provider with chain-level semantics:
// availability is resolved once and cached for the process lifetime,
// and batch embedding fails open per item instead of aborting.
type Chain struct {
	active Provider
	kind   Kind

	availOnce sync.Once
	avail     bool
}

// Verify interface implementation at compile time
var _ Provider = (*Chain)(nil)

// Select resolves the provider chain once. In auto mode a missing
// credential or unreachable local server degrades to the unavailable
// variant without error; explicitly requesting a provider that cannot
// run is a configuration error.
func Select(ctx context.Context, opts SelectOptions) (*Chain, error) {
	switch strings.ToLower(opts.Provider) {
	case "remote":
		remote := NewRemoteEmbedder(opts.Remote)
		if !remote.Available(ctx) {
			remote.Close()
			return nil, scherr.New(scherr.ErrCodeConfigNotFound,
				"remote embedding provider selected but no credential found", nil).
				WithDetail("env", remote.config.APIKeyEnv).
				WithSuggestion("Set the API key, or use provider: local")
		}
		return newChain(remote, KindRemote), nil

	case "local":
		local, err := NewLocalEmbedder(ctx, opts.Local)
		if err != nil {
			return nil, scherr.New(scherr.ErrCodeNetworkUnavailable,
				"local embedding provider selected but Ollama is not reachable", err).
				WithSuggestion("Start Ollama with: ollama serve")
		}
		return newChain(local, KindLocal), nil

	case "static":
		return newChain(NewStaticEmbedder(), KindStatic), nil

	case "off":
		return newChain(NewUnavailableProvider(), KindUnavailable), nil

	case "", "auto":
		return selectAuto(ctx, opts), nil

	default:
		return nil, scherr.New(scherr.ErrCodeConfigInvalid,
			"unknown embedding provider: "+opts.Provider, nil).
			WithSuggestion("Use remote, local, static, or off")
	}
}

// selectAuto walks the chain: remote when a credential is configured,
// otherwise local, otherwise unavailable. Absence of every provider is
// a degraded capability, not an error.
func selectAuto(ctx context.Context, opts SelectOptions) *Chain {
	keyEnv := opts.Remote.APIKeyEnv
	if keyEnv == "" {
		keyEnv = DefaultRemoteAPIKeyEnv
	}
	if os.Getenv(keyEnv) != "" {
		remote := NewRemoteEmbedder(opts.Remote)
		slog.Info("embedding_provider_selected",
			slog.String("provider", string(KindRemote)),
			slog.String("model", remote.ModelName()))
		return newChain(remote, KindRemote)
	}

	local, err := NewLocalEmbedder(ctx, opts.Local)
	if err == nil {
		slog.Info("embedding_provider_selected",
			slog.String("provider", string(KindLocal)),
			slog.String("model", local.ModelName()))
		return newChain(local, KindLocal)
	}

	slog.Info("no_embedding_provider_available",
		slog.String("detail", err.Error()))
	return newChain(NewUnavailableProvider(), KindUnavailable)
}

func newChain(p Provider, kind Kind) *Chain {
	return &Chain{active: p, kind: kind}
}

// Kind returns the selected provider variant.
func (c *Chain) Kind() Kind {
	return c.kind
}

// Embed generates an embedding for a single text.
func (c *Chain) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.active.Embed(ctx, text)
}

// EmbedBatch generates embeddings for multiple texts, one row per input
// in input order. A whole-batch failure decomposes into per-item calls;
// items that still fail yield nil rows so one bad input cannot sink the
// rest of the batch.
func (c *Chain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	rows, err := c.active.EmbedBatch(ctx, texts)
	if err == nil && len(rows) == len(texts) {
		return rows, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		slog.Warn("embed_batch_failed_retrying_per_item",
			slog.Int("texts_count", len(texts)),
			slog.String("error", err.Error()))
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		vec, itemErr := c.active.Embed(ctx, text)
		if itemErr != nil {
			slog.Warn("embed_item_failed",
				slog.Int("index", i),
				slog.String("error", itemErr.Error()))
			continue
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (c *Chain) Dimensions() int {
	return c.active.Dimensions()
}

// ModelName returns the model identifier.
func (c *Chain) ModelName() string {
	return c.active.ModelName()
}

// Available reports provider readiness. The first call resolves it
// against the active provider; the result is cached for the process
// lifetime, so a provider that comes up later is not picked up until
// restart.
func (c *Chain) Available(ctx context.Context) bool {
	c.availOnce.Do(func() {
		c.avail = c.active.Available(ctx)
	})
	return c.avail
}

// Close releases the active provider's resources.
func (c *Chain) Close() error {
	return c.active.Close()
}
