package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	scherr "github.com/scholia-dev/scholia/internal/errors"
)

// Remote API constants
const (
	// DefaultRemoteBaseURL is the default OpenAI-compatible API base
	DefaultRemoteBaseURL = "https://api.openai.com/v1"

	// DefaultRemoteModel is the default remote embedding model
	DefaultRemoteModel = "text-embedding-3-small"

	// DefaultRemoteAPIKeyEnv names the environment variable holding the
	// API credential
	DefaultRemoteAPIKeyEnv = "OPENAI_API_KEY"

	// DefaultRemoteRateLimit is the default requests-per-second cap
	DefaultRemoteRateLimit = 4

	// remotePoolSize for the HTTP connection pool
	remotePoolSize = 4
)

// RemoteConfig configures the remote embedder
type RemoteConfig struct {
	// BaseURL is the OpenAI-compatible API base (default: https://api.openai.com/v1)
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small)
	Model string

	// APIKeyEnv names the environment variable holding the credential
	// (default: OPENAI_API_KEY)
	APIKeyEnv string

	// BatchSize for batch embedding requests (default: 32)
	BatchSize int

	// Timeout for API requests (default: 60s)
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3)
	MaxRetries int

	// RateLimit caps requests per second (default: 4, 0 = default)
	RateLimit float64
}

// DefaultRemoteConfig returns sensible defaults
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BaseURL:    DefaultRemoteBaseURL,
		Model:      DefaultRemoteModel,
		APIKeyEnv:  DefaultRemoteAPIKeyEnv,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RateLimit:  DefaultRemoteRateLimit,
	}
}

// remoteEmbedRequest is the /embeddings request body
type remoteEmbedRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

// remoteEmbedResponse is the /embeddings response body
type remoteEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// RemoteEmbedder generates embeddings through an OpenAI-compatible
// /embeddings endpoint. The credential is read from the environment at
// construction; without one the embedder reports unavailable.
type RemoteEmbedder struct {
	client    *http.Client
	transport *http.Transport
	limiter   *rate.Limiter
	config    RemoteConfig
	apiKey    string

	mu     sync.RWMutex
	closed bool
	dims   int
}

// Verify interface implementation at compile time
var _ Provider = (*RemoteEmbedder)(nil)

// NewRemoteEmbedder creates a remote embedder. Construction never
// touches the network; credential and connectivity problems surface on
// the first embedding call.
func NewRemoteEmbedder(cfg RemoteConfig) *RemoteEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRemoteBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRemoteModel
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultRemoteAPIKeyEnv
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRemoteRateLimit
	}

	transport := &http.Transport{
		MaxIdleConns:        remotePoolSize,
		MaxIdleConnsPerHost: remotePoolSize,
		MaxConnsPerHost:     remotePoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &RemoteEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		config:    cfg,
		apiKey:    os.Getenv(cfg.APIKeyEnv),
	}
}

// Embed generates an embedding for a single text
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, one row per input
// in input order. Empty inputs yield zero vectors without an API call.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if e.apiKey == "" {
		return nil, fmt.Errorf("no API key in $%s", e.config.APIKeyEnv)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.Dimensions())
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		embeddings, err := e.doEmbedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}

		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

// doEmbedWithRetry performs embedding with exponential backoff.
func (e *RemoteEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := scherr.RetryConfig{
		MaxAttempts:  e.config.MaxRetries,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		OnRetry: func(attempt int, err error) {
			slog.Debug("remote_embedding_attempt_failed",
				slog.Int("attempt", attempt),
				slog.Int("texts_count", len(texts)),
				slog.String("error", err.Error()))
		},
	}
	return scherr.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		return e.doEmbed(ctx, texts)
	})
}

// doEmbed performs a single batch embedding request.
func (e *RemoteEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := remoteEmbedRequest{
		Model:          e.config.Model,
		Input:          texts,
		EncodingFormat: "float",
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	url := strings.TrimSuffix(e.config.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result remoteEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	// The API may return rows out of order; the index field is authoritative
	sort.Slice(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })

	embeddings := make([][]float32, len(result.Data))
	for i, row := range result.Data {
		vec := make([]float32, len(row.Embedding))
		for j, v := range row.Embedding {
			vec[j] = float32(v)
		}
		embeddings[i] = normalizeVector(vec)
	}

	e.mu.Lock()
	if e.dims == 0 && len(embeddings) > 0 {
		e.dims = len(embeddings[0])
	}
	e.mu.Unlock()

	return embeddings, nil
}

// Dimensions returns the embedding dimension, 0 until the first
// successful call when the model is unknown.
func (e *RemoteEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.dims != 0 {
		return e.dims
	}
	// Known dimension for the default model
	if e.config.Model == DefaultRemoteModel {
		return 1536
	}
	return 0
}

// ModelName returns the model identifier
func (e *RemoteEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether a credential is configured. Transient
// network failures are scoped to individual calls, so availability does
// not probe the endpoint.
func (e *RemoteEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed && e.apiKey != ""
}

// Close releases resources
func (e *RemoteEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}
	return nil
}
