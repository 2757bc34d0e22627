package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	scherr "github.com/scholia-dev/scholia/internal/errors"
)

// Local (Ollama) API constants
const (
	// DefaultLocalBaseURL is the default Ollama API endpoint
	DefaultLocalBaseURL = "http://localhost:11434"

	// DefaultLocalModel is the default local embedding model. Corpus
	// notes are prose, so a general text model fits better than the
	// code-tuned alternatives.
	DefaultLocalModel = "nomic-embed-text"

	// LocalConnectTimeout for the initial health check
	LocalConnectTimeout = 5 * time.Second

	// localPoolSize for the HTTP connection pool
	localPoolSize = 4
)

// FallbackLocalModels are tried in order if the primary model is not
// installed.
var FallbackLocalModels = []string{
	"mxbai-embed-large",
	"all-minilm",
}

// LocalConfig configures the local Ollama embedder
type LocalConfig struct {
	// BaseURL is the Ollama API endpoint (default: http://localhost:11434)
	BaseURL string

	// Model is the embedding model to use (default: nomic-embed-text)
	Model string

	// FallbackModels are tried in order if the primary model is unavailable
	FallbackModels []string

	// Dimensions can be set to override auto-detection (0 = auto-detect)
	Dimensions int

	// BatchSize for batch embedding requests (default: 32)
	BatchSize int

	// Timeout for API requests (default: 60s)
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3)
	MaxRetries int

	// SkipHealthCheck skips the initial availability check (for testing)
	SkipHealthCheck bool
}

// DefaultLocalConfig returns sensible defaults
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		BaseURL:        DefaultLocalBaseURL,
		Model:          DefaultLocalModel,
		FallbackModels: FallbackLocalModels,
		BatchSize:      DefaultBatchSize,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
	}
}

// localEmbedRequest is the Ollama /api/embed request
type localEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string for batch
}

// localEmbedResponse is the Ollama /api/embed response
type localEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// localModelListResponse is the Ollama /api/tags response
type localModelListResponse struct {
	Models []localModelInfo `json:"models"`
}

// localModelInfo describes an installed model
type localModelInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// LocalEmbedder generates embeddings using a local Ollama server.
type LocalEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    LocalConfig
	modelName string

	mu     sync.RWMutex
	closed bool
	dims   int
}

// Verify interface implementation at compile time
var _ Provider = (*LocalEmbedder)(nil)

// NewLocalEmbedder creates a local embedder. Unless SkipHealthCheck is
// set, construction verifies the server is reachable, resolves an
// installed embedding model, and detects its dimension.
func NewLocalEmbedder(ctx context.Context, cfg LocalConfig) (*LocalEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLocalBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLocalModel
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = FallbackLocalModels
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

	transport := &http.Transport{
		MaxIdleConns:        localPoolSize,
		MaxIdleConnsPerHost: localPoolSize,
		MaxConnsPerHost:     localPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	e := &LocalEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		modelName, err := e.findAvailableModel(checkCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("failed to connect to Ollama or find model: %w", err)
		}
		e.modelName = modelName

		if cfg.Dimensions == 0 {
			dims, err := e.detectDimensions(checkCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
			}
			e.dims = dims
		}
	}

	return e, nil
}

// listModels gets available models from Ollama
func (e *LocalEmbedder) listModels(ctx context.Context) ([]localModelInfo, error) {
	url := e.config.BaseURL + "/api/tags"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result localModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Models, nil
}

// findAvailableModel finds a suitable installed embedding model
func (e *LocalEmbedder) findAvailableModel(ctx context.Context) (string, error) {
	models, err := e.listModels(ctx)
	if err != nil {
		return "", err
	}

	// Build set of available model names (normalized)
	available := make(map[string]string) // normalized -> actual
	for _, m := range models {
		name := strings.ToLower(m.Name)
		available[name] = m.Name
		base := strings.Split(name, ":")[0]
		if _, exists := available[base]; !exists {
			available[base] = m.Name
		}
	}

	lookup := func(model string) (string, bool) {
		name := strings.ToLower(model)
		if actual, ok := available[name]; ok {
			return actual, true
		}
		base := strings.Split(name, ":")[0]
		if actual, ok := available[base]; ok {
			return actual, true
		}
		return "", false
	}

	if actual, ok := lookup(e.config.Model); ok {
		return actual, nil
	}
	for _, fallback := range e.config.FallbackModels {
		if actual, ok := lookup(fallback); ok {
			slog.Debug("local_embedding_fallback_model",
				slog.String("requested", e.config.Model),
				slog.String("using", actual))
			return actual, nil
		}
	}

	return "", fmt.Errorf("no embedding model available (tried %s and %v)", e.config.Model, e.config.FallbackModels)
}

// detectDimensions auto-detects embedding dimensions from a test embedding
func (e *LocalEmbedder) detectDimensions(ctx context.Context) (int, error) {
	embeddings, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(embeddings[0]), nil
}

// Embed generates an embedding for a single text
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.Dimensions()), nil
	}

	embeddings, err := e.doEmbedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts using the batch API
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

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

// doEmbedWithRetry performs embedding with exponential backoff. Each
// attempt gets its own timeout; the parent context bounds the whole
// operation.
func (e *LocalEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := scherr.RetryConfig{
		MaxAttempts:  e.config.MaxRetries,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		OnRetry: func(attempt int, err error) {
			slog.Debug("local_embedding_attempt_failed",
				slog.Int("attempt", attempt),
				slog.Int("texts_count", len(texts)),
				slog.String("error", err.Error()))
		},
	}
	return scherr.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		return e.doEmbed(timeoutCtx, texts)
	})
}

// doEmbed performs a single batch embedding request.
func (e *LocalEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	url := e.config.BaseURL + "/api/embed"

	// Array input for batch, single string for single text
	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(localEmbedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result localEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		embeddings[i] = normalizeVector(vec)
	}

	return embeddings, nil
}

// Dimensions returns the embedding dimension
func (e *LocalEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier
func (e *LocalEmbedder) ModelName() string {
	return e.modelName
}

// Available checks if Ollama is running and the model is installed
func (e *LocalEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	models, err := e.listModels(ctx)
	if err != nil {
		return false
	}

	modelLower := strings.ToLower(e.modelName)
	for _, m := range models {
		if strings.Contains(strings.ToLower(m.Name), modelLower) ||
			strings.Contains(modelLower, strings.ToLower(m.Name)) {
			return true
		}
	}
	return false
}

// Close releases resources
func (e *LocalEmbedder) Close() error {
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
