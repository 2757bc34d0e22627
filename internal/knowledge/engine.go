// Package knowledge assembles the retrieval pipeline into one
// process-wide engine: provider chain, embedding caches, metadata
// store, keyword index, vector index, hybrid retriever, and context
// assembler. Construct it once at startup and close it on shutdown;
// everything in between is safe for concurrent use.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/scholia-dev/scholia/internal/config"
	"github.com/scholia-dev/scholia/internal/corpus"
	"github.com/scholia-dev/scholia/internal/embed"
	scherr "github.com/scholia-dev/scholia/internal/errors"
	"github.com/scholia-dev/scholia/internal/index"
	"github.com/scholia-dev/scholia/internal/inject"
	"github.com/scholia-dev/scholia/internal/search"
	"github.com/scholia-dev/scholia/internal/store"
	"github.com/scholia-dev/scholia/internal/ui"
)

// ErrNilConfig is returned when the engine is constructed without a
// config.
var ErrNilConfig = errors.New("config is required")

// SearchOptions tunes one engine search.
type SearchOptions struct {
	// TopK overrides the configured hit count when positive.
	TopK int

	// Domain boosts hits matching this domain before ranking.
	Domain string
}

// InjectOptions tunes one injection call.
type InjectOptions struct {
	// Domain extends the preferred-domain list for boosting.
	Domain string

	// Profile contributes its tags to the preferred-domain list.
	Profile *inject.Profile
}

// Status is a point-in-time snapshot of engine health, rendered by
// the status command.
type Status struct {
	Provider          string `json:"provider"`
	ProviderAvailable bool   `json:"provider_available"`
	VectorReady       bool   `json:"vector_ready"`
	VectorCount       int    `json:"vector_count"`
	Documents         int    `json:"documents"`
	Chunks            int    `json:"chunks"`
	NeedsRebuild      bool   `json:"needs_rebuild"`
	CorpusRoot        string `json:"corpus_root"`
	StorageDir        string `json:"storage_dir"`
}

// Engine owns the full retrieval pipeline.
type Engine struct {
	cfg        *config.Config
	provider   embed.Provider
	kind       embed.Kind
	docEmbed   embed.Provider
	queryEmbed embed.Provider
	metadata   store.MetadataStore
	keyword    store.KeywordIndex
	vector     *index.VectorIndex
	retriever  *search.Retriever
	assembler  *inject.Assembler
	renderer   ui.Renderer

	// Injected dependencies are owned by the caller and not closed.
	ownsProvider bool
	ownsMetadata bool

	mu     sync.Mutex
	closed bool
}

// Option configures the engine at construction.
type Option func(*Engine)

// WithProvider injects an embedding provider instead of running chain
// selection. The caller keeps ownership and closes it.
func WithProvider(p embed.Provider, kind embed.Kind) Option {
	return func(e *Engine) {
		e.provider = p
		e.kind = kind
	}
}

// WithMetadataStore injects a metadata store instead of opening the
// SQLite database under the storage directory. The caller keeps
// ownership and closes it.
func WithMetadataStore(s store.MetadataStore) Option {
	return func(e *Engine) {
		e.metadata = s
	}
}

// WithRenderer attaches a progress renderer for index builds.
func WithRenderer(r ui.Renderer) Option {
	return func(e *Engine) {
		e.renderer = r
	}
}

// New constructs the engine. Provider selection may probe the local
// model server, so it takes a context. A corpus with no usable
// embedding provider still constructs successfully and runs in
// keyword-only mode.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}

	if e.provider == nil {
		chain, err := embed.Select(ctx, selectOptions(cfg))
		if err != nil {
			return nil, err
		}
		e.provider = chain
		e.kind = chain.Kind()
		e.ownsProvider = true
	}

	if e.metadata == nil {
		meta, err := store.NewSQLiteStore(filepath.Join(cfg.StorageDir(), store.DatabaseFile))
		if err != nil {
			e.closeOwned()
			return nil, err
		}
		e.metadata = meta
		e.ownsMetadata = true
	}

	e.keyword = store.NewMemoryKeywordIndex()
	e.docEmbed = embed.NewCachedProvider(e.provider, embed.NamespaceDocument, cfg.Embedding.CacheSize, e.metadata)
	e.queryEmbed = embed.NewCachedProvider(e.provider, embed.NamespaceQuery, cfg.Embedding.CacheSize, e.metadata)

	vector, err := index.NewVectorIndex(index.Options{
		Config:           cfg,
		Metadata:         e.metadata,
		DocumentEmbedder: e.docEmbed,
		QueryEmbedder:    e.queryEmbed,
		Kind:             e.kind,
		Renderer:         e.renderer,
	})
	if err != nil {
		e.closeOwned()
		return nil, err
	}
	e.vector = vector

	retriever, err := search.NewRetriever(cfg, vector, e.keyword)
	if err != nil {
		e.closeOwned()
		return nil, err
	}
	e.retriever = retriever

	assembler, err := inject.NewAssembler(cfg, retriever)
	if err != nil {
		e.closeOwned()
		return nil, err
	}
	e.assembler = assembler

	slog.Debug("knowledge_engine_ready",
		slog.String("provider", string(e.kind)),
		slog.String("corpus", cfg.Corpus.Root))

	return e, nil
}

// selectOptions maps the embedding config onto chain selection.
func selectOptions(cfg *config.Config) embed.SelectOptions {
	return embed.SelectOptions{
		Provider: cfg.Embedding.Provider,
		Remote: embed.RemoteConfig{
			BaseURL:   cfg.Embedding.RemoteBaseURL,
			Model:     cfg.Embedding.Model,
			APIKeyEnv: cfg.Embedding.RemoteAPIKeyEnv,
			BatchSize: cfg.Index.BatchSize,
			RateLimit: cfg.Embedding.RemoteRateLimit,
		},
		Local: embed.LocalConfig{
			BaseURL:   cfg.Embedding.LocalBaseURL,
			Model:     cfg.Embedding.Model,
			BatchSize: cfg.Index.BatchSize,
		},
	}
}

// BuildOrLoad brings the indexes in sync with the corpus. The keyword
// index is warmed from the metadata store first so lexical search
// serves the previous snapshot even if the vector build fails, then
// refreshed after the vector side has synced documents. false means
// keyword-only mode.
func (e *Engine) BuildOrLoad(ctx context.Context) (bool, error) {
	if err := e.warmKeywordIndex(ctx); err != nil {
		return false, err
	}

	ready, err := e.vector.BuildOrLoad(ctx)
	if err != nil {
		return false, err
	}

	if err := e.warmKeywordIndex(ctx); err != nil {
		return ready, err
	}
	return ready, nil
}

// warmKeywordIndex mirrors the documents table into the in-memory
// keyword index: stale entries are removed, current ones re-added in
// position order so tie-breaking stays stable.
func (e *Engine) warmKeywordIndex(ctx context.Context) error {
	docs, err := e.metadata.AllDocuments(ctx)
	if err != nil {
		return scherr.InternalError("failed to load documents for keyword index", err)
	}

	fresh := make(map[string]bool, len(docs))
	for _, doc := range docs {
		fresh[doc.ID] = true
	}
	for _, id := range e.keyword.DocumentIDs() {
		if !fresh[id] {
			e.keyword.Remove(id)
		}
	}
	for _, doc := range docs {
		e.keyword.Add(doc.ID, doc.Content, keywordMetadata(doc))
	}
	return nil
}

// keywordMetadata flattens a document's metadata for the keyword index
// under the well-known keys the retriever reads.
func keywordMetadata(doc *corpus.Document) map[string]string {
	meta := make(map[string]string, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[search.MetaTitle] = doc.Title
	if doc.Path != "" {
		meta[search.MetaPath] = doc.Path
	}
	if len(doc.Tags) > 0 {
		meta[search.MetaTags] = strings.Join(doc.Tags, ",")
	}
	return meta
}

// splitTags parses a comma-joined tag value.
func splitTags(value string) []string {
	if value == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(value, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Search runs one hybrid retrieval.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (*search.Result, error) {
	return e.retriever.Search(ctx, query, opts.TopK, opts.Domain)
}

// Inject augments instructions with retrieved knowledge. It never
// fails: any internal error is logged and the instructions come back
// unchanged with an empty context. Augmentation is best-effort, not a
// hard dependency of the caller's request.
func (e *Engine) Inject(ctx context.Context, query, instructions string, opts InjectOptions) (string, *inject.KnowledgeContext) {
	augmented, kctx, err := e.assembler.Inject(ctx, query, instructions, opts.Domain, opts.Profile)
	if err != nil {
		slog.Warn("knowledge_injection_failed",
			slog.String("query", query),
			slog.Any("error", err))
	}
	return augmented, kctx
}

// AddDocument stores a document outside the corpus scan: persisted to
// the metadata store, indexed for keyword search, and embedded into the
// vector index when one is live. Reports success. API-added documents
// survive until the next full rebuild, which resyncs from corpus files.
func (e *Engine) AddDocument(ctx context.Context, id, content, title string, metadata map[string]string) bool {
	id = strings.TrimSpace(id)
	if id == "" || strings.TrimSpace(content) == "" {
		slog.Warn("document_rejected", slog.String("reason", "empty id or content"))
		return false
	}
	if title == "" {
		title = id
	}

	position, err := e.metadata.CountDocuments(ctx)
	if err != nil {
		slog.Error("document_add_failed", slog.String("doc_id", id), slog.Any("error", err))
		return false
	}

	doc := &corpus.Document{
		ID:       id,
		Path:     id,
		Title:    title,
		Content:  content,
		Tags:     splitTags(metadata[search.MetaTags]),
		Metadata: metadata,
		Position: position,
	}

	if err := e.metadata.SaveDocuments(ctx, []*corpus.Document{doc}); err != nil {
		slog.Error("document_add_failed", slog.String("doc_id", id), slog.Any("error", err))
		return false
	}
	e.keyword.Add(doc.ID, doc.Content, keywordMetadata(doc))

	if e.vector.Available() {
		if err := e.vector.IndexDocument(ctx, doc); err != nil {
			// Keyword search still covers the document.
			slog.Warn("document_vector_index_failed",
				slog.String("doc_id", id),
				slog.Any("error", err))
		}
	}

	slog.Info("document_added", slog.String("doc_id", id))
	return true
}

// RemoveDocument deletes a document from every index. Reports whether
// a document was found and removed.
func (e *Engine) RemoveDocument(ctx context.Context, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}

	doc, err := e.metadata.GetDocument(ctx, id)
	if err != nil {
		slog.Error("document_remove_failed", slog.String("doc_id", id), slog.Any("error", err))
		return false
	}
	if doc == nil {
		return false
	}

	if err := e.vector.RemoveDocument(ctx, id); err != nil {
		slog.Warn("document_vector_remove_failed",
			slog.String("doc_id", id),
			slog.Any("error", err))
	}
	e.keyword.Remove(id)

	if err := e.metadata.DeleteDocuments(ctx, []string{id}); err != nil {
		slog.Error("document_remove_failed", slog.String("doc_id", id), slog.Any("error", err))
		return false
	}

	slog.Info("document_removed", slog.String("doc_id", id))
	return true
}

// GetDocument looks a document up by id. Returns (nil, nil) when
// absent.
func (e *Engine) GetDocument(ctx context.Context, id string) (*corpus.Document, error) {
	return e.metadata.GetDocument(ctx, id)
}

// NeedsRebuild reports whether the corpus has drifted from the indexed
// snapshot.
func (e *Engine) NeedsRebuild(ctx context.Context) (bool, error) {
	return e.vector.NeedsRebuild(ctx)
}

// Status reports engine health for the status command.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	docs, err := e.metadata.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := e.metadata.CountChunks(ctx)
	if err != nil {
		return nil, err
	}

	stale, err := e.vector.NeedsRebuild(ctx)
	if err != nil {
		slog.Warn("staleness_check_failed", slog.Any("error", err))
		stale = true
	}

	return &Status{
		Provider:          string(e.kind),
		ProviderAvailable: e.provider.Available(ctx),
		VectorReady:       e.vector.Available(),
		VectorCount:       e.vector.Count(),
		Documents:         docs,
		Chunks:            chunks,
		NeedsRebuild:      stale,
		CorpusRoot:        e.cfg.Corpus.Root,
		StorageDir:        e.cfg.StorageDir(),
	}, nil
}

// Keyword exposes the keyword index for status and tests.
func (e *Engine) Keyword() store.KeywordIndex {
	return e.keyword
}

// Close releases everything the engine owns. Injected dependencies are
// left open for their owners. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.vector != nil {
		if err := e.vector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("vector index: %w", err))
		}
	}
	errs = append(errs, e.closeOwnedErrs()...)
	return errors.Join(errs...)
}

// closeOwned releases owned dependencies during failed construction.
func (e *Engine) closeOwned() {
	for _, err := range e.closeOwnedErrs() {
		slog.Warn("engine_cleanup_failed", slog.Any("error", err))
	}
}

func (e *Engine) closeOwnedErrs() []error {
	var errs []error
	if e.ownsProvider && e.provider != nil {
		if err := e.provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("embedding provider: %w", err))
		}
		e.ownsProvider = false
	}
	if e.ownsMetadata && e.metadata != nil {
		if err := e.metadata.Close(); err != nil {
			errs = append(errs, fmt.Errorf("metadata store: %w", err))
		}
		e.ownsMetadata = false
	}
	return errs
}
