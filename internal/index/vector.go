// Package index owns the vector side of retrieval. It turns corpus
// documents into embedded chunks backed by a persisted HNSW graph and
// decides, via content fingerprints, when that graph must be rebuilt.
// When no embedding provider is available every operation here
// degrades cleanly and the engine falls back to keyword-only search.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scholia-dev/scholia/internal/chunk"
	"github.com/scholia-dev/scholia/internal/config"
	"github.com/scholia-dev/scholia/internal/corpus"
	"github.com/scholia-dev/scholia/internal/embed"
	scherr "github.com/scholia-dev/scholia/internal/errors"
	"github.com/scholia-dev/scholia/internal/store"
	"github.com/scholia-dev/scholia/internal/ui"
)

// VectorFile is the basename of the persisted HNSW graph inside the
// storage directory.
const VectorFile = "vectors.hnsw"

// Construction errors, returned by NewVectorIndex when a required
// dependency is missing.
var (
	ErrNilConfig        = errors.New("config is required")
	ErrNilMetadata      = errors.New("metadata store is required")
	ErrNilDocEmbedder   = errors.New("document embedder is required")
	ErrNilQueryEmbedder = errors.New("query embedder is required")
)

// ChunkHit is a single vector search result at chunk granularity.
type ChunkHit struct {
	ChunkID string  // Retrieval unit identifier
	DocID   string  // Parent document
	Score   float64 // Similarity in (0, 1], higher is closer
	Snippet string  // Chunk text, possibly truncated by Query budgeting
}

// Options configures a VectorIndex. Config, Metadata, and both
// embedders are required.
type Options struct {
	Config *config.Config

	// Metadata persists documents and chunk text alongside the graph.
	Metadata store.MetadataStore

	// DocumentEmbedder embeds chunk content at build time. It should be
	// cache-backed under the document namespace.
	DocumentEmbedder embed.Provider

	// QueryEmbedder embeds search queries. It should be cache-backed
	// under the query namespace.
	QueryEmbedder embed.Provider

	// Kind names the selected provider variant for logs and build
	// summaries.
	Kind embed.Kind

	// Renderer receives progress events during rebuilds. Optional.
	Renderer ui.Renderer
}

// VectorIndex maintains the embedded-chunk graph for one corpus.
//
// BuildOrLoad decides between loading the persisted graph and
// rebuilding it from the corpus, gated on content fingerprints. A
// corrupted artifact triggers an automatic rebuild rather than an
// error. All methods are safe for concurrent use; mutations are
// serialized within the process, and rebuilds additionally hold a
// cross-process file lock.
type VectorIndex struct {
	cfg        *config.Config
	metadata   store.MetadataStore
	docEmbed   embed.Provider
	queryEmbed embed.Provider
	kind       embed.Kind
	renderer   ui.Renderer
	scanner    *corpus.Scanner
	splitter   *chunk.Splitter

	// buildMu serializes BuildOrLoad, IndexDocument, and
	// RemoveDocument. Searches only take the state lock below, so they
	// keep serving from the old graph while a rebuild runs.
	buildMu sync.Mutex

	mu      sync.RWMutex
	vectors *store.HNSWStore
	ready   bool
	closed  bool
}

// NewVectorIndex creates a vector index over the given stores and
// embedders. Chunking parameters come from the config's index section.
func NewVectorIndex(opts Options) (*VectorIndex, error) {
	if opts.Config == nil {
		return nil, ErrNilConfig
	}
	if opts.Metadata == nil {
		return nil, ErrNilMetadata
	}
	if opts.DocumentEmbedder == nil {
		return nil, ErrNilDocEmbedder
	}
	if opts.QueryEmbedder == nil {
		return nil, ErrNilQueryEmbedder
	}

	splitter := chunk.NewSplitterWithOptions(chunk.SplitterOptions{
		ChunkSize:    opts.Config.Index.ChunkSize,
		ChunkOverlap: opts.Config.Index.ChunkOverlap,
	})

	return &VectorIndex{
		cfg:        opts.Config,
		metadata:   opts.Metadata,
		docEmbed:   opts.DocumentEmbedder,
		queryEmbed: opts.QueryEmbedder,
		kind:       opts.Kind,
		renderer:   opts.Renderer,
		scanner:    corpus.NewScanner(),
		splitter:   splitter,
	}, nil
}

// vectorPath returns the graph artifact path inside the storage
// directory.
func (v *VectorIndex) vectorPath() string {
	return filepath.Join(v.cfg.StorageDir(), VectorFile)
}

// fingerprintPath returns the persisted fingerprint table path.
func (v *VectorIndex) fingerprintPath() string {
	return filepath.Join(v.cfg.StorageDir(), corpus.FingerprintFile)
}

// stageTiming tracks duration for each rebuild stage.
type stageTiming struct {
	scan  time.Duration
	chunk time.Duration
	embed time.Duration
	index time.Duration
}

// BuildOrLoad brings the vector index up to date with the corpus. It
// loads the persisted graph when the stored fingerprint still matches
// the corpus content, and rebuilds otherwise. The boolean reports
// whether vector search is available afterwards: (false, nil) means
// the index was skipped on purpose, because no embedding provider is
// available or the corpus holds no documents, and callers must fall
// back to keyword-only retrieval.
func (v *VectorIndex) BuildOrLoad(ctx context.Context) (bool, error) {
	v.buildMu.Lock()
	defer v.buildMu.Unlock()

	if v.isClosed() {
		return false, scherr.InternalError("vector index is closed", nil)
	}

	scanStart := time.Now()
	files, err := v.scanCorpus(ctx)
	if err != nil {
		return false, err
	}

	current, err := corpus.ComputeFingerprint(ctx, files)
	if err != nil {
		return false, scherr.IOError("failed to fingerprint corpus", err)
	}
	scanDur := time.Since(scanStart)

	if v.snapshotFresh(current) {
		ready, err := v.load(ctx)
		if err == nil {
			return ready, nil
		}
		slog.Warn("vector_index_load_failed",
			slog.String("error", err.Error()),
			slog.String("action", "rebuilding"))
	}

	ready, err := v.rebuild(ctx, files, current, scanDur)
	if err != nil {
		// A graph from an earlier build must not outlive a failed
		// rebuild; callers treat the error as "vector unavailable" and
		// Available has to agree.
		v.swapGraph(nil)
	}
	return ready, err
}

// snapshotFresh reports whether the persisted graph can be loaded
// instead of rebuilt: the artifact exists and the stored fingerprint
// matches the current corpus state.
func (v *VectorIndex) snapshotFresh(current corpus.Fingerprint) bool {
	if _, err := os.Stat(v.vectorPath()); err != nil {
		return false
	}
	return !corpus.NeedsRebuild(v.fingerprintPath(), current)
}

// load restores the persisted graph.
func (v *VectorIndex) load(ctx context.Context) (bool, error) {
	if !v.queryEmbed.Available(ctx) {
		v.swapGraph(nil)
		slog.Info("vector_index_disabled",
			slog.String("reason", "no embedding provider"))
		return false, nil
	}

	vectorPath := v.vectorPath()
	dims, err := store.ReadStoredDimensions(vectorPath)
	if err != nil {
		return false, err
	}
	if dims <= 0 {
		return false, scherr.New(scherr.ErrCodeCorruptIndex,
			"vector index metadata reports no dimensions", nil)
	}

	graph, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	if err != nil {
		return false, err
	}
	if err := graph.Load(vectorPath); err != nil {
		_ = graph.Close()
		return false, err
	}

	v.swapGraph(graph)
	slog.Info("vector_index_loaded",
		slog.Int("chunks", graph.Count()),
		slog.Int("dimensions", dims))
	return true, nil
}

// rebuild replaces the persisted snapshot with one built from the
// current corpus. Callers hold buildMu. A second process hitting the
// same storage directory blocks on the file lock, then finds the fresh
// snapshot and loads it instead of rebuilding again.
func (v *VectorIndex) rebuild(ctx context.Context, files []*corpus.FileInfo, current corpus.Fingerprint, scanDur time.Duration) (bool, error) {
	start := time.Now()
	timing := stageTiming{scan: scanDur}

	lock := NewRebuildLock(v.cfg.StorageDir())
	if err := lock.Lock(); err != nil {
		return false, scherr.IOError("failed to acquire rebuild lock", err)
	}
	defer func() { _ = lock.Unlock() }()

	if v.snapshotFresh(current) {
		if ready, err := v.load(ctx); err == nil {
			return ready, nil
		}
	}

	chunkStart := time.Now()
	docs, err := v.loadDocuments(ctx, files)
	if err != nil {
		return false, err
	}
	warnings := len(files) - len(docs)

	// The documents table mirrors the corpus even when the vector
	// build is skipped below, so the keyword index always warm-starts
	// from fresh content.
	if err := v.syncDocuments(ctx, docs); err != nil {
		return false, err
	}

	if len(docs) == 0 {
		return v.skipRebuild(current, "corpus is empty")
	}
	if !v.docEmbed.Available(ctx) {
		return v.skipRebuild(current, "no embedding provider")
	}

	chunks := v.splitDocuments(docs)
	timing.chunk = time.Since(chunkStart)
	if len(chunks) == 0 {
		return v.skipRebuild(current, "no indexable content")
	}

	embedStart := time.Now()
	ids, vectors, err := v.embedChunks(ctx, chunks)
	if err != nil {
		return false, err
	}
	timing.embed = time.Since(embedStart)
	if len(ids) == 0 {
		v.swapGraph(nil)
		return false, scherr.New(scherr.ErrCodeEmbeddingFailed,
			fmt.Sprintf("all %d chunks failed to embed", len(chunks)), nil)
	}

	indexStart := time.Now()
	v.report(ui.ProgressEvent{Stage: ui.StageIndexing, Message: "Building vector index..."})

	graph, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(len(vectors[0])))
	if err != nil {
		return false, err
	}
	if err := graph.Add(ctx, ids, vectors); err != nil {
		_ = graph.Close()
		return false, scherr.New(scherr.ErrCodeIndexFailed, "failed to build vector graph", err)
	}

	if err := v.metadata.ReplaceAllChunks(ctx, chunks); err != nil {
		_ = graph.Close()
		return false, scherr.New(scherr.ErrCodeIndexFailed, "failed to persist chunks", err)
	}
	if err := graph.Save(v.vectorPath()); err != nil {
		_ = graph.Close()
		return false, scherr.New(scherr.ErrCodeIndexFailed, "failed to persist vector graph", err)
	}
	// Fingerprint last: it marks the snapshot as complete. A crash
	// before this line leaves state that forces a rebuild on the next
	// run.
	if err := current.Save(v.fingerprintPath()); err != nil {
		_ = graph.Close()
		return false, scherr.IOError("failed to persist corpus fingerprint", err)
	}
	timing.index = time.Since(indexStart)

	v.swapGraph(graph)

	duration := time.Since(start) + scanDur
	v.complete(len(docs), len(chunks), warnings, duration, timing)
	slog.Info("vector_index_built",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(chunks)),
		slog.Int("embedded", len(ids)),
		slog.Int("dimensions", len(vectors[0])),
		slog.String("provider", string(v.kind)),
		slog.Int64("duration_ms", duration.Milliseconds()))
	return true, nil
}

// skipRebuild records a deliberately skipped vector build. Stale graph
// files are removed so they can never serve outdated results, and the
// fingerprint is still persisted so the document sync is not repeated
// until the corpus changes again.
func (v *VectorIndex) skipRebuild(current corpus.Fingerprint, reason string) (bool, error) {
	v.swapGraph(nil)
	if err := store.RemoveVectorFiles(v.vectorPath()); err != nil {
		slog.Warn("stale_vector_files_not_removed", slog.String("error", err.Error()))
	}
	if err := current.Save(v.fingerprintPath()); err != nil {
		slog.Warn("fingerprint_save_failed", slog.String("error", err.Error()))
	}
	slog.Info("vector_index_skipped", slog.String("reason", reason))
	return false, nil
}

// scanCorpus lists the eligible corpus files.
func (v *VectorIndex) scanCorpus(ctx context.Context) ([]*corpus.FileInfo, error) {
	v.report(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Scanning %s...", v.cfg.Corpus.Root),
	})

	files, err := v.scanner.Scan(ctx, &corpus.ScanOptions{
		RootDir:     v.cfg.Corpus.Root,
		MaxFileSize: v.cfg.Corpus.MaxFileSize,
	})
	if err != nil {
		return nil, scherr.IOError("failed to scan corpus", err)
	}

	slog.Debug("corpus_scan_complete", slog.Int("files", len(files)))
	return files, nil
}

// loadDocuments reads and parses every scanned file. Unreadable files
// are skipped with a warning so one bad file cannot sink the build.
// Position follows scan order, which is sorted by path.
func (v *VectorIndex) loadDocuments(ctx context.Context, files []*corpus.FileInfo) ([]*corpus.Document, error) {
	docs := make([]*corpus.Document, 0, len(files))
	for i, file := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		v.report(ui.ProgressEvent{
			Stage:       ui.StageChunking,
			Current:     i + 1,
			Total:       len(files),
			CurrentFile: file.Path,
		})

		doc, err := corpus.LoadDocument(file)
		if err != nil {
			v.warn(file.Path, err)
			slog.Warn("document_load_failed",
				slog.String("path", file.Path),
				slog.String("error", err.Error()))
			continue
		}
		doc.Position = len(docs)
		docs = append(docs, doc)
	}
	return docs, nil
}

// syncDocuments makes the documents table mirror the loaded corpus:
// current documents are upserted, documents that no longer exist are
// removed along with their chunks.
func (v *VectorIndex) syncDocuments(ctx context.Context, docs []*corpus.Document) error {
	existing, err := v.metadata.AllDocuments(ctx)
	if err != nil {
		return scherr.New(scherr.ErrCodeIndexFailed, "failed to list stored documents", err)
	}

	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		seen[doc.ID] = struct{}{}
	}

	var stale []string
	for _, doc := range existing {
		if _, ok := seen[doc.ID]; !ok {
			stale = append(stale, doc.ID)
		}
	}

	if len(docs) > 0 {
		if err := v.metadata.SaveDocuments(ctx, docs); err != nil {
			return scherr.New(scherr.ErrCodeIndexFailed, "failed to save documents", err)
		}
	}
	for _, id := range stale {
		if err := v.metadata.DeleteChunksByDocument(ctx, id); err != nil {
			return scherr.New(scherr.ErrCodeIndexFailed, "failed to delete stale chunks", err)
		}
	}
	if len(stale) > 0 {
		if err := v.metadata.DeleteDocuments(ctx, stale); err != nil {
			return scherr.New(scherr.ErrCodeIndexFailed, "failed to delete stale documents", err)
		}
		slog.Info("stale_documents_removed", slog.Int("count", len(stale)))
	}
	return nil
}

// splitDocuments cuts every document into overlapping chunks.
func (v *VectorIndex) splitDocuments(docs []*corpus.Document) []*chunk.Chunk {
	var chunks []*chunk.Chunk
	for _, doc := range docs {
		chunks = append(chunks, v.splitter.Split(doc.ID, doc.Content)...)
	}
	return chunks
}

// embedChunks embeds every chunk in batches, with concurrency bounded
// by the configured worker count. Individual failures are skipped
// rather than fatal: the provider chain yields nil rows for texts it
// could not embed, and those chunks simply stay out of the graph.
// Returned ids and vectors are aligned and in chunk order.
func (v *VectorIndex) embedChunks(ctx context.Context, chunks []*chunk.Chunk) ([]string, [][]float32, error) {
	batchSize := v.cfg.Index.BatchSize
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}
	workers := v.cfg.Index.Workers
	if workers <= 0 {
		workers = 1
	}

	v.report(ui.ProgressEvent{Stage: ui.StageEmbedding, Total: len(chunks)})

	rows := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var progressMu sync.Mutex
	var embedded int

	for batchStart := 0; batchStart < len(chunks); batchStart += batchSize {
		batchStart := batchStart // per-iteration copy for the closure; required under go <1.22 loop semantics
		batchEnd := batchStart + batchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]
		out := rows[batchStart:batchEnd]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}

			vecs, err := v.docEmbed.EmbedBatch(gctx, texts)
			if err != nil {
				return scherr.New(scherr.ErrCodeEmbeddingFailed,
					fmt.Sprintf("failed to embed chunks %d-%d", batchStart, batchEnd), err)
			}
			copy(out, vecs)

			progressMu.Lock()
			embedded += len(batch)
			current := embedded
			progressMu.Unlock()
			v.report(ui.ProgressEvent{
				Stage:   ui.StageEmbedding,
				Current: current,
				Total:   len(chunks),
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	var failed int
	for i, row := range rows {
		if row == nil {
			failed++
			continue
		}
		ids = append(ids, chunks[i].ID)
		vectors = append(vectors, row)
	}
	if failed > 0 {
		slog.Warn("chunks_skipped_no_embedding",
			slog.Int("skipped", failed),
			slog.Int("total", len(chunks)))
	}
	return ids, vectors, nil
}

// swapGraph installs a new graph (or nil) and closes the old one. The
// old graph is closed outside the state lock so an in-flight search
// finishes or fails with a typed error instead of blocking the swap.
func (v *VectorIndex) swapGraph(graph *store.HNSWStore) {
	v.mu.Lock()
	old := v.vectors
	v.vectors = graph
	v.ready = graph != nil
	v.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}

func (v *VectorIndex) isClosed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

// report forwards a progress event to the renderer, when one is
// attached.
func (v *VectorIndex) report(ev ui.ProgressEvent) {
	if v.renderer != nil {
		v.renderer.UpdateProgress(ev)
	}
}

// warn forwards a non-fatal per-file error to the renderer.
func (v *VectorIndex) warn(file string, err error) {
	if v.renderer != nil {
		v.renderer.AddError(ui.ErrorEvent{File: file, Err: err, IsWarn: true})
	}
}

// complete reports final build statistics to the renderer.
func (v *VectorIndex) complete(docs, chunks, warnings int, duration time.Duration, timing stageTiming) {
	if v.renderer == nil {
		return
	}
	v.renderer.Complete(ui.CompletionStats{
		Files:    docs,
		Chunks:   chunks,
		Duration: duration,
		Warnings: warnings,
		Stages: ui.StageTimings{
			Scan:  timing.scan,
			Chunk: timing.chunk,
			Embed: timing.embed,
			Index: timing.index,
		},
		Embedder: ui.EmbedderInfo{
			Backend:    string(v.kind),
			Model:      v.docEmbed.ModelName(),
			Dimensions: v.docEmbed.Dimensions(),
		},
	})
}

// Available reports whether vector search can currently serve queries.
func (v *VectorIndex) Available() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ready
}

// Count returns the number of live chunk vectors in the graph.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.vectors == nil {
		return 0
	}
	return v.vectors.Count()
}

// NeedsRebuild reports whether the persisted snapshot is stale against
// the current corpus content. Any scan failure counts as stale.
func (v *VectorIndex) NeedsRebuild(ctx context.Context) (bool, error) {
	files, err := v.scanner.Scan(ctx, &corpus.ScanOptions{
		RootDir:     v.cfg.Corpus.Root,
		MaxFileSize: v.cfg.Corpus.MaxFileSize,
	})
	if err != nil {
		return true, scherr.IOError("failed to scan corpus", err)
	}
	current, err := corpus.ComputeFingerprint(ctx, files)
	if err != nil {
		return true, scherr.IOError("failed to fingerprint corpus", err)
	}
	return !v.snapshotFresh(current), nil
}

// Close releases the in-memory graph. The metadata store and the
// embedders are owned by the caller and stay open.
func (v *VectorIndex) Close() error {
	v.buildMu.Lock()
	defer v.buildMu.Unlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	v.ready = false

	if v.vectors != nil {
		err := v.vectors.Close()
		v.vectors = nil
		return err
	}
	return nil
}
