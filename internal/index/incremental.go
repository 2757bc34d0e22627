package index

import (
	"context"
	"log/slog"

	"github.com/scholia-dev/scholia/internal/corpus"
	scherr "github.com/scholia-dev/scholia/internal/errors"
)

// IndexDocument embeds one document's chunks into the live graph and
// persists both the chunk rows and the updated graph. A previous
// version of the document is dropped first, so re-indexing is an
// update. The caller is responsible for persisting the document record
// itself.
//
// Returns an error when vector search is not available; in
// keyword-only mode the engine carries the document without this
// index.
func (v *VectorIndex) IndexDocument(ctx context.Context, doc *corpus.Document) error {
	if doc == nil || doc.ID == "" {
		return scherr.ValidationError("document id is required", nil)
	}

	v.buildMu.Lock()
	defer v.buildMu.Unlock()

	v.mu.RLock()
	graph := v.vectors
	ready := v.ready && !v.closed
	v.mu.RUnlock()
	if !ready || graph == nil {
		return scherr.New(scherr.ErrCodeIndexFailed, "vector index is not available", nil)
	}

	oldIDs, err := v.metadata.ChunkIDsByDocument(ctx, doc.ID)
	if err != nil {
		return scherr.New(scherr.ErrCodeIndexFailed, "failed to list existing chunks", err)
	}
	if len(oldIDs) > 0 {
		if err := graph.Delete(ctx, oldIDs); err != nil {
			return scherr.New(scherr.ErrCodeIndexFailed, "failed to drop old vectors", err)
		}
		if err := v.metadata.DeleteChunksByDocument(ctx, doc.ID); err != nil {
			return scherr.New(scherr.ErrCodeIndexFailed, "failed to drop old chunks", err)
		}
	}

	chunks := v.splitter.Split(doc.ID, doc.Content)
	if len(chunks) > 0 {
		ids, vectors, err := v.embedChunks(ctx, chunks)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := graph.Add(ctx, ids, vectors); err != nil {
				return scherr.New(scherr.ErrCodeIndexFailed, "failed to add vectors", err)
			}
		}
		if err := v.metadata.SaveChunks(ctx, chunks); err != nil {
			return scherr.New(scherr.ErrCodeIndexFailed, "failed to save chunks", err)
		}
	}

	if err := graph.Save(v.vectorPath()); err != nil {
		return scherr.New(scherr.ErrCodeIndexFailed, "failed to persist vector graph", err)
	}

	slog.Info("document_indexed",
		slog.String("doc_id", doc.ID),
		slog.Int("chunks", len(chunks)))
	return nil
}

// RemoveDocument drops a document's chunks from the graph and the
// chunk table. Safe to call when vector search is not running; the
// chunk rows are cleaned up either way.
func (v *VectorIndex) RemoveDocument(ctx context.Context, docID string) error {
	if docID == "" {
		return scherr.ValidationError("document id is required", nil)
	}

	v.buildMu.Lock()
	defer v.buildMu.Unlock()

	oldIDs, err := v.metadata.ChunkIDsByDocument(ctx, docID)
	if err != nil {
		return scherr.New(scherr.ErrCodeIndexFailed, "failed to list chunks", err)
	}

	v.mu.RLock()
	graph := v.vectors
	ready := v.ready && !v.closed
	v.mu.RUnlock()

	if ready && graph != nil && len(oldIDs) > 0 {
		if err := graph.Delete(ctx, oldIDs); err != nil {
			return scherr.New(scherr.ErrCodeIndexFailed, "failed to drop vectors", err)
		}
		if err := graph.Save(v.vectorPath()); err != nil {
			return scherr.New(scherr.ErrCodeIndexFailed, "failed to persist vector graph", err)
		}
	}

	if err := v.metadata.DeleteChunksByDocument(ctx, docID); err != nil {
		return scherr.New(scherr.ErrCodeIndexFailed, "failed to delete chunks", err)
	}

	slog.Info("document_removed_from_index",
		slog.String("doc_id", docID),
		slog.Int("chunks", len(oldIDs)))
	return nil
}
