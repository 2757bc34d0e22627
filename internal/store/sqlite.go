package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/scholia-dev/scholia/internal/chunk"
	"github.com/scholia-dev/scholia/internal/corpus"
	scherr "github.com/scholia-dev/scholia/internal/errors"
)

// DatabaseFile is the SQLite file name inside the storage directory.
const DatabaseFile = "knowledge.db"

// schemaVersion is bumped when the table layout changes. An on-disk
// database with a different version is cleared and rebuilt from the
// corpus.
const schemaVersion = 1

// SQLiteStore persists documents, chunks, and cached embeddings in one
// SQLite database. WAL mode with a single write connection lets other
// processes read while one indexes.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ MetadataStore = (*SQLiteStore)(nil)

// validateSQLiteIntegrity checks a database file before opening it.
// Returns nil if the file is usable, an error describing the problem if
// it must be cleared.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var version int
	if err := db.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("schema version unreadable: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("schema version %d, want %d", version, schemaVersion)
	}

	return nil
}

// removeDatabaseFiles deletes the database and its WAL sidecars.
func removeDatabaseFiles(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	return nil
}

// NewSQLiteStore opens or creates the knowledge database at path. An
// empty path opens an in-memory database for testing. A corrupted or
// stale database is cleared automatically; the next index run rebuilds
// it from the corpus.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("knowledge_db_invalid",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if err := removeDatabaseFiles(path); err != nil {
				return nil, scherr.New(scherr.ErrCodeCorruptIndex,
					fmt.Sprintf("knowledge database at %s is corrupted and cannot be removed", path), err)
			}
			slog.Info("knowledge_db_cleared",
				slog.String("path", path),
				slog.String("reason", "will be rebuilt on next index run"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer connection prevents SQLITE_BUSY between goroutines;
	// WAL still allows concurrent readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN parameters, so set the
	// pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16384", // 16MB (negative = KB)
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		path       TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		tags       TEXT NOT NULL DEFAULT '[]',
		metadata   TEXT NOT NULL DEFAULT '{}',
		position   INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_position ON documents(position);

	CREATE TABLE IF NOT EXISTS chunks (
		id        TEXT PRIMARY KEY,
		doc_id    TEXT NOT NULL,
		seq       INTEGER NOT NULL,
		content   TEXT NOT NULL,
		start_pos INTEGER NOT NULL DEFAULT 0,
		end_pos   INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);

	CREATE TABLE IF NOT EXISTS embedding_cache (
		key        TEXT NOT NULL,
		model      TEXT NOT NULL,
		dims       INTEGER NOT NULL,
		vector     BLOB NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (key, model)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion)
	return err
}

// SaveDocuments inserts or replaces documents in one transaction.
func (s *SQLiteStore) SaveDocuments(ctx context.Context, docs []*corpus.Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO documents (id, path, title, content, tags, metadata, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare document insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, doc := range docs {
		tags := doc.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("marshal tags for %s: %w", doc.ID, err)
		}

		metadata := doc.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", doc.ID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			doc.ID, doc.Path, doc.Title, doc.Content,
			string(tagsJSON), string(metaJSON), doc.Position, now); err != nil {
			return fmt.Errorf("save document %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// scanDocument reads one documents row. The scan argument is row.Scan
// or rows.Scan.
func scanDocument(scan func(dest ...any) error) (*corpus.Document, error) {
	var doc corpus.Document
	var tagsJSON, metaJSON, updatedAt string
	if err := scan(&doc.ID, &doc.Path, &doc.Title, &doc.Content,
		&tagsJSON, &metaJSON, &doc.Position, &updatedAt); err != nil {
		return nil, err
	}

	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return nil, fmt.Errorf("document %s has corrupt tags: %w", doc.ID, err)
	}
	if len(tags) > 0 {
		doc.Tags = tags
	}

	var metadata map[string]string
	if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
		return nil, fmt.Errorf("document %s has corrupt metadata: %w", doc.ID, err)
	}
	if len(metadata) > 0 {
		doc.Metadata = metadata
	}

	return &doc, nil
}

// GetDocument returns one document, or (nil, nil) when the ID is not
// stored.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*corpus.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, title, content, tags, metadata, position, updated_at
		FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// AllDocuments returns every stored document ordered by indexing
// position. The keyword index is warm-started from this order so tie
// breaks survive a restart.
func (s *SQLiteStore) AllDocuments(ctx context.Context) ([]*corpus.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, title, content, tags, metadata, position, updated_at
		FROM documents ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*corpus.Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// DeleteDocuments removes documents by ID. Unknown IDs are ignored.
func (s *SQLiteStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM documents WHERE id IN (%s)", strings.Join(placeholders, ","))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// CountDocuments returns the number of stored documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// SaveChunks inserts or replaces chunks in one transaction.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceAllChunks swaps the full chunk table in one transaction, used
// when a rebuild re-derives every chunk.
func (s *SQLiteStore) ReplaceAllChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []*chunk.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, doc_id, seq, content, start_pos, end_pos)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocID, c.Seq, c.Content, c.Start, c.End); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// GetChunks returns chunks in the requested ID order, skipping unknown
// IDs.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error) {
	if len(ids) == 0 {
		return []*chunk.Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, doc_id, seq, content, start_pos, end_pos
		FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*chunk.Chunk, len(ids))
	for rows.Next() {
		var c chunk.Chunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.Seq, &c.Content, &c.Start, &c.End); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]*chunk.Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// ChunkIDsByDocument returns a document's chunk IDs in sequence order.
func (s *SQLiteStore) ChunkIDsByDocument(ctx context.Context, docID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE doc_id = ? ORDER BY seq`, docID)
	if err != nil {
		return nil, fmt.Errorf("query chunk IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteChunksByDocument removes every chunk derived from a document.
func (s *SQLiteStore) DeleteChunksByDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", docID, err)
	}
	return nil
}

// CountChunks returns the number of stored chunks.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// GetEmbedding returns a cached vector. The bool reports presence; a
// decode failure surfaces as an error so the caller can treat it as a
// miss.
func (s *SQLiteStore) GetEmbedding(ctx context.Context, key, model string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, fmt.Errorf("store is closed")
	}

	var dims int
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT dims, vector FROM embedding_cache WHERE key = ? AND model = ?`,
		key, model).Scan(&dims, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query embedding cache: %w", err)
	}

	vec, err := decodeVector(blob, dims)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// PutEmbedding stores a vector under (key, model). Concurrent writers
// to the same key are safe; last write wins.
func (s *SQLiteStore) PutEmbedding(ctx context.Context, key, model string, vector []float32) error {
	if len(vector) == 0 {
		return scherr.ValidationError("cannot cache an empty embedding", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO embedding_cache (key, model, dims, vector, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		key, model, len(vector), encodeVector(vector), now)
	if err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	return nil
}

// encodeVector packs a vector as little-endian float32 bits.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte, dims int) ([]float32, error) {
	if dims <= 0 || len(blob) != 4*dims {
		return nil, fmt.Errorf("vector blob has %d bytes, want %d for %d dimensions", len(blob), 4*dims, dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}

// Path returns the database file path, empty for in-memory stores.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Checkpoint flushes the WAL into the main database file.
func (s *SQLiteStore) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close checkpoints and closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
