package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx, letting every query
// method run unchanged whether or not it is inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// SQLiteMetadataStore implements MetadataStore on a SQLite database
// (WAL mode, foreign keys on), the teacher's own connection-pool setup.
type SQLiteMetadataStore struct {
	db *sql.DB
}

// NewSQLiteMetadataStore opens (or creates) a SQLite database at dbPath
// and ensures the documents/chunks schema, then applies pending
// migrations via Migrate before returning.
func NewSQLiteMetadataStore(dbPath string) (*SQLiteMetadataStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(documentsChunksSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteMetadataStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteMetadataStore) Close() error { return s.db.Close() }

// conn returns the active transaction if ctx carries one, else the pool.
func (s *SQLiteMetadataStore) conn(ctx context.Context) dbtx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTransaction executes fn atomically. Nested calls are rejected:
// a context already carrying a transaction cannot open another.
func (s *SQLiteMetadataStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fmt.Errorf("metadata store: nested transaction not allowed")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ResolveIngestionIntent implements §4.H step 3 / §5's serialization
// point: one transaction decides existing/reindex/new for path+checksum.
// This is an atomic INSERT ... ON CONFLICT(path) DO NOTHING followed by a
// re-SELECT, not a SELECT-then-branch-then-INSERT: a plain SELECT first
// lets two concurrent callers on the same new path both observe
// sql.ErrNoRows before either commits, so the loser's later INSERT would
// hit the documents.path UNIQUE constraint and fail outright instead of
// resolving to existing/reindex. Racing the INSERT itself means the
// loser blocks on SQLite's write lock until the winner commits, then its
// own re-SELECT observes the winner's row and falls through to the
// existing/reindex branch below.
func (s *SQLiteMetadataStore) ResolveIngestionIntent(ctx context.Context, path, filename, fileType, mimeType string, sizeBytes int64, checksum string, forceReindex bool) (IngestionIntent, error) {
	var result IngestionIntent
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		c := s.conn(ctx)
		newID := uuid.NewString()
		now := time.Now().UTC()
		_, err := c.ExecContext(ctx, `
			INSERT INTO documents (id, path, filename, file_type, mime_type, size_bytes, checksum, status, chunk_count, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 0, '{}', ?, ?)
			ON CONFLICT(path) DO NOTHING
		`, newID, path, filename, fileType, mimeType, sizeBytes, checksum, now, now)
		if err != nil {
			return fmt.Errorf("inserting new document: %w", err)
		}

		var id, existingChecksum, status string
		var chunkCount int
		row := c.QueryRowContext(ctx, `SELECT id, checksum, status, chunk_count FROM documents WHERE path = ?`, path)
		if err := row.Scan(&id, &existingChecksum, &status, &chunkCount); err != nil {
			return fmt.Errorf("reading resolved document: %w", err)
		}

		if id == newID {
			result = IngestionIntent{Action: IntentNew, DocumentID: newID}
			return nil
		}
		if existingChecksum == checksum && !forceReindex {
			result = IngestionIntent{Action: IntentExisting, DocumentID: id, ChunkCount: chunkCount}
			return nil
		}
		result = IngestionIntent{Action: IntentReindex, DocumentID: id}
		return nil
	})
	return result, err
}

func (s *SQLiteMetadataStore) InsertDocument(ctx context.Context, doc Document) error {
	c := s.conn(ctx)
	metaJSON, err := marshalMeta(doc.Metadata)
	if err != nil {
		return err
	}
	tagsJSON, _ := json.Marshal(doc.Tags)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	_, err = c.ExecContext(ctx, `
		INSERT INTO documents (id, path, filename, file_type, mime_type, size_bytes, checksum, status, chunk_count, metadata, summary, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename, file_type = excluded.file_type, mime_type = excluded.mime_type,
			size_bytes = excluded.size_bytes, checksum = excluded.checksum, status = excluded.status,
			chunk_count = excluded.chunk_count, metadata = excluded.metadata, summary = excluded.summary,
			tags = excluded.tags, updated_at = excluded.updated_at
	`, doc.ID, doc.Path, doc.Filename, doc.FileType, doc.MIMEType, doc.SizeBytes, doc.Checksum,
		doc.Status, doc.ChunkCount, metaJSON, doc.Summary, string(tagsJSON), now, now)
	return err
}

func (s *SQLiteMetadataStore) UpdateDocumentStatus(ctx context.Context, id, status string, errMsg string) error {
	c := s.conn(ctx)
	if errMsg == "" {
		_, err := c.ExecContext(ctx, `UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
		return err
	}
	// Merge the error into the metadata JSON without clobbering other keys.
	doc, err := s.getDocument(ctx, c, "id", id)
	if err != nil {
		return err
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]MetaValue{}
	}
	doc.Metadata["error"] = MetaValue{Kind: "string", Str: errMsg}
	metaJSON, err := marshalMeta(doc.Metadata)
	if err != nil {
		return err
	}
	_, err = c.ExecContext(ctx, `UPDATE documents SET status = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		status, metaJSON, time.Now().UTC(), id)
	return err
}

func (s *SQLiteMetadataStore) MarkIndexed(ctx context.Context, id string, chunkCount int, metadata map[string]MetaValue, indexedAt time.Time) error {
	c := s.conn(ctx)
	doc, err := s.getDocument(ctx, c, "id", id)
	if err != nil {
		return err
	}
	merged := doc.Metadata
	if merged == nil {
		merged = map[string]MetaValue{}
	}
	for k, v := range metadata {
		merged[k] = v
	}
	metaJSON, err := marshalMeta(merged)
	if err != nil {
		return err
	}
	_, err = c.ExecContext(ctx, `
		UPDATE documents SET status = 'indexed', chunk_count = ?, metadata = ?, indexed_at = ?, updated_at = ?
		WHERE id = ?
	`, chunkCount, metaJSON, indexedAt, time.Now().UTC(), id)
	return err
}

func (s *SQLiteMetadataStore) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	return s.getDocument(ctx, s.conn(ctx), "id", id)
}

func (s *SQLiteMetadataStore) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	return s.getDocument(ctx, s.conn(ctx), "path", path)
}

func (s *SQLiteMetadataStore) getDocument(ctx context.Context, c dbtx, col, val string) (*Document, error) {
	row := c.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, path, filename, file_type, mime_type, size_bytes, checksum, status, chunk_count,
			metadata, summary, tags, created_at, updated_at, indexed_at
		FROM documents WHERE %s = ?`, col), val)
	return scanDocument(row)
}

func (s *SQLiteMetadataStore) GetDocumentsByPaths(ctx context.Context, paths []string) ([]Document, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	c := s.conn(ctx)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}
	rows, err := c.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, path, filename, file_type, mime_type, size_bytes, checksum, status, chunk_count,
			metadata, summary, tags, created_at, updated_at, indexed_at
		FROM documents WHERE path IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *SQLiteMetadataStore) ListDocuments(ctx context.Context) ([]Document, error) {
	c := s.conn(ctx)
	rows, err := c.QueryContext(ctx, `
		SELECT id, path, filename, file_type, mime_type, size_bytes, checksum, status, chunk_count,
			metadata, summary, tags, created_at, updated_at, indexed_at
		FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *SQLiteMetadataStore) DeleteDocument(ctx context.Context, id string) (bool, error) {
	c := s.conn(ctx)
	res, err := c.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteMetadataStore) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	insert := func(ctx context.Context) error {
		c := s.conn(ctx)
		for _, ch := range chunks {
			if ch.ID == "" {
				ch.ID = uuid.NewString()
			}
			metaJSON, err := marshalMeta(ch.Metadata)
			if err != nil {
				return err
			}
			if _, err := c.ExecContext(ctx, `
				INSERT INTO chunks (id, document_id, chunk_index, start_offset, end_offset, token_count, content, metadata)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, ch.ID, ch.DocumentID, ch.ChunkIndex, ch.StartOffset, ch.EndOffset, ch.TokenCount, ch.Content, metaJSON); err != nil {
				return err
			}
		}
		return nil
	}
	// Bulk insert is one statement-per-row inside one transaction (§4.G);
	// if we're already inside the caller's transaction, reuse it.
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return insert(ctx)
	}
	return s.WithTransaction(ctx, insert)
}

func (s *SQLiteMetadataStore) GetChunksByDocument(ctx context.Context, docID string) ([]Chunk, error) {
	c := s.conn(ctx)
	rows, err := c.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, start_offset, end_offset, token_count, content, metadata
		FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteMetadataStore) GetChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	c := s.conn(ctx)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := c.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, document_id, chunk_index, start_offset, end_offset, token_count, content, metadata
		FROM chunks WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteMetadataStore) DeleteChunksByDocument(ctx context.Context, docID string) error {
	c := s.conn(ctx)
	_, err := c.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID)
	return err
}

// --- scanning helpers ---

func scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	var metaJSON, tagsJSON sql.NullString
	var indexedAt sql.NullTime
	if err := row.Scan(&d.ID, &d.Path, &d.Filename, &d.FileType, &d.MIMEType, &d.SizeBytes, &d.Checksum,
		&d.Status, &d.ChunkCount, &metaJSON, &d.Summary, &tagsJSON, &d.CreatedAt, &d.UpdatedAt, &indexedAt); err != nil {
		return nil, err
	}
	d.Metadata = unmarshalMeta(metaJSON.String)
	if tagsJSON.String != "" {
		json.Unmarshal([]byte(tagsJSON.String), &d.Tags)
	}
	if indexedAt.Valid {
		t := indexedAt.Time
		d.IndexedAt = &t
	}
	return &d, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var d Document
		var metaJSON, tagsJSON sql.NullString
		var indexedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.Path, &d.Filename, &d.FileType, &d.MIMEType, &d.SizeBytes, &d.Checksum,
			&d.Status, &d.ChunkCount, &metaJSON, &d.Summary, &tagsJSON, &d.CreatedAt, &d.UpdatedAt, &indexedAt); err != nil {
			return nil, err
		}
		d.Metadata = unmarshalMeta(metaJSON.String)
		if tagsJSON.String != "" {
			json.Unmarshal([]byte(tagsJSON.String), &d.Tags)
		}
		if indexedAt.Valid {
			t := indexedAt.Time
			d.IndexedAt = &t
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var metaJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.StartOffset, &c.EndOffset,
			&c.TokenCount, &c.Content, &metaJSON); err != nil {
			return nil, err
		}
		c.Metadata = unmarshalMeta(metaJSON.String)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func marshalMeta(m map[string]MetaValue) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMeta(s string) map[string]MetaValue {
	if s == "" {
		return nil
	}
	var m map[string]MetaValue
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}
