package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteVectorStore implements VectorStore on sqlite-vec's vec0 virtual
// table, the default backend (Config.VectorBackend == "sqlite").
//
// Unlike Qdrant, sqlite-vec has no native payload storage, so the
// payload is serialized to JSON and carried in a separate shadow table
// keyed by chunk_id; EnsureCollection creates both the vec0 table and
// that shadow table together, named "<collection>" and "<collection>_meta".
type SQLiteVectorStore struct {
	db *sql.DB
}

// NewSQLiteVectorStore wraps an existing *sql.DB. The metadata store and
// the vector store share one SQLite file and one connection pool, since
// sqlite-vec is a virtual table extension loaded into the same process.
func NewSQLiteVectorStore(db *sql.DB) *SQLiteVectorStore {
	return &SQLiteVectorStore{db: db}
}

func (s *SQLiteVectorStore) Close() error { return nil } // pool owned by the metadata store

func (s *SQLiteVectorStore) EnsureCollection(ctx context.Context, name string, dim int, metric string) error {
	// sqlite-vec only supports L2 and cosine distance natively; cosine is
	// the only metric the core requires (§4.F), so metric is accepted but
	// not threaded further.
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding FLOAT[%d] distance_metric=cosine
		)
	`, name, dim))
	if err != nil {
		return fmt.Errorf("creating vec0 collection %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s_meta (
			chunk_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			payload TEXT NOT NULL
		)
	`, name))
	if err != nil {
		return fmt.Errorf("creating payload table for %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_meta_doc ON %s_meta(document_id)`, name, name))
	return err
}

func (s *SQLiteVectorStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range points {
		docID, _ := p.Payload["document_id"].(string)
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshalling payload for point %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE chunk_id = ?`, collection), p.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (chunk_id, embedding) VALUES (?, ?)`, collection),
			p.ID, serializeFloat32(p.Vector)); err != nil {
			return fmt.Errorf("upserting vector for point %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s_meta (chunk_id, document_id, payload) VALUES (?, ?, ?)
			ON CONFLICT(chunk_id) DO UPDATE SET document_id = excluded.document_id, payload = excluded.payload
		`, collection), p.ID, docID, string(payloadJSON)); err != nil {
			return fmt.Errorf("upserting payload for point %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteVectorStore) Search(ctx context.Context, collection string, queryVector []float32, limit int, scoreThreshold float64, filter Filter) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	// Over-fetch before applying the filter and threshold in Go, since
	// vec0 MATCH queries can't be combined with arbitrary payload
	// predicates against a JSON shadow column.
	fetchK := limit
	if len(filter) > 0 {
		fetchK = limit * 10
		if fetchK > 1000 {
			fetchK = 1000
		}
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT v.chunk_id, v.distance, m.document_id, m.payload
		FROM %s v
		JOIN %s_meta m ON m.chunk_id = v.chunk_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, collection, collection), serializeFloat32(queryVector), fetchK)
	if err != nil {
		return nil, fmt.Errorf("vector search on %s: %w", collection, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var chunkID, docID, payloadJSON string
		var distance float64
		if err := rows.Scan(&chunkID, &distance, &docID, &payloadJSON); err != nil {
			return nil, err
		}
		score := cosineDistanceToScore(distance)
		if score < scoreThreshold {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			payload = map[string]any{}
		}
		if !filter.matches(payload) {
			continue
		}
		results = append(results, SearchResult{
			ChunkID:    chunkID,
			DocumentID: docID,
			Score:      score,
			Payload:    payload,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, rows.Err()
}

// matches reports whether payload satisfies every key/value pair in f.
func (f Filter) matches(payload map[string]any) bool {
	for k, v := range f {
		pv, ok := payload[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", pv) != v {
			return false
		}
	}
	return true
}

func (s *SQLiteVectorStore) DeleteByDocumentID(ctx context.Context, collection string, docID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT chunk_id FROM %s_meta WHERE document_id = ?`, collection), docID)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE chunk_id = ?`, collection), id); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s_meta WHERE document_id = ?`, collection), docID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteVectorStore) CollectionInfo(ctx context.Context, collection string) (CollectionInfo, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s_meta`, collection)).Scan(&count)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("counting points in %s: %w", collection, err)
	}
	return CollectionInfo{VectorCount: count, Status: "green"}, nil
}

// serializeFloat32 converts a float32 slice to little-endian bytes, the
// wire format sqlite-vec's vec0 columns expect.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// cosineDistanceToScore maps vec0's cosine distance (1 - cosine
// similarity: 0 = identical, 2 = opposite) back to cosine similarity,
// the score a cosine backend like Qdrant reports natively, clamped to
// [0, 1] so negative similarities report as 0.
func cosineDistanceToScore(distance float64) float64 {
	score := 1 - distance
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
