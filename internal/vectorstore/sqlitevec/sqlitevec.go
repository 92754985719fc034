// Package sqlitevec stores chunk embeddings in a local SQLite file using the
// sqlite-vec extension. The effective date epoch is a vec0 metadata column,
// so date filters are evaluated inside the KNN query.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/filter"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
	"github.com/cpage-pivotal/ipzs/internal/vectorstore"
)

func init() {
	sqlite_vec.Auto()
}

const chunksDDL = `CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    metadata JSON NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

func vecDDL(dim int) string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id TEXT PRIMARY KEY,
    embedding float[%d] distance_metric=cosine,
    %s integer
)`, dim, temporal.EpochField)
}

// Storage is a sqlite-vec backed vector store.
type Storage struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Storage, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlitevec: creating db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitevec: pinging database: %w", err)
	}
	if _, err := db.Exec(chunksDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitevec: creating schema: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("sqlitevec: invalid dimension")
	}
	if _, err := s.db.ExecContext(ctx, vecDDL(dimension)); err != nil {
		return fmt.Errorf("sqlitevec: creating vec table: %w", err)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("sqlitevec: chunks and vectors length mismatch")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i, c := range chunks {
			meta, err := json.Marshal(vectorstore.Payload(c))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO chunks (id, document_id, metadata) VALUES (?, ?, ?)`,
				c.ID, c.SourceDocumentID, string(meta)); err != nil {
				return fmt.Errorf("sqlitevec: insert chunk %s: %w", c.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM vec_chunks WHERE chunk_id = ?`, c.ID); err != nil {
				return fmt.Errorf("sqlitevec: replace vector %s: %w", c.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO vec_chunks (chunk_id, embedding, %s) VALUES (?, ?, ?)`, temporal.EpochField),
				c.ID, serializeFloat32(vectors[i]), temporal.EffectiveEpoch(c)); err != nil {
				return fmt.Errorf("sqlitevec: insert vector %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// Search performs a KNN search returning the top-k nearest chunks.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int, f *filter.Expression) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	where := "v.embedding MATCH ? AND k = ?"
	args := []any{serializeFloat32(vector), topK}
	if f != nil {
		if err := f.Validate(temporal.EpochField); err != nil {
			return nil, err
		}
		cond, err := f.SQL("?")
		if err != nil {
			return nil, err
		}
		where += " AND v." + cond
		args = append(args, f.Value)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.metadata, v.distance
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		WHERE `+where+`
		ORDER BY v.distance`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: search: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var (
			meta     string
			distance float64
		)
		if err := rows.Scan(&meta, &distance); err != nil {
			return nil, err
		}
		var p map[string]any
		if err := json.Unmarshal([]byte(meta), &p); err != nil {
			return nil, fmt.Errorf("sqlitevec: decode metadata: %w", err)
		}
		// Cosine distance to similarity.
		results = append(results, domain.SearchResult{Chunk: vectorstore.ChunkFromPayload(p), Score: 1.0 - distance})
	}
	return results, rows.Err()
}

// DeleteDocument removes the chunks and vectors of one source document.
func (s *Storage) DeleteDocument(ctx context.Context, documentID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var hasVec int
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM sqlite_master WHERE name = 'vec_chunks'`).Scan(&hasVec); err != nil {
			return err
		}
		if hasVec > 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM vec_chunks WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`,
				documentID); err != nil {
				return fmt.Errorf("sqlitevec: delete vectors of %s: %w", documentID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("sqlitevec: delete chunks of %s: %w", documentID, err)
		}
		return nil
	})
}

// Clear removes every chunk and drops the vec table so its dimension can change.
func (s *Storage) Clear(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS vec_chunks`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM chunks`)
		return err
	})
}

func (s *Storage) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
