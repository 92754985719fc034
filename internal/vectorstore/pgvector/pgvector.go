// Package pgvector stores chunk embeddings in PostgreSQL with the pgvector
// extension. Date filters become SQL predicates on an indexed epoch column.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/filter"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
	"github.com/cpage-pivotal/ipzs/internal/vectorstore"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Storage handles vector operations for legislative chunks.
type Storage struct {
	db    *pgxpool.Pool
	table string
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}
	return pool, nil
}

// NewStorage creates a storage on table. The caller owns the pool.
func NewStorage(db *pgxpool.Pool, table string) (*Storage, error) {
	if table == "" {
		table = "legislative_chunks"
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", table)
	}
	return &Storage{db: db, table: table}, nil
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("pgvector: invalid dimension")
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_text TEXT NOT NULL,
			metadata JSONB NOT NULL,
			%s BIGINT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.table, temporal.EpochField, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_epoch_idx ON %s (%s)`, s.table, s.table, temporal.EpochField),
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("pgvector: init: %w", err)
		}
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("pgvector: chunks and vectors length mismatch")
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, document_id, chunk_text, metadata, %s, embedding)
		VALUES ($1, $2, $3, $4, $5, $6::vector)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_text = EXCLUDED.chunk_text,
			metadata = EXCLUDED.metadata,
			%s = EXCLUDED.%s,
			embedding = EXCLUDED.embedding`, s.table, temporal.EpochField, temporal.EpochField, temporal.EpochField)

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(q, c.ID, c.SourceDocumentID, c.Text, vectorstore.Payload(c), temporal.EffectiveEpoch(c), formatVector(vectors[i]))
	}
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("pgvector: upsert: %w", err)
		}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int, f *filter.Expression) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	query, args, err := s.searchQuery(vector, topK, f)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var (
			meta  map[string]any
			score float64
		)
		if err := rows.Scan(&meta, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		results = append(results, domain.SearchResult{Chunk: vectorstore.ChunkFromPayload(meta), Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: rows: %w", err)
	}
	return results, nil
}

func (s *Storage) searchQuery(vector []float32, topK int, f *filter.Expression) (string, []any, error) {
	args := []any{formatVector(vector), topK}
	where := ""
	if f != nil {
		if err := f.Validate(temporal.EpochField); err != nil {
			return "", nil, err
		}
		cond, err := f.SQL("$3")
		if err != nil {
			return "", nil, err
		}
		where = "WHERE " + cond
		args = append(args, f.Value)
	}
	q := fmt.Sprintf(`SELECT metadata, 1 - (embedding <=> $1::vector) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, s.table, where)
	return q, args, nil
}

// DeleteDocument removes the chunks of one source document. A table that
// does not exist yet holds nothing to delete.
func (s *Storage) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.Exec(ctx, s.deleteQuery(), documentID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pgvector: delete document %s: %w", documentID, err)
	}
	return nil
}

const undefinedTable = "42P01"

func (s *Storage) deleteQuery() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.table)
}

// Clear drops the table so the next Init may change the dimension.
func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
		return fmt.Errorf("pgvector: clear: %w", err)
	}
	return nil
}

// formatVector formats an embedding vector as a pgvector literal.
func formatVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
