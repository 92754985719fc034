// Package postgres is a Repository on a PostgreSQL table, sharing the pool
// used by the pgvector store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cpage-pivotal/ipzs/internal/repository"
)

const schema = `
	CREATE TABLE IF NOT EXISTS legislation_documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		document_type TEXT NOT NULL DEFAULT '',
		issuing_authority TEXT NOT NULL DEFAULT '',
		document_number TEXT NOT NULL DEFAULT '',
		publication_date TEXT NOT NULL DEFAULT '',
		effective_date TEXT NOT NULL DEFAULT '',
		expiration_date TEXT NOT NULL DEFAULT '',
		subject_area TEXT NOT NULL DEFAULT '',
		supersedes TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

const columns = `id, title, document_type, issuing_authority, document_number, publication_date,
	effective_date, expiration_date, subject_area, supersedes, content_hash, chunk_count, created_at`

// DocumentRepository handles database operations for document records.
type DocumentRepository struct {
	db *pgxpool.Pool
}

// New creates the table when missing. The caller owns the pool.
func New(ctx context.Context, db *pgxpool.Pool) (*DocumentRepository, error) {
	if _, err := db.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &DocumentRepository{db: db}, nil
}

func (r *DocumentRepository) Save(ctx context.Context, rec repository.DocumentRecord) error {
	query := `
		INSERT INTO legislation_documents (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			document_type = EXCLUDED.document_type,
			issuing_authority = EXCLUDED.issuing_authority,
			document_number = EXCLUDED.document_number,
			publication_date = EXCLUDED.publication_date,
			effective_date = EXCLUDED.effective_date,
			expiration_date = EXCLUDED.expiration_date,
			subject_area = EXCLUDED.subject_area,
			supersedes = EXCLUDED.supersedes,
			content_hash = EXCLUDED.content_hash,
			chunk_count = EXCLUDED.chunk_count`
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.Title,
		rec.DocumentType,
		rec.IssuingAuthority,
		rec.DocumentNumber,
		rec.PublicationDate,
		rec.EffectiveDate,
		rec.ExpirationDate,
		rec.SubjectArea,
		rec.Supersedes,
		rec.ContentHash,
		rec.ChunkCount,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", rec.ID, err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (repository.DocumentRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+columns+` FROM legislation_documents WHERE id = $1`, id)
	rec, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	return rec, err
}

// List pushes the text filters into SQL and applies the date filters to the
// rows, since stored dates may be malformed.
func (r *DocumentRepository) List(ctx context.Context, f repository.ListFilter) ([]repository.DocumentRecord, error) {
	query, args := listQuery(f)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	var out []repository.DocumentRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	repository.Sort(out)
	return out, nil
}

func listQuery(f repository.ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.DocumentType != "" {
		add("lower(document_type) = lower(?)", f.DocumentType)
	}
	if f.IssuingAuthority != "" {
		add("lower(issuing_authority) = lower(?)", f.IssuingAuthority)
	}
	if f.TitleContains != "" {
		add("title ILIKE '%' || ? || '%'", f.TitleContains)
	}
	query := `SELECT ` + columns + ` FROM legislation_documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query, args
}

// Close is a no-op; the pool belongs to the caller.
func (r *DocumentRepository) Close() error { return nil }

func scan(row pgx.Row) (repository.DocumentRecord, error) {
	var rec repository.DocumentRecord
	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.DocumentType,
		&rec.IssuingAuthority,
		&rec.DocumentNumber,
		&rec.PublicationDate,
		&rec.EffectiveDate,
		&rec.ExpirationDate,
		&rec.SubjectArea,
		&rec.Supersedes,
		&rec.ContentHash,
		&rec.ChunkCount,
		&rec.CreatedAt,
	)
	return rec, err
}
