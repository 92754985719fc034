package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cpage-pivotal/ipzs/internal/repository"
)

func TestListQuery(t *testing.T) {
	q, args := listQuery(repository.ListFilter{})
	if strings.Contains(q, "WHERE") || len(args) != 0 {
		t.Fatalf("unfiltered = %s %v", q, args)
	}
	q, args = listQuery(repository.ListFilter{DocumentType: "Notice", TitleContains: "speed", EffectiveOn: time.Now()})
	if !strings.Contains(q, "lower(document_type) = lower($1) AND title ILIKE '%' || $2 || '%'") {
		t.Fatalf("query = %s", q)
	}
	if len(args) != 2 || args[0] != "Notice" || args[1] != "speed" {
		t.Fatalf("args = %v", args)
	}
}

// TestRoundTrip runs against a live database when PGVECTOR_TEST_DSN is set.
func TestRoundTrip(t *testing.T) {
	dsn := os.Getenv("PGVECTOR_TEST_DSN")
	if dsn == "" {
		t.Skip("PGVECTOR_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	repo, err := New(ctx, pool)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Exec(ctx, `DELETE FROM legislation_documents WHERE id LIKE 'legisrag-test-%'`)

	rec := repository.DocumentRecord{ID: "legisrag-test-1", Title: "Test Act", EffectiveDate: "2024-01-01", ChunkCount: 2}
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Get(ctx, rec.ID)
	if err != nil || got.Title != "Test Act" || got.ChunkCount != 2 || got.CreatedAt.IsZero() {
		t.Fatalf("got %+v, %v", got, err)
	}
	if _, err := repo.Get(ctx, "legisrag-test-missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	list, err := repo.List(ctx, repository.ListFilter{TitleContains: "test act"})
	if err != nil || len(list) == 0 {
		t.Fatalf("list = %v, %v", list, err)
	}
}
