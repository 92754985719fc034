//go:build cgo

package sqlitevec

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/filter"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "vec.db"))
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Init(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	return s
}

func seed(t *testing.T, s *Storage) {
	t.Helper()
	chunks := []domain.Chunk{
		{ID: "old", SourceDocumentID: "hr-2024-001", Text: "70 mph", EffectiveDate: "2024-01-01", Generation: 1},
		{ID: "new", SourceDocumentID: "hr-2025-042", Text: "75 mph", EffectiveDate: "2025-09-01", Generation: 2},
		{ID: "future", SourceDocumentID: "hr-2025-099", Text: "80 mph", EffectiveDate: "2025-10-01", Generation: 2},
		{ID: "undated", SourceDocumentID: "x", Text: "?"},
	}
	vectors := [][]float32{{1, 0}, {0.9, 0.1}, {1, 0.05}, {0.5, 0.5}}
	if err := s.Upsert(context.Background(), chunks, vectors); err != nil {
		t.Fatal(err)
	}
}

func TestSearchReturnsMetadata(t *testing.T) {
	s := newTestStorage(t)
	seed(t, s)
	res, err := s.Search(context.Background(), []float32{1, 0}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Chunk.ID != "old" || res[0].Chunk.Text != "70 mph" || res[0].Chunk.Generation != 1 {
		t.Fatalf("results = %+v", res)
	}
	if res[0].Score < 0.99 {
		t.Fatalf("score = %f", res[0].Score)
	}
}

func TestSearchFiltersOnEpochColumn(t *testing.T) {
	s := newTestStorage(t)
	seed(t, s)
	on, _ := temporal.ParseDate("2025-09-10")
	f := temporal.DateFilter(on)
	res, err := s.Search(context.Background(), []float32{1, 0}, 10, &f)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, r := range res {
		seen[r.Chunk.ID] = true
	}
	if len(res) != 3 || seen["future"] || !seen["undated"] {
		t.Fatalf("results = %+v", res)
	}
}

func TestUpsertReplaces(t *testing.T) {
	s := newTestStorage(t)
	seed(t, s)
	ctx := context.Background()
	if err := s.Upsert(ctx, []domain.Chunk{{ID: "old", Text: "updated", EffectiveDate: "2024-01-01"}}, [][]float32{{0, 1}}); err != nil {
		t.Fatal(err)
	}
	res, err := s.Search(ctx, []float32{0, 1}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Chunk.ID != "old" || res[0].Chunk.Text != "updated" {
		t.Fatalf("results = %+v", res)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStorage(t)
	seed(t, s)
	ctx := context.Background()
	if err := s.DeleteDocument(ctx, "hr-2024-001"); err != nil {
		t.Fatal(err)
	}
	res, err := s.Search(ctx, []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 3 {
		t.Fatalf("results = %+v", res)
	}
	for _, r := range res {
		if r.Chunk.ID == "old" {
			t.Fatal("deleted document still searchable")
		}
	}

	fresh, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Close()
	if err := fresh.DeleteDocument(ctx, "hr-2024-001"); err != nil {
		t.Fatalf("delete before init: %v", err)
	}
}

func TestClearAllowsNewDimension(t *testing.T) {
	s := newTestStorage(t)
	seed(t, s)
	ctx := context.Background()
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, []domain.Chunk{{ID: "a"}}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatal(err)
	}
}

func TestUnsupportedFilter(t *testing.T) {
	s := newTestStorage(t)
	bad := filter.Expression{Field: "title", Op: filter.OpLTE, Value: 0}
	if _, err := s.Search(context.Background(), []float32{1, 0}, 1, &bad); !errors.Is(err, filter.ErrUnsupported) {
		t.Fatalf("err = %v", err)
	}
}
