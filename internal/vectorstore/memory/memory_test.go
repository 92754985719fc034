package memory

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/filter"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

func seed(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()
	s := NewStorage()
	if err := s.Init(ctx, 2); err != nil {
		t.Fatal(err)
	}
	chunks := []domain.Chunk{
		{ID: "old", EffectiveDate: "2024-01-01"},
		{ID: "new", EffectiveDate: "2025-09-01"},
		{ID: "future", EffectiveDate: "2025-10-01"},
		{ID: "undated"},
	}
	vectors := [][]float32{{1, 0}, {0.9, 0.1}, {1, 0.05}, {0.5, 0.5}}
	if err := s.Upsert(ctx, chunks, vectors); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSearchOrdersByCosine(t *testing.T) {
	s := seed(t)
	res, err := s.Search(context.Background(), []float32{2, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || res[0].Chunk.ID != "old" || math.Abs(res[0].Score-1) > 1e-9 {
		t.Fatalf("results = %+v", res)
	}
}

func TestSearchAppliesDateFilter(t *testing.T) {
	s := seed(t)
	on, _ := temporal.ParseDate("2025-09-10")
	f := temporal.DateFilter(on)
	res, err := s.Search(context.Background(), []float32{1, 0}, 10, &f)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, r := range res {
		got[r.Chunk.ID] = true
	}
	if len(res) != 3 || got["future"] || !got["undated"] {
		t.Fatalf("results = %+v", res)
	}
}

func TestSearchRejectsUnknownField(t *testing.T) {
	s := seed(t)
	f := filter.Expression{Field: "publication_epoch", Op: filter.OpLTE, Value: 1}
	if _, err := s.Search(context.Background(), []float32{1, 0}, 1, &f); !errors.Is(err, filter.ErrUnsupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	if err := s.Upsert(ctx, []domain.Chunk{{ID: "old", Text: "v2"}}, [][]float32{{0, 1}}); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 4 {
		t.Fatalf("len = %d", s.Len())
	}
	res, _ := s.Search(ctx, []float32{0, 1}, 1, nil)
	if res[0].Chunk.ID != "old" || res[0].Chunk.Text != "v2" {
		t.Fatalf("results = %+v", res)
	}
}

func TestDimensionMismatch(t *testing.T) {
	s := seed(t)
	if err := s.Upsert(context.Background(), []domain.Chunk{{ID: "x"}}, [][]float32{{1, 2, 3}}); err == nil {
		t.Fatal("expected error")
	}
	if err := s.Init(context.Background(), 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestZeroVectorScoresZero(t *testing.T) {
	s := seed(t)
	res, _ := s.Search(context.Background(), []float32{0, 0}, 1, nil)
	if res[0].Score != 0 {
		t.Fatalf("score = %f", res[0].Score)
	}
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	if err := s.Init(ctx, 2); err != nil {
		t.Fatal(err)
	}
	chunks := []domain.Chunk{
		{ID: "d1:0", SourceDocumentID: "d1"},
		{ID: "d2:0", SourceDocumentID: "d2"},
		{ID: "d1:1", SourceDocumentID: "d1"},
	}
	if err := s.Upsert(ctx, chunks, [][]float32{{1, 0}, {0, 1}, {1, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	// Upserting after a delete must still replace by ID.
	if err := s.Upsert(ctx, []domain.Chunk{{ID: "d2:0", SourceDocumentID: "d2", Text: "v2"}}, [][]float32{{0, 1}}); err != nil {
		t.Fatal(err)
	}
	res, err := s.Search(ctx, []float32{0, 1}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Chunk.Text != "v2" {
		t.Fatalf("results = %+v", res)
	}
}
