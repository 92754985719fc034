package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cpage-pivotal/ipzs/internal/repository"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, r := range []repository.DocumentRecord{
		{ID: "old", Title: "Highway Speed Act", DocumentType: "Act", EffectiveDate: "2024-01-01"},
		{ID: "new", Title: "Highway Speed Act", DocumentType: "Act", EffectiveDate: "2025-06-01"},
		{ID: "reg", Title: "Park Naming Regulation", DocumentType: "Regulation", EffectiveDate: "bogus"},
	} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Get missing: err = %v", err)
	}

	all, err := s.List(ctx, repository.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "new" || all[2].ID != "reg" {
		t.Fatalf("List order = %v", ids(all))
	}

	acts, _ := s.List(ctx, repository.ListFilter{DocumentType: "act"})
	if len(acts) != 2 {
		t.Fatalf("acts = %v", ids(acts))
	}

	on := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	current, _ := repository.Current(ctx, s, on)
	// The malformed date is treated as in force.
	if got := ids(current); len(got) != 2 || got[0] != "old" || got[1] != "reg" {
		t.Fatalf("current = %v", got)
	}
}

func TestListCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().List(ctx, repository.ListFilter{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func ids(recs []repository.DocumentRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
