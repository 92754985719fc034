package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/filter"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

// fakeStore returns its chunks in fixed order and can fail filtered or all searches.
type fakeStore struct {
	chunks      []domain.Chunk
	filterErr   error
	err         error
	honorFilter bool
	requests    []domain.SearchRequest
}

func (s *fakeStore) Add(context.Context, []domain.Chunk) error { return nil }

func (s *fakeStore) Search(_ context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if req.Filter != nil && s.filterErr != nil {
		return nil, s.filterErr
	}
	var out []domain.SearchResult
	for i, c := range s.chunks {
		if s.honorFilter && req.Filter != nil && !req.Filter.Match(temporal.EffectiveEpoch(c)) {
			continue
		}
		out = append(out, domain.SearchResult{Chunk: c, Score: 1 - float64(i)/100})
	}
	return out, nil
}

var (
	chunkA = domain.Chunk{ID: "A", EffectiveDate: "2024-01-01"}
	chunkB = domain.Chunk{ID: "B", EffectiveDate: "2025-09-01"}
	chunkC = domain.Chunk{ID: "C", EffectiveDate: "2025-10-01"}
	chunkD = domain.Chunk{ID: "D", EffectiveDate: "2024-01-01", ExpirationDate: "2025-08-31"}
	chunkM = domain.Chunk{ID: "M", EffectiveDate: "not a date"}
)

var queryDate = time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)

func quiet() Option { return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))) }

func ids(rs []domain.SearchResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Chunk.ID
	}
	return out
}

func sameIDs(t *testing.T, got []domain.SearchResult, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("ids = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("ids = %v, want %v", g, want)
		}
	}
}

func TestDatedSearchSendsStoreFilter(t *testing.T) {
	store := &fakeStore{chunks: []domain.Chunk{chunkA, chunkB, chunkC, chunkD}, honorFilter: true}
	c := NewCoordinator(store, quiet())
	got, err := c.Search(context.Background(), Query{Text: "speed", Mode: domain.Dated(queryDate), TopK: 5, Threshold: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, got.Results, "A", "B")
	if len(store.requests) != 1 {
		t.Fatalf("requests = %d", len(store.requests))
	}
	req := store.requests[0]
	if req.Filter == nil || req.Filter.String() != "effective_date_epoch <= 20341" || req.TopK != 5 || req.Threshold != 0.5 {
		t.Fatalf("request = %+v", req)
	}
	if !got.Trace.StoreFiltered || got.Trace.Candidates != 3 || got.Trace.Excluded != 1 {
		t.Fatalf("trace = %+v", got.Trace)
	}
}

func TestStoreFilterFailureFallsBack(t *testing.T) {
	store := &fakeStore{
		chunks:    []domain.Chunk{chunkA, chunkB, chunkC, chunkD},
		filterErr: filter.ErrUnsupported,
	}
	c := NewCoordinator(store, quiet())
	got, err := c.Search(context.Background(), Query{Text: "speed", Mode: domain.Dated(queryDate), TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, got.Results, "A", "B")
	for _, r := range got.Results {
		if !temporal.IsEffective(r.Chunk, queryDate) {
			t.Fatalf("returned chunk %s is not in force", r.Chunk.ID)
		}
	}
	if len(store.requests) != 2 || store.requests[1].Filter != nil {
		t.Fatalf("requests = %+v", store.requests)
	}
	if got.Trace.StoreFiltered || got.Trace.FallbackReason == "" || got.Trace.Excluded != 2 {
		t.Fatalf("trace = %+v", got.Trace)
	}
}

func TestPredicateAppliedEvenWhenStoreFilterSucceeds(t *testing.T) {
	// Store accepts the filter but ignores it.
	store := &fakeStore{chunks: []domain.Chunk{chunkC, chunkD, chunkA}}
	c := NewCoordinator(store, quiet())
	got, err := c.Search(context.Background(), Query{Text: "q", Mode: domain.Dated(queryDate)})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, got.Results, "A")
}

func TestStoreFilterDisabled(t *testing.T) {
	store := &fakeStore{chunks: []domain.Chunk{chunkA, chunkC}}
	c := NewCoordinator(store, quiet(), WithStoreFilter(false))
	got, err := c.Search(context.Background(), Query{Text: "q", Mode: domain.Dated(queryDate)})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, got.Results, "A")
	if store.requests[0].Filter != nil || len(store.requests) != 1 {
		t.Fatalf("requests = %+v", store.requests)
	}
}

func TestUndatedSearchKeepsEverythingInStoreOrder(t *testing.T) {
	store := &fakeStore{chunks: []domain.Chunk{chunkA, chunkB, chunkC, chunkD}}
	c := NewCoordinator(store, quiet())
	got, err := c.Search(context.Background(), Query{Text: "q", Mode: domain.Undated()})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, got.Results, "A", "B", "C", "D")
	if store.requests[0].Filter != nil {
		t.Fatal("undated search must not filter")
	}
}

func TestStoreUnavailable(t *testing.T) {
	boom := errors.New("connection refused")
	c := NewCoordinator(&fakeStore{err: boom}, quiet())
	for _, mode := range []domain.Mode{domain.Dated(queryDate), domain.Undated()} {
		_, err := c.Search(context.Background(), Query{Text: "q", Mode: mode})
		if !errors.Is(err, ErrUnavailable) || !errors.Is(err, boom) {
			t.Fatalf("%v: err = %v", mode, err)
		}
	}
}

func TestMalformedDatesReported(t *testing.T) {
	sink := NewIssueCounter()
	store := &fakeStore{chunks: []domain.Chunk{chunkM, chunkA}}
	c := NewCoordinator(store, quiet(), WithQualitySink(sink))
	got, err := c.Search(context.Background(), Query{Text: "q", Mode: domain.Dated(queryDate)})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, got.Results, "M", "A")
	if got.Trace.DateIssues != 1 {
		t.Fatalf("trace = %+v", got.Trace)
	}
	report := sink.Snapshot()
	if report.Issues["effective_date"] != 1 || report.AffectedChunks != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestCancelledContextIsUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &fakeStore{chunks: []domain.Chunk{chunkA}, filterErr: context.Canceled}
	_, err := NewCoordinator(store, quiet()).Search(ctx, Query{Text: "q", Mode: domain.Dated(queryDate)})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
