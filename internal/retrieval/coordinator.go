// Package retrieval runs date-aware similarity search: a store-side date
// filter when the backend accepts it, and the in-memory effective-date
// predicate on every candidate regardless.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/filter"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

// ErrUnavailable wraps vector store failures that survived the fallback.
var ErrUnavailable = errors.New("retrieval: vector store unavailable")

// Query is one similarity search. A zero Mode is undated.
type Query struct {
	Text      string
	Mode      domain.Mode
	TopK      int
	Threshold float64
}

// Trace explains how a result set was produced.
type Trace struct {
	Filter         string `json:"filter,omitempty"`
	StoreFiltered  bool   `json:"store_filtered"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	Candidates     int    `json:"candidates"`
	Excluded       int    `json:"excluded"`
	DateIssues     int    `json:"date_issues"`
}

// Candidates is the predicate-checked result of a search, in store order.
type Candidates struct {
	Results []domain.SearchResult
	Trace   Trace
}

// QualitySink receives malformed-date reports for monitoring.
type QualitySink interface {
	ReportDateIssue(ctx context.Context, issue temporal.DateIssue)
}

// Coordinator is immutable after construction and safe for concurrent use.
type Coordinator struct {
	store       domain.VectorStore
	storeFilter bool
	sink        QualitySink
	log         *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStoreFilter toggles sending the date expression to the store. On by default.
func WithStoreFilter(enabled bool) Option { return func(c *Coordinator) { c.storeFilter = enabled } }

// WithQualitySink forwards malformed-date reports to sink.
func WithQualitySink(sink QualitySink) Option { return func(c *Coordinator) { c.sink = sink } }

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.log = l } }

func NewCoordinator(store domain.VectorStore, opts ...Option) *Coordinator {
	c := &Coordinator{store: store, storeFilter: true, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs q against the store. Dated queries try the store-side filter
// first and retry unfiltered when it cannot be built or applied; the
// effective-date predicate then runs over every candidate. Undated queries
// are a plain search with results in store order.
func (c *Coordinator) Search(ctx context.Context, q Query) (Candidates, error) {
	req := domain.SearchRequest{Text: q.Text, TopK: q.TopK, Threshold: q.Threshold}
	on, dated := q.Mode.Date()
	if !dated {
		res, err := c.store.Search(ctx, req)
		if err != nil {
			return Candidates{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return Candidates{Results: res, Trace: Trace{Candidates: len(res)}}, nil
	}

	trace := Trace{Filter: temporal.DateFilter(on).String()}
	var (
		res []domain.SearchResult
		err error
	)
	if c.storeFilter {
		res, err = c.filteredSearch(ctx, req, trace.Filter)
		if err == nil {
			trace.StoreFiltered = true
		} else if ctx.Err() != nil {
			return Candidates{}, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		} else {
			trace.FallbackReason = err.Error()
			c.log.Warn("retrieval: store-side date filter failed, searching unfiltered",
				"filter", trace.Filter, "error", err)
		}
	} else {
		trace.FallbackReason = "store filter disabled"
	}
	if !trace.StoreFiltered {
		res, err = c.store.Search(ctx, req)
		if err != nil {
			return Candidates{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	trace.Candidates = len(res)

	kept := make([]domain.SearchResult, 0, len(res))
	for _, r := range res {
		ok, issues := temporal.Evaluate(r.Chunk, on)
		for _, issue := range issues {
			trace.DateIssues++
			c.log.Warn("retrieval: malformed chunk date treated as no constraint",
				"data_quality", true, "chunk_id", issue.ChunkID, "field", issue.Field, "value", issue.Value)
			if c.sink != nil {
				c.sink.ReportDateIssue(ctx, issue)
			}
		}
		if ok {
			kept = append(kept, r)
		}
	}
	trace.Excluded = len(res) - len(kept)
	return Candidates{Results: kept, Trace: trace}, nil
}

// filteredSearch parses the expression text and issues the filtered search.
func (c *Coordinator) filteredSearch(ctx context.Context, req domain.SearchRequest, expr string) ([]domain.SearchResult, error) {
	f, err := filter.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}
	req.Filter = f
	return c.store.Search(ctx, req)
}
