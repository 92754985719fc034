package memory

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/filter"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
// It evaluates effective_date_epoch expressions itself.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
	byID      map[string]int
}

type entry struct {
	chunk  domain.Chunk
	vector []float32
	norm   float64
	epoch  int64
}

func NewStorage() *Storage { return &Storage{byID: make(map[string]int)} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("memory: invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != dimension {
		s.entries = nil
		s.byID = make(map[string]int)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("memory: chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("memory: vector dimension mismatch")
		}
	}
	for i, c := range chunks {
		e := entry{chunk: c, vector: vectors[i], norm: norm(vectors[i]), epoch: temporal.EffectiveEpoch(c)}
		if j, ok := s.byID[c.ID]; ok {
			s.entries[j] = e
			continue
		}
		s.byID[c.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int, f *filter.Expression) ([]domain.SearchResult, error) {
	if f != nil {
		if err := f.Validate(temporal.EpochField); err != nil {
			return nil, err
		}
	}
	if topK <= 0 {
		topK = 5
	}
	qn := norm(vector)
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.SearchResult, 0, len(s.entries))
	for _, e := range s.entries {
		if f != nil && !f.Match(e.epoch) {
			continue
		}
		results = append(results, domain.SearchResult{Chunk: e.chunk, Score: cosine(e.vector, vector, e.norm, qn)})
	}
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// DeleteDocument removes every chunk of the given source document.
func (s *Storage) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = slices.DeleteFunc(s.entries, func(e entry) bool {
		return e.chunk.SourceDocumentID == documentID
	})
	s.byID = make(map[string]int, len(s.entries))
	for i, e := range s.entries {
		s.byID[e.chunk.ID] = i
	}
	return nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byID = make(map[string]int)
	return nil
}

// Len returns the number of stored chunks.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum / (na * nb)
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
