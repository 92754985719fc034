// Package memory is a process-local document repository, paired with the
// in-memory vector store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/cpage-pivotal/ipzs/internal/repository"
)

type Store struct {
	mu   sync.RWMutex
	recs map[string]repository.DocumentRecord
}

func New() *Store { return &Store{recs: make(map[string]repository.DocumentRecord)} }

func (s *Store) Save(_ context.Context, rec repository.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *Store) Get(_ context.Context, id string) (repository.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return repository.DocumentRecord{}, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, f repository.ListFilter) ([]repository.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []repository.DocumentRecord
	for _, rec := range s.recs {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()
	repository.Sort(out)
	return out, nil
}

func (s *Store) Close() error { return nil }
