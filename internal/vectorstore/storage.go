package vectorstore

import (
	"context"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/filter"
)

// Storage is the vector-level backend behind an Index. Search returns
// filter.ErrUnsupported when it cannot evaluate the given expression.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int, f *filter.Expression) ([]domain.SearchResult, error)
	// DeleteDocument removes every chunk whose source document is documentID.
	DeleteDocument(ctx context.Context, documentID string) error
	Clear(ctx context.Context) error
}
