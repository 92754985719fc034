// Package vectorstore turns an embedder and a vector storage backend into
// the searchable chunk store used by retrieval.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/embedding"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

// Index implements domain.VectorStore on top of an embedder and a Storage.
//
// Corpus-dependent embedders (embedding.Preparer) change their vector space
// whenever the corpus grows, so Add re-prepares them and rebuilds the
// storage from every chunk seen so far.
type Index struct {
	mu       sync.RWMutex
	embedder embedding.Embedder
	storage  Storage
	log      *slog.Logger

	initialized bool
	// corpus is kept only for Preparer embedders.
	corpus []domain.Chunk
}

// NewIndex creates an Index. A nil logger means slog.Default().
func NewIndex(e embedding.Embedder, s Storage, log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	return &Index{embedder: e, storage: s, log: log}
}

// Add embeds and stores chunks. Chunks whose ID is already stored replace
// the earlier version.
func (x *Index) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if p, ok := x.embedder.(embedding.Preparer); ok {
		return x.rebuild(ctx, p, chunks)
	}
	vectors, err := x.embedAll(ctx, chunks)
	if err != nil {
		return err
	}
	if !x.initialized {
		if err := x.storage.Init(ctx, len(vectors[0])); err != nil {
			return fmt.Errorf("vectorstore: init: %w", err)
		}
		x.initialized = true
	}
	if err := x.storage.Upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("vectorstore: upsert: %w", err)
	}
	return nil
}

// DeleteDocument removes every stored chunk of one source document. Add
// re-prepares corpus-dependent embedders, so the vocabulary shrinks on the
// next write.
func (x *Index) DeleteDocument(ctx context.Context, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.storage.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("vectorstore: delete document %s: %w", documentID, err)
	}
	x.corpus = slices.DeleteFunc(x.corpus, func(c domain.Chunk) bool {
		return c.SourceDocumentID == documentID
	})
	return nil
}

func (x *Index) rebuild(ctx context.Context, p embedding.Preparer, chunks []domain.Chunk) error {
	merged := mergeByID(x.corpus, chunks)
	texts := make([]string, len(merged))
	for i, c := range merged {
		texts[i] = c.Text
	}
	if err := p.Prepare(texts); err != nil {
		return fmt.Errorf("vectorstore: prepare %s: %w", x.embedder.Name(), err)
	}
	vectors, err := x.embedAll(ctx, merged)
	if err != nil {
		return err
	}
	if err := x.storage.Clear(ctx); err != nil {
		return fmt.Errorf("vectorstore: clear: %w", err)
	}
	if err := x.storage.Init(ctx, len(vectors[0])); err != nil {
		return fmt.Errorf("vectorstore: init: %w", err)
	}
	x.initialized = true
	if err := x.storage.Upsert(ctx, merged, vectors); err != nil {
		return fmt.Errorf("vectorstore: upsert: %w", err)
	}
	x.corpus = merged
	x.log.Debug("vectorstore: rebuilt index", "embedder", x.embedder.Name(), "chunks", len(merged), "dimension", len(vectors[0]))
	return nil
}

func (x *Index) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		v, err := x.embedder.Embed(ctx, c.Text)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: embed chunk %s: %w", c.ID, err)
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("vectorstore: embedder %s returned an empty vector", x.embedder.Name())
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Search embeds the request text and returns stored chunks scoring at least
// the request threshold. A query that embeds to the zero vector shares no
// term with the vocabulary and matches nothing.
func (x *Index) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if _, ok := x.embedder.(embedding.Preparer); ok && len(x.corpus) == 0 {
		return nil, nil
	}
	vec, err := x.embedder.Embed(ctx, req.Text)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}
	if isZero(vec) {
		if req.Filter != nil {
			if err := req.Filter.Validate(temporal.EpochField); err != nil {
				return nil, err
			}
		}
		x.log.Debug("vectorstore: query has no known terms", "embedder", x.embedder.Name())
		return nil, nil
	}
	res, err := x.storage.Search(ctx, vec, req.TopK, req.Filter)
	if err != nil {
		return nil, err
	}
	out := res[:0]
	for _, r := range res {
		if r.Score >= req.Threshold {
			out = append(out, r)
		}
	}
	return out, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func mergeByID(existing, added []domain.Chunk) []domain.Chunk {
	pos := make(map[string]int, len(existing)+len(added))
	out := make([]domain.Chunk, 0, len(existing)+len(added))
	for _, c := range slices.Concat(existing, added) {
		if i, ok := pos[c.ID]; ok {
			out[i] = c
			continue
		}
		pos[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}
