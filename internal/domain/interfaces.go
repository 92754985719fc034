package domain

import (
	"context"
	"iter"

	"github.com/cpage-pivotal/ipzs/internal/filter"
)

// Chunk is a retrievable unit of legislative text with its temporal and
// classification metadata. Dates are kept as the raw strings carried by
// store payloads; they may be empty or malformed.
type Chunk struct {
	ID               string
	SourceDocumentID string
	Text             string

	Title            string
	DocumentType     string
	IssuingAuthority string
	DocumentNumber   string

	EffectiveDate   string
	ExpirationDate  string
	PublicationDate string

	ChunkIndex  int
	TotalChunks int
	Generation  Generation
	SubjectArea string

	KeyProvisions string
	// Supersedes is upstream metadata only. Ranking does not read it.
	Supersedes string
}

// SearchResult is a chunk together with its similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// SearchRequest is a similarity search against a VectorStore.
type SearchRequest struct {
	Text      string
	TopK      int
	Threshold float64
	Filter    *filter.Expression
}

// VectorStore stores chunks and answers similarity searches, optionally
// pre-filtered by a metadata expression.
type VectorStore interface {
	Add(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
}

// Generator produces completions for an assembled prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream yields partial output as it arrives. Stopping the iteration
	// cancels the underlying call.
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// Summarizer produces a short extractive summary of text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
