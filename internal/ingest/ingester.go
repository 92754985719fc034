package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/repository"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

// Records is the part of a repository the Ingester writes to.
type Records interface {
	Get(ctx context.Context, id string) (repository.DocumentRecord, error)
	Save(ctx context.Context, rec repository.DocumentRecord) error
}

// DocumentDeleter is implemented by stores that can drop the chunks of one
// document. A changed document is cleared before its new chunks are added,
// so chunks beyond the new chunk count do not survive.
type DocumentDeleter interface {
	DeleteDocument(ctx context.Context, documentID string) error
}

// Options tunes chunking and metadata derivation. Zero values select defaults.
type Options struct {
	SentencesPerChunk int
	OverlapSentences  int
	// GenerationCutoffs are the years at which a new generation starts.
	GenerationCutoffs []int
	// SummarySentences bounds derived key provisions.
	SummarySentences int
	Logger           *slog.Logger
}

type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result reports the outcome for one template.
type Result struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Status     Status `json:"status"`
	Chunks     int    `json:"chunks"`
	Message    string `json:"message"`
}

// Ingester chunks templates, writes the chunks to the vector store and
// records each document.
type Ingester struct {
	store      domain.VectorStore
	records    Records
	chunker    *SentenceChunker
	summarizer domain.Summarizer
	cutoffs    []int
	summaryN   int
	log        *slog.Logger
	now        func() time.Time
}

// NewIngester creates an Ingester. summarizer may be nil, in which case
// templates without key provisions get none.
func NewIngester(store domain.VectorStore, records Records, summarizer domain.Summarizer, opts Options) *Ingester {
	if opts.GenerationCutoffs == nil {
		opts.GenerationCutoffs = temporal.DefaultGenerationCutoffs
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Ingester{
		store:      store,
		records:    records,
		chunker:    NewSentenceChunker(opts.SentencesPerChunk, opts.OverlapSentences),
		summarizer: summarizer,
		cutoffs:    opts.GenerationCutoffs,
		summaryN:   opts.SummarySentences,
		log:        opts.Logger,
		now:        time.Now,
	}
}

// Ingest processes templates in order. A failing template does not stop
// the batch; cancelling ctx does.
func (in *Ingester) Ingest(ctx context.Context, templates []Template) []Result {
	results := make([]Result, 0, len(templates))
	for _, t := range templates {
		if ctx.Err() != nil {
			results = append(results, Result{
				DocumentID: DocumentID(t.DocumentNumber), Title: t.Title,
				Status: StatusFailed, Message: ctx.Err().Error(),
			})
			continue
		}
		r := in.IngestOne(ctx, t)
		in.log.Info("ingest: processed document",
			"document_id", r.DocumentID, "status", r.Status, "chunks", r.Chunks)
		results = append(results, r)
	}
	return results
}

// IngestOne processes a single template. A document whose content digest
// matches the stored record is skipped.
func (in *Ingester) IngestOne(ctx context.Context, t Template) Result {
	id := DocumentID(t.DocumentNumber)
	res := Result{DocumentID: id, Title: t.Title}
	fail := func(err error) Result {
		in.log.Error("ingest: document failed", "document_id", id, "error", err)
		res.Status, res.Message = StatusFailed, err.Error()
		return res
	}
	if id == "" {
		return fail(errors.New("document number yields an empty id"))
	}

	hash, err := Digest(t)
	if err != nil {
		return fail(fmt.Errorf("digest: %w", err))
	}
	existing, err := in.records.Get(ctx, id)
	switch {
	case err == nil && existing.ContentHash == hash:
		res.Status, res.Chunks = StatusSkipped, existing.ChunkCount
		res.Message = "Document already exists: " + t.Title
		return res
	case err == nil:
		res.Status = StatusUpdated
	case errors.Is(err, repository.ErrNotFound):
		res.Status = StatusCreated
	default:
		return fail(fmt.Errorf("lookup: %w", err))
	}

	chunks := in.Chunks(id, t)
	if len(chunks) == 0 {
		return fail(errors.New("document has no text"))
	}
	if d, ok := in.store.(DocumentDeleter); ok && res.Status == StatusUpdated {
		if err := d.DeleteDocument(ctx, id); err != nil {
			return fail(fmt.Errorf("remove previous chunks: %w", err))
		}
	}
	if err := in.store.Add(ctx, chunks); err != nil {
		return fail(fmt.Errorf("store chunks: %w", err))
	}
	rec := repository.DocumentRecord{
		ID:               id,
		Title:            t.Title,
		DocumentType:     t.DocumentType,
		IssuingAuthority: t.IssuingAuthority,
		DocumentNumber:   t.DocumentNumber,
		PublicationDate:  t.PublicationDate,
		EffectiveDate:    t.EffectiveDate,
		ExpirationDate:   t.ExpirationDate,
		SubjectArea:      chunks[0].SubjectArea,
		Supersedes:       t.Supersedes,
		ContentHash:      hash,
		ChunkCount:       len(chunks),
		CreatedAt:        in.now().UTC(),
	}
	if res.Status == StatusUpdated {
		rec.CreatedAt = existing.CreatedAt
	}
	if err := in.records.Save(ctx, rec); err != nil {
		return fail(fmt.Errorf("save record: %w", err))
	}
	res.Chunks = len(chunks)
	res.Message = "Successfully ingested document: " + t.Title
	return res
}

// Chunks splits t into chunks carrying the full metadata contract.
func (in *Ingester) Chunks(id string, t Template) []domain.Chunk {
	texts := in.chunker.Split(t.Content)
	subject := t.SubjectArea
	if subject == "" {
		subject = SubjectArea(t.Title)
	}
	var generation domain.Generation
	if eff, err := temporal.ParseDate(t.EffectiveDate); err == nil {
		generation = temporal.GenerationFor(eff.Year(), in.cutoffs)
	}
	provisions := strings.Join(t.KeyProvisions, ", ")
	if provisions == "" && in.summarizer != nil {
		if s, err := in.summarizer.Summarize(t.Content, in.summaryN); err == nil {
			provisions = s
		}
	}

	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:               id + ":" + strconv.Itoa(i),
			SourceDocumentID: id,
			Text:             text,
			Title:            t.Title,
			DocumentType:     t.DocumentType,
			IssuingAuthority: t.IssuingAuthority,
			DocumentNumber:   t.DocumentNumber,
			EffectiveDate:    t.EffectiveDate,
			ExpirationDate:   t.ExpirationDate,
			PublicationDate:  t.PublicationDate,
			ChunkIndex:       i,
			TotalChunks:      len(texts),
			Generation:       generation,
			SubjectArea:      subject,
			KeyProvisions:    provisions,
			Supersedes:       t.Supersedes,
		}
	}
	return chunks
}
