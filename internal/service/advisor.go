// Package service answers legislative questions as the law stood on a
// caller-supplied date: retrieval, date filtering and ranking, prompt
// assembly and generation.
package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/prompt"
	"github.com/cpage-pivotal/ipzs/internal/retrieval"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

var (
	ErrEmptyQuestion         = errors.New("service: empty question")
	ErrRetrievalUnavailable  = errors.New("service: retrieval unavailable")
	ErrGenerationUnavailable = errors.New("service: generation unavailable")
	ErrStreamConsumed        = errors.New("service: stream already consumed")
)

const (
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.5

	apology        = "I'm sorry, but I encountered an error processing your request. Please try again."
	askForQuestion = "Please enter a question."
)

// SafeMessage is the text shown to users for err. It never includes error details.
func SafeMessage(err error) string {
	if errors.Is(err, ErrEmptyQuestion) {
		return askForQuestion
	}
	return apology
}

// Config configures an Advisor. Zero numeric fields select the defaults.
type Config struct {
	TopK                int
	SimilarityThreshold float64
	MaxContextChars     int
	DatedTemplate       string
	UndatedTemplate     string
	// DisableStoreFilter skips the store-side date filter. The in-memory
	// date check still runs.
	DisableStoreFilter bool
	Logger             *slog.Logger
}

func (c *Config) validate() error {
	if c.TopK < 0 {
		return fmt.Errorf("service: negative top_k %d", c.TopK)
	}
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("service: similarity threshold %v outside [0,1]", c.SimilarityThreshold)
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Option configures optional collaborators of an Advisor.
type Option func(*options)

type options struct {
	sink retrieval.QualitySink
}

// WithQualitySink forwards malformed chunk dates seen during retrieval to sink.
func WithQualitySink(sink retrieval.QualitySink) Option {
	return func(o *options) { o.sink = sink }
}

// Advisor is immutable after construction and safe for concurrent use.
type Advisor struct {
	cfg       Config
	retriever *retrieval.Coordinator
	assembler *prompt.Assembler
	gen       domain.Generator
	log       *slog.Logger
}

func NewAdvisor(cfg Config, store domain.VectorStore, gen domain.Generator, opts ...Option) (*Advisor, error) {
	if store == nil || gen == nil {
		return nil, errors.New("service: store and generator are required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	asm, err := prompt.NewAssembler(prompt.Config{
		MaxContextChars: cfg.MaxContextChars,
		DatedTemplate:   cfg.DatedTemplate,
		UndatedTemplate: cfg.UndatedTemplate,
	})
	if err != nil {
		return nil, err
	}
	copts := []retrieval.Option{
		retrieval.WithStoreFilter(!cfg.DisableStoreFilter),
		retrieval.WithLogger(cfg.Logger),
	}
	if o.sink != nil {
		copts = append(copts, retrieval.WithQualitySink(o.sink))
	}
	return &Advisor{
		cfg:       cfg,
		retriever: retrieval.NewCoordinator(store, copts...),
		assembler: asm,
		gen:       gen,
		log:       cfg.Logger,
	}, nil
}

// Request is one question. ContextDate is an ISO date; empty or unparseable
// values answer without a date constraint.
type Request struct {
	Text           string
	ContextDate    string
	ConversationID string
}

// Source describes one chunk the answer was grounded on.
type Source struct {
	ChunkID        string  `json:"chunk_id"`
	DocumentID     string  `json:"document_id"`
	Title          string  `json:"title"`
	DocumentNumber string  `json:"document_number,omitempty"`
	EffectiveDate  string  `json:"effective_date,omitempty"`
	ExpirationDate string  `json:"expiration_date,omitempty"`
	Score          float64 `json:"score"`
}

// Response is a generated answer with its provenance.
type Response struct {
	Answer             string          `json:"answer"`
	ConversationID     string          `json:"conversation_id"`
	ProvenanceChunkIDs []string        `json:"provenance_chunk_ids"`
	Mode               string          `json:"mode"`
	Sources            []Source        `json:"sources"`
	Trace              retrieval.Trace `json:"trace"`
}

// prepared is everything computed before the generator is called.
type prepared struct {
	prompt string
	resp   Response
}

// Ask answers req in one generator call.
func (a *Advisor) Ask(ctx context.Context, req Request) (*Response, error) {
	p, err := a.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	answer, err := a.gen.Complete(ctx, p.prompt)
	if err != nil {
		a.log.Error("advisor: generation failed", "conversation_id", p.resp.ConversationID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	p.resp.Answer = answer
	a.log.Info("advisor: answered",
		"conversation_id", p.resp.ConversationID, "mode", p.resp.Mode, "sources", len(p.resp.Sources))
	return &p.resp, nil
}

// StreamEvent is one piece of a streamed answer.
type StreamEvent struct {
	Delta              string   `json:"delta"`
	ConversationID     string   `json:"conversation_id"`
	ProvenanceChunkIDs []string `json:"provenance_chunk_ids"`
}

// Stream is a prepared answer whose text has not been generated yet.
type Stream struct {
	ctx      context.Context
	gen      domain.Generator
	prompt   string
	resp     Response
	consumed atomic.Bool
}

// Stream retrieves and assembles the prompt for req. Generation starts when
// Events is ranged over.
func (a *Advisor) Stream(ctx context.Context, req Request) (*Stream, error) {
	p, err := a.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Stream{ctx: ctx, gen: a.gen, prompt: p.prompt, resp: p.resp}, nil
}

// Response returns the stream's metadata. Answer is always empty.
func (s *Stream) Response() Response { return s.resp }

// Events relays generator output. Stopping the iteration cancels the
// generator call. A Stream can be ranged over once; later ranges yield
// ErrStreamConsumed without calling the generator.
func (s *Stream) Events() iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		if s.consumed.Swap(true) {
			yield(StreamEvent{}, ErrStreamConsumed)
			return
		}
		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()
		for delta, err := range s.gen.Stream(ctx, s.prompt) {
			if err != nil {
				yield(StreamEvent{}, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err))
				return
			}
			ev := StreamEvent{
				Delta:              delta,
				ConversationID:     s.resp.ConversationID,
				ProvenanceChunkIDs: s.resp.ProvenanceChunkIDs,
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (a *Advisor) prepare(ctx context.Context, req Request) (prepared, error) {
	question := strings.TrimSpace(req.Text)
	if question == "" {
		return prepared{}, ErrEmptyQuestion
	}
	conv := req.ConversationID
	if conv == "" {
		conv = uuid.NewString()
	}
	mode := a.mode(req.ContextDate, conv)

	cands, err := a.retriever.Search(ctx, retrieval.Query{
		Text:      question,
		Mode:      mode,
		TopK:      a.cfg.TopK,
		Threshold: a.cfg.SimilarityThreshold,
	})
	if err != nil {
		a.log.Error("advisor: retrieval failed", "conversation_id", conv, "error", err)
		return prepared{}, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}
	results := cands.Results
	if mode.IsDated() {
		results = temporal.Rank(results)
	}
	a.log.Debug("advisor: retrieved",
		"conversation_id", conv, "mode", mode.String(), "candidates", cands.Trace.Candidates,
		"excluded", cands.Trace.Excluded, "store_filtered", cands.Trace.StoreFiltered)

	resp := Response{
		ConversationID:     conv,
		ProvenanceChunkIDs: make([]string, 0, len(results)),
		Mode:               mode.String(),
		Sources:            make([]Source, 0, len(results)),
		Trace:              cands.Trace,
	}
	for _, r := range results {
		resp.ProvenanceChunkIDs = append(resp.ProvenanceChunkIDs, r.Chunk.ID)
		resp.Sources = append(resp.Sources, Source{
			ChunkID:        r.Chunk.ID,
			DocumentID:     r.Chunk.SourceDocumentID,
			Title:          r.Chunk.Title,
			DocumentNumber: r.Chunk.DocumentNumber,
			EffectiveDate:  r.Chunk.EffectiveDate,
			ExpirationDate: r.Chunk.ExpirationDate,
			Score:          r.Score,
		})
	}
	return prepared{prompt: a.assembler.Assemble(question, results, mode), resp: resp}, nil
}

// mode selects the retrieval mode once per request. A bad date degrades to
// undated retrieval.
func (a *Advisor) mode(contextDate, conv string) domain.Mode {
	if strings.TrimSpace(contextDate) == "" {
		return domain.Undated()
	}
	on, err := temporal.ParseDate(contextDate)
	if err != nil {
		a.log.Warn("advisor: unparseable context date, answering without date constraint",
			"conversation_id", conv, "context_date", contextDate, "error", err)
		return domain.Undated()
	}
	return domain.Dated(on)
}
