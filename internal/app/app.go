// Package app builds the concrete components named by an AppConfig. Both
// commands share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cpage-pivotal/ipzs/internal/config"
	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/embedding"
	embgemini "github.com/cpage-pivotal/ipzs/internal/embedding/gemini"
	embopenai "github.com/cpage-pivotal/ipzs/internal/embedding/openai"
	"github.com/cpage-pivotal/ipzs/internal/embedding/tfidf"
	"github.com/cpage-pivotal/ipzs/internal/ingest"
	llmgemini "github.com/cpage-pivotal/ipzs/internal/llm/gemini"
	llmopenai "github.com/cpage-pivotal/ipzs/internal/llm/openai"
	"github.com/cpage-pivotal/ipzs/internal/repository"
	"github.com/cpage-pivotal/ipzs/internal/repository/bolt"
	repomemory "github.com/cpage-pivotal/ipzs/internal/repository/memory"
	"github.com/cpage-pivotal/ipzs/internal/repository/postgres"
	"github.com/cpage-pivotal/ipzs/internal/retrieval"
	"github.com/cpage-pivotal/ipzs/internal/service"
	"github.com/cpage-pivotal/ipzs/internal/summarizer"
	"github.com/cpage-pivotal/ipzs/internal/vectorstore"
	"github.com/cpage-pivotal/ipzs/internal/vectorstore/memory"
	"github.com/cpage-pivotal/ipzs/internal/vectorstore/pgvector"
	"github.com/cpage-pivotal/ipzs/internal/vectorstore/qdrant"
	"github.com/cpage-pivotal/ipzs/internal/vectorstore/sqlitevec"
)

// App holds the wired components. Close releases every connection it opened.
type App struct {
	Config   *config.AppConfig
	Log      *slog.Logger
	Index    *vectorstore.Index
	Records  repository.Repository
	Advisor  *service.Advisor
	Ingester *ingest.Ingester
	Quality  *retrieval.IssueCounter

	gemini  *genai.Client
	pools   map[string]*pgxpool.Pool
	closers []func() error
}

// NewLogger returns a slog logger writing to w in the configured format.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// New wires every component. On error, anything already opened is closed.
func New(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (_ *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Config: cfg, Log: log, Quality: retrieval.NewIssueCounter(), pools: map[string]*pgxpool.Pool{}}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	emb, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}
	st, err := a.storage(ctx)
	if err != nil {
		return nil, err
	}
	a.Index = vectorstore.NewIndex(emb, st, log)

	gen, err := a.generator(ctx)
	if err != nil {
		return nil, err
	}
	if a.Records, err = a.repository(ctx); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Records.Close)

	dated, undated, err := cfg.Retrieval.ReadTemplates()
	if err != nil {
		return nil, err
	}
	a.Advisor, err = service.NewAdvisor(service.Config{
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		MaxContextChars:     cfg.Retrieval.MaxContextChars,
		DatedTemplate:       dated,
		UndatedTemplate:     undated,
		DisableStoreFilter:  !cfg.Retrieval.StoreFilterEnabled(),
		Logger:              log,
	}, a.Index, gen, service.WithQualitySink(a.Quality))
	if err != nil {
		return nil, err
	}

	a.Ingester = ingest.NewIngester(a.Index, a.Records, summarizer.NewFrequencySummarizer(), ingest.Options{
		SentencesPerChunk: cfg.Ingest.SentencesPerChunk,
		OverlapSentences:  cfg.Ingest.OverlapSentences,
		GenerationCutoffs: cfg.Ingest.GenerationCutoffs,
		SummarySentences:  cfg.Ingest.SummarySentences,
		Logger:            log,
	})
	log.Info("app: components ready",
		"embedder", emb.Name(), "vector_store", cfg.VectorStore.Type,
		"generator", cfg.Generator.Type, "repository", cfg.Repository.Type)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Source resolves a manifest location: "sample", "s3://bucket/key" or a file path.
func (a *App) Source(ctx context.Context, loc string) (ingest.Source, error) {
	switch {
	case loc == "sample":
		return ingest.SampleSource{}, nil
	case strings.HasPrefix(loc, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(loc, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("app: malformed S3 location %q", loc)
		}
		s3cfg := ingest.S3Config{Region: "us-east-1"}
		if c := a.Config.Ingest.S3; c != nil {
			s3cfg = ingest.S3Config{Region: c.Region, Endpoint: c.Endpoint}
			if c.AccessKeyEnv != "" {
				s3cfg.AccessKey = os.Getenv(c.AccessKeyEnv)
			}
			if c.SecretKeyEnv != "" {
				s3cfg.SecretKey = os.Getenv(c.SecretKeyEnv)
			}
		}
		client, err := ingest.NewS3Client(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		return ingest.S3Source{Client: client, Bucket: bucket, Key: key}, nil
	default:
		return ingest.FileSource(loc), nil
	}
}

// IngestFrom loads the manifest at loc and ingests its templates.
func (a *App) IngestFrom(ctx context.Context, loc string) ([]ingest.Result, error) {
	src, err := a.Source(ctx, loc)
	if err != nil {
		return nil, err
	}
	m, err := ingest.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	return a.Ingester.Ingest(ctx, m.Documents), nil
}

func (a *App) embedder(ctx context.Context) (embedding.Embedder, error) {
	cfg := a.Config.Embedder
	switch cfg.Type {
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "openai":
		c, err := embopenai.NewClient(embopenai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return c, nil
	case "gemini":
		client, err := a.geminiClient(ctx, cfg.Gemini.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		return embgemini.NewEmbedder(client, cfg.Gemini.Model), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func (a *App) storage(ctx context.Context) (vectorstore.Storage, error) {
	cfg := a.Config.VectorStore
	switch cfg.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		var key string
		if cfg.Qdrant.APIKeyEnv != "" {
			key = os.Getenv(cfg.Qdrant.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     key,
			Collection: cfg.Qdrant.Collection,
			Distance:   cfg.Qdrant.Distance,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "pgvector":
		pool, err := a.pool(ctx, cfg.PGVector.DSNEnv)
		if err != nil {
			return nil, err
		}
		return pgvector.NewStorage(pool, cfg.PGVector.Table)
	case "sqlitevec":
		s, err := sqlitevec.Open(cfg.SQLiteVec.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func (a *App) generator(ctx context.Context) (domain.Generator, error) {
	cfg := a.Config.Generator
	switch cfg.Type {
	case "openai":
		c, err := llmopenai.NewClient(llmopenai.Config{
			BaseURL:           cfg.OpenAI.BaseURL,
			APIKeyEnv:         cfg.OpenAI.APIKeyEnv,
			Model:             cfg.OpenAI.Model,
			Temperature:       cfg.OpenAI.Temperature,
			SystemInstruction: cfg.SystemInstruction,
			Timeout:           time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries:        cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai generator init failed: %w", err)
		}
		return c, nil
	case "gemini":
		client, err := a.geminiClient(ctx, cfg.Gemini.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		return llmgemini.New(client, llmgemini.Config{
			Model:             cfg.Gemini.Model,
			Temperature:       cfg.Gemini.Temperature,
			SystemInstruction: cfg.SystemInstruction,
			MaxRetries:        cfg.Gemini.MaxRetries,
		}, a.Log), nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}

func (a *App) repository(ctx context.Context) (repository.Repository, error) {
	cfg := a.Config.Repository
	switch cfg.Type {
	case "memory":
		return repomemory.New(), nil
	case "bolt":
		return bolt.Open(cfg.Path)
	case "postgres":
		pool, err := a.pool(ctx, cfg.Postgres.DSNEnv)
		if err != nil {
			return nil, err
		}
		return postgres.New(ctx, pool)
	default:
		return nil, fmt.Errorf("unknown repository: %s", cfg.Type)
	}
}

// geminiClient is shared by the Gemini embedder and generator.
func (a *App) geminiClient(ctx context.Context, apiKeyEnv string) (*genai.Client, error) {
	if a.gemini != nil {
		return a.gemini, nil
	}
	c, err := llmgemini.NewClient(ctx, apiKeyEnv)
	if err != nil {
		return nil, err
	}
	a.gemini = c
	a.closers = append(a.closers, c.Close)
	return c, nil
}

// pool returns one pgx pool per DSN variable, shared by the vector store and
// the repository.
func (a *App) pool(ctx context.Context, dsnEnv string) (*pgxpool.Pool, error) {
	if p, ok := a.pools[dsnEnv]; ok {
		return p, nil
	}
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		return nil, fmt.Errorf("app: missing database DSN in env %s", dsnEnv)
	}
	p, err := pgvector.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	a.pools[dsnEnv] = p
	a.closers = append(a.closers, func() error { p.Close(); return nil })
	return p, nil
}
