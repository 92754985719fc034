package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/filter"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
	"github.com/cpage-pivotal/ipzs/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant. Chunks are stored as points
// whose payload carries the full metadata, with a payload index on
// effective_date_epoch for range filtering.
type Storage struct {
	url        string
	apiKey     string
	collection string
	distance   string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Distance   string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	if cfg.Collection == "" {
		cfg.Collection = "legislation"
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		distance:   cfg.Distance,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// PointID maps a chunk ID onto the UUID Qdrant requires, stable across runs.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("chunk:"+chunkID)).String()
}

// Init creates the collection and the epoch payload index. An existing
// collection is kept.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("qdrant: invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": s.distance,
		},
	}
	err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	var se *statusError
	if err != nil && !(errors.As(err, &se) && se.code == http.StatusConflict) {
		return err
	}
	index := map[string]any{"field_name": temporal.EpochField, "field_schema": "integer"}
	return s.do(ctx, http.MethodPut, s.collectionURL("/index?wait=true"), index, nil)
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("qdrant: chunks and vectors length mismatch")
	}
	points := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		points[i] = map[string]any{
			"id":      PointID(c.ID),
			"vector":  vectors[i],
			"payload": vectorstore.Payload(c),
		}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int, f *filter.Expression) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f != nil {
		qf, err := nativeFilter(*f)
		if err != nil {
			return nil, err
		}
		req["filter"] = qf
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{Chunk: vectorstore.ChunkFromPayload(r.Payload), Score: r.Score})
	}
	return results, nil
}

// DeleteDocument removes the points of one source document through a
// payload filter. A missing collection holds nothing to delete.
func (s *Storage) DeleteDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []any{
				map[string]any{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil
	}
	return err
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil
	}
	return err
}

// nativeFilter translates an expression into a Qdrant range condition.
func nativeFilter(f filter.Expression) (map[string]any, error) {
	if err := f.Validate(temporal.EpochField); err != nil {
		return nil, err
	}
	var cond map[string]any
	switch f.Op {
	case filter.OpLTE:
		cond = map[string]any{"range": map[string]any{"lte": f.Value}}
	case filter.OpLT:
		cond = map[string]any{"range": map[string]any{"lt": f.Value}}
	case filter.OpGTE:
		cond = map[string]any{"range": map[string]any{"gte": f.Value}}
	case filter.OpGT:
		cond = map[string]any{"range": map[string]any{"gt": f.Value}}
	case filter.OpEQ:
		cond = map[string]any{"match": map[string]any{"value": f.Value}}
	default:
		return nil, fmt.Errorf("%w: operator %q", filter.ErrUnsupported, f.Op)
	}
	cond["key"] = f.Field
	return map[string]any{"must": []any{cond}}, nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

type statusError struct {
	method, url string
	code        int
	status      string
	body        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s %s", e.method, e.url, e.status, e.body)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{method: method, url: url, code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
