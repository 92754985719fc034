package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cpage-pivotal/ipzs/internal/ingest"
	"github.com/cpage-pivotal/ipzs/internal/repository"
	"github.com/cpage-pivotal/ipzs/internal/retrieval"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

// Ingester loads act templates. *ingest.Ingester implements it.
type Ingester interface {
	Ingest(ctx context.Context, templates []ingest.Template) []ingest.Result
}

// DocumentHandler serves document metadata and sample corpus loading.
type DocumentHandler struct {
	records  repository.Repository
	ingester Ingester
	quality  *retrieval.IssueCounter
	log      *slog.Logger
	now      func() time.Time
}

func NewDocumentHandler(records repository.Repository, ingester Ingester, quality *retrieval.IssueCounter, log *slog.Logger) *DocumentHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DocumentHandler{records: records, ingester: ingester, quality: quality, log: log, now: time.Now}
}

// ListDocuments handles GET /api/documents?document_type=&issuing_authority=&effective_date=
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	f := repository.ListFilter{
		DocumentType:     c.Query("document_type"),
		IssuingAuthority: c.Query("issuing_authority"),
	}
	if v := c.Query("effective_date"); v != "" {
		on, ok := dateParam(c, "effective_date", v)
		if !ok {
			return
		}
		f.EffectiveOn = on
	}
	h.list(c, f)
}

// GetDocument handles GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	rec, err := h.records.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		fail(c, http.StatusNotFound, "NOT_FOUND", "Document not found")
		return
	}
	if err != nil {
		h.internal(c, err)
		return
	}
	ok(c, rec)
}

// EffectiveRange handles GET /api/documents/effective-range?start_date=&end_date=
func (h *DocumentHandler) EffectiveRange(c *gin.Context) {
	from, valid := dateParam(c, "start_date", c.Query("start_date"))
	if !valid {
		return
	}
	to, valid := dateParam(c, "end_date", c.Query("end_date"))
	if !valid {
		return
	}
	if to.Before(from) {
		fail(c, http.StatusBadRequest, "INVALID_RANGE", "end_date is before start_date")
		return
	}
	h.list(c, repository.ListFilter{EffectiveFrom: from, EffectiveTo: to})
}

// Search handles GET /api/documents/search?query=
func (h *DocumentHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("query"))
	if q == "" {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", "query is required")
		return
	}
	h.list(c, repository.ListFilter{TitleContains: q})
}

// Current handles GET /api/documents/current
func (h *DocumentHandler) Current(c *gin.Context) {
	recs, err := repository.Current(c.Request.Context(), h.records, h.now())
	h.respondList(c, recs, err)
}

// Expired handles GET /api/documents/expired
func (h *DocumentHandler) Expired(c *gin.Context) {
	recs, err := repository.Expired(c.Request.Context(), h.records, h.now())
	h.respondList(c, recs, err)
}

// Stats handles GET /api/documents/stats. The optional as_of date defaults
// to today.
func (h *DocumentHandler) Stats(c *gin.Context) {
	on := h.now()
	if v := c.Query("as_of"); v != "" {
		var valid bool
		if on, valid = dateParam(c, "as_of", v); !valid {
			return
		}
	}
	stats, err := repository.ComputeStats(c.Request.Context(), h.records, on)
	if err != nil {
		h.internal(c, err)
		return
	}
	body := gin.H{"documents": stats}
	if h.quality != nil {
		body["data_quality"] = h.quality.Snapshot()
	}
	ok(c, body)
}

// SampleDataResponse summarizes a sample corpus load.
type SampleDataResponse struct {
	TotalDocuments int             `json:"total_documents"`
	SuccessCount   int             `json:"success_count"`
	FailureCount   int             `json:"failure_count"`
	TotalChunks    int             `json:"total_chunks"`
	Details        []ingest.Result `json:"details"`
}

// LoadSampleData handles POST /api/sample-data
func (h *DocumentHandler) LoadSampleData(c *gin.Context) {
	m, err := ingest.Load(c.Request.Context(), ingest.SampleSource{})
	if err != nil {
		h.internal(c, err)
		return
	}
	results := h.ingester.Ingest(c.Request.Context(), m.Documents)
	resp := SampleDataResponse{TotalDocuments: len(results), Details: results}
	for _, r := range results {
		if r.Status == ingest.StatusFailed {
			resp.FailureCount++
			continue
		}
		resp.SuccessCount++
		resp.TotalChunks += r.Chunks
	}
	ok(c, resp)
}

func (h *DocumentHandler) list(c *gin.Context, f repository.ListFilter) {
	recs, err := h.records.List(c.Request.Context(), f)
	h.respondList(c, recs, err)
}

func (h *DocumentHandler) respondList(c *gin.Context, recs []repository.DocumentRecord, err error) {
	if err != nil {
		h.internal(c, err)
		return
	}
	if recs == nil {
		recs = []repository.DocumentRecord{}
	}
	ok(c, recs)
}

func (h *DocumentHandler) internal(c *gin.Context, err error) {
	h.log.Error("document request failed", "path", c.FullPath(), "error", err)
	fail(c, http.StatusInternalServerError, "INTERNAL", "Document service is unavailable")
}

func dateParam(c *gin.Context, name, v string) (time.Time, bool) {
	t, err := temporal.ParseDate(v)
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_DATE", name+" must be an ISO date (YYYY-MM-DD)")
		return time.Time{}, false
	}
	return t, true
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
