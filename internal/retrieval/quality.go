package retrieval

import (
	"context"
	"sync"

	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

// IssueCounter is a QualitySink that counts malformed dates per field and
// remembers the affected chunks.
type IssueCounter struct {
	mu      sync.Mutex
	byField map[string]int64
	chunks  map[string]struct{}
}

func NewIssueCounter() *IssueCounter {
	return &IssueCounter{byField: make(map[string]int64), chunks: make(map[string]struct{})}
}

func (c *IssueCounter) ReportDateIssue(_ context.Context, issue temporal.DateIssue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byField[issue.Field]++
	c.chunks[issue.ChunkID] = struct{}{}
}

// QualityReport is a snapshot of an IssueCounter.
type QualityReport struct {
	Issues         map[string]int64 `json:"issues"`
	AffectedChunks int              `json:"affected_chunks"`
}

func (c *IssueCounter) Snapshot() QualityReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	issues := make(map[string]int64, len(c.byField))
	for k, v := range c.byField {
		issues[k] = v
	}
	return QualityReport{Issues: issues, AffectedChunks: len(c.chunks)}
}
