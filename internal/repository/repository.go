// Package repository keeps one metadata record per ingested legislative
// document, next to the chunk vectors held by the vector store.
package repository

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

var ErrNotFound = errors.New("repository: document not found")

// DocumentRecord is the metadata of one ingested document. Dates are ISO
// strings as supplied by the manifest.
type DocumentRecord struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	DocumentType     string    `json:"document_type"`
	IssuingAuthority string    `json:"issuing_authority"`
	DocumentNumber   string    `json:"document_number"`
	PublicationDate  string    `json:"publication_date,omitempty"`
	EffectiveDate    string    `json:"effective_date"`
	ExpirationDate   string    `json:"expiration_date,omitempty"`
	SubjectArea      string    `json:"subject_area"`
	Supersedes       string    `json:"supersedes,omitempty"`
	ContentHash      string    `json:"content_hash"`
	ChunkCount       int       `json:"chunk_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Repository stores document records. Save replaces a record with the same ID.
type Repository interface {
	Save(ctx context.Context, rec DocumentRecord) error
	Get(ctx context.Context, id string) (DocumentRecord, error)
	List(ctx context.Context, f ListFilter) ([]DocumentRecord, error)
	Close() error
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	DocumentType     string
	IssuingAuthority string
	// TitleContains matches case-insensitively.
	TitleContains string
	// EffectiveOn keeps documents in force on that day.
	EffectiveOn time.Time
	// EffectiveFrom and EffectiveTo bound the effective date, inclusive.
	// Documents without a usable effective date never match a range.
	EffectiveFrom time.Time
	EffectiveTo   time.Time
}

// Match reports whether rec passes every set field of f.
func (f ListFilter) Match(rec DocumentRecord) bool {
	if f.DocumentType != "" && !strings.EqualFold(f.DocumentType, rec.DocumentType) {
		return false
	}
	if f.IssuingAuthority != "" && !strings.EqualFold(f.IssuingAuthority, rec.IssuingAuthority) {
		return false
	}
	if f.TitleContains != "" && !strings.Contains(strings.ToLower(rec.Title), strings.ToLower(f.TitleContains)) {
		return false
	}
	if !f.EffectiveOn.IsZero() && !temporal.IsEffective(rec.chunk(), f.EffectiveOn) {
		return false
	}
	if f.EffectiveFrom.IsZero() && f.EffectiveTo.IsZero() {
		return true
	}
	eff, err := temporal.ParseDate(rec.EffectiveDate)
	if err != nil {
		return false
	}
	if !f.EffectiveFrom.IsZero() && eff.Before(temporal.Day(f.EffectiveFrom)) {
		return false
	}
	if !f.EffectiveTo.IsZero() && eff.After(temporal.Day(f.EffectiveTo)) {
		return false
	}
	return true
}

// chunk views the record through the chunk date fields so the shared
// effective-date predicate applies to documents as well.
func (rec DocumentRecord) chunk() domain.Chunk {
	return domain.Chunk{ID: rec.ID, EffectiveDate: rec.EffectiveDate, ExpirationDate: rec.ExpirationDate}
}

// Sort orders records by effective date, most recent first, undated last,
// then by ID.
func Sort(recs []DocumentRecord) {
	slices.SortStableFunc(recs, func(a, b DocumentRecord) int {
		ea, erra := temporal.ParseDate(a.EffectiveDate)
		eb, errb := temporal.ParseDate(b.EffectiveDate)
		switch {
		case erra == nil && errb == nil:
			if c := eb.Compare(ea); c != 0 {
				return c
			}
		case erra == nil:
			return -1
		case errb == nil:
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Current lists documents in force on the given day.
func Current(ctx context.Context, repo Repository, on time.Time) ([]DocumentRecord, error) {
	return repo.List(ctx, ListFilter{EffectiveOn: on})
}

// Expired lists documents whose expiration date lies before the given day.
func Expired(ctx context.Context, repo Repository, on time.Time) ([]DocumentRecord, error) {
	all, err := repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	var out []DocumentRecord
	for _, rec := range all {
		if expiredOn(rec, on) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func expiredOn(rec DocumentRecord, on time.Time) bool {
	exp, err := temporal.ParseDate(rec.ExpirationDate)
	return err == nil && exp.Before(temporal.Day(on))
}

// Stats summarizes the collection as of one day.
type Stats struct {
	AsOf      string         `json:"as_of"`
	Total     int            `json:"total"`
	Current   int            `json:"current"`
	Expired   int            `json:"expired"`
	Future    int            `json:"future"`
	Chunks    int            `json:"chunks"`
	ByType    map[string]int `json:"by_type"`
	BySubject map[string]int `json:"by_subject"`
}

// ComputeStats counts documents by status on the given day. A document
// is future when its effective date is after the day, expired when its
// expiration date is before it, and current otherwise.
func ComputeStats(ctx context.Context, repo Repository, on time.Time) (Stats, error) {
	all, err := repo.List(ctx, ListFilter{})
	if err != nil {
		return Stats{}, err
	}
	on = temporal.Day(on)
	s := Stats{
		AsOf:      on.Format(time.DateOnly),
		Total:     len(all),
		ByType:    map[string]int{},
		BySubject: map[string]int{},
	}
	for _, rec := range all {
		s.Chunks += rec.ChunkCount
		s.ByType[rec.DocumentType]++
		s.BySubject[rec.SubjectArea]++
		if eff, err := temporal.ParseDate(rec.EffectiveDate); err == nil && eff.After(on) {
			s.Future++
			continue
		}
		if expiredOn(rec, on) {
			s.Expired++
			continue
		}
		s.Current++
	}
	return s, nil
}
