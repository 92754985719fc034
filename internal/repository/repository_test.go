package repository

import (
	"context"
	"testing"
	"time"
)

type sliceRepo []DocumentRecord

func (r sliceRepo) Save(context.Context, DocumentRecord) error { return nil }
func (r sliceRepo) Get(context.Context, string) (DocumentRecord, error) {
	return DocumentRecord{}, ErrNotFound
}
func (r sliceRepo) Close() error { return nil }

func (r sliceRepo) List(_ context.Context, f ListFilter) ([]DocumentRecord, error) {
	var out []DocumentRecord
	for _, rec := range r {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	Sort(out)
	return out, nil
}

var records = sliceRepo{
	{ID: "h-r-2024-001", Title: "Highway Speed Limit Modernization Act of 2024", DocumentType: "Federal Legislation", IssuingAuthority: "United States Congress", EffectiveDate: "2024-01-01", SubjectArea: "transportation", ChunkCount: 2},
	{ID: "h-r-2025-042", Title: "Automated Vehicle Speed Integration Act of 2025", DocumentType: "Federal Legislation", IssuingAuthority: "United States Congress", EffectiveDate: "2025-09-01", SubjectArea: "transportation", ChunkCount: 3},
	{ID: "dot-2024-099", Title: "Temporary Fuel Waiver", DocumentType: "Federal Regulation", IssuingAuthority: "Department of Transportation", EffectiveDate: "2024-03-01", ExpirationDate: "2025-03-01", SubjectArea: "general", ChunkCount: 1},
	{ID: "future-1", Title: "Future Act", DocumentType: "Federal Legislation", EffectiveDate: "2026-01-01", SubjectArea: "general", ChunkCount: 1},
	{ID: "undated", Title: "Undated Notice", DocumentType: "Notice", EffectiveDate: "", SubjectArea: "general"},
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func idsOf(recs []DocumentRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListFilter(t *testing.T) {
	tests := []struct {
		name string
		f    ListFilter
		want []string
	}{
		{"all sorted newest first", ListFilter{}, []string{"future-1", "h-r-2025-042", "dot-2024-099", "h-r-2024-001", "undated"}},
		{"type", ListFilter{DocumentType: "federal regulation"}, []string{"dot-2024-099"}},
		{"authority", ListFilter{IssuingAuthority: "United States Congress"}, []string{"h-r-2025-042", "h-r-2024-001"}},
		{"title", ListFilter{TitleContains: "SPEED"}, []string{"h-r-2025-042", "h-r-2024-001"}},
		{"effective on", ListFilter{EffectiveOn: day("2025-09-10")}, []string{"h-r-2025-042", "h-r-2024-001", "undated"}},
		{"range", ListFilter{EffectiveFrom: day("2024-01-01"), EffectiveTo: day("2024-12-31")}, []string{"dot-2024-099", "h-r-2024-001"}},
		{"open range", ListFilter{EffectiveFrom: day("2025-01-01")}, []string{"future-1", "h-r-2025-042"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := records.List(context.Background(), tt.f)
			if !equal(idsOf(got), tt.want) {
				t.Fatalf("got %v, want %v", idsOf(got), tt.want)
			}
		})
	}
}

func TestCurrentAndExpired(t *testing.T) {
	ctx := context.Background()
	cur, err := Current(ctx, records, day("2024-06-01"))
	if err != nil {
		t.Fatal(err)
	}
	if !equal(idsOf(cur), []string{"dot-2024-099", "h-r-2024-001", "undated"}) {
		t.Fatalf("current = %v", idsOf(cur))
	}
	exp, err := Expired(ctx, records, day("2025-09-10"))
	if err != nil {
		t.Fatal(err)
	}
	if !equal(idsOf(exp), []string{"dot-2024-099"}) {
		t.Fatalf("expired = %v", idsOf(exp))
	}
}

func TestComputeStats(t *testing.T) {
	s, err := ComputeStats(context.Background(), records, day("2025-09-10"))
	if err != nil {
		t.Fatal(err)
	}
	if s.AsOf != "2025-09-10" || s.Total != 5 || s.Current != 3 || s.Expired != 1 || s.Future != 1 || s.Chunks != 7 {
		t.Fatalf("stats = %+v", s)
	}
	if s.ByType["Federal Legislation"] != 3 || s.BySubject["transportation"] != 2 {
		t.Fatalf("breakdown = %+v", s)
	}
}
