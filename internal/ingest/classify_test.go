package ingest

import (
	"strings"
	"testing"
)

func TestDocumentID(t *testing.T) {
	tests := map[string]string{
		"H.R. 2025-042": "h-r-2025-042",
		"DEA-2024-001":  "dea-2024-001",
		" NPS 2024/01 ": "nps-2024-01",
		"...":           "",
	}
	for in, want := range tests {
		if got := DocumentID(in); got != want {
			t.Errorf("DocumentID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSubjectArea(t *testing.T) {
	tests := map[string]string{
		"Highway Speed Limit Modernization Act of 2024":    "transportation",
		"Cannabis Legalization and Regulation Act of 2025": "drug_policy",
		"Border Security Enhancement Act of 2024":          "immigration",
		"Enhanced Air Travel Standards Act of 2025":        "aviation",
		"National Park Heritage Preservation Act of 2024":  "parks",
		"Indigenous Heritage Recognition Act of 2025":      "general",
	}
	for title, want := range tests {
		if got := SubjectArea(title); got != want {
			t.Errorf("SubjectArea(%q) = %q, want %q", title, got, want)
		}
	}
}

func TestDigestIgnoresSourceFormatting(t *testing.T) {
	a, err := ParseManifest([]byte(`{"documents":[{"title":"T","document_number":"N","effective_date":"2025-09-01","content":"x."}]}`))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseManifest([]byte("documents:\n  - content: x.\n    effective_date: \"2025-09-01\"\n    document_number: N\n    title: T\n"))
	if err != nil {
		t.Fatal(err)
	}
	da, _ := Digest(a.Documents[0])
	db, _ := Digest(b.Documents[0])
	if da != db || len(da) != 64 {
		t.Fatalf("digests differ: %s %s", da, db)
	}
	changed := a.Documents[0]
	changed.Content = "y."
	dc, _ := Digest(changed)
	if dc == da {
		t.Fatal("digest ignores content")
	}
}

func TestSentenceChunker(t *testing.T) {
	text := "One. Two!  Three?\nFour. Five. trailing words"
	tests := []struct {
		per, overlap int
		want         []string
	}{
		{2, 0, []string{"One. Two!", "Three? Four.", "Five. trailing words"}},
		{3, 1, []string{"One. Two! Three?", "Three? Four. Five.", "Five. trailing words"}},
		{10, 0, []string{"One. Two! Three? Four. Five. trailing words"}},
		{2, 5, []string{"One. Two!", "Two! Three?", "Three? Four.", "Four. Five.", "Five. trailing words"}},
	}
	for _, tt := range tests {
		got := NewSentenceChunker(tt.per, tt.overlap).Split(text)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("per=%d overlap=%d: got %q, want %q", tt.per, tt.overlap, got, tt.want)
		}
	}
	if got := NewSentenceChunker(5, 1).Split("   "); got != nil {
		t.Errorf("blank text: %q", got)
	}
}
