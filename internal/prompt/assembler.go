// Package prompt renders retrieved legislation and the evaluation date into
// the prompt handed to the generator.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

const (
	// NoLegislationMarker is the whole context block when nothing survives
	// date filtering.
	NoLegislationMarker = "No relevant legislation found for the specified date."
	// NoContextMarker is the whole context block of an undated request
	// without candidates.
	NoContextMarker = "No relevant legislation found."

	truncatedMarker = "\n[truncated]"
)

// DefaultMaxContextChars bounds the rendered context block.
const DefaultMaxContextChars = 12000

// DatedTemplate is the default prompt for requests with an evaluation date.
const DatedTemplate = `You are a legislative research assistant. Answer the question as the law stood on {{.Date}}.

Evaluation date: {{.Date}} ({{.ISODate}}).

Rules:
- Legislation with an effective date on or before {{.Date}} is in force on that date. Legislation with a later effective date is not yet in force and must not be presented as current law.
- Legislation with an expiration date before {{.Date}} has lapsed.
- When several versions of the same law appear in the context, identify them and answer from the most recent version in force on {{.Date}}. Say so explicitly when an earlier version has been superseded.
- Describe law in force on {{.Date}} in the present tense.

Question: {{.Question}}

Context information is below, between the dashed lines.
---------------------
{{.Context}}
---------------------

Answer only from the context above, not from prior knowledge. If the context does not contain the answer, say that you cannot answer the question.
`

// UndatedTemplate is the default prompt for requests without a date.
const UndatedTemplate = `You are a legislative research assistant.

Question: {{.Question}}

Context information is below, between the dashed lines.
---------------------
{{.Context}}
---------------------

Answer only from the context above, not from prior knowledge. If the context does not contain the answer, say that you cannot answer the question.
`

// Config configures an Assembler. Empty templates select the defaults.
type Config struct {
	MaxContextChars int
	DatedTemplate   string
	UndatedTemplate string
}

// Data is what prompt templates are executed with.
type Data struct {
	Question string
	Context  string
	// Date and ISODate are empty for undated requests.
	Date    string
	ISODate string
}

// Assembler renders prompts. It is immutable and safe for concurrent use.
type Assembler struct {
	maxChars int
	dated    *template.Template
	undated  *template.Template
}

// NewAssembler parses the configured templates and checks that they render.
func NewAssembler(cfg Config) (*Assembler, error) {
	if cfg.MaxContextChars < 0 {
		return nil, fmt.Errorf("prompt: negative max context chars %d", cfg.MaxContextChars)
	}
	if cfg.MaxContextChars == 0 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	if cfg.DatedTemplate == "" {
		cfg.DatedTemplate = DatedTemplate
	}
	if cfg.UndatedTemplate == "" {
		cfg.UndatedTemplate = UndatedTemplate
	}
	dated, err := parse("dated", cfg.DatedTemplate)
	if err != nil {
		return nil, err
	}
	undated, err := parse("undated", cfg.UndatedTemplate)
	if err != nil {
		return nil, err
	}
	return &Assembler{maxChars: cfg.MaxContextChars, dated: dated, undated: undated}, nil
}

func parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("prompt: parse %s template: %w", name, err)
	}
	probe := Data{Question: "q", Context: "c", Date: "January 1, 2025", ISODate: "2025-01-01"}
	if err := t.Execute(&strings.Builder{}, probe); err != nil {
		return nil, fmt.Errorf("prompt: render %s template: %w", name, err)
	}
	return t, nil
}

// MustAssembler is NewAssembler for configurations known to be valid.
func MustAssembler(cfg Config) *Assembler {
	a, err := NewAssembler(cfg)
	if err != nil {
		panic(err)
	}
	return a
}

// Assemble renders the full prompt for question over the ranked chunks.
func (a *Assembler) Assemble(question string, ranked []domain.SearchResult, mode domain.Mode) string {
	data := Data{Question: question, Context: a.Context(ranked, mode)}
	tmpl := a.undated
	if on, ok := mode.Date(); ok {
		tmpl = a.dated
		data.Date = temporal.FormatDisplay(on)
		data.ISODate = on.Format("2006-01-02")
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		// Templates were probed at construction; a failure here leaves the
		// essentials in a plain layout.
		return "Question: " + question + "\n\nContext:\n" + data.Context
	}
	return b.String()
}

// Context renders the ranked chunks as a block of headed entries, bounded by
// the configured character cap. It is never empty.
func (a *Assembler) Context(ranked []domain.SearchResult, mode domain.Mode) string {
	if len(ranked) == 0 {
		if mode.IsDated() {
			return NoLegislationMarker
		}
		return NoContextMarker
	}
	var b strings.Builder
	for i, r := range ranked {
		entry := renderEntry(i+1, r.Chunk)
		if i > 0 {
			entry = "\n\n" + entry
		}
		if b.Len()+len(entry) <= a.maxChars {
			b.WriteString(entry)
			continue
		}
		room := a.maxChars - b.Len() - len(truncatedMarker)
		if room > 0 {
			b.WriteString(cut(entry, room))
			b.WriteString(truncatedMarker)
		} else if b.Len() == 0 {
			b.WriteString(cut(entry, a.maxChars))
		}
		break
	}
	return b.String()
}

func renderEntry(n int, c domain.Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] Title: %s\n", n, orUnknown(c.Title))
	fmt.Fprintf(&b, "Effective Date: %s\n", displayDate(c.EffectiveDate))
	if c.ExpirationDate != "" {
		fmt.Fprintf(&b, "Expiration Date: %s\n", displayDate(c.ExpirationDate))
	}
	fmt.Fprintf(&b, "Type: %s\n", orUnknown(c.DocumentType))
	fmt.Fprintf(&b, "Document Number: %s\n", orUnknown(c.DocumentNumber))
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(c.Text))
	return b.String()
}

func displayDate(s string) string {
	t, err := temporal.ParseDate(s)
	if err != nil {
		return orUnknown(s)
	}
	return temporal.FormatDisplay(t) + " (" + t.Format("2006-01-02") + ")"
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

// cut shortens s to at most n bytes without splitting a rune.
func cut(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
