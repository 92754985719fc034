package ingest

import (
	"regexp"
	"strings"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

var (
	sentenceRe   = regexp.MustCompile(`(?s)[^.!?]+[.!?]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
	}
}

// Split returns the chunk texts of text in order. Whitespace inside each
// sentence is collapsed.
func (c *SentenceChunker) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	var chunks []string
	i := 0
	for i < len(sentences) {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks
}

// splitSentences keeps trailing text without terminal punctuation as a
// final sentence.
func splitSentences(text string) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
		if s != "" {
			out = append(out, s)
		}
	}
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		add(text[loc[0]:loc[1]])
		last = loc[1]
	}
	add(text[last:])
	return out
}
