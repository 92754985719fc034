package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/gowebpki/jcs"
)

var slugSepRe = regexp.MustCompile(`[^a-z0-9]+`)

// DocumentID derives the stable document ID from its number:
// "H.R. 2025-042" becomes "h-r-2025-042".
func DocumentID(documentNumber string) string {
	id := slugSepRe.ReplaceAllString(strings.ToLower(documentNumber), "-")
	return strings.Trim(id, "-")
}

var subjectKeywords = []struct {
	subject  string
	keywords []string
}{
	{"transportation", []string{"speed", "highway"}},
	{"drug_policy", []string{"cannabis", "drug", "substance"}},
	{"immigration", []string{"immigration", "border", "visa"}},
	{"aviation", []string{"airline", "baggage", "travel"}},
	{"parks", []string{"park", "naming"}},
}

// SubjectArea classifies an act by keywords in its title. The first
// matching subject wins; "general" otherwise.
func SubjectArea(title string) string {
	lower := strings.ToLower(title)
	for _, s := range subjectKeywords {
		for _, k := range s.keywords {
			if strings.Contains(lower, k) {
				return s.subject
			}
		}
	}
	return "general"
}

// Digest is the SHA-256 of the canonical (RFC 8785) JSON form of t. Field
// order and formatting of the source manifest do not affect it.
func Digest(t Template) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
