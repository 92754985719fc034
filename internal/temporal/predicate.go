package temporal

import (
	"time"

	"github.com/cpage-pivotal/ipzs/internal/domain"
)

// DateIssue records a missing or malformed date on a chunk. Issues never
// change the outcome beyond treating the date as no constraint.
type DateIssue struct {
	ChunkID string
	Field   string
	Value   string
}

func (i DateIssue) String() string {
	if i.Value == "" {
		return i.ChunkID + ": missing " + i.Field
	}
	return i.ChunkID + ": malformed " + i.Field + " " + i.Value
}

// Evaluate decides whether c is in force on the given day. A zero on means
// no date was requested. Boundaries are inclusive. Missing or malformed
// dates are treated as no constraint; a lapsed expiration date still
// excludes a chunk whose effective date is unusable.
func Evaluate(c domain.Chunk, on time.Time) (bool, []DateIssue) {
	if on.IsZero() {
		return true, nil
	}
	on = Day(on)

	var issues []DateIssue
	eff, err := ParseDate(c.EffectiveDate)
	if err != nil {
		issues = append(issues, DateIssue{ChunkID: c.ID, Field: "effective_date", Value: c.EffectiveDate})
	} else if eff.After(on) {
		return false, nil
	}
	if c.ExpirationDate == "" {
		return true, issues
	}
	exp, err := ParseDate(c.ExpirationDate)
	if err != nil {
		return true, append(issues, DateIssue{ChunkID: c.ID, Field: "expiration_date", Value: c.ExpirationDate})
	}
	return !exp.Before(on), issues
}

// IsEffective reports whether c is in force on the given day.
func IsEffective(c domain.Chunk, on time.Time) bool {
	ok, _ := Evaluate(c, on)
	return ok
}
