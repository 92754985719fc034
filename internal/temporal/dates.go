// Package temporal decides which legislative chunks are in force on a date
// and orders them so the most recently effective version comes first.
package temporal

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/filter"
)

// EpochField is the numeric metadata field stores index for date filtering.
const EpochField = "effective_date_epoch"

// UndatedEpoch is written as the epoch of chunks without a usable effective
// date so that "<= N" store filters keep them.
const UndatedEpoch int64 = math.MinInt32

// DisplayLayout is the human-readable date form used in prompts.
const DisplayLayout = "January 2, 2006"

var errEmptyDate = errors.New("temporal: empty date")

// ParseDate reads an ISO calendar date. Full RFC 3339 timestamps are accepted
// and reduced to their calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyDate
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDisplay renders a date as e.g. "September 10, 2025".
func FormatDisplay(t time.Time) string { return t.Format(DisplayLayout) }

// EpochDay returns the number of days between 1970-01-01 and t's calendar day.
func EpochDay(t time.Time) int64 {
	return Day(t).Unix() / 86400
}

// EffectiveEpoch is the value stores index under EpochField for a chunk.
func EffectiveEpoch(c domain.Chunk) int64 {
	t, err := ParseDate(c.EffectiveDate)
	if err != nil {
		return UndatedEpoch
	}
	return EpochDay(t)
}

// DateFilter builds the store-native expression keeping chunks effective on
// or before the given day.
func DateFilter(on time.Time) filter.Expression {
	return filter.Expression{Field: EpochField, Op: filter.OpLTE, Value: EpochDay(on)}
}

// DefaultGenerationCutoffs starts the second generation in 2025.
var DefaultGenerationCutoffs = []int{2025}

// GenerationFor maps an effective year onto a generation ordinal: one plus
// the number of cutoff years at or before it. A zero year is unknown.
func GenerationFor(year int, cutoffs []int) domain.Generation {
	if year <= 0 {
		return 0
	}
	g := 1
	for _, c := range cutoffs {
		if year >= c {
			g++
		}
	}
	return domain.Generation(g)
}
