package domain

import (
	"strconv"
	"strings"
	"time"
)

// Mode selects between date-aware and plain retrieval for one request.
// The zero value is Undated.
type Mode struct {
	date  time.Time
	dated bool
}

// Dated returns a mode evaluating law as it stood on the given day.
func Dated(on time.Time) Mode {
	y, m, d := on.Date()
	return Mode{date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), dated: true}
}

// Undated returns a mode with no temporal constraint.
func Undated() Mode { return Mode{} }

// Date returns the evaluation date and whether the mode is dated.
func (m Mode) Date() (time.Time, bool) { return m.date, m.dated }

// IsDated reports whether the mode carries an evaluation date.
func (m Mode) IsDated() bool { return m.dated }

func (m Mode) String() string {
	if !m.dated {
		return "undated"
	}
	return "dated(" + m.date.Format(time.DateOnly) + ")"
}

// Generation is a coarse recency marker derived from the effective year.
// Higher values are more recent; zero means unknown.
type Generation int

var generationNames = []string{"", "first", "second", "third", "fourth", "fifth"}

func (g Generation) String() string {
	if g > 0 && int(g) < len(generationNames) {
		return generationNames[g]
	}
	if g <= 0 {
		return ""
	}
	return "gen-" + strconv.Itoa(int(g))
}

// ParseGeneration reads the textual form written into store payloads.
// Unknown values map to zero.
func ParseGeneration(s string) Generation {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range generationNames {
		if i > 0 && n == s {
			return Generation(i)
		}
	}
	if rest, ok := strings.CutPrefix(s, "gen-"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n > 0 {
			return Generation(n)
		}
	}
	return 0
}
