package filter

import (
	"errors"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	e := Expression{Field: "effective_date_epoch", Op: OpLTE, Value: 20341}
	got, err := Parse(e.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if *got != e {
		t.Fatalf("got %+v, want %+v", *got, e)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "effective_date_epoch", "x <= abc", "1x <= 3", "x ~= 3"} {
		if _, err := Parse(s); !errors.Is(err, ErrSyntax) {
			t.Errorf("Parse(%q) err = %v, want ErrSyntax", s, err)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		op   Op
		v    int64
		want bool
	}{
		{OpLTE, 10, true},
		{OpLTE, 11, false},
		{OpLT, 10, false},
		{OpGTE, 10, true},
		{OpGT, 10, false},
		{OpEQ, 10, true},
	}
	for _, tt := range tests {
		e := Expression{Field: "f", Op: tt.op, Value: 10}
		if got := e.Match(tt.v); got != tt.want {
			t.Errorf("%s with %d = %v, want %v", e, tt.v, got, tt.want)
		}
	}
}

func TestSQLAndValidate(t *testing.T) {
	e := Expression{Field: "effective_date_epoch", Op: OpLTE, Value: 1}
	sql, err := e.SQL("$2")
	if err != nil || sql != "effective_date_epoch <= $2" {
		t.Fatalf("SQL = %q, %v", sql, err)
	}
	if err := e.Validate("effective_date_epoch"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := e.Validate("other"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Validate other = %v", err)
	}
}
