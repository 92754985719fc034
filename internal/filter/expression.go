// Package filter holds the store-native metadata filter expressions used to
// pre-filter vector search candidates.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrSyntax is returned when an expression cannot be parsed.
	ErrSyntax = errors.New("filter: invalid expression")
	// ErrUnsupported is returned by stores that cannot evaluate an expression.
	ErrUnsupported = errors.New("filter: expression not supported by store")
)

// Op is a numeric comparison operator.
type Op string

const (
	OpLTE Op = "<="
	OpLT  Op = "<"
	OpGTE Op = ">="
	OpGT  Op = ">"
	OpEQ  Op = "=="
)

// Expression is a single numeric comparison against a metadata field,
// e.g. effective_date_epoch <= 20341.
type Expression struct {
	Field string
	Op    Op
	Value int64
}

func (e Expression) String() string {
	return fmt.Sprintf("%s %s %d", e.Field, e.Op, e.Value)
}

var exprRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(<=|>=|==|<|>)\s*(-?\d+)\s*$`)

// Parse reads the textual form produced by Expression.String.
func Parse(s string) (*Expression, error) {
	m := exprRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	v, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return &Expression{Field: m[1], Op: Op(m[2]), Value: v}, nil
}

// Match evaluates the expression against a field value.
func (e Expression) Match(v int64) bool {
	switch e.Op {
	case OpLTE:
		return v <= e.Value
	case OpLT:
		return v < e.Value
	case OpGTE:
		return v >= e.Value
	case OpGT:
		return v > e.Value
	case OpEQ:
		return v == e.Value
	}
	return false
}

// SQL renders the comparison with a positional placeholder for the value.
// Only identifiers accepted by Parse reach this point.
func (e Expression) SQL(placeholder string) (string, error) {
	switch e.Op {
	case OpLTE, OpLT, OpGTE, OpGT:
		return e.Field + " " + string(e.Op) + " " + placeholder, nil
	case OpEQ:
		return e.Field + " = " + placeholder, nil
	}
	return "", fmt.Errorf("%w: operator %q", ErrUnsupported, e.Op)
}

// Validate checks that the expression targets one of the allowed fields.
func (e Expression) Validate(fields ...string) error {
	for _, f := range fields {
		if strings.EqualFold(f, e.Field) {
			return nil
		}
	}
	return fmt.Errorf("%w: field %q", ErrUnsupported, e.Field)
}
