package condition

import (
	"fmt"
	"strings"

	"github.com/ignite/notification-agent/internal/pkg/ctxpath"
)

// Op is a comparison operator.
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIn      Op = "in"
	OpBetween Op = "between"
	OpExists  Op = "exists"
)

// Predicate evaluates against an event context.
type Predicate interface {
	Match(ctx map[string]any) bool
	String() string
}

// Compare is a single field comparison.
type Compare struct {
	Field   string
	Op      Op
	Operand any   // scalar operand for eq/ne/gt/gte/lt/lte, bool for exists
	Set     []any // in
	Low     float64
	High    float64 // between, inclusive
}

// Match implements Predicate.
func (c Compare) Match(ctx map[string]any) bool {
	v, ok := ctxpath.Lookup(ctx, c.Field)
	if c.Op == OpExists {
		want, _ := c.Operand.(bool)
		return ok == want
	}
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return equal(v, c.Operand)
	case OpNe:
		return !equal(v, c.Operand)
	case OpIn:
		for _, item := range c.Set {
			if equal(v, item) {
				return true
			}
		}
		return false
	case OpBetween:
		f, ok := toFloat(v)
		return ok && f >= c.Low && f <= c.High
	case OpGt, OpGte, OpLt, OpLte:
		a, ok := toFloat(v)
		if !ok {
			return false
		}
		b, _ := toFloat(c.Operand)
		switch c.Op {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	}
	return false
}

func (c Compare) String() string {
	switch c.Op {
	case OpIn:
		return fmt.Sprintf("%s in %v", c.Field, c.Set)
	case OpBetween:
		return fmt.Sprintf("%s between [%v, %v]", c.Field, c.Low, c.High)
	default:
		return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Operand)
	}
}

// All matches when every child matches. An empty All matches everything.
type All []Predicate

// Match implements Predicate. Children are checked in order.
func (a All) Match(ctx map[string]any) bool {
	for _, p := range a {
		if !p.Match(ctx) {
			return false
		}
	}
	return true
}

func (a All) String() string {
	parts := make([]string, len(a))
	for i, p := range a {
		parts[i] = p.String()
	}
	return strings.Join(parts, " AND ")
}

// Matches reports whether ctx satisfies pred. A nil predicate always matches.
func Matches(pred Predicate, ctx map[string]any) bool {
	if pred == nil {
		return true
	}
	return pred.Match(ctx)
}
