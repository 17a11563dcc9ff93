package condition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/notification-agent/internal/domain"
)

var opAliases = map[string]Op{
	"eq": OpEq, "==": OpEq,
	"ne": OpNe, "!=": OpNe, "neq": OpNe,
	"gt": OpGt, ">": OpGt,
	"gte": OpGte, ">=": OpGte,
	"lt": OpLt, "<": OpLt,
	"lte": OpLte, "<=": OpLte,
	"in":      OpIn,
	"between": OpBetween,
	"exists":  OpExists,
}

func parseOp(key string) (Op, bool) {
	op, ok := opAliases[strings.ToLower(strings.TrimPrefix(key, "$"))]
	return op, ok
}

// Compile turns stored conditions into a predicate. ruleID only labels
// errors. The returned predicate preserves condition order.
func Compile(ruleID string, conds []domain.Condition) (Predicate, error) {
	all := make(All, 0, len(conds))
	for _, c := range conds {
		if strings.TrimSpace(c.Field) == "" {
			return nil, configErr(ruleID, "condition with empty field")
		}
		preds, err := compileValue(ruleID, c.Field, c.Value)
		if err != nil {
			return nil, err
		}
		all = append(all, preds...)
	}
	return all, nil
}

func compileValue(ruleID, field string, raw any) ([]Predicate, error) {
	switch v := raw.(type) {
	case nil:
		return nil, configErr(ruleID, fmt.Sprintf("condition %q has no value", field))
	case []any:
		return []Predicate{Compare{Field: field, Op: OpIn, Set: v}}, nil
	case []string:
		set := make([]any, len(v))
		for i, s := range v {
			set[i] = s
		}
		return []Predicate{Compare{Field: field, Op: OpIn, Set: set}}, nil
	case map[string]any:
		return compileOperators(ruleID, field, v)
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = val
		}
		return compileOperators(ruleID, field, m)
	default:
		return []Predicate{Compare{Field: field, Op: OpEq, Operand: v}}, nil
	}
}

func compileOperators(ruleID, field string, ops map[string]any) ([]Predicate, error) {
	if len(ops) == 0 {
		return nil, configErr(ruleID, fmt.Sprintf("condition %q has an empty operator object", field))
	}
	// map iteration order is random; sort so String() and errors are stable
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]Predicate, 0, len(keys))
	for _, k := range keys {
		op, ok := parseOp(k)
		if !ok {
			return nil, configErr(ruleID, fmt.Sprintf("condition %q uses unknown operator %q", field, k))
		}
		operand := ops[k]
		switch op {
		case OpEq, OpNe:
			if operand == nil {
				return nil, configErr(ruleID, fmt.Sprintf("condition %q: %s needs an operand", field, op))
			}
			preds = append(preds, Compare{Field: field, Op: op, Operand: operand})
		case OpGt, OpGte, OpLt, OpLte:
			if _, ok := toFloat(operand); !ok {
				return nil, configErr(ruleID, fmt.Sprintf("condition %q: %s needs a numeric operand, got %v", field, op, operand))
			}
			preds = append(preds, Compare{Field: field, Op: op, Operand: operand})
		case OpIn:
			set, ok := operand.([]any)
			if !ok {
				return nil, configErr(ruleID, fmt.Sprintf("condition %q: in needs a list", field))
			}
			preds = append(preds, Compare{Field: field, Op: OpIn, Set: set})
		case OpBetween:
			bounds, ok := operand.([]any)
			if !ok || len(bounds) != 2 {
				return nil, configErr(ruleID, fmt.Sprintf("condition %q: between needs [low, high]", field))
			}
			lo, okLo := toFloat(bounds[0])
			hi, okHi := toFloat(bounds[1])
			if !okLo || !okHi || lo > hi {
				return nil, configErr(ruleID, fmt.Sprintf("condition %q: between bounds invalid", field))
			}
			preds = append(preds, Compare{Field: field, Op: OpBetween, Low: lo, High: hi})
		case OpExists:
			want, ok := operand.(bool)
			if !ok {
				return nil, configErr(ruleID, fmt.Sprintf("condition %q: exists needs true or false", field))
			}
			preds = append(preds, Compare{Field: field, Op: OpExists, Operand: want})
		}
	}
	return preds, nil
}

func configErr(ruleID, reason string) error {
	return &domain.ConfigurationError{Kind: "rule", ID: ruleID, Reason: reason}
}
