package condition

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// toFloat accepts Go numeric kinds, json.Number and numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

func isNumeric(v any) bool {
	switch v.(type) {
	case string:
		return false
	}
	_, ok := toFloat(v)
	return ok
}

// equal compares numerically when both sides are numbers (7 == 7.0 ==
// json.Number("7")), numerically when one side is a number and the other a
// numeric string, and by string form otherwise. Booleans only equal
// booleans or their "true"/"false" spelling.
func equal(a, b any) bool {
	if ab, ok := a.(bool); ok {
		return boolEqual(ab, b)
	}
	if bb, ok := b.(bool); ok {
		return boolEqual(bb, a)
	}
	if isNumeric(a) || isNumeric(b) {
		fa, okA := toFloat(a)
		fb, okB := toFloat(b)
		return okA && okB && fa == fb
	}
	as, okA := a.(string)
	bs, okB := b.(string)
	if okA && okB {
		return as == bs
	}
	return false
}

func boolEqual(want bool, other any) bool {
	switch o := other.(type) {
	case bool:
		return o == want
	case string:
		b, err := strconv.ParseBool(o)
		return err == nil && b == want
	}
	return false
}
