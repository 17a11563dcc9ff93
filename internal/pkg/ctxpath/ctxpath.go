// Package ctxpath resolves dotted paths such as "user.firstName" against the
// loosely typed context maps that arrive with lifecycle events.
package ctxpath

import "strings"

// Lookup walks path through nested maps. It returns false when any segment
// is missing or an intermediate value is not a map. A nil leaf counts as
// missing.
func Lookup(ctx map[string]any, path string) (any, bool) {
	if ctx == nil || path == "" {
		return nil, false
	}
	// a literal key containing dots wins over traversal
	if v, ok := ctx[path]; ok {
		return v, v != nil
	}
	var cur any = ctx
	for _, seg := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case map[any]any:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// Has reports whether path resolves to a non-nil value.
func Has(ctx map[string]any, path string) bool {
	_, ok := Lookup(ctx, path)
	return ok
}
