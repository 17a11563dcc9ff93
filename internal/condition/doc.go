// Package condition compiles stored trigger conditions into predicates and
// evaluates them against an event context.
//
// Conditions are persisted loosely: a scalar means equality, a list means
// membership, and an object of operator keys ({"gte": 3}) means one or more
// comparisons that must all hold. Compile turns that shape into a predicate
// tree once, at catalog load, so malformed conditions surface as
// configuration errors instead of silently never matching.
//
// Evaluation is total. A missing context field or an operand of the wrong
// kind makes the predicate false; it never panics.
package condition
