// Package catalog holds the active rule set in memory.
//
// A Catalog loads rules from a RuleSource, validates and compiles them,
// drops inactive and malformed ones, indexes the rest by trigger event and
// publishes the result as an immutable Snapshot through an atomic pointer.
// Readers always see either the old or the new snapshot in full.
//
// A failed refresh keeps serving the previous snapshot. Once that snapshot
// is older than the configured staleness bound, Snapshot reports
// ErrUnavailable and selection fires nothing.
package catalog
