package catalog

import "errors"

// ErrUnavailable means no snapshot was ever loaded or the current one is
// older than the staleness bound.
var ErrUnavailable = errors.New("rule catalog unavailable")
