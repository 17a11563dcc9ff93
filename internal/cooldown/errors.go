package cooldown

import "errors"

// ErrStoreUnavailable wraps any backend failure. Callers treat it as an
// outage and fire nothing.
var ErrStoreUnavailable = errors.New("cooldown store unavailable")
