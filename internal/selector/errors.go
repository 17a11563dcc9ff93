package selector

import "errors"

// ErrCatalogUnavailable is returned when no usable rule snapshot exists.
var ErrCatalogUnavailable = errors.New("selector: rule catalog unavailable")
