package delivery

import "errors"

// Sentinel errors for the delivery tracker.
var (
	ErrNotFound   = errors.New("delivery record not found")
	ErrContention = errors.New("delivery record update lost to concurrent writers")
	ErrBadUpdate  = errors.New("invalid status update")
)
