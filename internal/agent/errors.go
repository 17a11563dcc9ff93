package agent

import "errors"

var (
	// ErrInvalidEvent is returned for events missing required fields.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrDeclined means infrastructure was unavailable and the event was
	// dropped without sending anything.
	ErrDeclined = errors.New("event declined")
)
