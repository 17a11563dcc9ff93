package channel

import (
	"errors"
	"fmt"

	"github.com/ignite/notification-agent/internal/domain"
)

// ErrNoAdapter is wrapped when a channel has no registered adapter.
var ErrNoAdapter = errors.New("no adapter registered for channel")

// ErrNoAddress is wrapped when neither the context nor the recipient ID
// yields a usable address.
var ErrNoAddress = errors.New("no recipient address")

// TransportError is a failed hand-off. The delivery record starts FAILED.
type TransportError struct {
	Channel domain.Channel
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
