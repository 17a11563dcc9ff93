package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/metrics"
	"github.com/ignite/notification-agent/internal/pkg/ctxpath"
	"github.com/ignite/notification-agent/internal/pkg/logger"
)

// DeliveryHandle is the result of one hand-off.
type DeliveryHandle struct {
	Status            domain.DeliveryStatus
	ProviderMessageID string
	Err               error
}

// Dispatcher routes messages to adapters.
type Dispatcher struct {
	adapters     map[domain.Channel]Adapter
	addressPaths map[domain.Channel]string
	timeout      time.Duration
}

// NewDispatcher creates a Dispatcher with a per-call timeout.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		adapters:     make(map[domain.Channel]Adapter),
		addressPaths: make(map[domain.Channel]string),
		timeout:      timeout,
	}
}

// Register adds an adapter. addressPath is the context path holding the
// recipient address for the channel ("user.email"); empty means the
// recipient ID is the address.
func (d *Dispatcher) Register(a Adapter, addressPath string) {
	d.adapters[a.Channel()] = a
	if addressPath != "" {
		d.addressPaths[a.Channel()] = addressPath
	}
}

// Channels lists the channels with a registered adapter.
func (d *Dispatcher) Channels() []domain.Channel {
	out := make([]domain.Channel, 0, len(d.adapters))
	for _, c := range domain.AllChannels() {
		if _, ok := d.adapters[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Send hands msg to its channel's adapter under the dispatcher timeout.
// On failure the handle is FAILED and the error is a *TransportError.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (DeliveryHandle, error) {
	adapter, ok := d.adapters[msg.Channel]
	if !ok {
		return d.fail(msg, fmt.Errorf("%w: %s", ErrNoAdapter, msg.Channel))
	}
	if msg.Address == "" {
		msg.Address = d.resolveAddress(msg)
	}
	if msg.Address == "" {
		return d.fail(msg, ErrNoAddress)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	receipt, err := adapter.Send(callCtx, msg)
	metrics.DispatchLatency.WithLabelValues(string(msg.Channel)).Observe(time.Since(start).Seconds())
	if err != nil {
		return d.fail(msg, err)
	}

	status := domain.StatusSent
	if receipt.Queued {
		status = domain.StatusPending
	}
	metrics.Dispatches.WithLabelValues(string(msg.Channel), string(status)).Inc()
	return DeliveryHandle{Status: status, ProviderMessageID: receipt.ProviderMessageID}, nil
}

func (d *Dispatcher) fail(msg Message, err error) (DeliveryHandle, error) {
	terr := &TransportError{Channel: msg.Channel, Err: err}
	metrics.Dispatches.WithLabelValues(string(msg.Channel), string(domain.StatusFailed)).Inc()
	logger.Warn("dispatch: hand-off failed",
		"channel", msg.Channel, "delivery_id", msg.DeliveryID, "recipient_id", msg.RecipientID, "error", err)
	return DeliveryHandle{Status: domain.StatusFailed, Err: terr}, terr
}

func (d *Dispatcher) resolveAddress(msg Message) string {
	if path, ok := d.addressPaths[msg.Channel]; ok {
		if v, ok := ctxpath.Lookup(msg.Context, path); ok {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return msg.RecipientID
}
