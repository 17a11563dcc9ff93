// Package delivery tracks dispatched notifications through their status
// lifecycle and projects them into per-channel, per-day rate analytics.
//
// Transitions are decided by domain.NextStatus and written with a per-record
// compare-and-set, so out-of-order and duplicated provider callbacks are
// safe without further locking. Repository implementations live in
// repository/postgres/.
package delivery
