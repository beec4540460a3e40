package receiver

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/mocaplink/natnet/pkg/dedup"
	"github.com/mocaplink/natnet/pkg/stats"
)

// WithLogger replaces the default no-op logger.
func WithLogger(log zerolog.Logger) func(*Receiver) {
	return func(r *Receiver) {
		r.log = log
	}
}

// WithDeduplicator suppresses repeated datagrams, which servers produce
// when they transmit on several interfaces at once.
func WithDeduplicator(d *dedup.Deduplicator) func(*Receiver) {
	return func(r *Receiver) {
		r.dedup = d
	}
}

// WithStats wires a tracker into the read loop.
func WithStats(t *stats.Tracker) func(*Receiver) {
	return func(r *Receiver) {
		r.stats = t
	}
}

// WithReadBuffer asks the kernel for a receive buffer of the given size.
// Bursty capture setups overrun the default during marker-dense frames.
func WithReadBuffer(bytes int) func(*Receiver) {
	return func(r *Receiver) {
		r.readBuf = bytes
	}
}

// WithAutoBind re-polls the interface list on the given period and joins
// the group on interfaces as they appear. Zero disables polling.
func WithAutoBind(poll time.Duration) func(*Receiver) {
	return func(r *Receiver) {
		r.bindPoll = poll
	}
}
