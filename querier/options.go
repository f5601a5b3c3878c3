package querier

import (
	"log"
	"time"

	"github.com/hollowpath/beacon/internal/errors"
)

// Option configures a Querier at construction time.
type Option func(*Querier) error

// WithLogger installs a logger for dropped-malformed-datagram notices
// (decode failures are dropped, not fatal). Default is log.Default().
func WithLogger(l *log.Logger) Option {
	return func(q *Querier) error {
		if l == nil {
			return &errors.ValidationError{Field: "logger", Message: "logger cannot be nil"}
		}
		q.logger = l
		return nil
	}
}

// WithAdditionalStoreSize bounds the number of records retained in the
// auxiliary additional-section store. Default 1024.
func WithAdditionalStoreSize(n int) Option {
	return func(q *Querier) error {
		if n <= 0 {
			return &errors.ValidationError{Field: "additionalStoreSize", Value: n, Message: "must be positive"}
		}
		q.additionalCap = n
		return nil
	}
}

// WithSubscriberBuffer sets the buffer depth of the Querier's subscription
// to the multicast hub (default 64; see internal/mcast.WithSubscriberBuffer).
func WithSubscriberBuffer(n int) Option {
	return func(q *Querier) error {
		if n <= 0 {
			return &errors.ValidationError{Field: "subscriberBuffer", Value: n, Message: "must be positive"}
		}
		q.subBuffer = n
		return nil
	}
}

// WithInitialDelayRange overrides the uniform random delay before the first
// outbound query (default 20-120ms, RFC 6762 §5.2). Tests shrink this window to
// avoid sleeping in real time.
func WithInitialDelayRange(min, max time.Duration) Option {
	return func(q *Querier) error {
		if min < 0 || max < min {
			return &errors.ValidationError{Field: "initialDelayRange", Message: "min must be >= 0 and <= max"}
		}
		q.t.initialDelayMin, q.t.initialDelayMax = min, max
		return nil
	}
}

// WithSecondInterval overrides the delay between the first and second
// outbound query (default 1s, RFC 6762 §5.2).
func WithSecondInterval(d time.Duration) Option {
	return func(q *Querier) error {
		q.t.secondInterval = d
		return nil
	}
}

// WithMaxInterval overrides the cap on the doubling query interval
// (default 1 hour, RFC 6762 §5.2).
func WithMaxInterval(d time.Duration) Option {
	return func(q *Querier) error {
		q.t.maxInterval = d
		return nil
	}
}
