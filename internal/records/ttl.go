package records

import (
	"time"

	"github.com/hollowpath/beacon/internal/protocol"
)

// Expiry tracks a cached record's remaining lifetime for the continuous
// querier: TTL counts down from CreatedAt, and the record is
// expired once the full TTL has elapsed.
type Expiry struct {
	TTL       uint32
	CreatedAt time.Time
}

// NewExpiry creates an Expiry starting now for the given TTL.
func NewExpiry(ttl uint32) Expiry {
	return Expiry{TTL: ttl, CreatedAt: time.Now()}
}

// Remaining returns the TTL remaining in seconds, floored at zero.
func (e Expiry) Remaining() uint32 {
	elapsed := uint32(time.Since(e.CreatedAt).Seconds())
	if elapsed >= e.TTL {
		return 0
	}
	return e.TTL - elapsed
}

// IsExpired reports whether the full TTL has elapsed.
func (e Expiry) IsExpired() bool {
	return time.Since(e.CreatedAt) >= time.Duration(e.TTL)*time.Second
}

// ReQueryTimes returns the absolute times at which a cached record should be
// proactively re-queried, per RFC 6762 §5.2: 80%, 85%, 90%, and 95% of its
// TTL,
// each jittered by +0 to +2 percentage points of the TTL.
func (e Expiry) ReQueryTimes(jitter func(maxPct int) int) []time.Time {
	times := make([]time.Time, 0, len(protocol.ReQueryFractions))
	total := time.Duration(e.TTL) * time.Second
	for _, pct := range protocol.ReQueryFractions {
		j := 0
		if jitter != nil {
			j = jitter(protocol.ReQueryJitterMax)
		}
		effectivePct := pct + j
		if effectivePct > 100 {
			effectivePct = 100
		}
		offset := total * time.Duration(effectivePct) / 100
		times = append(times, e.CreatedAt.Add(offset))
	}
	return times
}

// TTLForType re-exports protocol.TTLForType so callers that otherwise only
// import internal/records don't need a second import for outbound TTL
// normalization.
func TTLForType(rt protocol.RecordType) uint32 {
	return protocol.TTLForType(rt)
}
