package responder

import (
	"log"
	"time"

	internalresponder "github.com/hollowpath/beacon/internal/responder"
)

// Option configures a Responder at construction time.
type Option func(*config)

type config struct {
	subBuffer          int
	logger             *log.Logger
	machineOpts        []internalresponder.Option
	rateLimit          bool
	rateLimitThreshold int
	rateLimitCooldown  time.Duration
	rateLimitEntries   int
	sourceFilter       bool
}

func defaultConfig() *config {
	return &config{
		subBuffer:          64,
		logger:             log.Default(),
		rateLimit:          true,
		rateLimitThreshold: 100,
		rateLimitCooldown:  60 * time.Second,
		rateLimitEntries:   10000,
	}
}

// WithLogger installs a logger for dropped-malformed-datagram notices.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSubscriberBuffer sets the buffer depth of the Responder's subscription
// to the multicast hub (default 64).
func WithSubscriberBuffer(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.subBuffer = n
		}
	}
}

// WithRateLimit enables or disables per-source query rate limiting
// (enabled by default). A source exceeding the threshold is ignored for the
// cooldown period, so a query flood cannot drive the responder's answer
// path.
func WithRateLimit(enabled bool) Option {
	return func(c *config) { c.rateLimit = enabled }
}

// WithRateLimitThreshold sets the per-source queries-per-second budget
// (default 100).
func WithRateLimitThreshold(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.rateLimitThreshold = n
		}
	}
}

// WithRateLimitCooldown sets how long an over-budget source stays ignored
// (default 60s).
func WithRateLimitCooldown(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.rateLimitCooldown = d
		}
	}
}

// WithSourceFiltering enables dropping datagrams whose source address is not
// link-local or on one of this host's subnets (disabled by default; tests
// and unusual routed setups feed traffic from arbitrary addresses).
func WithSourceFiltering(enabled bool) Option {
	return func(c *config) { c.sourceFilter = enabled }
}

// WithProbeInterval overrides the delay between probes during the probing
// phase (default 250ms, RFC 6762 §8.1).
func WithProbeInterval(d time.Duration) Option {
	return func(c *config) {
		c.machineOpts = append(c.machineOpts, internalresponder.WithProbeInterval(d))
	}
}

// WithAnnounceInterval overrides the delay between the two announcements
// following a successful probe (default 1s, RFC 6762 §8.3).
func WithAnnounceInterval(d time.Duration) Option {
	return func(c *config) {
		c.machineOpts = append(c.machineOpts, internalresponder.WithAnnounceInterval(d))
	}
}

// WithAggregationWindow overrides the random delay window used to batch
// answers to multiple near-simultaneous queries into one response.
func WithAggregationWindow(min, max time.Duration) Option {
	return func(c *config) {
		c.machineOpts = append(c.machineOpts, internalresponder.WithAggregationWindow(min, max))
	}
}

// WithInitialDelayMax overrides the cap on the random delay before the
// first probe (default 250ms; RFC 6762 §8.1 calls for this to
// avoid synchronized probe storms on startup).
func WithInitialDelayMax(d time.Duration) Option {
	return func(c *config) {
		c.machineOpts = append(c.machineOpts, internalresponder.WithInitialDelayMax(d))
	}
}
