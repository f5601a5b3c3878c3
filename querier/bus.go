package querier

import (
	"context"
	"log"
	"net"

	"github.com/hollowpath/beacon/internal/errors"
	"github.com/hollowpath/beacon/internal/mcast"
	"github.com/hollowpath/beacon/internal/transport"
)

// Bus shares one multicast Hub across several Queriers. A single Querier
// built with New is sufficient when only one set of questions is ever asked
// over a transport set; callers that need multiple simultaneous Queriers to
// observe the very same traffic (the DNS-SD browser resolves a service
// instance's SRV/TXT and address records with independent Queriers that
// must all see every datagram) use a Bus so the transports are read once and
// fanned out to each Querier's own subscription, rather than each Querier
// opening a private Hub and racing the others for the same packets.
type Bus struct {
	hub *mcast.Hub
}

// BusOption configures a Bus.
type BusOption func(*busConfig)

type busConfig struct {
	subBuffer int
	logger    *log.Logger
}

// WithBusSubscriberBuffer sets the per-Querier channel capacity on the
// shared Hub (default 64).
func WithBusSubscriberBuffer(n int) BusOption {
	return func(c *busConfig) { c.subBuffer = n }
}

// WithBusLogger installs a logger for dropped-malformed-datagram notices.
// Default is log.Default().
func WithBusLogger(l *log.Logger) BusOption {
	return func(c *busConfig) { c.logger = l }
}

// NewBus creates a Bus driving transports (typically one IPv4 and one IPv6
// transport bound to port 5353). Nothing is received until Run is called.
func NewBus(transports []transport.Transport, opts ...BusOption) (*Bus, error) {
	if len(transports) == 0 {
		return nil, &errors.ValidationError{Field: "transports", Message: "at least one transport is required"}
	}

	cfg := &busConfig{subBuffer: 64, logger: log.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	hub := mcast.NewHub(transports,
		mcast.WithSubscriberBuffer(cfg.subBuffer),
		mcast.WithMalformedHandler(func(src net.Addr, err error) {
			cfg.logger.Printf("querier: dropping malformed datagram from %v: %v", src, err)
		}),
	)
	return &Bus{hub: hub}, nil
}

// Run drives the shared Hub's receive loops until ctx is canceled. Callers
// run a Bus once, concurrently with every Querier built from it (mirroring
// how responder.Responder.Run drives its own private Hub).
func (b *Bus) Run(ctx context.Context) error {
	return b.hub.Run(ctx)
}

// New builds a Querier asking questions, subscribed to the Bus's shared Hub.
// The returned Querier's End stops only its own subscription loop; the Bus
// itself keeps running until its own ctx is canceled.
func (b *Bus) New(questions []Question, opts ...Option) (*Querier, error) {
	return newOnHub(questions, b.hub, opts...)
}
