// Package responder is a thin public wrapper over internal/responder's
// probe, announce, respond, goodbye state machine (RFC 6762 §8): it owns
// the multicast hub the machine runs against, so callers only need to
// supply the records to publish and the transports to publish them on.
package responder

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/hollowpath/beacon/internal/errors"
	"github.com/hollowpath/beacon/internal/mcast"
	internalresponder "github.com/hollowpath/beacon/internal/responder"
	"github.com/hollowpath/beacon/internal/security"
	"github.com/hollowpath/beacon/internal/transport"
)

// ProposedRecord is one record to publish, plus the records to attach as
// "additional" whenever an answer includes it.
type ProposedRecord = internalresponder.ProposedRecord

// Phase is the responder's current lifecycle stage.
type Phase = internalresponder.Phase

const (
	PhaseProbing    = internalresponder.PhaseProbing
	PhaseAnnouncing = internalresponder.PhaseAnnouncing
	PhaseResponding = internalresponder.PhaseResponding
	PhaseStopped    = internalresponder.PhaseStopped
)

// Responder publishes a fixed set of records on the network, defending them
// against naming conflicts until its Run context is canceled.
type Responder struct {
	hub     *mcast.Hub
	sub     *mcast.Subscription
	machine *internalresponder.Machine
}

// New creates a Responder for proposed over the given transports (typically
// one IPv4 and one IPv6 transport bound to port 5353). Nothing is sent on
// the network until Run is called.
func New(proposed []ProposedRecord, transports []transport.Transport, opts ...Option) (*Responder, error) {
	if len(proposed) == 0 {
		return nil, &errors.ValidationError{Field: "proposed", Message: "at least one record is required"}
	}
	if len(transports) == 0 {
		return nil, &errors.ValidationError{Field: "transports", Message: "at least one transport is required"}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	hubOpts := []mcast.Option{
		mcast.WithSubscriberBuffer(cfg.subBuffer),
		mcast.WithMalformedHandler(func(src net.Addr, err error) {
			cfg.logger.Printf("responder: dropping malformed datagram from %v: %v", src, err)
		}),
	}
	if cfg.rateLimit {
		rl := security.NewRateLimiter(cfg.rateLimitThreshold, cfg.rateLimitCooldown, cfg.rateLimitEntries)
		hubOpts = append(hubOpts,
			mcast.WithRateLimiter(rl),
			mcast.WithRateLimitedHandler(func(src net.Addr) {
				cfg.logger.Printf("responder: rate limiting queries from %v", src)
			}),
		)
	}
	if cfg.sourceFilter {
		if fs, err := security.NewFilterSet(); err == nil {
			hubOpts = append(hubOpts, mcast.WithSourceValidator(fs.Valid))
		}
	}
	hub := mcast.NewHub(transports, hubOpts...)
	sub := hub.Subscribe()
	machine := internalresponder.New(proposed, hub, hub.Families(), cfg.machineOpts...)

	return &Responder{hub: hub, sub: sub, machine: machine}, nil
}

// Run drives the hub and the responder's full lifecycle until ctx is
// canceled or a naming conflict forces it to stop early
// (errors.NameTakenError, errors.SimultaneousProbeError,
// errors.ConflictError), returning errors.ErrAborted on ordinary
// cancellation.
func (r *Responder) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.hub.Run(gctx) })
	g.Go(func() error { return r.machine.Run(gctx, r.sub) })
	return g.Wait()
}

// Phase reports the responder's current lifecycle stage.
func (r *Responder) Phase() Phase { return r.machine.Phase() }
