// Package mcast implements component C of the design: it owns one or more
// Transports, decodes inbound datagrams once, and fans the decoded messages
// out to every subscriber (the querier and the responder run concurrently
// against the same Hub). Outbound sends are serialized per transport.
package mcast

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/security"
	"github.com/hollowpath/beacon/internal/transport"
)

// InboundMessage is a decoded datagram together with its source, the family
// of the transport it arrived on, and the local interface index it arrived
// on (0 when the transport could not report one).
type InboundMessage struct {
	Msg     *message.Message
	Raw     []byte
	Src     net.Addr
	Family  transport.Family
	IfIndex int
}

// Subscription is a bounded, ring-buffered view of the Hub's inbound stream.
// The fan-out ring-buffers rather than blocking the
// receive loop on a slow subscriber: a full channel drops its oldest queued
// message to make room for the newest one, preserving order within the
// subscriber.
type Subscription struct {
	ch chan InboundMessage
}

// C returns the channel a subscriber reads from.
func (s *Subscription) C() <-chan InboundMessage { return s.ch }

// Hub fans out inbound mDNS traffic from one or more transports (typically
// one IPv4 and one IPv6) to every subscriber, and serializes outbound sends
// per transport.
type Hub struct {
	mu          sync.Mutex
	transports  []transport.Transport
	subs        []chan InboundMessage
	subBuffer   int
	onMalformed func(src net.Addr, err error)
	limiter     *security.RateLimiter
	onLimited   func(src net.Addr)
	sourceValid func(src net.IP, ifIndex int) bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithSubscriberBuffer sets the per-subscriber channel capacity (default 64).
func WithSubscriberBuffer(n int) Option {
	return func(h *Hub) { h.subBuffer = n }
}

// WithMalformedHandler installs a callback invoked whenever a datagram fails
// to decode. The offending datagram is dropped and the transport stays open;
// callers that want logging supply the callback, a nil callback (the
// default) drops the datagram silently.
func WithMalformedHandler(f func(src net.Addr, err error)) Option {
	return func(h *Hub) { h.onMalformed = f }
}

// WithRateLimiter installs a per-source query rate limiter. Queries from a
// source that exceeds its budget are dropped before fan-out; responses are
// never rate limited, since they feed cache maintenance.
func WithRateLimiter(rl *security.RateLimiter) Option {
	return func(h *Hub) { h.limiter = rl }
}

// WithRateLimitedHandler installs a callback invoked when a query is dropped
// by the rate limiter, for logging.
func WithRateLimitedHandler(f func(src net.Addr)) Option {
	return func(h *Hub) { h.onLimited = f }
}

// WithSourceValidator installs a check on source addresses, dropping
// datagrams whose source fails it before they are decoded. mDNS is
// link-local scope, so a security.FilterSet is the usual validator.
func WithSourceValidator(f func(src net.IP, ifIndex int) bool) Option {
	return func(h *Hub) { h.sourceValid = f }
}

// NewHub creates a Hub driving the given transports.
func NewHub(transports []transport.Transport, opts ...Option) *Hub {
	h := &Hub{transports: transports, subBuffer: 64}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new subscriber and returns its channel. Subscribe
// and Run's fan-out share the Hub's mutex, so a subscriber may be added
// while Run is active; it receives only datagrams fanned out after it
// subscribed.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan InboundMessage, h.subBuffer)
	h.subs = append(h.subs, ch)
	return &Subscription{ch: ch}
}

// Run drives a receive loop per transport concurrently via errgroup, so a
// stall on one family's socket never blocks the other. Run returns when ctx
// is canceled or any receive loop fails with a non-cancellation error.
func (h *Hub) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range h.transports {
		t := t
		g.Go(func() error {
			return h.receiveLoop(gctx, t)
		})
	}
	if h.limiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					h.limiter.Cleanup()
				}
			}
		})
	}
	return g.Wait()
}

func (h *Hub) receiveLoop(ctx context.Context, t transport.Transport) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		raw, src, ifIndex, err := t.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Transient receive errors (timeouts, transient I/O errors) are
			// not fatal to the hub; only ctx cancellation stops the loop.
			continue
		}

		udpSrc, _ := src.(*net.UDPAddr)
		if udpSrc != nil && t.IsOwnAddress(udpSrc.IP) {
			continue
		}
		if h.sourceValid != nil && udpSrc != nil && !h.sourceValid(udpSrc.IP, ifIndex) {
			continue
		}

		msg, err := message.ParseMessage(raw)
		if err != nil {
			if h.onMalformed != nil {
				h.onMalformed(src, err)
			}
			continue
		}

		if h.limiter != nil && udpSrc != nil && msg.Header.IsQuery() && !h.limiter.Allow(udpSrc.IP.String()) {
			if h.onLimited != nil {
				h.onLimited(src)
			}
			continue
		}

		h.fanout(InboundMessage{Msg: msg, Raw: raw, Src: src, Family: t.Family(), IfIndex: ifIndex})
	}
}

func (h *Hub) fanout(im InboundMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- im:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- im:
			default:
			}
		}
	}
}

// Send encodes msg and transmits it on every transport matching family. A
// nil dest (the common case) sends to the multicast group.
func (h *Hub) Send(ctx context.Context, msg *message.Message, family transport.Family, dest net.Addr) error {
	raw, err := message.EncodeMessage(msg)
	if err != nil {
		return err
	}
	var sendErr error
	sent := false
	for _, t := range h.transports {
		if t.Family() != family {
			continue
		}
		sent = true
		if err := t.Send(ctx, raw, dest); err != nil {
			sendErr = err
		}
	}
	if !sent {
		return nil
	}
	return sendErr
}

// Families returns the families the Hub has a transport for, so callers
// (e.g. the responder) know which families to announce on.
func (h *Hub) Families() []transport.Family {
	seen := make(map[transport.Family]bool)
	var out []transport.Family
	for _, t := range h.transports {
		if !seen[t.Family()] {
			seen[t.Family()] = true
			out = append(out, t.Family())
		}
	}
	return out
}
