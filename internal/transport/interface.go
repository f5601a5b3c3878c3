package transport

import (
	"context"
	"net"
)

// Family identifies which multicast group a Transport speaks to.
type Family int

const (
	// FamilyIPv4 transports speak to 224.0.0.251:5353.
	FamilyIPv4 Family = iota
	// FamilyIPv6 transports speak to [ff02::fb]:5353.
	FamilyIPv6
)

func (f Family) String() string {
	if f == FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// Transport is the injected multicast socket abstraction the querier and
// responder run against.
// The querier, responder, and internal/mcast packages never touch a raw
// net.PacketConn directly; everything they need to do to a socket is
// expressed through this interface, so tests can swap in MockTransport.
type Transport interface {
	// Send transmits packet to the mDNS group (dest nil means "the mDNS
	// multicast group for this transport's family").
	Send(ctx context.Context, packet []byte, dest net.Addr) error

	// Receive returns the next received datagram, its source address, and
	// the index of the local interface it arrived on (0 when the socket
	// cannot report one). Multi-homed hosts use the index to scope answers
	// to the link a question came from.
	Receive(ctx context.Context) ([]byte, net.Addr, int, error)

	// SetLoopback enables or disables delivery of this host's own
	// multicast transmissions back to itself.
	SetLoopback(enabled bool) error

	// SetTTL sets the multicast TTL. A no-op for families where it does
	// not apply (IPv6 uses a fixed link-local hop limit).
	SetTTL(ttl int) error

	// IsOwnAddress reports whether host is a local address of this
	// machine, so callers can discard loopback copies of their own
	// traffic.
	IsOwnAddress(host net.IP) bool

	// Family reports which multicast group this transport joined.
	Family() Family

	// Close releases the underlying socket.
	Close() error
}
