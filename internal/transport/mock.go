package transport

import (
	"context"
	"net"
	"sync"
)

// MockTransport is a test double implementing Transport entirely in memory:
// Send() records every call for assertions, and Feed() lets a test enqueue
// an inbound datagram as if it had arrived from the network, which a
// subsequent Receive() call will return.
type MockTransport struct {
	mu        sync.Mutex
	sendCalls []SendCall
	inbound   chan inboundPacket
	closed    bool
	loopback  bool
	ttl       int
	family    Family
	ownAddrs  map[string]bool
}

// SendCall records a single Send() invocation.
type SendCall struct {
	Packet []byte
	Dest   net.Addr
}

type inboundPacket struct {
	packet  []byte
	src     net.Addr
	ifIndex int
}

// NewMockTransport creates a new mock transport for testing.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		sendCalls: make([]SendCall, 0),
		inbound:   make(chan inboundPacket, 256),
		loopback:  true,
		ownAddrs:  make(map[string]bool),
	}
}

// Send records the call for verification.
func (m *MockTransport) Send(_ context.Context, packet []byte, dest net.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls = append(m.sendCalls, SendCall{
		Packet: append([]byte(nil), packet...),
		Dest:   dest,
	})
	return nil
}

// Feed enqueues a datagram as though received from src. Tests use this to
// simulate another host's query or response arriving on the wire.
func (m *MockTransport) Feed(packet []byte, src net.Addr) {
	m.FeedOn(packet, src, 0)
}

// FeedOn is Feed with an explicit arrival interface index, for tests that
// exercise per-link behavior.
func (m *MockTransport) FeedOn(packet []byte, src net.Addr, ifIndex int) {
	m.inbound <- inboundPacket{packet: append([]byte(nil), packet...), src: src, ifIndex: ifIndex}
}

// Receive returns the next fed packet, blocking until one is available,
// ctx is done, or the transport is closed.
func (m *MockTransport) Receive(ctx context.Context) ([]byte, net.Addr, int, error) {
	select {
	case <-ctx.Done():
		return nil, nil, 0, ctx.Err()
	case p, ok := <-m.inbound:
		if !ok {
			return nil, nil, 0, net.ErrClosed
		}
		return p.packet, p.src, p.ifIndex, nil
	}
}

// SetLoopback records the requested loopback state.
func (m *MockTransport) SetLoopback(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loopback = enabled
	return nil
}

// Loopback reports the last value passed to SetLoopback.
func (m *MockTransport) Loopback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loopback
}

// SetTTL records the requested TTL.
func (m *MockTransport) SetTTL(ttl int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl = ttl
	return nil
}

// MarkOwnAddress registers host as one of "our" addresses for IsOwnAddress.
func (m *MockTransport) MarkOwnAddress(host net.IP) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ownAddrs[host.String()] = true
}

// IsOwnAddress reports whether host was registered via MarkOwnAddress.
func (m *MockTransport) IsOwnAddress(host net.IP) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ownAddrs[host.String()]
}

// SetFamily configures which Family() reports; tests default to FamilyIPv4.
func (m *MockTransport) SetFamily(f Family) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.family = f
}

// Family reports the configured family (FamilyIPv4 by default).
func (m *MockTransport) Family() Family {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.family
}

// Close marks the transport as closed and unblocks any pending Receive.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.inbound)
	return nil
}

// SendCalls returns all recorded Send() calls.
func (m *MockTransport) SendCalls() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]SendCall, len(m.sendCalls))
	copy(calls, m.sendCalls)
	return calls
}

var _ Transport = (*MockTransport)(nil)
