package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/hollowpath/beacon/internal/errors"
	"github.com/hollowpath/beacon/internal/protocol"
)

// UDPv4Transport is the IPv4 mDNS multicast transport (224.0.0.251:5353).
//
// The underlying socket is opened with SO_REUSEADDR/SO_REUSEPORT (via the
// platform-specific Control hooks in socket_linux.go/socket_darwin.go/
// socket_windows.go) so this process can coexist with Avahi,
// systemd-resolved, or Bonjour already bound to port 5353. Loopback and TTL
// are controlled through golang.org/x/net/ipv4's PacketConn, which exposes
// the multicast socket options net.UDPConn does not.
type UDPv4Transport struct {
	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	group  *net.UDPAddr
	ifi    *net.Interface
	mu     sync.RWMutex
	ownIPs map[string]bool
}

// NewUDPv4Transport creates a UDPv4Transport bound to the mDNS port and
// joined to the IPv4 mDNS multicast group on every multicast-capable
// interface.
func NewUDPv4Transport() (*UDPv4Transport, error) {
	group := protocol.MulticastGroupIPv4()

	lc := net.ListenConfig{Control: PlatformControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", protocol.Port))
	if err != nil {
		return nil, &errors.NetworkError{
			Operation: "create socket",
			Err:       err,
			Details:   fmt.Sprintf("failed to bind udp4 port %d", protocol.Port),
		}
	}
	conn := pc.(*net.UDPConn)

	if err := conn.SetReadBuffer(65536); err != nil {
		_ = conn.Close()
		return nil, &errors.NetworkError{Operation: "configure socket", Err: err, Details: "failed to set read buffer size"}
	}

	pconn := ipv4.NewPacketConn(conn)
	ifaces, _ := multicastInterfaces()
	joined := false
	for i := range ifaces {
		if err := pconn.JoinGroup(&ifaces[i], group); err == nil {
			joined = true
		}
	}
	if !joined {
		if err := pconn.JoinGroup(nil, group); err != nil {
			_ = conn.Close()
			return nil, &errors.NetworkError{
				Operation: "join multicast group",
				Err:       err,
				Details:   fmt.Sprintf("failed to join %s", protocol.MulticastAddrIPv4),
			}
		}
	}
	_ = pconn.SetMulticastLoopback(true)
	_ = pconn.SetMulticastTTL(255)
	// Ask the kernel which interface each datagram arrived on, so answers
	// can be scoped per-link on multi-homed hosts. Not every platform
	// supports it; receive falls back to index 0 when the control message
	// is absent.
	_ = pconn.SetControlMessage(ipv4.FlagInterface, true)

	t := &UDPv4Transport{conn: conn, pconn: pconn, group: group}
	t.refreshOwnIPs()
	return t, nil
}

func multicastInterfaces() ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []net.Interface
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		out = append(out, ifi)
	}
	return out, nil
}

func (t *UDPv4Transport) refreshOwnIPs() {
	ips := make(map[string]bool)
	addrs, _ := net.InterfaceAddrs()
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			ips[ipnet.IP.String()] = true
		}
	}
	t.mu.Lock()
	t.ownIPs = ips
	t.mu.Unlock()
}

// Send transmits packet to dest, or to the mDNS multicast group if dest is nil.
func (t *UDPv4Transport) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	select {
	case <-ctx.Done():
		return &errors.NetworkError{Operation: "send", Err: ctx.Err(), Details: "context canceled before send"}
	default:
	}

	udpDest, _ := dest.(*net.UDPAddr)
	if udpDest == nil {
		udpDest = t.group
	}

	n, err := t.conn.WriteTo(packet, udpDest)
	if err != nil {
		return &errors.NetworkError{Operation: "send", Err: err, Details: fmt.Sprintf("failed to send %d bytes to %s", len(packet), udpDest)}
	}
	if n != len(packet) {
		return &errors.NetworkError{Operation: "send", Err: fmt.Errorf("partial write: %d/%d bytes", n, len(packet)), Details: "incomplete transmission"}
	}
	return nil
}

// Receive waits for the next datagram, honoring ctx cancellation/deadline.
// The returned interface index is 0 when the platform did not report one.
func (t *UDPv4Transport) Receive(ctx context.Context) ([]byte, net.Addr, int, error) {
	select {
	case <-ctx.Done():
		return nil, nil, 0, &errors.NetworkError{Operation: "receive", Err: ctx.Err(), Details: "context canceled before receive"}
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, nil, 0, &errors.NetworkError{Operation: "set read deadline", Err: err}
		}
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}

	bufPtr := GetBuffer()
	defer PutBuffer(bufPtr)
	buffer := *bufPtr

	n, cm, srcAddr, err := t.pconn.ReadFrom(buffer)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, nil, 0, &errors.NetworkError{Operation: "receive", Err: err, Details: "timeout"}
		}
		return nil, nil, 0, &errors.NetworkError{Operation: "receive", Err: err, Details: "failed to read from socket"}
	}
	ifIndex := 0
	if cm != nil {
		ifIndex = cm.IfIndex
	}

	result := make([]byte, n)
	copy(result, buffer[:n])
	return result, srcAddr, ifIndex, nil
}

// SetLoopback enables or disables receiving copies of our own transmissions.
func (t *UDPv4Transport) SetLoopback(enabled bool) error {
	if err := t.pconn.SetMulticastLoopback(enabled); err != nil {
		return &errors.NetworkError{Operation: "set loopback", Err: err}
	}
	return nil
}

// SetTTL sets the IPv4 multicast TTL.
func (t *UDPv4Transport) SetTTL(ttl int) error {
	if err := t.pconn.SetMulticastTTL(ttl); err != nil {
		return &errors.NetworkError{Operation: "set ttl", Err: err}
	}
	return nil
}

// IsOwnAddress reports whether host matches one of this machine's local
// addresses, refreshing the cached address set first.
func (t *UDPv4Transport) IsOwnAddress(host net.IP) bool {
	t.refreshOwnIPs()
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ownIPs[host.String()]
}

// Family reports FamilyIPv4.
func (t *UDPv4Transport) Family() Family { return FamilyIPv4 }

// Close releases the socket.
func (t *UDPv4Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	if err := t.conn.Close(); err != nil {
		return &errors.NetworkError{Operation: "close socket", Err: err}
	}
	return nil
}

var _ Transport = (*UDPv4Transport)(nil)
