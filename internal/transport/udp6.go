package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv6"

	"github.com/hollowpath/beacon/internal/errors"
	"github.com/hollowpath/beacon/internal/protocol"
)

// UDPv6Transport is the IPv6 mDNS multicast transport ([ff02::fb]:5353).
// It mirrors UDPv4Transport's shape but uses golang.org/x/net/ipv6's
// PacketConn for group membership, loopback, and hop-limit control, since
// TTL has no meaning for IPv6 multicast; SetTTL is a no-op.
type UDPv6Transport struct {
	conn   *net.UDPConn
	pconn  *ipv6.PacketConn
	group  *net.UDPAddr
	mu     sync.RWMutex
	ownIPs map[string]bool
}

// NewUDPv6Transport creates a UDPv6Transport bound to the mDNS port and
// joined to the IPv6 mDNS multicast group on every multicast-capable
// interface.
func NewUDPv6Transport() (*UDPv6Transport, error) {
	group := protocol.MulticastGroupIPv6()

	lc := net.ListenConfig{Control: PlatformControl}
	pc, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf(":%d", protocol.Port))
	if err != nil {
		return nil, &errors.NetworkError{
			Operation: "create socket",
			Err:       err,
			Details:   fmt.Sprintf("failed to bind udp6 port %d", protocol.Port),
		}
	}
	conn := pc.(*net.UDPConn)
	if err := conn.SetReadBuffer(65536); err != nil {
		_ = conn.Close()
		return nil, &errors.NetworkError{Operation: "configure socket", Err: err}
	}

	pconn := ipv6.NewPacketConn(conn)
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
				Details:   fmt.Sprintf("failed to join %s", protocol.MulticastAddrIPv6),
			}
		}
	}
	_ = pconn.SetMulticastHopLimit(255)
	_ = pconn.SetMulticastLoopback(true)
	_ = pconn.SetControlMessage(ipv6.FlagInterface, true)

	t := &UDPv6Transport{conn: conn, pconn: pconn, group: group}
	t.refreshOwnIPs()
	return t, nil
}

func (t *UDPv6Transport) refreshOwnIPs() {
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

func (t *UDPv6Transport) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	select {
	case <-ctx.Done():
		return &errors.NetworkError{Operation: "send", Err: ctx.Err()}
	default:
	}
	udpDest, _ := dest.(*net.UDPAddr)
	if udpDest == nil {
		udpDest = t.group
	}
	n, err := t.conn.WriteTo(packet, udpDest)
	if err != nil {
		return &errors.NetworkError{Operation: "send", Err: err}
	}
	if n != len(packet) {
		return &errors.NetworkError{Operation: "send", Err: fmt.Errorf("partial write: %d/%d bytes", n, len(packet))}
	}
	return nil
}

// Receive waits for the next datagram. The returned interface index is 0
// when the platform did not report one.
func (t *UDPv6Transport) Receive(ctx context.Context) ([]byte, net.Addr, int, error) {
	select {
	case <-ctx.Done():
		return nil, nil, 0, &errors.NetworkError{Operation: "receive", Err: ctx.Err()}
	default:
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	}
	bufPtr := GetBuffer()
	defer PutBuffer(bufPtr)
	buffer := *bufPtr
	n, cm, srcAddr, err := t.pconn.ReadFrom(buffer)
	if err != nil {
		return nil, nil, 0, &errors.NetworkError{Operation: "receive", Err: err}
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
func (t *UDPv6Transport) SetLoopback(enabled bool) error {
	if err := t.pconn.SetMulticastLoopback(enabled); err != nil {
		return &errors.NetworkError{Operation: "set loopback", Err: err}
	}
	return nil
}

// SetTTL is a no-op for IPv6: hop-limit for mDNS multicast is fixed at 255
// per RFC 6762 §11 and this module does not expose hop-limit tuning.
func (t *UDPv6Transport) SetTTL(int) error { return nil }

// IsOwnAddress reports whether host matches one of this machine's local
// addresses.
func (t *UDPv6Transport) IsOwnAddress(host net.IP) bool {
	t.refreshOwnIPs()
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ownIPs[host.String()]
}

// Family reports FamilyIPv6.
func (t *UDPv6Transport) Family() Family { return FamilyIPv6 }

// Close releases the socket.
func (t *UDPv6Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	if err := t.conn.Close(); err != nil {
		return &errors.NetworkError{Operation: "close socket", Err: err}
	}
	return nil
}

var _ Transport = (*UDPv6Transport)(nil)
