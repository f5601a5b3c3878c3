package security

import (
	"net"
)

// SourceFilter validates datagram source addresses for one local interface.
// mDNS is link-local scope (RFC 6762 §2): a legitimate peer is either on a
// link-local address or on the same subnet as the interface the datagram
// arrived on. Anything else is a stray or spoofed packet and is dropped
// before it is parsed.
type SourceFilter struct {
	iface      net.Interface
	ifaceAddrs []net.IPNet
}

// NewSourceFilter builds a filter for iface, caching its addresses so the
// per-packet check never hits a syscall. If address discovery fails the
// filter still works, falling back to the link-local and private-range
// checks alone.
func NewSourceFilter(iface net.Interface) (*SourceFilter, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return &SourceFilter{iface: iface}, nil
	}

	var ipnets []net.IPNet
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			ipnets = append(ipnets, *ipnet)
		}
	}
	return &SourceFilter{iface: iface, ifaceAddrs: ipnets}, nil
}

// IsValid reports whether srcIP could plausibly be a link-local mDNS peer:
// an IPv4 link-local address (169.254/16, RFC 3927), an IPv6 link-local
// address (fe80::/10), or an address on one of this interface's subnets.
// When the interface's addresses are unknown, private-range addresses
// (RFC 1918, fc00::/7) are accepted rather than rejecting every packet.
func (sf *SourceFilter) IsValid(srcIP net.IP) bool {
	if srcIP.IsLinkLocalUnicast() {
		return true
	}

	for _, ipnet := range sf.ifaceAddrs {
		if ipnet.Contains(srcIP) {
			return true
		}
	}

	if len(sf.ifaceAddrs) == 0 && isPrivate(srcIP) {
		return true
	}
	return false
}

// isPrivate reports whether ip is in a private range: 10/8, 172.16/12,
// 192.168/16, or the IPv6 unique-local block fc00::/7.
func isPrivate(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 10:
			return true
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return true
		case ip4[0] == 192 && ip4[1] == 168:
			return true
		}
		return false
	}
	return len(ip) == net.IPv6len && ip[0]&0xfe == 0xfc
}

// FilterSet holds a SourceFilter per local interface, keyed by interface
// index, so a multi-homed host validates each datagram against the
// interface it actually arrived on.
type FilterSet struct {
	filters map[int]*SourceFilter
}

// NewFilterSet builds one SourceFilter per up, multicast-capable interface.
func NewFilterSet() (*FilterSet, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	fs := &FilterSet{filters: make(map[int]*SourceFilter)}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		f, err := NewSourceFilter(ifi)
		if err != nil {
			continue
		}
		fs.filters[ifi.Index] = f
	}
	return fs, nil
}

// Valid reports whether srcIP is acceptable on the interface with the given
// index. An unknown or zero index (the transport could not attribute the
// datagram to an interface) is checked against every filter instead,
// accepting the datagram if any interface would.
func (fs *FilterSet) Valid(srcIP net.IP, ifIndex int) bool {
	if f, ok := fs.filters[ifIndex]; ok {
		return f.IsValid(srcIP)
	}
	for _, f := range fs.filters {
		if f.IsValid(srcIP) {
			return true
		}
	}
	return len(fs.filters) == 0
}
