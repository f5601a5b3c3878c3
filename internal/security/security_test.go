package security

import (
	"fmt"
	"net"
	"testing"
	"time"
)

func TestRateLimiter_AllowsNormalLoad(t *testing.T) {
	rl := NewRateLimiter(100, 60*time.Second, 10000)

	src := "192.168.1.50"
	for i := 0; i < 50; i++ {
		if !rl.Allow(src) {
			t.Fatalf("query %d blocked under a 100 qps budget", i+1)
		}
	}
	if rl.Len() != 1 {
		t.Fatalf("tracked sources = %d, want 1", rl.Len())
	}
}

func TestRateLimiter_BlocksFlood(t *testing.T) {
	rl := NewRateLimiter(100, 60*time.Second, 10000)

	src := "192.168.1.100"
	allowed, blocked := 0, 0
	for i := 0; i < 150; i++ {
		if rl.Allow(src) {
			allowed++
		} else {
			blocked++
		}
	}
	if allowed > 100 {
		t.Errorf("allowed %d queries, budget is 100", allowed)
	}
	if blocked == 0 {
		t.Error("no queries blocked by a 150-query burst")
	}
	if rl.Allow(src) {
		t.Error("source not in cooldown after exceeding its budget")
	}
}

func TestRateLimiter_CooldownLifts(t *testing.T) {
	rl := NewRateLimiter(10, 500*time.Millisecond, 10000)

	src := "192.168.1.150"
	for i := 0; i < 20; i++ {
		rl.Allow(src)
	}
	if rl.Allow(src) {
		t.Fatal("source should be in cooldown")
	}

	time.Sleep(600 * time.Millisecond)

	// Cooldown expired and the window reset, so the source starts fresh.
	if !rl.Allow(src) {
		t.Error("source still blocked after cooldown expired")
	}
	if !rl.Allow(src) {
		t.Error("second query after reset blocked while far under budget")
	}
}

func TestRateLimiter_BoundedTracking(t *testing.T) {
	rl := NewRateLimiter(100, 60*time.Second, 100)

	for i := 0; i < 150; i++ {
		rl.Allow(fmt.Sprintf("192.168.1.%d", i))
	}
	if rl.Len() > 100 {
		t.Errorf("tracked sources = %d, cap is 100", rl.Len())
	}

	// Eviction removes the oldest source, never the one just added.
	if !rl.Allow("10.0.0.1") {
		t.Error("fresh source blocked immediately after LRU eviction")
	}
}

func TestRateLimiter_CleanupKeepsFreshEntries(t *testing.T) {
	rl := NewRateLimiter(100, 60*time.Second, 10000)

	for _, src := range []string{"192.168.1.1", "192.168.1.2", "192.168.1.3"} {
		rl.Allow(src)
	}
	rl.Cleanup()
	if rl.Len() != 3 {
		t.Errorf("Cleanup() removed fresh entries: %d tracked, want 3", rl.Len())
	}
}

func TestIsPrivate(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.31.255.254", true},
		{"172.32.0.1", false},
		{"192.168.1.1", true},
		{"8.8.8.8", false},
		{"169.254.1.1", false}, // link-local is its own category
		{"fd12:3456::1", true}, // IPv6 unique-local
		{"2001:db8::1", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := isPrivate(net.ParseIP(tt.ip)); got != tt.want {
				t.Errorf("isPrivate(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func filterWithSubnet(t *testing.T, cidr string) *SourceFilter {
	t.Helper()
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		t.Fatalf("bad CIDR %s: %v", cidr, err)
	}
	return &SourceFilter{
		iface:      net.Interface{Index: 1, Name: "eth0", Flags: net.FlagUp | net.FlagMulticast},
		ifaceAddrs: []net.IPNet{*ipnet},
	}
}

func TestSourceFilter_IsValid(t *testing.T) {
	sf := filterWithSubnet(t, "192.168.1.100/24")

	tests := []struct {
		ip   string
		want bool
	}{
		{"169.254.1.1", true},   // IPv4 link-local
		{"fe80::1234", true},    // IPv6 link-local
		{"192.168.1.1", true},   // same subnet
		{"192.168.1.254", true}, // same subnet
		{"192.168.2.50", false}, // different subnet
		{"10.0.1.1", false},     // different subnet
		{"8.8.8.8", false},      // routed
		{"1.1.1.1", false},      // routed
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := sf.IsValid(net.ParseIP(tt.ip)); got != tt.want {
				t.Errorf("IsValid(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestSourceFilter_FallbackWithoutAddrs(t *testing.T) {
	// When interface address discovery failed, private-range sources are
	// accepted rather than dropping every packet on the interface.
	sf := &SourceFilter{iface: net.Interface{Index: 1, Name: "eth0"}}

	if !sf.IsValid(net.ParseIP("192.168.7.7")) {
		t.Error("private source rejected by an addressless filter")
	}
	if sf.IsValid(net.ParseIP("8.8.8.8")) {
		t.Error("routed source accepted by an addressless filter")
	}
}

func TestFilterSet_Valid(t *testing.T) {
	eth0 := filterWithSubnet(t, "192.168.1.10/24")
	eth1 := filterWithSubnet(t, "10.0.5.10/24")
	fs := &FilterSet{filters: map[int]*SourceFilter{1: eth0, 2: eth1}}

	// Validated against the arrival interface's subnet.
	if !fs.Valid(net.ParseIP("192.168.1.20"), 1) {
		t.Error("same-subnet source rejected on its own interface")
	}
	if fs.Valid(net.ParseIP("192.168.1.20"), 2) {
		t.Error("eth0-subnet source accepted on eth1")
	}

	// Unknown index falls back to any-interface matching.
	if !fs.Valid(net.ParseIP("10.0.5.9"), 0) {
		t.Error("valid source rejected when arrival interface is unknown")
	}
	if fs.Valid(net.ParseIP("8.8.8.8"), 0) {
		t.Error("routed source accepted when arrival interface is unknown")
	}
}
