package protocol

import "testing"

func TestMulticastGroups(t *testing.T) {
	v4 := MulticastGroupIPv4()
	if v4.IP.String() != MulticastAddrIPv4 || v4.Port != Port {
		t.Fatalf("unexpected IPv4 group: %v", v4)
	}
	v6 := MulticastGroupIPv6()
	if v6.IP.String() != "ff02::fb" || v6.Port != Port {
		t.Fatalf("unexpected IPv6 group: %v", v6)
	}
}

func TestRecordTypeString(t *testing.T) {
	cases := map[RecordType]string{
		RecordTypeA:    "A",
		RecordTypeAAAA: "AAAA",
		RecordTypePTR:  "PTR",
		RecordTypeTXT:  "TXT",
		RecordTypeSRV:  "SRV",
		RecordTypeNSEC: "NSEC",
		RecordTypeANY:  "ANY",
		RecordType(99): "UNKNOWN",
	}
	for rt, want := range cases {
		if got := rt.String(); got != want {
			t.Errorf("RecordType(%d).String() = %q, want %q", rt, got, want)
		}
	}
}

func TestRecordTypeIsKnown(t *testing.T) {
	known := []RecordType{RecordTypeA, RecordTypeAAAA, RecordTypePTR, RecordTypeTXT, RecordTypeSRV, RecordTypeNSEC}
	for _, rt := range known {
		if !rt.IsKnown() {
			t.Errorf("RecordType(%d) should be known", rt)
		}
	}
	for _, rt := range []RecordType{RecordTypeANY, RecordType(9999)} {
		if rt.IsKnown() {
			t.Errorf("RecordType(%d) should not be known", rt)
		}
	}
}

func TestTTLForType(t *testing.T) {
	short := []RecordType{RecordTypeA, RecordTypeAAAA, RecordTypeSRV, RecordTypePTR}
	for _, rt := range short {
		if got := TTLForType(rt); got != TTLShortLived {
			t.Errorf("TTLForType(%s) = %d, want %d", rt, got, TTLShortLived)
		}
	}
	long := []RecordType{RecordTypeTXT, RecordTypeNSEC}
	for _, rt := range long {
		if got := TTLForType(rt); got != TTLLongLived {
			t.Errorf("TTLForType(%s) = %d, want %d", rt, got, TTLLongLived)
		}
	}
}

func TestReQueryFractions(t *testing.T) {
	want := []int{80, 85, 90, 95}
	if len(ReQueryFractions) != len(want) {
		t.Fatalf("unexpected ReQueryFractions: %v", ReQueryFractions)
	}
	for i, f := range want {
		if ReQueryFractions[i] != f {
			t.Errorf("ReQueryFractions[%d] = %d, want %d", i, ReQueryFractions[i], f)
		}
	}
}
