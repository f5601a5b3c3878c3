package records

import (
	"testing"

	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/protocol"
)

func aRecord(name string, addr [4]byte, ttl uint32, unique bool) message.ResourceRecord {
	return message.ResourceRecord{
		Name:     message.SplitLabels(name),
		Type:     uint16(protocol.RecordTypeA),
		Class:    uint16(protocol.ClassIN),
		IsUnique: unique,
		TTL:      ttl,
		Data:     message.AData{Address: addr},
	}
}

func ptrRecord(name, target string, ttl uint32) message.ResourceRecord {
	return message.ResourceRecord{
		Name:  message.SplitLabels(name),
		Type:  uint16(protocol.RecordTypePTR),
		Class: uint16(protocol.ClassIN),
		TTL:   ttl,
		Data:  message.PTRData{Target: message.SplitLabels(target)},
	}
}

func TestSameNameType(t *testing.T) {
	a := aRecord("host.local", [4]byte{1, 1, 1, 1}, 120, true)
	b := aRecord("HOST.LOCAL", [4]byte{2, 2, 2, 2}, 4500, false)
	if !SameNameType(a, b) {
		t.Error("expected same name/type regardless of case, TTL, or RDATA")
	}

	c := ptrRecord("host.local", "x.local", 120)
	if SameNameType(a, c) {
		t.Error("expected different type to not match")
	}
}

func TestSameRecord(t *testing.T) {
	a := aRecord("host.local", [4]byte{1, 1, 1, 1}, 120, true)
	b := aRecord("host.local", [4]byte{1, 1, 1, 1}, 4500, false)
	if !SameRecord(a, b) {
		t.Error("expected same record identity despite differing TTL/cache-flush")
	}

	c := aRecord("host.local", [4]byte{2, 2, 2, 2}, 120, true)
	if SameRecord(a, c) {
		t.Error("expected different RDATA to not match")
	}
}

func TestCompare_ClassThenTypeThenRDATA(t *testing.T) {
	low := aRecord("a.local", [4]byte{1, 1, 1, 1}, 120, false)
	high := aRecord("a.local", [4]byte{2, 2, 2, 2}, 120, false)

	cmp, err := Compare(low, high)
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if cmp >= 0 {
		t.Errorf("Compare(low, high) = %d, want < 0", cmp)
	}

	cmp, err = Compare(high, low)
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if cmp <= 0 {
		t.Errorf("Compare(high, low) = %d, want > 0", cmp)
	}

	cmp, err = Compare(low, low)
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if cmp != 0 {
		t.Errorf("Compare(low, low) = %d, want 0", cmp)
	}
}

func TestCompare_TypeOrdersBeforeRDATA(t *testing.T) {
	a := aRecord("x.local", [4]byte{255, 255, 255, 255}, 120, false)
	p := ptrRecord("x.local", "z.local", 120)

	cmp, err := Compare(a, p)
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	// RecordTypeA (1) < RecordTypePTR (12), regardless of RDATA magnitude.
	if cmp >= 0 {
		t.Errorf("Compare(A, PTR) = %d, want < 0 (type dominates RDATA)", cmp)
	}
}

func TestCompareMultisets_FirstDifferingPairDecides(t *testing.T) {
	ours := []message.ResourceRecord{
		aRecord("a.local", [4]byte{1, 1, 1, 1}, 120, true),
	}
	theirs := []message.ResourceRecord{
		aRecord("a.local", [4]byte{2, 2, 2, 2}, 120, true),
	}

	cmp, err := CompareMultisets(ours, theirs)
	if err != nil {
		t.Fatalf("CompareMultisets returned error: %v", err)
	}
	if cmp >= 0 {
		t.Errorf("CompareMultisets(ours, theirs) = %d, want < 0 (theirs has larger RDATA)", cmp)
	}
}

func TestCompareMultisets_PrefixLoses(t *testing.T) {
	shared := aRecord("a.local", [4]byte{1, 1, 1, 1}, 120, true)
	extra := aRecord("b.local", [4]byte{1, 1, 1, 1}, 120, true)

	ours := []message.ResourceRecord{shared}
	theirs := []message.ResourceRecord{shared, extra}

	cmp, err := CompareMultisets(ours, theirs)
	if err != nil {
		t.Fatalf("CompareMultisets returned error: %v", err)
	}
	if cmp >= 0 {
		t.Errorf("CompareMultisets(prefix, longer) = %d, want < 0 (longer set wins)", cmp)
	}
}

func TestCompareMultisets_Equal(t *testing.T) {
	ours := []message.ResourceRecord{
		aRecord("a.local", [4]byte{1, 1, 1, 1}, 120, true),
		ptrRecord("b.local", "c.local", 4500),
	}
	theirs := []message.ResourceRecord{
		ptrRecord("b.local", "c.local", 4500),
		aRecord("a.local", [4]byte{1, 1, 1, 1}, 120, true),
	}

	cmp, err := CompareMultisets(ours, theirs)
	if err != nil {
		t.Fatalf("CompareMultisets returned error: %v", err)
	}
	if cmp != 0 {
		t.Errorf("CompareMultisets(equal sets, different order) = %d, want 0", cmp)
	}
}
