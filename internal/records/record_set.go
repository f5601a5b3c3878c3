// Package records provides resource-record identity comparison and
// canonical re-encoding used by the responder's tie-break logic (RFC 6762
// §8.2) and by the querier's known-answer matching.
package records

import (
	"bytes"

	"github.com/hollowpath/beacon/internal/message"
)

// SameNameType reports whether a and b share a name and record type,
// independent of TTL or RDATA. Used to find conflicting or matching
// records within an authority or answer section.
func SameNameType(a, b message.ResourceRecord) bool {
	return message.EqualLabels(a.Name, b.Name) && a.Type == b.Type
}

// SameRecord reports whether a and b are identical for cache/suppression
// purposes: same name, type, and RDATA (TTL and the cache-flush bit do not
// participate in identity).
func SameRecord(a, b message.ResourceRecord) bool {
	if !SameNameType(a, b) {
		return false
	}
	ca, err := CanonicalRDATA(a)
	if err != nil {
		return false
	}
	cb, err := CanonicalRDATA(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// CanonicalRDATA re-encodes r's RDATA without name compression, as
// RFC 6762 §8.2's lexicographic record order requires: comparisons of RDATA
// octet sequences must be canonical, not dependent on where in a message
// the record happened to be encoded.
func CanonicalRDATA(r message.ResourceRecord) ([]byte, error) {
	return message.EncodeRDATACanonical(r.Data)
}

// Compare implements RFC 6762 §8.2's record order: class numerically, then
// type numerically, then RDATA as a canonical octet sequence (unsigned
// byte-by-byte, shorter sequence first on prefix equality). Returns <0 if a
// orders before b, 0 if equal, >0 if a orders after b.
func Compare(a, b message.ResourceRecord) (int, error) {
	if a.ClassValue() != b.ClassValue() {
		if a.ClassValue() < b.ClassValue() {
			return -1, nil
		}
		return 1, nil
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1, nil
		}
		return 1, nil
	}
	ca, err := CanonicalRDATA(a)
	if err != nil {
		return 0, err
	}
	cb, err := CanonicalRDATA(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ca, cb), nil
}

// SortRecords sorts records in place per RFC 6762 §8.2's record order,
// used to build a canonical multiset before a tie-break comparison.
func SortRecords(recs []message.ResourceRecord) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0; j-- {
			cmp, err := Compare(recs[j-1], recs[j])
			if err != nil || cmp <= 0 {
				break
			}
			recs[j-1], recs[j] = recs[j], recs[j-1]
		}
	}
}

// CompareMultisets implements the simultaneous-probe tie-break
// (RFC 6762 §8.2): both sides' conflicting records are sorted with Compare,
// then compared pairwise; the first
// differing pair decides. If one multiset is a prefix of the other, the
// longer one wins. Returns >0 if ours wins, <0 if theirs wins, 0 if equal
// (not a conflict).
func CompareMultisets(ours, theirs []message.ResourceRecord) (int, error) {
	a := append([]message.ResourceRecord(nil), ours...)
	b := append([]message.ResourceRecord(nil), theirs...)
	SortRecords(a)
	SortRecords(b)

	for i := 0; i < len(a) && i < len(b); i++ {
		cmp, err := Compare(a[i], b[i])
		if err != nil {
			return 0, err
		}
		if cmp != 0 {
			return cmp, nil
		}
	}
	return len(a) - len(b), nil
}
