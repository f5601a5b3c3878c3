package message

import "fmt"

// RDATA is the tagged union of record-data payloads this module understands.
// It is a marker interface with no methods beyond rdataMarker; decoding and
// encoding live in parser.go/builder.go since both need access to the
// enclosing message buffer for name compression.
type RDATA interface {
	rdataMarker()
}

// AData is the RDATA of an A record: a 4-byte IPv4 address.
type AData struct {
	Address [4]byte
}

func (AData) rdataMarker() {}

// AAAAData is the RDATA of an AAAA record: a 16-byte IPv6 address.
type AAAAData struct {
	Address [16]byte
}

func (AAAAData) rdataMarker() {}

// PTRData is the RDATA of a PTR record: a single domain name.
type PTRData struct {
	Target []string
}

func (PTRData) rdataMarker() {}

// TXTValueKind distinguishes the three states a TXT attribute can be in on
// the wire (RFC 6763 §6.4): a bare key, a key with an explicit empty value,
// and a key with a byte-string value. Collapsing these to []byte+bool loses
// the no-value/empty-value distinction, so all three are preserved.
type TXTValueKind int

const (
	TXTNoValue TXTValueKind = iota
	TXTEmptyValue
	TXTByteValue
)

// TXTAttr is one attribute of a TXT record.
type TXTAttr struct {
	Key   string
	Kind  TXTValueKind
	Value []byte // only meaningful when Kind == TXTByteValue
}

// String renders the attribute the way it appears on the wire, for
// debugging and log output.
func (a TXTAttr) String() string {
	switch a.Kind {
	case TXTEmptyValue:
		return a.Key + "="
	case TXTByteValue:
		return fmt.Sprintf("%s=%s", a.Key, a.Value)
	default:
		return a.Key
	}
}

// TXTData is the RDATA of a TXT record: an ordered list of attributes.
type TXTData struct {
	Attrs []TXTAttr
}

func (TXTData) rdataMarker() {}

// SRVData is the RDATA of an SRV record (RFC 2782).
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   []string
}

func (SRVData) rdataMarker() {}

// NSECData is the RDATA of an NSEC record as mDNS uses it (RFC 6762 §6.1):
// the "next domain name" field is unused by mDNS and set to the record's own
// owner name, followed by a type bitmap. Only window block 0 is supported;
// bitmaps with a non-zero window or longer than 32 bytes decode as opaque
// (full 65,536-bit NSEC support is out of scope).
type NSECData struct {
	NextDomain []string
	Types      []uint16
}

func (NSECData) rdataMarker() {}

// OpaqueData is the RDATA fallback for any record type this module doesn't
// model explicitly, including malformed NSEC bitmaps.
type OpaqueData struct {
	RecordType uint16
	Raw        []byte
}

func (OpaqueData) rdataMarker() {}

// EncodeNSECBitmap packs a sorted list of present type numbers into an
// RFC 1035 §6.1.2-style window/length/bitmap triple for window block 0.
// Callers must ensure every type is < 256; mDNS never advertises NSEC
// coverage for larger type numbers.
func EncodeNSECBitmap(types []uint16) []byte {
	if len(types) == 0 {
		return nil
	}
	maxBit := uint16(0)
	for _, t := range types {
		if t > maxBit {
			maxBit = t
		}
	}
	bitmapLen := int(maxBit/8) + 1
	bitmap := make([]byte, bitmapLen)
	for _, t := range types {
		bitmap[t/8] |= 1 << (7 - (t % 8))
	}
	out := make([]byte, 2+bitmapLen)
	out[0] = 0 // window block 0
	out[1] = byte(bitmapLen)
	copy(out[2:], bitmap)
	return out
}

// DecodeNSECBitmap extracts present type numbers from a window/length/bitmap
// triple at window block 0. It returns ok=false (not an error) when the
// block isn't the simple single-window form this module supports, in which
// case the caller should fall back to OpaqueData.
func DecodeNSECBitmap(b []byte) (types []uint16, ok bool) {
	if len(b) < 2 {
		return nil, false
	}
	window := b[0]
	length := int(b[1])
	if window != 0 || length == 0 || length > 32 || len(b) < 2+length {
		return nil, false
	}
	bitmap := b[2 : 2+length]
	for i, byteVal := range bitmap {
		for bit := 0; bit < 8; bit++ {
			if byteVal&(1<<(7-bit)) != 0 {
				types = append(types, uint16(i*8+bit))
			}
		}
	}
	return types, true
}
