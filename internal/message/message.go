// Package message implements the DNS wire format (RFC 1035 §4) used by mDNS
// (RFC 6762) and DNS-SD (RFC 6763): header packing, label-pointer
// compression, and the six record types mDNS actually uses (A, AAAA, PTR,
// TXT, SRV, NSEC), with every other type number passed through as opaque
// RDATA.
package message

import (
	"github.com/hollowpath/beacon/internal/protocol"
)

// Header is the 12-byte DNS message header (RFC 1035 §4.1.1).
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// IsQuery reports whether the QR bit is clear (bit 15 of Flags).
func (h Header) IsQuery() bool { return h.Flags&protocol.FlagQR == 0 }

// IsResponse reports whether the QR bit is set.
func (h Header) IsResponse() bool { return h.Flags&protocol.FlagQR != 0 }

// RCode extracts the 4-bit response code (bits 0-3).
func (h Header) RCode() uint8 { return uint8(h.Flags & 0x000F) }

// Opcode extracts the 4-bit opcode (bits 11-14).
func (h Header) Opcode() uint8 { return uint8((h.Flags >> 11) & 0x0F) }

// SetFlag returns Flags with the given bit set or cleared.
func SetFlag(flags uint16, bit uint16, on bool) uint16 {
	if on {
		return flags | bit
	}
	return flags &^ bit
}

// Question is a single entry of the question section (RFC 1035 §4.1.2).
type Question struct {
	Name   []string
	QType  uint16
	QClass uint16
}

// ResourceRecord is a single answer/authority/additional section entry
// (RFC 1035 §4.1.3), generalized as a tagged union over Data's concrete
// type.
type ResourceRecord struct {
	Name     []string
	Type     uint16
	Class    uint16 // low 15 bits; IsUnique carries the cache-flush bit
	IsUnique bool
	TTL      uint32
	Data     RDATA
}

// ClassValue returns the record's class with the cache-flush bit folded in,
// as it appears on the wire.
func (rr ResourceRecord) ClassValue() uint16 {
	c := rr.Class &^ uint16(protocol.CacheFlushBit)
	if rr.IsUnique {
		c |= uint16(protocol.CacheFlushBit)
	}
	return c
}

// Message is a complete DNS message: a header plus four record sections.
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []ResourceRecord
	Authorities []ResourceRecord
	Additionals []ResourceRecord
}

// SyncCounts sets the header's section counts to match the actual number of
// entries in each section, so QDCOUNT/AN/NS/AR always equal len(section).
func (m *Message) SyncCounts() {
	m.Header.QDCount = uint16(len(m.Questions))
	m.Header.ANCount = uint16(len(m.Answers))
	m.Header.NSCount = uint16(len(m.Authorities))
	m.Header.ARCount = uint16(len(m.Additionals))
}
