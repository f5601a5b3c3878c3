package message

import (
	"encoding/binary"
	"fmt"

	"github.com/hollowpath/beacon/internal/errors"
	"github.com/hollowpath/beacon/internal/protocol"
)

// ParseMessage decodes a complete DNS message from a raw datagram.
func ParseMessage(raw []byte) (*Message, error) {
	if len(raw) < 12 {
		return nil, &errors.WireFormatError{
			Operation: "parse header",
			Offset:    0,
			Message:   "message shorter than 12-byte header",
		}
	}

	header := Header{
		ID:      binary.BigEndian.Uint16(raw[0:2]),
		Flags:   binary.BigEndian.Uint16(raw[2:4]),
		QDCount: binary.BigEndian.Uint16(raw[4:6]),
		ANCount: binary.BigEndian.Uint16(raw[6:8]),
		NSCount: binary.BigEndian.Uint16(raw[8:10]),
		ARCount: binary.BigEndian.Uint16(raw[10:12]),
	}

	msg := &Message{Header: header}
	offset := 12

	for i := 0; i < int(header.QDCount); i++ {
		q, next, err := parseQuestion(raw, offset)
		if err != nil {
			return nil, err
		}
		msg.Questions = append(msg.Questions, q)
		offset = next
	}

	sections := []struct {
		count int
		dst   *[]ResourceRecord
	}{
		{int(header.ANCount), &msg.Answers},
		{int(header.NSCount), &msg.Authorities},
		{int(header.ARCount), &msg.Additionals},
	}
	for _, sec := range sections {
		for i := 0; i < sec.count; i++ {
			rr, next, err := parseResourceRecord(raw, offset)
			if err != nil {
				return nil, err
			}
			*sec.dst = append(*sec.dst, rr)
			offset = next
		}
	}

	return msg, nil
}

func parseQuestion(raw []byte, offset int) (Question, int, error) {
	labels, offset, err := ParseName(raw, offset)
	if err != nil {
		return Question{}, offset, err
	}
	if offset+4 > len(raw) {
		return Question{}, offset, &errors.WireFormatError{
			Operation: "parse question",
			Offset:    offset,
			Message:   "truncated question section",
		}
	}
	qtype := binary.BigEndian.Uint16(raw[offset : offset+2])
	qclass := binary.BigEndian.Uint16(raw[offset+2 : offset+4])
	return Question{Name: labels, QType: qtype, QClass: qclass}, offset + 4, nil
}

func parseResourceRecord(raw []byte, offset int) (ResourceRecord, int, error) {
	labels, offset, err := ParseName(raw, offset)
	if err != nil {
		return ResourceRecord{}, offset, err
	}
	if offset+10 > len(raw) {
		return ResourceRecord{}, offset, &errors.WireFormatError{
			Operation: "parse resource record",
			Offset:    offset,
			Message:   "truncated record header",
		}
	}

	rtype := binary.BigEndian.Uint16(raw[offset : offset+2])
	rawClass := binary.BigEndian.Uint16(raw[offset+2 : offset+4])
	ttl := binary.BigEndian.Uint32(raw[offset+4 : offset+8])
	rdlength := binary.BigEndian.Uint16(raw[offset+8 : offset+10])
	rdataStart := offset + 10
	rdataEnd := rdataStart + int(rdlength)
	if rdataEnd > len(raw) {
		return ResourceRecord{}, offset, &errors.WireFormatError{
			Operation: "parse resource record",
			Offset:    offset,
			Message:   "RDLENGTH exceeds remaining message",
		}
	}

	isUnique := rawClass&uint16(protocol.CacheFlushBit) != 0
	class := rawClass &^ uint16(protocol.CacheFlushBit)

	data, err := parseRDATA(raw, rtype, rdataStart, rdataEnd)
	if err != nil {
		return ResourceRecord{}, offset, err
	}

	rr := ResourceRecord{
		Name:     labels,
		Type:     rtype,
		Class:    class,
		IsUnique: isUnique,
		TTL:      ttl,
		Data:     data,
	}
	return rr, rdataEnd, nil
}

// parseRDATA dispatches on record type and decodes the payload. Names
// embedded in RDATA (PTR's target, SRV's target, NSEC's next-domain) are
// parsed against the full message buffer at their absolute offset, not a
// slice of just the RDATA, so a compression pointer inside RDATA can
// legally reference any earlier part of the message.
func parseRDATA(raw []byte, rtype uint16, start, end int) (RDATA, error) {
	switch protocol.RecordType(rtype) {
	case protocol.RecordTypeA:
		if end-start != 4 {
			return nil, rdataLengthError("A", start, end-start, 4)
		}
		var addr [4]byte
		copy(addr[:], raw[start:end])
		return AData{Address: addr}, nil

	case protocol.RecordTypeAAAA:
		if end-start != 16 {
			return nil, rdataLengthError("AAAA", start, end-start, 16)
		}
		var addr [16]byte
		copy(addr[:], raw[start:end])
		return AAAAData{Address: addr}, nil

	case protocol.RecordTypePTR:
		labels, next, err := ParseName(raw, start)
		if err != nil {
			return nil, err
		}
		if next > end {
			return nil, rdataOverrunError("PTR", start)
		}
		return PTRData{Target: labels}, nil

	case protocol.RecordTypeTXT:
		attrs, err := parseTXT(raw[start:end])
		if err != nil {
			return nil, err
		}
		return TXTData{Attrs: attrs}, nil

	case protocol.RecordTypeSRV:
		if end-start < 6 {
			return nil, rdataLengthError("SRV", start, end-start, 6)
		}
		priority := binary.BigEndian.Uint16(raw[start : start+2])
		weight := binary.BigEndian.Uint16(raw[start+2 : start+4])
		port := binary.BigEndian.Uint16(raw[start+4 : start+6])
		labels, next, err := ParseName(raw, start+6)
		if err != nil {
			return nil, err
		}
		if next > end {
			return nil, rdataOverrunError("SRV", start)
		}
		return SRVData{Priority: priority, Weight: weight, Port: port, Target: labels}, nil

	case protocol.RecordTypeNSEC:
		labels, next, err := ParseName(raw, start)
		if err != nil {
			return nil, err
		}
		if next > end {
			return nil, rdataOverrunError("NSEC", start)
		}
		if types, ok := DecodeNSECBitmap(raw[next:end]); ok {
			return NSECData{NextDomain: labels, Types: types}, nil
		}
		data := append([]byte(nil), raw[start:end]...)
		return OpaqueData{RecordType: rtype, Raw: data}, nil

	default:
		data := append([]byte(nil), raw[start:end]...)
		return OpaqueData{RecordType: rtype, Raw: data}, nil
	}
}

func parseTXT(rdata []byte) ([]TXTAttr, error) {
	var attrs []TXTAttr
	pos := 0
	for pos < len(rdata) {
		length := int(rdata[pos])
		pos++
		if pos+length > len(rdata) {
			return nil, &errors.WireFormatError{
				Operation: "parse TXT",
				Offset:    pos,
				Message:   "truncated TXT character-string",
			}
		}
		chunk := rdata[pos : pos+length]
		pos += length

		if len(chunk) == 0 {
			// A zero-length character-string is a degenerate TXT entry with
			// no key at all; RFC 6763 §6.1 says it MUST be ignored.
			continue
		}

		eq := -1
		for i, b := range chunk {
			if b == '=' {
				eq = i
				break
			}
		}
		switch {
		case eq < 0:
			attrs = append(attrs, TXTAttr{Key: string(chunk), Kind: TXTNoValue})
		case eq == len(chunk)-1:
			attrs = append(attrs, TXTAttr{Key: string(chunk[:eq]), Kind: TXTEmptyValue})
		default:
			value := append([]byte(nil), chunk[eq+1:]...)
			attrs = append(attrs, TXTAttr{Key: string(chunk[:eq]), Kind: TXTByteValue, Value: value})
		}
	}
	return attrs, nil
}

func rdataLengthError(kind string, offset, got, want int) error {
	return &errors.WireFormatError{
		Operation: "parse " + kind + " RDATA",
		Offset:    offset,
		Message:   fmt.Sprintf("RDATA length %d, want %d", got, want),
	}
}

func rdataOverrunError(kind string, offset int) error {
	return &errors.WireFormatError{
		Operation: "parse " + kind + " RDATA",
		Offset:    offset,
		Message:   "embedded name extends past RDLENGTH",
	}
}
