package message

import (
	"bytes"
	"encoding/binary"

	"github.com/hollowpath/beacon/internal/errors"
)

// EncodeMessage serializes a Message to wire format, compressing names
// across the question and record sections with a single shared suffix
// table: a name in an answer that repeats a name from the question (or an
// earlier answer) is written as a two-byte pointer instead of being spelled
// out again.
func EncodeMessage(msg *Message) ([]byte, error) {
	msg.SyncCounts()

	buf := &bytes.Buffer{}
	buf.Grow(256)

	var header [12]byte
	binary.BigEndian.PutUint16(header[0:2], msg.Header.ID)
	binary.BigEndian.PutUint16(header[2:4], msg.Header.Flags)
	binary.BigEndian.PutUint16(header[4:6], msg.Header.QDCount)
	binary.BigEndian.PutUint16(header[6:8], msg.Header.ANCount)
	binary.BigEndian.PutUint16(header[8:10], msg.Header.NSCount)
	binary.BigEndian.PutUint16(header[10:12], msg.Header.ARCount)
	buf.Write(header[:])

	compressor := newNameCompressor()

	for _, q := range msg.Questions {
		if err := compressor.writeName(buf, q.Name); err != nil {
			return nil, err
		}
		var fields [4]byte
		binary.BigEndian.PutUint16(fields[0:2], q.QType)
		binary.BigEndian.PutUint16(fields[2:4], q.QClass)
		buf.Write(fields[:])
	}

	for _, section := range [][]ResourceRecord{msg.Answers, msg.Authorities, msg.Additionals} {
		for _, rr := range section {
			if err := encodeResourceRecord(buf, compressor, rr); err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}

// EncodeRDATACanonical encodes data on a fresh buffer with a fresh
// compressor, so any embedded name is spelled out in full rather than
// pointer-compressed. RFC 6762 §8.2's tie-break record order requires RDATA
// be compared as a canonical octet sequence independent of where in a
// message it was originally encoded.
func EncodeRDATACanonical(data RDATA) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeRDATA(buf, newNameCompressor(), data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeResourceRecord(buf *bytes.Buffer, compressor *nameCompressor, rr ResourceRecord) error {
	if err := compressor.writeName(buf, rr.Name); err != nil {
		return err
	}

	var fixed [8]byte
	binary.BigEndian.PutUint16(fixed[0:2], rr.Type)
	binary.BigEndian.PutUint16(fixed[2:4], rr.ClassValue())
	binary.BigEndian.PutUint32(fixed[4:8], rr.TTL)
	buf.Write(fixed[:])

	// RDATA is written directly into buf (not a scratch buffer) so that any
	// name the compressor records while encoding it (e.g. a PTR target)
	// lands at its true absolute offset in the message, letting later
	// records point back at it. RDLENGTH is unknown until after encoding, so
	// we reserve two bytes and backpatch them through buf.Bytes(), which
	// aliases the same underlying array as long as nothing is read from buf
	// first (it never is).
	rdlengthPos := buf.Len()
	buf.Write([]byte{0, 0})
	rdataStart := buf.Len()

	if err := encodeRDATA(buf, compressor, rr.Data); err != nil {
		return err
	}

	rdataLen := buf.Len() - rdataStart
	if rdataLen > 0xFFFF {
		return &errors.ValidationError{
			Field:   "rdata",
			Message: "RDATA exceeds 65535 bytes",
		}
	}
	binary.BigEndian.PutUint16(buf.Bytes()[rdlengthPos:rdlengthPos+2], uint16(rdataLen))
	return nil
}

// encodeRDATA writes a record's payload directly into the message buffer.
func encodeRDATA(buf *bytes.Buffer, compressor *nameCompressor, data RDATA) error {
	switch d := data.(type) {
	case AData:
		buf.Write(d.Address[:])
		return nil

	case AAAAData:
		buf.Write(d.Address[:])
		return nil

	case PTRData:
		return compressor.writeName(buf, d.Target)

	case TXTData:
		return encodeTXT(buf, d.Attrs)

	case SRVData:
		var fixed [6]byte
		binary.BigEndian.PutUint16(fixed[0:2], d.Priority)
		binary.BigEndian.PutUint16(fixed[2:4], d.Weight)
		binary.BigEndian.PutUint16(fixed[4:6], d.Port)
		buf.Write(fixed[:])
		return compressor.writeName(buf, d.Target)

	case NSECData:
		if err := compressor.writeName(buf, d.NextDomain); err != nil {
			return err
		}
		buf.Write(EncodeNSECBitmap(d.Types))
		return nil

	case OpaqueData:
		buf.Write(d.Raw)
		return nil

	default:
		return &errors.ValidationError{
			Field:   "rdata",
			Message: "unknown RDATA type",
		}
	}
}

func encodeTXT(buf *bytes.Buffer, attrs []TXTAttr) error {
	if len(attrs) == 0 {
		// RFC 6763 §6.1: a TXT record with no attributes is written as a
		// single zero-length character-string rather than empty RDATA.
		buf.WriteByte(0)
		return nil
	}
	for _, a := range attrs {
		var chunk []byte
		switch a.Kind {
		case TXTNoValue:
			chunk = []byte(a.Key)
		case TXTEmptyValue:
			chunk = []byte(a.Key + "=")
		case TXTByteValue:
			chunk = append([]byte(a.Key+"="), a.Value...)
		}
		if len(chunk) > 255 {
			return &errors.ValidationError{
				Field:   "txt",
				Value:   a.Key,
				Message: "TXT character-string exceeds 255 bytes",
			}
		}
		buf.WriteByte(byte(len(chunk)))
		buf.Write(chunk)
	}
	return nil
}
