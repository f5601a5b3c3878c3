package message

import (
	"testing"

	"github.com/hollowpath/beacon/internal/protocol"
)

func TestParseRDATAWrongLengthA(t *testing.T) {
	raw := []byte{1, 2, 3} // only 3 bytes; A records need exactly 4
	if _, err := parseRDATA(raw, uint16(protocol.RecordTypeA), 0, 3); err == nil {
		t.Error("parseRDATA(A, 3 bytes) = nil error, want error")
	}
}

func TestParseResourceRecordRDLENGTHOverflow(t *testing.T) {
	raw := make([]byte, 12)
	raw = append(raw, 0) // root name
	raw = append(raw, 0, 1) // type A
	raw = append(raw, 0, 1) // class IN
	raw = append(raw, 0, 0, 0, 120) // TTL
	raw = append(raw, 0xFF, 0xFF) // RDLENGTH way larger than remaining bytes
	if _, _, err := parseResourceRecord(raw, 12); err == nil {
		t.Error("parseResourceRecord() with oversized RDLENGTH = nil error, want error")
	}
}

func TestParseTXTIgnoresZeroLengthStrings(t *testing.T) {
	// A single zero-length character-string, then a real one.
	rdata := []byte{0, 4, 'k', '=', 'v', 'v'}
	attrs, err := parseTXT(rdata)
	if err != nil {
		t.Fatalf("parseTXT() error = %v", err)
	}
	if len(attrs) != 1 || attrs[0].Key != "k" || string(attrs[0].Value) != "vv" {
		t.Errorf("parseTXT() = %+v, want one attr k=vv", attrs)
	}
}

func TestParseTXTTruncatedCharacterString(t *testing.T) {
	rdata := []byte{10, 'a', 'b'}
	if _, err := parseTXT(rdata); err == nil {
		t.Error("parseTXT() with truncated string = nil error, want error")
	}
}

func TestParseMessageUnknownRecordTypeIsOpaque(t *testing.T) {
	msg := &Message{
		Answers: []ResourceRecord{
			{Name: SplitLabels("printer.local"), Type: 999, Class: uint16(protocol.ClassIN), TTL: 60,
				Data: OpaqueData{RecordType: 999, Raw: []byte{1, 2, 3, 4}}},
		},
	}
	encoded, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage() error = %v", err)
	}
	decoded, err := ParseMessage(encoded)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	opaque, ok := decoded.Answers[0].Data.(OpaqueData)
	if !ok || opaque.RecordType != 999 || string(opaque.Raw) != "\x01\x02\x03\x04" {
		t.Errorf("decoded opaque record = %+v", decoded.Answers[0].Data)
	}
}
