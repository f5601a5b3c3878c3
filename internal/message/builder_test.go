package message

import (
	"bytes"
	"testing"

	"github.com/hollowpath/beacon/internal/protocol"
)

func TestEncodeTXTEmptyAttrsWritesZeroLengthString(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := encodeTXT(buf, nil); err != nil {
		t.Fatalf("encodeTXT(nil) error = %v", err)
	}
	got := buf.Bytes()
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("encodeTXT(nil) = %v, want single zero byte", got)
	}
}

func TestEncodeTXTRejectsOversizedCharacterString(t *testing.T) {
	value := make([]byte, 260)
	attrs := []TXTAttr{{Key: "k", Kind: TXTByteValue, Value: value}}
	buf := &bytes.Buffer{}
	if err := encodeTXT(buf, attrs); err == nil {
		t.Error("encodeTXT() with 260-byte value = nil error, want error")
	}
}

func TestEncodeMessageRejectsOversizedRDATA(t *testing.T) {
	msg := &Message{
		Answers: []ResourceRecord{
			{
				Name:  SplitLabels("printer.local"),
				Type:  999,
				Class: uint16(protocol.ClassIN),
				TTL:   60,
				Data:  OpaqueData{RecordType: 999, Raw: make([]byte, 70000)},
			},
		},
	}
	if _, err := EncodeMessage(msg); err == nil {
		t.Error("EncodeMessage() with 70000-byte RDATA = nil error, want error")
	}
}
