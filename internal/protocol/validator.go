package protocol

import (
	"fmt"
	"strings"

	"github.com/hollowpath/beacon/internal/errors"
)

// ValidateName validates a plain DNS hostname per RFC 1035 §3.1: total wire
// length ≤255 bytes, each label ≤63 bytes, labels drawn from [A-Za-z0-9-_]
// and not hyphen-bounded. This applies to hostnames (A/AAAA owners, SRV/PTR
// targets) — DNS-SD service instance names follow looser rules and are
// validated separately by ValidateInstanceLabel, since RFC 6763 §4.3 permits
// arbitrary printable UTF-8 (including spaces) in the instance portion of a
// service name.
func ValidateName(name string) error {
	if name == "" {
		return &errors.ValidationError{Field: "name", Value: name, Message: "name cannot be empty"}
	}

	trimmed := strings.TrimSuffix(name, ".")
	labels := strings.Split(trimmed, ".")

	wireLength := 1 // root terminator
	for _, label := range labels {
		wireLength += 1 + len(label)
	}
	if wireLength > MaxNameLength {
		return &errors.ValidationError{
			Field: "name", Value: name,
			Message: fmt.Sprintf("name exceeds maximum length %d bytes (wire format: %d bytes) per RFC 1035 §3.1", MaxNameLength, wireLength),
		}
	}
	for i, label := range labels {
		if err := validateLabel(label, i); err != nil {
			return &errors.ValidationError{Field: "name", Value: name, Message: err.Error()}
		}
	}
	return nil
}

func validateLabel(label string, position int) error {
	if label == "" {
		return fmt.Errorf("empty label at position %d (consecutive dots)", position)
	}
	if len(label) > MaxLabelLength {
		return fmt.Errorf("label %q exceeds maximum length 63 bytes per RFC 1035 §3.1", label)
	}
	if strings.HasPrefix(label, "-") {
		return fmt.Errorf("label %q starts with hyphen (invalid per RFC 1035 §3.1)", label)
	}
	if strings.HasSuffix(label, "-") {
		return fmt.Errorf("label %q ends with hyphen (invalid per RFC 1035 §3.1)", label)
	}
	for i, ch := range label {
		if !isValidDNSChar(ch) {
			return fmt.Errorf("invalid character %q in label %q (position %d)", ch, label, i)
		}
	}
	return nil
}

// isValidDNSChar reports whether ch is valid in a plain DNS label:
// [A-Za-z0-9-_], underscore allowed for mDNS/DNS-SD type labels
// (e.g. "_http._tcp.local").
func isValidDNSChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' ||
		ch == '_'
}

// ValidateInstanceLabel validates a DNS-SD service instance name per
// RFC 6763 §4.3: it checks only that the name is non-empty and at most 63
// bytes once encoded. The content is not inspected: UTF-8 validity and
// printability are not checked, and spaces, apostrophes, and other
// punctuation are accepted ("Bob's Printer" is a valid instance name).
func ValidateInstanceLabel(label string) error {
	if label == "" {
		return &errors.ValidationError{Field: "instance", Value: label, Message: "instance name cannot be empty"}
	}
	if len(label) > MaxLabelLength {
		return &errors.ValidationError{
			Field: "instance", Value: label,
			Message: fmt.Sprintf("instance name exceeds maximum label length %d bytes per RFC 6763 §4.3", MaxLabelLength),
		}
	}
	return nil
}

// ValidateRecordType reports whether recordType is one of the six record
// types this module gives structured RDATA to, or the ANY pseudo-type used
// in probe queries.
func ValidateRecordType(recordType uint16) error {
	rt := RecordType(recordType)
	if !rt.IsKnown() && rt != RecordTypeANY {
		return &errors.ValidationError{
			Field: "recordType", Value: recordType,
			Message: fmt.Sprintf("unsupported record type %d", recordType),
		}
	}
	return nil
}

// ValidateResponse validates DNS response header flags per RFC 6762 §18:
// responses must have QR=1, OPCODE=0, and RCODE=0; mDNS responders MUST
// silently ignore anything else.
func ValidateResponse(flags uint16) error {
	qr := (flags & FlagQR) >> 15
	if qr != 1 {
		return &errors.ValidationError{
			Field: "flags", Value: flags,
			Message: fmt.Sprintf("QR bit is %d, expected 1 per RFC 6762 §18.2 (flags: 0x%04X)", qr, flags),
		}
	}
	opcode := (flags >> 11) & 0x0F
	if opcode != OpcodeQuery {
		return &errors.ValidationError{
			Field: "flags", Value: flags,
			Message: fmt.Sprintf("OPCODE is %d, expected %d per RFC 6762 §18.3 (flags: 0x%04X)", opcode, OpcodeQuery, flags),
		}
	}
	rcode := flags & 0x000F
	if rcode != RCodeOK {
		return &errors.ValidationError{
			Field: "flags", Value: flags,
			Message: fmt.Sprintf("RCODE is %d, expected %d per RFC 6762 §18.11 (flags: 0x%04X)", rcode, RCodeOK, flags),
		}
	}
	return nil
}
