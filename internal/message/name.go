package message

import (
	"bytes"
	"strings"

	"github.com/hollowpath/beacon/internal/errors"
	"github.com/hollowpath/beacon/internal/protocol"
)

// JoinLabels renders a label sequence as a dotted presentation name, e.g.
// ["printer", "local"] -> "printer.local".
func JoinLabels(labels []string) string {
	return strings.Join(labels, ".")
}

// SplitLabels splits a dotted presentation name into labels. Service
// instance names (RFC 6763 §4.3) are a single label that may itself contain
// dots or spaces; callers that need that behavior build the label slice
// directly (see dnssd) rather than going through SplitLabels.
func SplitLabels(name string) []string {
	if name == "" {
		return nil
	}
	return strings.Split(name, ".")
}

// EqualLabels compares two label sequences per RFC 1035 §3.1's
// case-insensitive (but case-preserving) name comparison.
func EqualLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

func canonicalKey(labels []string) string {
	return strings.ToLower(JoinLabels(labels))
}

// ParseName decodes a DNS name starting at offset in msg, following
// compression pointers per RFC 1035 §4.1.4. Unlike a slice-local parser,
// this always walks the full message buffer, so a pointer embedded inside a
// record's RDATA can legally refer to any earlier absolute offset in the
// message, including one outside the record itself.
func ParseName(msg []byte, offset int) (labels []string, newOffset int, err error) {
	if offset < 0 || offset >= len(msg) {
		return nil, offset, &errors.WireFormatError{
			Operation: "parse name",
			Offset:    offset,
			Message:   "offset out of bounds",
		}
	}

	pos := offset
	jumps := 0
	jumped := false
	newOffset = offset

	for {
		if pos >= len(msg) {
			return nil, offset, &errors.WireFormatError{
				Operation: "parse name",
				Offset:    pos,
				Message:   "unexpected end of message while parsing name",
			}
		}

		length := msg[pos]

		if length&protocol.CompressionMask == protocol.CompressionMask {
			if pos+1 >= len(msg) {
				return nil, offset, &errors.WireFormatError{
					Operation: "parse name",
					Offset:    pos,
					Message:   "truncated compression pointer",
				}
			}
			pointerOffset := int(msg[pos]&^protocol.CompressionMask)<<8 | int(msg[pos+1])
			if pointerOffset >= pos {
				return nil, offset, &errors.WireFormatError{
					Operation: "parse name",
					Offset:    pos,
					Message:   "invalid compression pointer: points forward or at itself",
				}
			}
			if !jumped {
				newOffset = pos + 2
				jumped = true
			}
			pos = pointerOffset
			jumps++
			if jumps > protocol.MaxCompressionPointers {
				return nil, offset, &errors.WireFormatError{
					Operation: "parse name",
					Offset:    pos,
					Message:   "too many compression jumps (possible loop)",
				}
			}
			continue
		}

		if length == 0 {
			if !jumped {
				newOffset = pos + 1
			}
			break
		}

		if length > protocol.MaxLabelLength {
			return nil, offset, &errors.WireFormatError{
				Operation: "parse name",
				Offset:    pos,
				Message:   "label exceeds 63 bytes",
			}
		}
		if pos+1+int(length) > len(msg) {
			return nil, offset, &errors.WireFormatError{
				Operation: "parse name",
				Offset:    pos,
				Message:   "truncated label",
			}
		}

		labels = append(labels, string(msg[pos+1:pos+1+int(length)]))
		pos += 1 + int(length)
	}

	if len(JoinLabels(labels)) > protocol.MaxNameLength {
		return nil, offset, &errors.WireFormatError{
			Operation: "parse name",
			Offset:    offset,
			Message:   "name exceeds 255 bytes",
		}
	}

	return labels, newOffset, nil
}

// nameCompressor implements the encoder-side half of RFC 1035 §4.1.4: it
// remembers, for every label sequence written so far, the absolute byte
// offset where that sequence starts, so later names can point at the
// longest matching suffix instead of repeating labels.
type nameCompressor struct {
	offsets map[string]int
}

func newNameCompressor() *nameCompressor {
	return &nameCompressor{offsets: make(map[string]int)}
}

// writeName appends labels to buf, substituting a compression pointer for
// the longest suffix already seen, and records the position of every new
// label sequence this call writes for future callers to point back at.
func (c *nameCompressor) writeName(buf *bytes.Buffer, labels []string) error {
	for i := 0; i < len(labels); i++ {
		suffix := labels[i:]
		key := canonicalKey(suffix)

		if offset, ok := c.offsets[key]; ok {
			buf.WriteByte(protocol.CompressionMask | byte(offset>>8))
			buf.WriteByte(byte(offset))
			return nil
		}

		pos := buf.Len()
		if pos <= int(protocol.CompressionOffsetMask) {
			c.offsets[key] = pos
		}

		label := labels[i]
		if len(label) > protocol.MaxLabelLength {
			return &errors.ValidationError{
				Field:   "name",
				Value:   label,
				Message: "label exceeds 63 bytes",
			}
		}
		buf.WriteByte(byte(len(label)))
		buf.WriteString(label)
	}
	buf.WriteByte(0)
	return nil
}
