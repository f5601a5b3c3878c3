package querier

import (
	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/protocol"
)

// RecordType is a DNS record type number, re-exported from internal/protocol
// so callers never need to import the internal package directly.
type RecordType uint16

const (
	RecordTypeA    RecordType = RecordType(protocol.RecordTypeA)
	RecordTypeAAAA RecordType = RecordType(protocol.RecordTypeAAAA)
	RecordTypePTR  RecordType = RecordType(protocol.RecordTypePTR)
	RecordTypeTXT  RecordType = RecordType(protocol.RecordTypeTXT)
	RecordTypeSRV  RecordType = RecordType(protocol.RecordTypeSRV)
	RecordTypeNSEC RecordType = RecordType(protocol.RecordTypeNSEC)
	RecordTypeANY  RecordType = RecordType(protocol.RecordTypeANY)
)

// String returns the human-readable record type name (e.g. "PTR").
func (rt RecordType) String() string { return protocol.RecordType(rt).String() }

// Question is one entry of the question list a Querier was created with:
// a name and the record type to continuously ask for.
type Question struct {
	Name []string
	Type RecordType
}

// NewQuestion builds a Question from a dotted presentation name, e.g.
// NewQuestion("_http._tcp.local", RecordTypePTR).
func NewQuestion(name string, t RecordType) Question {
	return Question{Name: message.SplitLabels(name), Type: t}
}

func (q Question) wire() message.Question {
	return message.Question{Name: q.Name, QType: uint16(q.Type), QClass: uint16(protocol.ClassIN)}
}

// EventKind distinguishes the three cache transitions a Querier reports on
// its event stream.
type EventKind int

const (
	// Added reports a newly cached record, or a goodbye (TTL=0) record on
	// first receipt.
	Added EventKind = iota
	// Flushed reports a unique record displaced by a conflicting RDATA
	// update for the same (name, type, class).
	Flushed
	// Expired reports a record whose TTL (or, for a goodbye record, whose
	// 1-second grace period) has fully elapsed.
	Expired
)

// String returns the event kind's name, for logging.
func (k EventKind) String() string {
	switch k {
	case Added:
		return "Added"
	case Flushed:
		return "Flushed"
	case Expired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Event is a single cache transition emitted on the Querier's event stream.
type Event struct {
	Kind   EventKind
	Record message.ResourceRecord
}
