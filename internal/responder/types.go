// Package responder implements the probe → announce → respond → goodbye
// state machine of RFC 6762 §8-10: a single invocation claims a
// set of proposed records, defends them against conflicting probes and
// announcements, answers matching queries (with aggregation, per-record
// rate limiting, and NSEC negative answers), and withdraws them on
// cancellation.
package responder

import (
	"github.com/hollowpath/beacon/internal/message"
)

// ProposedRecord is one record this responder wants to publish, plus the
// records to attach as "additional" whenever an answer includes it
// (RFC 6763 §12).
type ProposedRecord struct {
	Record     message.ResourceRecord
	Additional []message.ResourceRecord
}

// Phase is the responder's current lifecycle stage.
type Phase int

const (
	PhaseProbing Phase = iota
	PhaseAnnouncing
	PhaseResponding
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseProbing:
		return "probing"
	case PhaseAnnouncing:
		return "announcing"
	case PhaseResponding:
		return "responding"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// uniqueNames returns the distinct owner names among proposed records, in
// first-seen order, for the probe question set (RFC 6762 §8.1: one ANY
// question per distinct name being probed).
func uniqueNames(proposed []ProposedRecord) [][]string {
	var names [][]string
	seen := make(map[string]bool)
	for _, p := range proposed {
		key := message.JoinLabels(p.Record.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, p.Record.Name)
	}
	return names
}
