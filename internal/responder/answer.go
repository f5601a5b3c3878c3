package responder

import (
	"sort"

	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/protocol"
	"github.com/hollowpath/beacon/internal/records"
	"github.com/hollowpath/beacon/internal/transport"
)

// Answerer computes the answer set for inbound questions against a fixed
// set of proposed records.
type Answerer struct {
	proposed []ProposedRecord
	families map[transport.Family]bool
}

// NewAnswerer builds an Answerer. families lists the address families this
// responder actually has a transport for, used to decide whether an NSEC
// negative answer can be synthesized for A/AAAA questions (an IPv4-only
// responder never refutes AAAA).
func NewAnswerer(proposed []ProposedRecord, families []transport.Family) *Answerer {
	fs := make(map[transport.Family]bool, len(families))
	for _, f := range families {
		fs[f] = true
	}
	return &Answerer{proposed: proposed, families: fs}
}

// AnswerQuestion returns the answers (TTL-normalized) and their attached
// additional records for a single question, applying known-answer
// suppression against queryAnswers (the inbound message's own answer
// section).
func (a *Answerer) AnswerQuestion(q message.Question, queryAnswers []message.ResourceRecord) (answers, additionals []message.ResourceRecord) {
	ownsName := false
	var candidates []ProposedRecord

	for _, p := range a.proposed {
		if !message.EqualLabels(p.Record.Name, q.Name) {
			continue
		}
		ownsName = true
		if q.QType == uint16(protocol.RecordTypeANY) || p.Record.Type == q.QType {
			candidates = append(candidates, p)
		}
	}

	for _, c := range candidates {
		normalized := c.Record
		normalized.TTL = protocol.TTLForType(protocol.RecordType(normalized.Type))
		if suppressedByKnownAnswer(normalized, queryAnswers) {
			continue
		}
		answers = append(answers, normalized)
		additionals = append(additionals, c.Additional...)
	}

	if len(answers) == 0 && ownsName && q.QType != uint16(protocol.RecordTypeANY) {
		if nsec, ok := a.synthesizeNSEC(q.Name, q.QType); ok {
			answers = append(answers, nsec)
		}
	}

	return answers, additionals
}

// suppressedByKnownAnswer implements known-answer suppression
// (RFC 6762 §7.1):
// drop a candidate if the query's answer section already lists a matching
// record with TTL >= half of ours.
func suppressedByKnownAnswer(candidate message.ResourceRecord, known []message.ResourceRecord) bool {
	for _, k := range known {
		if !records.SameRecord(candidate, k) {
			continue
		}
		if k.TTL >= candidate.TTL/2 {
			return true
		}
	}
	return false
}

// synthesizeNSEC builds a negative-answer NSEC record listing the types we
// hold for name, unless qtype is one our transports can't prove the absence
// of (AAAA with no IPv6 transport, A with no IPv4 transport), in which case
// it returns ok=false and the caller sends no answer at all.
func (a *Answerer) synthesizeNSEC(name []string, qtype uint16) (message.ResourceRecord, bool) {
	if qtype == uint16(protocol.RecordTypeAAAA) && !a.families[transport.FamilyIPv6] {
		return message.ResourceRecord{}, false
	}
	if qtype == uint16(protocol.RecordTypeA) && !a.families[transport.FamilyIPv4] {
		return message.ResourceRecord{}, false
	}

	seen := make(map[uint16]bool)
	var types []uint16
	for _, p := range a.proposed {
		if !message.EqualLabels(p.Record.Name, name) {
			continue
		}
		if !seen[p.Record.Type] {
			seen[p.Record.Type] = true
			types = append(types, p.Record.Type)
		}
	}
	if len(types) == 0 {
		return message.ResourceRecord{}, false
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return message.ResourceRecord{
		Name:     name,
		Type:     uint16(protocol.RecordTypeNSEC),
		Class:    uint16(protocol.ClassIN),
		IsUnique: true,
		TTL:      protocol.TTLForType(protocol.RecordTypeNSEC),
		Data:     message.NSECData{NextDomain: name, Types: types},
	}, true
}

// dedupeAdditionals removes records already present in answers or already
// added, so a response's additional section doesn't repeat its own answers.
func dedupeAdditionals(answers, additionals []message.ResourceRecord) []message.ResourceRecord {
	var out []message.ResourceRecord
	seen := make(map[string]bool)
	key := func(rr message.ResourceRecord) string {
		canon, err := records.CanonicalRDATA(rr)
		if err != nil {
			return message.JoinLabels(rr.Name)
		}
		return message.JoinLabels(rr.Name) + "|" + string(rune(rr.Type)) + "|" + string(canon)
	}
	for _, a := range answers {
		seen[key(a)] = true
	}
	for _, rr := range additionals {
		k := key(rr)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, rr)
	}
	return out
}
