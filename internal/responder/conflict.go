package responder

import (
	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/records"
)

// conflictingRecords returns the subset of proposed records that share
// (name, type) with a record in theirs, where both sides mark it unique —
// the trigger condition for a tie-break (RFC 6762 §8.2).
func conflictingRecords(proposed []ProposedRecord, theirs []message.ResourceRecord) (ours, theirSide []message.ResourceRecord) {
	for _, p := range proposed {
		if !p.Record.IsUnique {
			continue
		}
		for _, t := range theirs {
			if !t.IsUnique {
				continue
			}
			if records.SameNameType(p.Record, t) {
				ours = append(ours, p.Record)
				theirSide = append(theirSide, t)
				break
			}
		}
	}
	return ours, theirSide
}

// tieBreakResult describes the outcome of comparing our conflicting
// records against a peer's, per RFC 6762 §8.2's tie-break algorithm.
type tieBreakResult int

const (
	tieBreakNone tieBreakResult = iota // multisets equal: not a conflict
	tieBreakWin
	tieBreakLose
)

// evaluateTieBreak compares our proposed records against an authority
// section observed during probing, returning whether a conflict exists and
// who wins it.
func evaluateTieBreak(proposed []ProposedRecord, authority []message.ResourceRecord) (tieBreakResult, error) {
	ours, theirs := conflictingRecords(proposed, authority)
	if len(ours) == 0 {
		return tieBreakNone, nil
	}
	cmp, err := records.CompareMultisets(ours, theirs)
	if err != nil {
		return tieBreakNone, err
	}
	switch {
	case cmp > 0:
		return tieBreakWin, nil
	case cmp < 0:
		return tieBreakLose, nil
	default:
		return tieBreakNone, nil
	}
}

// findUniqueAnswerFor returns the first probed name for which answers holds
// a unique record, the RFC 6762 §8.1 "name taken" trigger.
func findUniqueAnswerFor(names [][]string, answers []message.ResourceRecord) ([]string, bool) {
	for _, name := range names {
		for _, a := range answers {
			if a.IsUnique && message.EqualLabels(a.Name, name) {
				return name, true
			}
		}
	}
	return nil, false
}

// conflictsWithProposed reports whether answer authoritatively conflicts
// with one of our proposed records: same name, same type, both unique,
// different RDATA (RFC 6762 §9).
func conflictsWithProposed(proposed []ProposedRecord, answer message.ResourceRecord) bool {
	if !answer.IsUnique {
		return false
	}
	for _, p := range proposed {
		if !p.Record.IsUnique {
			continue
		}
		if records.SameNameType(p.Record, answer) && !records.SameRecord(p.Record, answer) {
			return true
		}
	}
	return false
}

// matchesProposedGoodbye reports whether answer is the same record (name,
// type, RDATA) as one of ours but announced with TTL=0 — a premature
// goodbye we must defend by re-announcing (RFC 6762 §10.1).
func matchesProposedGoodbye(proposed []ProposedRecord, answer message.ResourceRecord) (ProposedRecord, bool) {
	if answer.TTL != 0 {
		return ProposedRecord{}, false
	}
	for _, p := range proposed {
		if records.SameRecord(p.Record, answer) {
			return p, true
		}
	}
	return ProposedRecord{}, false
}
