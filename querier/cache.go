package querier

import (
	"strings"
	"time"

	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/protocol"
	"github.com/hollowpath/beacon/internal/records"
)

// cacheKey identifies a (name, type) slot in the cache. Class is always IN
// so it doesn't participate. Multiple non-unique records (e.g.
// several PTR targets for one service type) can share a key; a unique
// record's key holds at most one entry at a time.
type cacheKey struct {
	name string
	typ  uint16
}

func keyFor(rr message.ResourceRecord) cacheKey {
	return cacheKey{name: strings.ToLower(message.JoinLabels(rr.Name)), typ: rr.Type}
}

func keyForQuestion(q Question) cacheKey {
	return cacheKey{name: strings.ToLower(message.JoinLabels(q.Name)), typ: uint16(q.Type)}
}

// cacheAction distinguishes what a fired per-entry timer asks the run loop
// to do.
type cacheAction int

const (
	actionReQuery cacheAction = iota
	actionExpire
)

// timerEvent is posted onto the Querier's timer channel when a per-entry
// re-query or expiry timer fires. entry carries the pointer identity of the
// cacheEntry the timer was scheduled for, so a stale timer belonging to an
// already-replaced or already-expired entry can be recognized and ignored;
// re-query is driven by timers the cache owns, never by the record itself.
type timerEvent struct {
	action cacheAction
	key    cacheKey
	entry  *cacheEntry
}

// cacheEntry is one cached record together with the timers that govern its
// lifecycle.
type cacheEntry struct {
	record   message.ResourceRecord
	expireAt time.Time
	timers   []*time.Timer
}

// stopTimers cancels every timer this entry owns. Already-fired timers may
// still have a pending send on q.timerC; the entry-pointer identity check in
// the consumer discards those as stale.
func (e *cacheEntry) stopTimers() {
	for _, t := range e.timers {
		t.Stop()
	}
}

// scheduleTimers arms the re-query timers (80/85/90/95% of TTL, jittered)
// and the final expiry timer (100% of TTL) for a freshly inserted entry.
func (q *Querier) scheduleTimers(key cacheKey, entry *cacheEntry, ttl uint32) {
	if ttl == 0 {
		return
	}
	exp := records.NewExpiry(ttl)
	for _, at := range exp.ReQueryTimes(q.jitterPct) {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		entry.timers = append(entry.timers, time.AfterFunc(d, func() {
			q.postTimerEvent(timerEvent{action: actionReQuery, key: key, entry: entry})
		}))
	}
	entry.timers = append(entry.timers, time.AfterFunc(time.Duration(ttl)*time.Second, func() {
		q.postTimerEvent(timerEvent{action: actionExpire, key: key, entry: entry})
	}))
}

// scheduleGoodbyeExpiry arms the single 1-second expiry timer a TTL=0
// ("goodbye") record gets instead of the normal re-query schedule
// (RFC 6762 §10.1).
func (q *Querier) scheduleGoodbyeExpiry(key cacheKey, entry *cacheEntry) {
	entry.timers = append(entry.timers, time.AfterFunc(protocol.TTLGoodbye, func() {
		q.postTimerEvent(timerEvent{action: actionExpire, key: key, entry: entry})
	}))
}

func (q *Querier) postTimerEvent(ev timerEvent) {
	select {
	case q.timerC <- ev:
	case <-q.stopC:
	}
}

func (q *Querier) jitterPct(maxPct int) int {
	if maxPct <= 0 {
		return 0
	}
	return q.rng.Intn(maxPct + 1)
}

// insertAnswer applies the cache-flush discipline (RFC 6762 §10.2) for one
// answer record and reports the events it produced.
func (q *Querier) insertAnswer(rr message.ResourceRecord) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := keyFor(rr)

	if rr.TTL == 0 {
		return q.insertGoodbyeLocked(key, rr)
	}
	if rr.IsUnique {
		return q.insertUniqueLocked(key, rr)
	}
	return q.insertSharedLocked(key, rr)
}

func (q *Querier) insertGoodbyeLocked(key cacheKey, rr message.ResourceRecord) []Event {
	existing := q.cache[key]
	for _, e := range existing {
		if records.SameRecord(e.record, rr) {
			e.stopTimers()
		}
	}
	kept := existing[:0:0]
	for _, e := range existing {
		if !records.SameRecord(e.record, rr) {
			kept = append(kept, e)
		}
	}
	entry := &cacheEntry{record: rr, expireAt: time.Now().Add(protocol.TTLGoodbye)}
	q.scheduleGoodbyeExpiry(key, entry)
	q.cache[key] = append(kept, entry)
	return []Event{{Kind: Added, Record: rr}}
}

func (q *Querier) insertUniqueLocked(key cacheKey, rr message.ResourceRecord) []Event {
	existing := q.cache[key]
	for i, e := range existing {
		if !records.SameNameType(e.record, rr) {
			continue
		}
		if records.SameRecord(e.record, rr) {
			// identical RDATA: refresh the existing entry's lifetime rather
			// than emitting a duplicate event.
			e.stopTimers()
			e.timers = nil
			e.record = rr
			e.expireAt = time.Now().Add(time.Duration(rr.TTL) * time.Second)
			q.scheduleTimers(key, e, rr.TTL)
			return nil
		}
		e.stopTimers()
		flushed := e.record
		rest := append(existing[:i:i], existing[i+1:]...)
		entry := &cacheEntry{record: rr, expireAt: time.Now().Add(time.Duration(rr.TTL) * time.Second)}
		q.scheduleTimers(key, entry, rr.TTL)
		q.cache[key] = append(rest, entry)
		return []Event{{Kind: Flushed, Record: flushed}, {Kind: Added, Record: rr}}
	}
	entry := &cacheEntry{record: rr, expireAt: time.Now().Add(time.Duration(rr.TTL) * time.Second)}
	q.scheduleTimers(key, entry, rr.TTL)
	q.cache[key] = append(existing, entry)
	return []Event{{Kind: Added, Record: rr}}
}

func (q *Querier) insertSharedLocked(key cacheKey, rr message.ResourceRecord) []Event {
	existing := q.cache[key]
	for _, e := range existing {
		if records.SameRecord(e.record, rr) {
			e.stopTimers()
			e.timers = nil
			e.record = rr
			e.expireAt = time.Now().Add(time.Duration(rr.TTL) * time.Second)
			q.scheduleTimers(key, e, rr.TTL)
			return nil
		}
	}
	entry := &cacheEntry{record: rr, expireAt: time.Now().Add(time.Duration(rr.TTL) * time.Second)}
	q.scheduleTimers(key, entry, rr.TTL)
	q.cache[key] = append(existing, entry)
	return []Event{{Kind: Added, Record: rr}}
}

// handleTimerEvent processes one fired re-query or expiry timer, ignoring it
// if the entry it names is no longer the one stored at that key (a stale
// timer from a record already flushed or expired).
func (q *Querier) handleTimerEvent(ev timerEvent) []Event {
	q.mu.Lock()
	found := false
	for _, e := range q.cache[ev.key] {
		if e == ev.entry {
			found = true
			break
		}
	}
	q.mu.Unlock()
	if !found {
		return nil
	}

	switch ev.action {
	case actionReQuery:
		q.sendForKey(ev.key)
		return nil
	case actionExpire:
		q.mu.Lock()
		var removed message.ResourceRecord
		kept := q.cache[ev.key][:0:0]
		for _, e := range q.cache[ev.key] {
			if e == ev.entry {
				removed = e.record
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(q.cache, ev.key)
		} else {
			q.cache[ev.key] = kept
		}
		q.mu.Unlock()
		q.sendForKey(ev.key)
		return []Event{{Kind: Expired, Record: removed}}
	}
	return nil
}

// hasAnswerLocked reports whether the cache already holds at least one
// answer for the given question. Callers hold q.mu.
func (q *Querier) hasAnswerLocked(quest Question) bool {
	return len(q.cache[keyForQuestion(quest)]) > 0
}

// knownAnswers gathers every cached record matching any of the surviving
// questions, for known-answer suppression (RFC 6762 §7.1).
func (q *Querier) knownAnswers(questions []Question) []message.ResourceRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []message.ResourceRecord
	seen := make(map[cacheKey]bool)
	for _, quest := range questions {
		k := keyForQuestion(quest)
		if seen[k] {
			continue
		}
		seen[k] = true
		for _, e := range q.cache[k] {
			out = append(out, e.record)
		}
	}
	return out
}

// Answers returns a snapshot of every record currently cached.
func (q *Querier) Answers() []message.ResourceRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []message.ResourceRecord
	for _, entries := range q.cache {
		for _, e := range entries {
			out = append(out, e.record)
		}
	}
	return out
}

// Additional returns a snapshot of the auxiliary additional-section store:
// records seen alongside matched answers but never cached as answers
// themselves.
func (q *Querier) Additional() []message.ResourceRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []message.ResourceRecord
	for _, k := range q.additional.Keys() {
		if rr, ok := q.additional.Peek(k); ok {
			out = append(out, rr)
		}
	}
	return out
}
