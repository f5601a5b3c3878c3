// Package querier implements a continuous mDNS querier (RFC 6762 §5.2):
// given a fixed set of (name, type) questions, it keeps a live cache
// of answers fresh for as long as it runs, re-querying each record before
// its TTL expires and reporting Added/Flushed/Expired transitions on an
// event stream.
//
// # Quick start
//
//	transports := []transport.Transport{ipv4, ipv6}
//	q, err := querier.New([]querier.Question{
//	    querier.NewQuestion("_http._tcp.local", querier.RecordTypePTR),
//	}, transports)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer q.End()
//
//	for ev := range q.Events() {
//	    fmt.Printf("%s: %v\n", ev.Kind, ev.Record)
//	}
//
// # Cache semantics
//
// Unique records (cache-flush bit set, e.g. SRV/TXT/A/AAAA for a service
// instance) hold at most one entry per (name, type): a conflicting RDATA
// update emits Flushed for the old record followed by Added for the new
// one. Non-unique records (PTR) accumulate, each with its own independent
// re-query and expiry schedule. A record re-received with identical RDATA
// silently refreshes its timers without producing an event. A TTL=0
// ("goodbye") record is cached for a 1-second grace period and then
// reported Expired, per RFC 6762 §10.1.
//
// # Scheduling
//
// The first query fires after a random 20-120ms delay, the second one
// second later, and each subsequent query at double the previous interval
// up to a one-hour ceiling, per RFC 6762 §5.2. Questions already answered
// by a cached non-PTR record are skipped; a question another querier on
// the link was just seen asking is skipped for one round (passive
// duplicate suppression, RFC 6762 §7.3). Individual cache entries also
// carry their own 80/85/90/95%-of-TTL re-query timers, independent of the
// question-level schedule.
//
// # Concurrency
//
// Answers and Additional are safe to call from any goroutine. Everything
// else — inbound message handling, timer firing, outbound sends — is
// serialized onto a single goroutine, so the querier never
// needs a lock around its own decision-making.
package querier
