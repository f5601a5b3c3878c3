package responder

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/hollowpath/beacon/internal/errors"
	"github.com/hollowpath/beacon/internal/mcast"
	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/protocol"
	"github.com/hollowpath/beacon/internal/records"
	"github.com/hollowpath/beacon/internal/transport"
)

// Hub is the subset of *mcast.Hub the responder depends on; *mcast.Hub
// satisfies it directly.
type Hub interface {
	Send(ctx context.Context, msg *message.Message, family transport.Family, dest net.Addr) error
	Families() []transport.Family
}

type timing struct {
	probeInterval        time.Duration
	probeCount           int
	probeInitialDelayMax time.Duration
	announceInterval     time.Duration
	announceCount        int
	aggregationMin       time.Duration
	aggregationMax       time.Duration
	recentlySentWindow   time.Duration
}

func defaultTiming() timing {
	return timing{
		probeInterval:        protocol.ProbeInterval,
		probeCount:           protocol.ProbeCount,
		probeInitialDelayMax: protocol.ProbeInitialDelayMax,
		announceInterval:     protocol.AnnounceInterval,
		announceCount:        protocol.AnnounceCount,
		aggregationMin:       protocol.AggregationDelayMin,
		aggregationMax:       protocol.AggregationDelayMax,
		recentlySentWindow:   protocol.RecentlySentWindow,
	}
}

// Option configures a Machine's timing, overriding the RFC 6762 defaults
// (tests use this to shrink the probe/announce windows).
type Option func(*Machine)

func WithProbeInterval(d time.Duration) Option {
	return func(m *Machine) { m.t.probeInterval = d }
}

func WithAnnounceInterval(d time.Duration) Option {
	return func(m *Machine) { m.t.announceInterval = d }
}

func WithAggregationWindow(min, max time.Duration) Option {
	return func(m *Machine) { m.t.aggregationMin, m.t.aggregationMax = min, max }
}

func WithInitialDelayMax(d time.Duration) Option {
	return func(m *Machine) { m.t.probeInitialDelayMax = d }
}

// Machine runs the probe → announce → respond → goodbye lifecycle for one
// set of proposed records (RFC 6762 §8-10).
type Machine struct {
	proposed     []ProposedRecord
	hub          Hub
	answerer     *Answerer
	t            timing
	recentlySent map[string]time.Time
	rng          *rand.Rand

	mu    sync.Mutex
	phase Phase
}

// New builds a Machine. families should be hub.Families(); it's passed
// separately so NewAnswerer's NSEC logic can be exercised without a live Hub
// in tests.
func New(proposed []ProposedRecord, hub Hub, families []transport.Family, opts ...Option) *Machine {
	m := &Machine{
		proposed:     proposed,
		hub:          hub,
		answerer:     NewAnswerer(proposed, families),
		t:            defaultTiming(),
		recentlySent: make(map[string]time.Time),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		phase:        PhaseProbing,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Phase reports the Machine's current lifecycle stage.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Machine) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

// Run drives the full lifecycle: probing, then announcing, then responding
// until ctx is canceled, at which point it sends a goodbye and returns
// errors.ErrAborted. Any conflict detected during probing or announcing
// returns the corresponding errors.NameTakenError, errors.SimultaneousProbeError,
// or errors.ConflictError without a goodbye (nothing was ever claimed, or
// the record was never ours to relinquish).
func (m *Machine) Run(ctx context.Context, sub *mcast.Subscription) error {
	m.setPhase(PhaseProbing)
	if err := m.probe(ctx, sub); err != nil {
		return err
	}
	m.setPhase(PhaseAnnouncing)
	if err := m.announce(ctx, sub); err != nil {
		return err
	}
	m.setPhase(PhaseResponding)
	err := m.respond(ctx, sub)
	m.setPhase(PhaseStopped)
	return err
}

func (m *Machine) probe(ctx context.Context, sub *mcast.Subscription) error {
	names := uniqueNames(m.proposed)

	delay := time.Duration(0)
	if m.t.probeInitialDelayMax > 0 {
		delay = time.Duration(m.rng.Int63n(int64(m.t.probeInitialDelayMax) + 1))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	sent := 0
	for sent < m.t.probeCount {
		select {
		case <-ctx.Done():
			return errors.ErrAborted
		case im := <-sub.C():
			if err := m.checkProbeConflict(names, im.Msg); err != nil {
				return err
			}
		case <-timer.C:
			if err := m.sendProbe(ctx, names); err != nil {
				return err
			}
			sent++
			timer.Reset(m.t.probeInterval)
		}
	}
	return nil
}

func (m *Machine) checkProbeConflict(names [][]string, msg *message.Message) error {
	if msg.Header.IsResponse() {
		if name, taken := findUniqueAnswerFor(names, msg.Answers); taken {
			return &errors.NameTakenError{Name: message.JoinLabels(name)}
		}
		return nil
	}

	if len(msg.Authorities) == 0 || !questionsOverlapNames(msg.Questions, names) {
		return nil
	}
	result, err := evaluateTieBreak(m.proposed, msg.Authorities)
	if err != nil {
		return err
	}
	if result == tieBreakLose {
		return &errors.SimultaneousProbeError{Name: message.JoinLabels(names[0])}
	}
	return nil
}

func questionsOverlapNames(questions []message.Question, names [][]string) bool {
	for _, q := range questions {
		for _, name := range names {
			if message.EqualLabels(q.Name, name) {
				return true
			}
		}
	}
	return false
}

func (m *Machine) sendProbe(ctx context.Context, names [][]string) error {
	questions := make([]message.Question, 0, len(names))
	for _, name := range names {
		questions = append(questions, message.Question{
			Name:   name,
			QType:  uint16(protocol.RecordTypeANY),
			QClass: uint16(protocol.ClassIN),
		})
	}
	msg := &message.Message{
		Header:      message.Header{ID: m.nextID()},
		Questions:   questions,
		Authorities: m.uniqueRecords(),
	}
	return m.sendAll(ctx, msg)
}

func (m *Machine) announce(ctx context.Context, sub *mcast.Subscription) error {
	sent := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for sent < m.t.announceCount {
		select {
		case <-ctx.Done():
			return errors.ErrAborted
		case im := <-sub.C():
			if err := m.checkAnnounceConflict(im.Msg); err != nil {
				return err
			}
		case <-timer.C:
			if err := m.sendAnnouncement(ctx); err != nil {
				return err
			}
			sent++
			timer.Reset(m.t.announceInterval)
		}
	}
	return nil
}

func (m *Machine) checkAnnounceConflict(msg *message.Message) error {
	if !msg.Header.IsResponse() {
		return nil
	}
	for _, a := range msg.Answers {
		if conflictsWithProposed(m.proposed, a) {
			return &errors.ConflictError{Name: message.JoinLabels(a.Name)}
		}
	}
	return nil
}

func (m *Machine) sendAnnouncement(ctx context.Context) error {
	answers := m.allRecords()
	msg := &message.Message{
		Header:      message.Header{Flags: protocol.FlagQR | protocol.FlagAA},
		Answers:     answers,
		Additionals: dedupeAdditionals(answers, m.allAdditionals()),
	}
	return m.sendAll(ctx, msg)
}

// outbox accumulates answers queued for the next aggregated response.
type outbox struct {
	answers     []message.ResourceRecord
	additionals []message.ResourceRecord
}

func (o *outbox) empty() bool { return len(o.answers) == 0 }

func (o *outbox) reset() {
	o.answers = nil
	o.additionals = nil
}

func (m *Machine) respond(ctx context.Context, sub *mcast.Subscription) error {
	var ob outbox
	var aggTimer *time.Timer
	var aggC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			m.sendGoodbye(context.Background())
			return errors.ErrAborted
		case im := <-sub.C():
			immediate, err := m.handleInbound(im.Msg, &ob)
			if err != nil {
				return err
			}
			if immediate && !ob.empty() {
				m.flush(ctx, &ob)
				if aggTimer != nil {
					aggTimer.Stop()
					aggTimer, aggC = nil, nil
				}
			} else if !ob.empty() && aggTimer == nil {
				aggTimer = time.NewTimer(m.aggregationDelay())
				aggC = aggTimer.C
			}
		case <-aggC:
			m.flush(ctx, &ob)
			if aggTimer != nil {
				aggTimer.Stop()
			}
			aggTimer, aggC = nil, nil
		}
	}
}

// handleInbound processes one inbound message during the responding phase,
// queuing answers into ob and reporting whether the immediate-defense
// or all-unique-answers condition applies (send now rather than aggregate).
func (m *Machine) handleInbound(msg *message.Message, ob *outbox) (immediate bool, err error) {
	if msg.Header.IsQuery() {
		isProbe := len(msg.Authorities) > 0
		allAnswered := len(msg.Questions) > 0
		allUnique := true
		any := false

		for _, q := range msg.Questions {
			answers, additionals := m.answerer.AnswerQuestion(q, msg.Answers)
			if len(answers) == 0 {
				allAnswered = false
			}
			for _, a := range answers {
				any = true
				if !a.IsUnique {
					allUnique = false
				}
				if m.isRateLimited(a) {
					continue
				}
				ob.answers = append(ob.answers, a)
			}
			ob.additionals = append(ob.additionals, additionals...)
		}

		immediate = (isProbe && any) || (allAnswered && allUnique && any)
		return immediate, nil
	}

	if msg.Header.IsResponse() {
		for _, a := range msg.Answers {
			if conflictsWithProposed(m.proposed, a) {
				return false, &errors.ConflictError{Name: message.JoinLabels(a.Name)}
			}
			if p, ok := matchesProposedGoodbye(m.proposed, a); ok {
				ob.answers = append(ob.answers, p.Record)
				ob.additionals = append(ob.additionals, p.Additional...)
				immediate = true
			}
		}
	}
	return immediate, nil
}

func (m *Machine) isRateLimited(rr message.ResourceRecord) bool {
	sentAt, ok := m.recentlySent[recordKey(rr)]
	return ok && time.Since(sentAt) < m.t.recentlySentWindow
}

func (m *Machine) flush(ctx context.Context, ob *outbox) {
	if ob.empty() {
		return
	}
	additionals := dedupeAdditionals(ob.answers, ob.additionals)
	msg := &message.Message{
		Header:      message.Header{Flags: protocol.FlagQR | protocol.FlagAA},
		Answers:     ob.answers,
		Additionals: additionals,
	}
	_ = m.sendAll(ctx, msg)

	now := time.Now()
	for _, a := range ob.answers {
		m.recentlySent[recordKey(a)] = now
	}
	ob.reset()
}

func (m *Machine) sendGoodbye(ctx context.Context) {
	answers := make([]message.ResourceRecord, 0, len(m.proposed))
	for _, p := range m.proposed {
		r := p.Record
		r.TTL = 0
		answers = append(answers, r)
	}
	msg := &message.Message{
		Header:  message.Header{Flags: protocol.FlagQR | protocol.FlagAA},
		Answers: answers,
	}
	_ = m.sendAll(ctx, msg)
}

func (m *Machine) aggregationDelay() time.Duration {
	span := m.t.aggregationMax - m.t.aggregationMin
	if span <= 0 {
		return m.t.aggregationMin
	}
	return m.t.aggregationMin + time.Duration(m.rng.Int63n(int64(span)+1))
}

func (m *Machine) allRecords() []message.ResourceRecord {
	out := make([]message.ResourceRecord, 0, len(m.proposed))
	for _, p := range m.proposed {
		out = append(out, p.Record)
	}
	return out
}

func (m *Machine) uniqueRecords() []message.ResourceRecord {
	var out []message.ResourceRecord
	for _, p := range m.proposed {
		if p.Record.IsUnique {
			out = append(out, p.Record)
		}
	}
	return out
}

func (m *Machine) allAdditionals() []message.ResourceRecord {
	var out []message.ResourceRecord
	for _, p := range m.proposed {
		out = append(out, p.Additional...)
	}
	return out
}

func (m *Machine) sendAll(ctx context.Context, msg *message.Message) error {
	var firstErr error
	for _, f := range m.hub.Families() {
		if err := m.hub.Send(ctx, msg, f, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Machine) nextID() uint16 {
	return uint16(m.rng.Intn(1 << 16))
}

// recordKey identifies a record for recently-sent rate limiting: owner name,
// type, and canonical RDATA.
func recordKey(rr message.ResourceRecord) string {
	canon, err := records.CanonicalRDATA(rr)
	if err != nil {
		return message.JoinLabels(rr.Name)
	}
	return message.JoinLabels(rr.Name) + "\x00" + string(rune(rr.Type)) + "\x00" + string(canon)
}
