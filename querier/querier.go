package querier

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hollowpath/beacon/internal/errors"
	"github.com/hollowpath/beacon/internal/mcast"
	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/protocol"
	"github.com/hollowpath/beacon/internal/records"
	"github.com/hollowpath/beacon/internal/transport"
)

// timing holds the schedule parameters for the initial query and the
// doubling re-query backoff (RFC 6762 §5.2).
type timing struct {
	initialDelayMin, initialDelayMax time.Duration
	secondInterval                   time.Duration
	maxInterval                      time.Duration
}

func defaultTiming() timing {
	return timing{
		initialDelayMin: protocol.QueryInitialDelayMin,
		initialDelayMax: protocol.QueryInitialDelayMax,
		secondInterval:  protocol.QuerySecondInterval,
		maxInterval:     protocol.QueryMaxInterval,
	}
}

// Querier continuously asks a fixed set of (name, type) questions over
// multicast, maintaining a cache of answers and reporting Added/Flushed/
// Expired transitions on an event stream.
type Querier struct {
	questions  []Question
	suppressed []bool

	hub *mcast.Hub
	sub *mcast.Subscription

	t   timing
	rng *rand.Rand

	mu    sync.RWMutex
	cache map[cacheKey][]*cacheEntry

	additional    *lru.Cache[string, message.ResourceRecord]
	additionalCap int
	subBuffer     int

	events chan Event
	timerC chan timerEvent
	stopC  chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger *log.Logger
}

// New creates a Querier asking questions over the given transports
// (typically one IPv4 and one IPv6 transport bound to port 5353). New opens
// a private multicast Hub over transports; callers that need several
// simultaneous Queriers to observe the same traffic (the DNS-SD browser's
// per-instance sub-queries) should share one Hub via a Bus instead, since
// two private Hubs reading the same transports would race each other for
// every inbound datagram. The Querier starts running immediately in the
// background; call End to stop it.
func New(questions []Question, transports []transport.Transport, opts ...Option) (*Querier, error) {
	if len(transports) == 0 {
		return nil, &errors.ValidationError{Field: "transports", Message: "at least one transport is required"}
	}

	q, err := buildQuerier(questions, opts...)
	if err != nil {
		return nil, err
	}

	hub := mcast.NewHub(transports,
		mcast.WithSubscriberBuffer(q.subBuffer),
		mcast.WithMalformedHandler(func(src net.Addr, err error) {
			q.logger.Printf("querier: dropping malformed datagram from %v: %v", src, err)
		}),
	)
	q.attach(hub)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		_ = hub.Run(q.ctx)
	}()

	return q, nil
}

// newOnHub builds a Querier subscribed to an already-running shared Hub
// (see Bus) instead of opening a private one. The caller owns hub's
// lifetime and is responsible for calling hub.Run.
func newOnHub(questions []Question, hub *mcast.Hub, opts ...Option) (*Querier, error) {
	q, err := buildQuerier(questions, opts...)
	if err != nil {
		return nil, err
	}
	q.attach(hub)
	return q, nil
}

// buildQuerier allocates and configures a Querier's state without wiring it to
// any Hub; New and newOnHub each finish construction by calling attach.
func buildQuerier(questions []Question, opts ...Option) (*Querier, error) {
	if len(questions) == 0 {
		return nil, &errors.ValidationError{Field: "questions", Message: "at least one question is required"}
	}
	for _, quest := range questions {
		if len(quest.Name) == 0 {
			return nil, &errors.ValidationError{Field: "questions", Message: "question name cannot be empty"}
		}
		if err := protocol.ValidateRecordType(uint16(quest.Type)); err != nil {
			return nil, err
		}
	}

	q := &Querier{
		questions:     append([]Question(nil), questions...),
		suppressed:    make([]bool, len(questions)),
		t:             defaultTiming(),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:         make(map[cacheKey][]*cacheEntry),
		additionalCap: 1024,
		subBuffer:     64,
		events:        make(chan Event, 32),
		timerC:        make(chan timerEvent, 64),
		stopC:         make(chan struct{}),
		logger:        log.Default(),
	}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}

	cache, err := lru.New[string, message.ResourceRecord](q.additionalCap)
	if err != nil {
		return nil, err
	}
	q.additional = cache

	return q, nil
}

// attach subscribes q to hub and starts its run goroutine.
func (q *Querier) attach(hub *mcast.Hub) {
	q.hub = hub
	q.sub = hub.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	q.ctx = ctx
	q.cancel = cancel

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(ctx)
	}()
}

// Events returns the channel of cache transitions. It is closed once End
// has fully stopped the Querier.
func (q *Querier) Events() <-chan Event { return q.events }

// End stops the Querier: it cancels its background goroutines, stops every
// per-entry timer, and closes the event stream without emitting further
// cache events. It does not close the transports supplied to New; callers
// own their lifetime.
func (q *Querier) End() {
	q.stopOnce.Do(func() {
		close(q.stopC)
		q.cancel()
		q.wg.Wait()
		for _, entries := range q.cache {
			for _, e := range entries {
				e.stopTimers()
			}
		}
	})
}

// run is the Querier's single logical task: it serializes all
// cache mutation and all outbound sends through one goroutine, reading
// inbound messages, fired timers, and the query-schedule timer from a
// single select loop.
func (q *Querier) run(ctx context.Context) {
	defer close(q.events)

	delay := q.t.initialDelayMin
	if q.t.initialDelayMax > q.t.initialDelayMin {
		delay += time.Duration(q.rng.Int63n(int64(q.t.initialDelayMax-q.t.initialDelayMin) + 1))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	interval := q.t.secondInterval
	first := true

	for {
		select {
		case <-ctx.Done():
			return

		case im, ok := <-q.sub.C():
			if !ok {
				return
			}
			q.handleInbound(im.Msg)

		case ev := <-q.timerC:
			for _, out := range q.handleTimerEvent(ev) {
				q.emit(out)
			}

		case <-timer.C:
			q.sendScheduledQuery(ctx)
			if first {
				first = false
				timer.Reset(interval)
				continue
			}
			interval *= 2
			if interval > q.t.maxInterval {
				interval = q.t.maxInterval
			}
			timer.Reset(interval)
		}
	}
}

func (q *Querier) emit(ev Event) {
	select {
	case q.events <- ev:
	case <-q.ctx.Done():
	}
}

// handleInbound dispatches a decoded datagram: queries mark matching
// questions as passively suppressed for this scheduling round
// (RFC 6762 §7.3), responses feed the cache.
func (q *Querier) handleInbound(msg *message.Message) {
	if msg.Header.IsQuery() {
		q.handleQuery(msg)
		return
	}
	if msg.Header.IsResponse() {
		q.handleResponse(msg)
	}
}

func (q *Querier) handleQuery(msg *message.Message) {
	if len(msg.Answers) > 0 {
		// Only a question with an empty known-answer section stands in for
		// a query we would ourselves have sent; one carrying answers is a
		// different client still populating its own cache.
		return
	}
	for _, theirQ := range msg.Questions {
		for i, ours := range q.questions {
			if !message.EqualLabels(theirQ.Name, ours.Name) {
				continue
			}
			if theirQ.QType == uint16(protocol.RecordTypeANY) || theirQ.QType == uint16(ours.Type) {
				q.suppressed[i] = true
			}
		}
	}
}

func (q *Querier) handleResponse(msg *message.Message) {
	// RFC 6762 §18: responses with a nonzero opcode or rcode are silently
	// ignored.
	if err := protocol.ValidateResponse(msg.Header.Flags); err != nil {
		return
	}
	additionalsCopied := false
	for _, a := range msg.Answers {
		matched := false
		for _, ours := range q.questions {
			if message.EqualLabels(a.Name, ours.Name) && a.Type == uint16(ours.Type) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, ev := range q.insertAnswer(a) {
			q.emit(ev)
		}
		if !additionalsCopied {
			additionalsCopied = true
			for _, add := range msg.Additionals {
				q.additional.Add(additionalKey(add), add)
			}
		}
	}
}

// sendScheduledQuery sends the regularly-scheduled multi-question query,
// filtering out questions that were passively suppressed this round or that
// already hold a non-PTR answer.
func (q *Querier) sendScheduledQuery(ctx context.Context) {
	q.mu.Lock()
	var surviving []Question
	for i := range q.questions {
		if q.suppressed[i] {
			q.suppressed[i] = false
			continue
		}
		// PTR is a shared record, so an existing answer never suppresses
		// the question; other types stop asking once answered.
		if q.questions[i].Type != RecordTypePTR && q.hasAnswerLocked(q.questions[i]) {
			continue
		}
		surviving = append(surviving, q.questions[i])
	}
	q.mu.Unlock()

	if len(surviving) == 0 {
		return
	}
	q.sendQuestions(ctx, surviving)
}

// sendForKey re-queries a single question, used both for per-entry re-query
// timers and for the query issued right after an entry expires.
func (q *Querier) sendForKey(key cacheKey) {
	q.mu.RLock()
	var quest *Question
	for i := range q.questions {
		if keyForQuestion(q.questions[i]) == key {
			found := q.questions[i]
			quest = &found
			break
		}
	}
	q.mu.RUnlock()
	if quest == nil {
		return
	}
	q.sendQuestions(q.ctx, []Question{*quest})
}

func (q *Querier) sendQuestions(ctx context.Context, questions []Question) {
	wire := make([]message.Question, 0, len(questions))
	for _, quest := range questions {
		wire = append(wire, quest.wire())
	}
	msg := &message.Message{
		Header:    message.Header{ID: uint16(q.rng.Intn(1 << 16))},
		Questions: wire,
		Answers:   q.knownAnswers(questions),
	}
	msg.SyncCounts()
	for _, f := range q.hub.Families() {
		_ = q.hub.Send(ctx, msg, f, nil)
	}
}

func additionalKey(rr message.ResourceRecord) string {
	canon, err := records.CanonicalRDATA(rr)
	if err != nil {
		return message.JoinLabels(rr.Name)
	}
	return fmt.Sprintf("%s|%d|%x", message.JoinLabels(rr.Name), rr.Type, canon)
}
