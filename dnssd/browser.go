package dnssd

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hollowpath/beacon/internal/errors"
	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/transport"
	"github.com/hollowpath/beacon/querier"
)

// BrowseConfig identifies the DNS-SD service type (and, optionally, a single
// subtype) to browse for.
type BrowseConfig struct {
	// Type is the service label, e.g. "_http".
	Type string

	// Protocol is TCP or UDP.
	Protocol Protocol

	// Subtype, if set, narrows the browse to instances advertising this
	// subtype (RFC 6763 §7.1), e.g. "_printer".
	Subtype string
}

func (c BrowseConfig) validate() error {
	if err := validateServiceLabel(c.Type); err != nil {
		return err
	}
	if c.Subtype != "" {
		if err := validateServiceLabel(c.Subtype); err != nil {
			return &errors.ValidationError{Field: "subtype", Value: c.Subtype, Message: err.Error()}
		}
	}
	return nil
}

func (c BrowseConfig) serviceType() string {
	return fmt.Sprintf("%s._%s.local", c.Type, c.Protocol)
}

// ptrName renders the PTR question name: the plain service type, or the
// "<subtype>._sub.<_type>._<proto>.local" subtype form (RFC 6763 §7.1).
func (c BrowseConfig) ptrName() string {
	if c.Subtype == "" {
		return c.serviceType()
	}
	return fmt.Sprintf("%s._sub.%s", c.Subtype, c.serviceType())
}

// BrowseOption configures Browse at call time.
type BrowseOption func(*browseConfig)

type browseConfig struct {
	outBuffer   int
	querierOpts []querier.Option
}

func defaultBrowseConfig() *browseConfig {
	return &browseConfig{outBuffer: 32}
}

// WithBrowseBuffer sets the capacity of the returned Service channel
// (default 32).
func WithBrowseBuffer(n int) BrowseOption {
	return func(c *browseConfig) {
		if n > 0 {
			c.outBuffer = n
		}
	}
}

// WithQuerierOptions forwards options to every querier.New call the browser
// and its resolvers make (e.g. querier.WithInitialDelayRange, for tests that
// shrink RFC-timed windows).
func WithQuerierOptions(opts ...querier.Option) BrowseOption {
	return func(c *browseConfig) { c.querierOpts = append(c.querierOpts, opts...) }
}

// Browse starts a continuous querier for the PTR of the composed service
// type and, for each distinct instance it discovers, resolves SRV, TXT, and
// an A-or-AAAA address, emitting a Service on the returned channel as the
// resolution completes or changes. Every sub-query the browser and its
// resolvers issue shares one querier.Bus over transports, so they all
// observe the same inbound traffic instead of racing each other for it.
// The channel is closed when ctx is canceled.
func Browse(ctx context.Context, cfg BrowseConfig, transports []transport.Transport, opts ...BrowseOption) (<-chan Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	bc := defaultBrowseConfig()
	for _, opt := range opts {
		opt(bc)
	}

	bus, err := querier.NewBus(transports)
	if err != nil {
		return nil, err
	}

	ptrQuestion := querier.NewQuestion(cfg.ptrName(), querier.RecordTypePTR)
	q, err := bus.New([]querier.Question{ptrQuestion}, bc.querierOpts...)
	if err != nil {
		return nil, err
	}

	out := make(chan Service, bc.outBuffer)
	go runBrowse(ctx, cfg, q, bus, bc, out)
	return out, nil
}

// runBrowse is the browser's single logical task: it drives the shared Bus,
// owns the PTR querier, and owns a resolver per discovered instance, tearing
// a resolver down when its PTR record expires.
func runBrowse(ctx context.Context, cfg BrowseConfig, q *querier.Querier, bus *querier.Bus, bc *browseConfig, out chan<- Service) {
	defer close(out)
	defer q.End()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(gctx) })
	defer g.Wait()

	resolvers := make(map[string]*instanceResolver)
	defer func() {
		for _, r := range resolvers {
			r.stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-q.Events():
			if !ok {
				return
			}
			ptrData, isPTR := ev.Record.Data.(message.PTRData)
			if !isPTR {
				continue
			}
			key := message.JoinLabels(ptrData.Target)

			switch ev.Kind {
			case querier.Added:
				if _, exists := resolvers[key]; exists {
					continue
				}
				r := newInstanceResolver(cfg, ptrData.Target, bus, bc, out)
				resolvers[key] = r
				r.start(ctx, q.Additional())

			case querier.Expired:
				if r, exists := resolvers[key]; exists {
					r.stop()
					delete(resolvers, key)
				}
			}
		}
	}
}

// instanceResolver tracks the SRV, TXT, and address records for one
// discovered service instance, spawning sub-queries for whatever the PTR
// response's additional section didn't already supply.
type instanceResolver struct {
	cfg      BrowseConfig
	instance []string
	bus      *querier.Bus
	bc       *browseConfig
	out      chan<- Service

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newInstanceResolver(cfg BrowseConfig, instance []string, bus *querier.Bus, bc *browseConfig, out chan<- Service) *instanceResolver {
	return &instanceResolver{cfg: cfg, instance: instance, bus: bus, bc: bc, out: out}
}

func (r *instanceResolver) start(parent context.Context, seed []message.ResourceRecord) {
	r.ctx, r.cancel = context.WithCancel(parent)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(seed)
	}()
}

func (r *instanceResolver) stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *instanceResolver) run(seed []message.ResourceRecord) {
	var srv *message.SRVData
	var srvRR, txtRR, addrRR message.ResourceRecord
	haveTXT, haveAddr := false, false

	for _, rr := range seed {
		if !message.EqualLabels(rr.Name, r.instance) {
			continue
		}
		switch d := rr.Data.(type) {
		case message.SRVData:
			dCopy := d
			srv = &dCopy
			srvRR = rr
		case message.TXTData:
			txtRR = rr
			haveTXT = true
		}
	}

	var missing []querier.Question
	if srv == nil {
		missing = append(missing, querier.Question{Name: r.instance, Type: querier.RecordTypeSRV})
	}
	if !haveTXT {
		missing = append(missing, querier.Question{Name: r.instance, Type: querier.RecordTypeTXT})
	}

	var detailQ *querier.Querier
	if len(missing) > 0 {
		if q, err := r.bus.New(missing, r.bc.querierOpts...); err == nil {
			detailQ = q
			defer detailQ.End()
		}
	}

	var addrQ *querier.Querier
	addrTarget := ""
	defer func() {
		if addrQ != nil {
			addrQ.End()
		}
	}()

	seedAddr := func() {
		if srv == nil || haveAddr {
			return
		}
		for _, rr := range seed {
			if !message.EqualLabels(rr.Name, srv.Target) {
				continue
			}
			switch rr.Data.(type) {
			case message.AData, message.AAAAData:
				addrRR = rr
				haveAddr = true
			}
		}
	}

	// ensureAddrQuery keeps an address sub-query running against whatever
	// srv currently names, even once seedAddr has already satisfied haveAddr
	// from the additional section: the sub-query is what lets the resolver
	// observe the address record's later expiry or goodbye and flip back to
	// inactive.
	ensureAddrQuery := func() {
		if srv == nil {
			return
		}
		target := message.JoinLabels(srv.Target)
		if addrQ != nil && addrTarget == target {
			return
		}
		if addrQ != nil {
			addrQ.End()
			addrQ = nil
		}
		q, err := r.bus.New([]querier.Question{
			{Name: srv.Target, Type: querier.RecordTypeA},
			{Name: srv.Target, Type: querier.RecordTypeAAAA},
		}, r.bc.querierOpts...)
		if err == nil {
			addrQ = q
			addrTarget = target
		}
	}

	active := false
	send := func(svc Service) {
		select {
		case r.out <- svc:
		case <-r.ctx.Done():
		}
	}
	emit := func() {
		if srv == nil || !haveTXT || !haveAddr {
			return
		}
		send(r.buildService(srvRR, txtRR, addrRR, true))
		active = true
	}
	emitInactive := func() {
		if active {
			send(r.buildService(srvRR, txtRR, addrRR, false))
			active = false
		}
	}

	seedAddr()
	ensureAddrQuery()
	emit()

	for {
		var detailEvents <-chan querier.Event
		if detailQ != nil {
			detailEvents = detailQ.Events()
		}
		var addrEvents <-chan querier.Event
		if addrQ != nil {
			addrEvents = addrQ.Events()
		}

		select {
		case <-r.ctx.Done():
			return

		case ev, ok := <-detailEvents:
			if !ok {
				detailQ = nil
				continue
			}
			if ev.Kind != querier.Added {
				continue
			}
			switch d := ev.Record.Data.(type) {
			case message.SRVData:
				dCopy := d
				srv = &dCopy
				srvRR = ev.Record
				ensureAddrQuery()
			case message.TXTData:
				txtRR = ev.Record
				haveTXT = true
			}
			emit()

		case ev, ok := <-addrEvents:
			if !ok {
				addrQ = nil
				continue
			}
			switch ev.Kind {
			case querier.Added:
				addrRR = ev.Record
				haveAddr = true
				emit()
			case querier.Flushed, querier.Expired:
				// A flushed address is immediately followed by an Added
				// for its replacement, which re-emits the service as
				// active again.
				haveAddr = false
				emitInactive()
			}
		}
	}
}

func (r *instanceResolver) buildService(srvRR, txtRR, addrRR message.ResourceRecord, active bool) Service {
	srvData, _ := srvRR.Data.(message.SRVData)
	txtData, _ := txtRR.Data.(message.TXTData)

	name := ""
	if len(r.instance) > 0 {
		name = r.instance[0]
	}

	return Service{
		Name:     name,
		Type:     r.cfg.Type,
		Subtypes: subtypeList(r.cfg.Subtype),
		Protocol: r.cfg.Protocol,
		Host:     message.JoinLabels(srvData.Target),
		Port:     srvData.Port,
		TXT:      txtToMap(txtData),
		IsActive: active,
	}
}

func subtypeList(sub string) []string {
	if sub == "" {
		return nil
	}
	return []string{sub}
}

// txtToMap converts wire attributes to the public tri-state map form:
// present-no-value keys map to nil, present-empty to a pointer to "", and
// byte values to a pointer to their string form.
func txtToMap(d message.TXTData) map[string]*string {
	out := make(map[string]*string, len(d.Attrs))
	for _, a := range d.Attrs {
		switch a.Kind {
		case message.TXTNoValue:
			out[a.Key] = nil
		case message.TXTEmptyValue:
			out[a.Key] = TXTString("")
		case message.TXTByteValue:
			out[a.Key] = TXTString(string(a.Value))
		}
	}
	return out
}
