package dnssd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/hollowpath/beacon/internal/errors"
	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/protocol"
	"github.com/hollowpath/beacon/internal/transport"
	"github.com/hollowpath/beacon/responder"
)

// AdvertiseOption configures Advertise at call time.
type AdvertiseOption func(*advertiseConfig)

type advertiseConfig struct {
	responderOpts []responder.Option
}

func defaultAdvertiseConfig() *advertiseConfig {
	return &advertiseConfig{}
}

// WithResponderOptions forwards options to the underlying responder.New call
// (e.g. responder.WithProbeInterval, for tests that shrink RFC-timed
// windows).
func WithResponderOptions(opts ...responder.Option) AdvertiseOption {
	return func(c *advertiseConfig) { c.responderOpts = append(c.responderOpts, opts...) }
}

// Advertise composes the PTR/SRV/TXT/A-or-AAAA record ensemble for svc and
// runs the responder state machine against it until ctx is canceled. On
// errors.NameTakenError it appends " (N)" to the instance name
// and retries; on errors.SimultaneousProbeError it waits one second and
// retries with the same name. It returns errors.RenameExhaustedError if more
// than 15 NameTaken events occur within a 10-second sliding window.
func Advertise(ctx context.Context, svc ServiceConfig, transports []transport.Transport, opts ...AdvertiseOption) error {
	if err := svc.Validate(); err != nil {
		return err
	}

	cfg := defaultAdvertiseConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	attempt := svc
	suffix := 1
	var renameEvents []time.Time

	for {
		proposed := buildProposedRecords(attempt)

		r, err := responder.New(proposed, transports, cfg.responderOpts...)
		if err != nil {
			return err
		}

		runErr := r.Run(ctx)
		if runErr == nil || stderrors.Is(runErr, errors.ErrAborted) {
			return nil
		}

		var nameTaken *errors.NameTakenError
		var simultaneous *errors.SimultaneousProbeError
		switch {
		case stderrors.As(runErr, &nameTaken):
			now := time.Now()
			renameEvents = append(renameEvents, now)
			renameEvents = pruneRenameEvents(renameEvents, now)
			if len(renameEvents) > protocol.RenameMaxAttempts {
				return &errors.RenameExhaustedError{Name: svc.Instance, Attempts: len(renameEvents)}
			}
			suffix++
			attempt.Instance = fmt.Sprintf("%s (%d)", svc.Instance, suffix)

		case stderrors.As(runErr, &simultaneous):
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(protocol.SimultaneousProbeRetryDelay):
			}

		default:
			return runErr
		}
	}
}

// pruneRenameEvents drops events older than the 10-second sliding window.
func pruneRenameEvents(events []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-protocol.RenameWindow)
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// buildProposedRecords composes the PTR (plus per-subtype PTRs), SRV, TXT,
// and A/AAAA records for one service instance, attaching the
// RFC 6763 §12-recommended additional records so resolvers can usually
// answer from a single response's additional section.
func buildProposedRecords(svc ServiceConfig) []responder.ProposedRecord {
	instance := svc.instanceLabels()
	target := svc.targetLabels()
	svcType := message.SplitLabels(svc.serviceType())

	var addrRecords []message.ResourceRecord
	for _, ip := range svc.Addresses {
		addrRecords = append(addrRecords, addressRecord(target, ip))
	}

	srv := message.ResourceRecord{
		Name:     instance,
		Type:     uint16(protocol.RecordTypeSRV),
		Class:    uint16(protocol.ClassIN),
		IsUnique: true,
		TTL:      protocol.TTLForType(protocol.RecordTypeSRV),
		Data:     message.SRVData{Priority: 0, Weight: 0, Port: svc.Port, Target: target},
	}

	txt := message.ResourceRecord{
		Name:     instance,
		Type:     uint16(protocol.RecordTypeTXT),
		Class:    uint16(protocol.ClassIN),
		IsUnique: true,
		TTL:      protocol.TTLForType(protocol.RecordTypeTXT),
		Data:     message.TXTData{Attrs: buildTXTAttrs(svc.TXT)},
	}

	ptr := message.ResourceRecord{
		Name:     svcType,
		Type:     uint16(protocol.RecordTypePTR),
		Class:    uint16(protocol.ClassIN),
		IsUnique: false,
		TTL:      protocol.TTLForType(protocol.RecordTypePTR),
		Data:     message.PTRData{Target: instance},
	}

	ptrAdditional := append([]message.ResourceRecord{srv, txt}, addrRecords...)

	proposed := []responder.ProposedRecord{
		{Record: ptr, Additional: ptrAdditional},
		{Record: srv, Additional: addrRecords},
		{Record: txt},
	}
	for _, a := range addrRecords {
		proposed = append(proposed, responder.ProposedRecord{Record: a})
	}

	for _, sub := range svc.Subtypes {
		subPTR := message.ResourceRecord{
			Name:     message.SplitLabels(svc.subtypeName(sub)),
			Type:     uint16(protocol.RecordTypePTR),
			Class:    uint16(protocol.ClassIN),
			IsUnique: false,
			TTL:      protocol.TTLForType(protocol.RecordTypePTR),
			Data:     message.PTRData{Target: instance},
		}
		proposed = append(proposed, responder.ProposedRecord{Record: subPTR, Additional: ptrAdditional})
	}

	return proposed
}

func addressRecord(target []string, ip net.IP) message.ResourceRecord {
	if v4 := ip.To4(); v4 != nil {
		var addr [4]byte
		copy(addr[:], v4)
		return message.ResourceRecord{
			Name:     target,
			Type:     uint16(protocol.RecordTypeA),
			Class:    uint16(protocol.ClassIN),
			IsUnique: true,
			TTL:      protocol.TTLForType(protocol.RecordTypeA),
			Data:     message.AData{Address: addr},
		}
	}
	var addr [16]byte
	copy(addr[:], ip.To16())
	return message.ResourceRecord{
		Name:     target,
		Type:     uint16(protocol.RecordTypeAAAA),
		Class:    uint16(protocol.ClassIN),
		IsUnique: true,
		TTL:      protocol.TTLForType(protocol.RecordTypeAAAA),
		Data:     message.AAAAData{Address: addr},
	}
}

// buildTXTAttrs renders a user-supplied attribute map into wire attributes,
// preserving all three TXT value states: a nil value is a bare key
// (present-no-value), a pointer to the empty string is "key="
// (present-empty), anything else is "key=value". Keys are sorted so the
// wire encoding is deterministic across runs.
func buildTXTAttrs(kv map[string]*string) []message.TXTAttr {
	if len(kv) == 0 {
		return nil
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]message.TXTAttr, 0, len(keys))
	for _, k := range keys {
		v := kv[k]
		switch {
		case v == nil:
			attrs = append(attrs, message.TXTAttr{Key: k, Kind: message.TXTNoValue})
		case *v == "":
			attrs = append(attrs, message.TXTAttr{Key: k, Kind: message.TXTEmptyValue})
		default:
			attrs = append(attrs, message.TXTAttr{Key: k, Kind: message.TXTByteValue, Value: []byte(*v)})
		}
	}
	return attrs
}
