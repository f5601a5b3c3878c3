package dnssd

import (
	"context"
	"testing"
	"time"

	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/protocol"
	"github.com/hollowpath/beacon/internal/transport"
	"github.com/hollowpath/beacon/querier"
)

func fastQuerierOptions() BrowseOption {
	return WithQuerierOptions(
		querier.WithInitialDelayRange(0, time.Millisecond),
		querier.WithSecondInterval(5*time.Millisecond),
		querier.WithMaxInterval(20*time.Millisecond),
	)
}

func browseSRVRecord(instance, target string, port uint16) message.ResourceRecord {
	return message.ResourceRecord{
		Name:     message.SplitLabels(instance),
		Type:     uint16(protocol.RecordTypeSRV),
		Class:    uint16(protocol.ClassIN),
		IsUnique: true,
		TTL:      120,
		Data:     message.SRVData{Priority: 0, Weight: 0, Port: port, Target: message.SplitLabels(target)},
	}
}

func browseTXTRecord(instance string, kv map[string]*string) message.ResourceRecord {
	return message.ResourceRecord{
		Name:     message.SplitLabels(instance),
		Type:     uint16(protocol.RecordTypeTXT),
		Class:    uint16(protocol.ClassIN),
		IsUnique: true,
		TTL:      4500,
		Data:     message.TXTData{Attrs: buildTXTAttrs(kv)},
	}
}

func browseARecord(target string, ip [4]byte, ttl uint32) message.ResourceRecord {
	return message.ResourceRecord{
		Name:     message.SplitLabels(target),
		Type:     uint16(protocol.RecordTypeA),
		Class:    uint16(protocol.ClassIN),
		IsUnique: true,
		TTL:      ttl,
		Data:     message.AData{Address: ip},
	}
}

func browsePTRResponse(serviceType, instance string, ptrTTL uint32, additional ...message.ResourceRecord) []byte {
	msg := &message.Message{
		Header: message.Header{Flags: protocol.FlagQR},
		Answers: []message.ResourceRecord{{
			Name:  message.SplitLabels(serviceType),
			Type:  uint16(protocol.RecordTypePTR),
			Class: uint16(protocol.ClassIN),
			TTL:   ptrTTL,
			Data:  message.PTRData{Target: message.SplitLabels(instance)},
		}},
		Additionals: additional,
	}
	raw, err := message.EncodeMessage(msg)
	if err != nil {
		panic(err)
	}
	return raw
}

func waitForService(t *testing.T, ch <-chan Service, active bool, timeout time.Duration) Service {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case svc, ok := <-ch:
			if !ok {
				t.Fatalf("service stream closed before IsActive=%v observed", active)
			}
			if svc.IsActive == active {
				return svc
			}
		case <-deadline:
			t.Fatalf("timed out waiting for IsActive=%v", active)
		}
	}
}

func TestBrowse_ResolvesFromAdditionalSection(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.SetFamily(transport.FamilyIPv4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := Browse(ctx, BrowseConfig{Type: "_http", Protocol: TCP}, []transport.Transport{mock}, fastQuerierOptions())
	if err != nil {
		t.Fatalf("Browse() failed: %v", err)
	}

	srv := browseSRVRecord("printer._http._tcp.local", "printer.local", 631)
	txt := browseTXTRecord("printer._http._tcp.local", map[string]*string{
		"path":   TXTString("/"),
		"paper":  TXTString(""),
		"duplex": nil,
	})
	a := browseARecord("printer.local", [4]byte{192, 168, 1, 10}, 120)

	mock.Feed(browsePTRResponse("_http._tcp.local", "printer._http._tcp.local", 4500, srv, txt, a), peerAddr)

	svc := waitForService(t, ch, true, time.Second)
	if svc.Host != "printer.local" || svc.Port != 631 {
		t.Fatalf("unexpected resolved service: %+v", svc)
	}

	// All three TXT value states survive the advertise-side encode and the
	// browse-side decode: "path=/", "paper=", and a bare "duplex" key.
	if v, ok := svc.TXT["path"]; !ok || v == nil || *v != "/" {
		t.Fatalf("expected TXT path=/, got %+v", svc.TXT)
	}
	if v, ok := svc.TXT["paper"]; !ok || v == nil || *v != "" {
		t.Fatalf("expected present-empty TXT paper attribute, got %+v", svc.TXT)
	}
	if v, ok := svc.TXT["duplex"]; !ok || v != nil {
		t.Fatalf("expected present-no-value TXT duplex attribute, got %+v", svc.TXT)
	}
}

func TestBrowse_EmitsInactiveOnAddressGoodbye(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.SetFamily(transport.FamilyIPv4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := Browse(ctx, BrowseConfig{Type: "_http", Protocol: TCP}, []transport.Transport{mock}, fastQuerierOptions())
	if err != nil {
		t.Fatalf("Browse() failed: %v", err)
	}

	srv := browseSRVRecord("printer._http._tcp.local", "printer.local", 631)
	txt := browseTXTRecord("printer._http._tcp.local", nil)
	a := browseARecord("printer.local", [4]byte{192, 168, 1, 10}, 120)

	mock.Feed(browsePTRResponse("_http._tcp.local", "printer._http._tcp.local", 4500, srv, txt, a), peerAddr)
	waitForService(t, ch, true, time.Second)

	goodbye := &message.Message{
		Header:  message.Header{Flags: protocol.FlagQR},
		Answers: []message.ResourceRecord{browseARecord("printer.local", [4]byte{192, 168, 1, 10}, 0)},
	}
	raw, err := message.EncodeMessage(goodbye)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	mock.Feed(raw, peerAddr)

	waitForService(t, ch, false, 2*time.Second)
}

func TestBrowse_ClosesOnContextCancel(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.SetFamily(transport.FamilyIPv4)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := Browse(ctx, BrowseConfig{Type: "_http", Protocol: TCP}, []transport.Transport{mock}, fastQuerierOptions())
	if err != nil {
		t.Fatalf("Browse() failed: %v", err)
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected service channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for service channel to close")
	}
}
