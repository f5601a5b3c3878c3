package dnssd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/protocol"
	"github.com/hollowpath/beacon/internal/transport"
	"github.com/hollowpath/beacon/responder"
)

func testService() ServiceConfig {
	return ServiceConfig{
		Instance:  "Office Printer",
		Type:      "_http",
		Protocol:  TCP,
		Port:      8080,
		Addresses: []net.IP{net.ParseIP("192.168.1.50")},
		TXT:       map[string]*string{"path": TXTString("/")},
	}
}

func TestServiceConfig_ValidateRejectsBadInputs(t *testing.T) {
	base := testService()

	noPort := base
	noPort.Port = 0
	if err := noPort.Validate(); err == nil {
		t.Fatal("expected error for zero port")
	}

	noAddr := base
	noAddr.Addresses = nil
	if err := noAddr.Validate(); err == nil {
		t.Fatal("expected error for missing addresses")
	}

	badType := base
	badType.Type = "http" // missing leading underscore
	if err := badType.Validate(); err == nil {
		t.Fatal("expected error for malformed service type")
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestBuildProposedRecords_ComposesPTRSRVTXTAndA(t *testing.T) {
	svc := testService()
	svc.Subtypes = []string{"_print"}
	proposed := buildProposedRecords(svc)

	var ptrCount, subPTRCount, srvCount, txtCount, aCount int
	for _, p := range proposed {
		switch p.Record.Type {
		case uint16(protocol.RecordTypePTR):
			ptrData := p.Record.Data.(message.PTRData)
			if message.JoinLabels(ptrData.Target) != "Office Printer._http._tcp.local" {
				t.Fatalf("unexpected PTR target: %v", ptrData.Target)
			}
			if message.JoinLabels(p.Record.Name) == "_print._sub._http._tcp.local" {
				subPTRCount++
			} else {
				ptrCount++
			}
		case uint16(protocol.RecordTypeSRV):
			srvCount++
			srv := p.Record.Data.(message.SRVData)
			if srv.Port != svc.Port {
				t.Fatalf("SRV port = %d, want %d", srv.Port, svc.Port)
			}
		case uint16(protocol.RecordTypeTXT):
			txtCount++
		case uint16(protocol.RecordTypeA):
			aCount++
		}
	}

	if ptrCount != 1 || subPTRCount != 1 || srvCount != 1 || txtCount != 1 || aCount != 1 {
		t.Fatalf("unexpected record composition: ptr=%d subPTR=%d srv=%d txt=%d a=%d",
			ptrCount, subPTRCount, srvCount, txtCount, aCount)
	}
}

func TestBuildTXTAttrs_PreservesTriState(t *testing.T) {
	attrs := buildTXTAttrs(map[string]*string{
		"path":   TXTString("/"),
		"paper":  TXTString(""),
		"duplex": nil,
	})
	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(attrs))
	}

	// Keys come back sorted: duplex, paper, path.
	if attrs[0].Key != "duplex" || attrs[0].Kind != message.TXTNoValue {
		t.Errorf("attrs[0] = %+v, want bare duplex key", attrs[0])
	}
	if attrs[1].Key != "paper" || attrs[1].Kind != message.TXTEmptyValue {
		t.Errorf("attrs[1] = %+v, want paper= (present-empty)", attrs[1])
	}
	if attrs[2].Key != "path" || attrs[2].Kind != message.TXTByteValue || string(attrs[2].Value) != "/" {
		t.Errorf("attrs[2] = %+v, want path=/", attrs[2])
	}
}

func fastResponderOptions() AdvertiseOption {
	return WithResponderOptions(
		responder.WithInitialDelayMax(0),
		responder.WithProbeInterval(2*time.Millisecond),
		responder.WithAnnounceInterval(2*time.Millisecond),
		responder.WithAggregationWindow(time.Millisecond, 2*time.Millisecond),
	)
}

func TestAdvertise_RunsUntilCanceled(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.SetFamily(transport.FamilyIPv4)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Advertise(ctx, testService(), []transport.Transport{mock}, fastResponderOptions())
	}()

	deadline := time.After(2 * time.Second)
	for {
		if len(mock.SendCalls()) >= 5 { // 3 probes + 2 announcements
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for probe+announce sends, got %d", len(mock.SendCalls()))
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Advertise() = %v, want nil on cancellation", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Advertise to return after cancellation")
	}
}

func TestAdvertise_RenamesOnNameTaken(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.SetFamily(transport.FamilyIPv4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- Advertise(ctx, testService(), []transport.Transport{mock}, fastResponderOptions())
	}()

	// Wait for the first probe, then answer it with a conflicting unique
	// record for the instance's SRV name, forcing a NameTaken rename.
	deadline := time.After(time.Second)
	for len(mock.SendCalls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first probe")
		case <-time.After(2 * time.Millisecond):
		}
	}

	conflict := message.ResourceRecord{
		Name:     message.SplitLabels("Office Printer._http._tcp.local"),
		Type:     uint16(protocol.RecordTypeSRV),
		Class:    uint16(protocol.ClassIN),
		IsUnique: true,
		TTL:      120,
		Data:     message.SRVData{Priority: 0, Weight: 0, Port: 9999, Target: message.SplitLabels("someoneelse.local")},
	}
	resp := &message.Message{
		Header:  message.Header{Flags: protocol.FlagQR},
		Answers: []message.ResourceRecord{conflict},
	}
	raw, err := message.EncodeMessage(resp)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	mock.Feed(raw, peerAddr)

	// The renamed instance should eventually probe for "Office Printer (2)".
	deadline = time.After(time.Second)
	renamed := false
	for !renamed {
		for _, call := range mock.SendCalls() {
			msg, err := message.ParseMessage(call.Packet)
			if err != nil {
				continue
			}
			for _, q := range msg.Questions {
				if message.JoinLabels(q.Name) == "Office Printer (2)._http._tcp.local" {
					renamed = true
				}
			}
		}
		if renamed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for renamed probe")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

var peerAddr = &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 5353}
