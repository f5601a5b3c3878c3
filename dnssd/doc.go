// Package dnssd composes DNS-SD service advertisement and discovery (RFC
// 6763) on top of the querier and responder packages: Advertise publishes a
// named service instance as a PTR/SRV/TXT/A-or-AAAA record ensemble, and
// Browse resolves instances of a service type as they come and go on the
// network.
//
// # Advertising
//
//	svc := dnssd.ServiceConfig{
//	    Instance:  "Office Printer",
//	    Type:      "_http",
//	    Protocol:  dnssd.TCP,
//	    Port:      8080,
//	    Addresses: []net.IP{myIP},
//	    TXT:       map[string]*string{"path": dnssd.TXTString("/")},
//	}
//	err := dnssd.Advertise(ctx, svc, transports)
//
// Advertise blocks until ctx is canceled (returning nil) or renaming is
// exhausted (errors.RenameExhaustedError); a NameTaken conflict during
// probing renames the instance with a " (N)" suffix and retries, and a lost
// simultaneous-probe tie-break waits one second before retrying with the
// same name.
//
// # Browsing
//
//	services, err := dnssd.Browse(ctx, dnssd.BrowseConfig{Type: "_http", Protocol: dnssd.TCP}, transports)
//	for svc := range services {
//	    fmt.Printf("%+v\n", svc)
//	}
//
// Browse emits a Service once its SRV, TXT, and address records are all
// known, and again with IsActive=false when its address record expires or
// is flushed. The channel closes when ctx is canceled.
//
// TXT attributes are tri-state on the wire (a bare "key", an explicit
// "key=", and "key=value" are distinct); both ServiceConfig.TXT and
// Service.TXT preserve the distinction as map[string]*string, with a nil
// value meaning the bare-key form.
package dnssd
