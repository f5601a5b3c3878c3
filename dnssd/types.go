package dnssd

import (
	"fmt"
	"net"
	"regexp"

	"github.com/hollowpath/beacon/internal/errors"
	"github.com/hollowpath/beacon/internal/message"
	"github.com/hollowpath/beacon/internal/protocol"
)

// Protocol is the transport protocol half of a DNS-SD service type (RFC
// 6763 §4: "_service._proto.local", proto ∈ {tcp, udp}).
type Protocol int

const (
	TCP Protocol = iota
	UDP
)

func (p Protocol) String() string {
	if p == UDP {
		return "udp"
	}
	return "tcp"
}

var serviceLabelPattern = regexp.MustCompile(`^_[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

// validateServiceLabel validates the "_service" half of a DNS-SD type per
// RFC 6763 §4.1.1: an underscore followed by 1-15 letters, digits, or
// hyphens, not starting or ending with a hyphen.
func validateServiceLabel(label string) error {
	if len(label) < 2 || len(label) > 16 {
		return &errors.ValidationError{Field: "serviceType", Value: label, Message: "service label must be 1-15 characters after the leading underscore"}
	}
	if !serviceLabelPattern.MatchString(label) {
		return &errors.ValidationError{Field: "serviceType", Value: label, Message: "service label must start with '_' and contain only letters, digits, and hyphens, not starting or ending with a hyphen"}
	}
	return nil
}

// ServiceConfig describes a service instance to advertise.
type ServiceConfig struct {
	// Instance is the human-readable service instance name, e.g. "Bob's
	// Printer" (RFC 6763 §4.3: arbitrary printable UTF-8, up to 63 bytes).
	Instance string

	// Type is the service label, e.g. "_http" (RFC 6763 §4.1.1).
	Type string

	// Protocol is TCP or UDP.
	Protocol Protocol

	// Subtypes are optional service subtypes (RFC 6763 §7.1), e.g.
	// "_printer" for a "_http._tcp" service that is specifically a
	// printer.
	Subtypes []string

	// Host is the target hostname for the SRV record, e.g. "myhost.local".
	// If empty, Instance is used to derive one.
	Host string

	// Port is the service port (1-65535).
	Port uint16

	// TXT is the set of DNS-SD TXT attributes to publish (RFC 6763 §6).
	// A nil value publishes the bare key with no "=" (present-no-value); a
	// pointer to the empty string publishes "key=" (present-empty); any
	// other value publishes "key=value". TXTString builds the pointer form.
	TXT map[string]*string

	// Addresses are the host's IPv4 and/or IPv6 addresses, published as A
	// and AAAA records under the SRV target name.
	Addresses []net.IP
}

// Validate checks the fields of a ServiceConfig per RFC 6763 §4's naming
// rules.
func (c ServiceConfig) Validate() error {
	if err := protocol.ValidateInstanceLabel(c.Instance); err != nil {
		return err
	}
	if err := validateServiceLabel(c.Type); err != nil {
		return err
	}
	for _, sub := range c.Subtypes {
		if err := validateServiceLabel(sub); err != nil {
			return &errors.ValidationError{Field: "subtype", Value: sub, Message: err.Error()}
		}
	}
	if c.Host != "" {
		if err := protocol.ValidateName(c.Host); err != nil {
			return err
		}
	}
	if c.Port == 0 {
		return &errors.ValidationError{Field: "port", Value: c.Port, Message: "port must be in range 1-65535"}
	}
	if len(c.Addresses) == 0 {
		return &errors.ValidationError{Field: "addresses", Message: "at least one host address is required"}
	}
	totalTXT := 0
	for k, v := range c.TXT {
		totalTXT += len(k) + 2
		if v != nil {
			totalTXT += len(*v)
		}
	}
	if totalTXT > 1300 {
		return &errors.ValidationError{Field: "txt", Value: totalTXT, Message: "TXT records exceed 1300 bytes per RFC 6763 §6.2"}
	}
	return nil
}

// serviceType renders "_type._proto.local".
func (c ServiceConfig) serviceType() string {
	return fmt.Sprintf("%s._%s.local", c.Type, c.Protocol)
}

// subtypeName renders "<subtype>._sub.<_type>._<proto>.local" per RFC
// 6763 §7.1's subtype PTR convention.
func (c ServiceConfig) subtypeName(sub string) string {
	return fmt.Sprintf("%s._sub.%s", sub, c.serviceType())
}

// instanceLabels returns the full instance discovery name's labels (RFC
// 6763 §4: "<instance>.<_type>._<proto>.local"). The instance component is
// kept as a single label even when it contains dots or spaces, per RFC 6763
// §4.3.
func (c ServiceConfig) instanceLabels() []string {
	return append([]string{c.Instance}, message.SplitLabels(c.serviceType())...)
}

// targetLabels returns the name A/AAAA records (and the SRV target) are
// published under. An explicit Host lets one physical machine host several service
// instances without repeating its address records under each one.
func (c ServiceConfig) targetLabels() []string {
	if c.Host != "" {
		return message.SplitLabels(c.Host)
	}
	return c.instanceLabels()
}

// Service is a discovered service instance reported by Browse.
type Service struct {
	Name     string
	Type     string
	Subtypes []string
	Protocol Protocol
	Host     string
	Port     uint16
	// TXT holds the instance's resolved attributes in the same tri-state
	// form ServiceConfig.TXT uses: a nil value is a bare key with no "=",
	// a pointer to the empty string is "key=", anything else is
	// "key=value".
	TXT      map[string]*string
	IsActive bool
}

// TXTString returns a pointer to s, for building ServiceConfig.TXT values:
// TXT: map[string]*string{"path": dnssd.TXTString("/")}.
func TXTString(s string) *string { return &s }
