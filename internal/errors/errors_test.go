package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantAll []string
	}{
		{
			name: "network error with details",
			err: &NetworkError{
				Operation: "bind socket",
				Err:       fmt.Errorf("permission denied"),
				Details:   "requires root or CAP_NET_RAW",
			},
			wantAll: []string{"network error", "bind socket", "permission denied", "requires root or CAP_NET_RAW"},
		},
		{
			name: "network error without details",
			err: &NetworkError{
				Operation: "send query",
				Err:       fmt.Errorf("network unreachable"),
			},
			wantAll: []string{"network error", "send query", "network unreachable"},
		},
		{
			name: "validation error with value",
			err: &ValidationError{
				Field:   "name",
				Value:   "host name with spaces.local",
				Message: "invalid characters in hostname",
			},
			wantAll: []string{"validation error", "name", "invalid characters in hostname", "host name with spaces.local"},
		},
		{
			name: "validation error without value",
			err: &ValidationError{
				Field:   "timeout",
				Message: "timeout must be between 100ms and 10s",
			},
			wantAll: []string{"validation error", "timeout", "timeout must be between 100ms and 10s"},
		},
		{
			name: "wire format error with offset and cause",
			err: &WireFormatError{
				Operation: "parse header",
				Offset:    12,
				Message:   "truncated message",
				Err:       fmt.Errorf("unexpected EOF"),
			},
			wantAll: []string{"wire format error", "parse header", "offset 12", "truncated message", "unexpected EOF"},
		},
		{
			name: "wire format error with offset only",
			err: &WireFormatError{
				Operation: "decompress name",
				Offset:    48,
				Message:   "invalid compression pointer",
			},
			wantAll: []string{"wire format error", "decompress name", "offset 48", "invalid compression pointer"},
		},
		{
			name: "wire format error without offset",
			err: &WireFormatError{
				Operation: "validate response",
				Offset:    -1,
				Message:   "QR bit is 0, expected 1",
			},
			wantAll: []string{"wire format error", "validate response", "QR bit is 0"},
		},
		{
			name:    "name taken",
			err:     &NameTakenError{Name: "printer.local"},
			wantAll: []string{"name taken", "printer.local"},
		},
		{
			name:    "simultaneous probe",
			err:     &SimultaneousProbeError{Name: "printer.local"},
			wantAll: []string{"tie-break", "printer.local"},
		},
		{
			name:    "conflict",
			err:     &ConflictError{Name: "printer.local"},
			wantAll: []string{"conflict", "printer.local"},
		},
		{
			name:    "rename exhausted",
			err:     &RenameExhaustedError{Name: "printer.local", Attempts: 15},
			wantAll: []string{"rename exhausted", "printer.local", "15"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, want := range tt.wantAll {
				if !strings.Contains(got, want) {
					t.Errorf("Error() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	underlying := fmt.Errorf("connection refused")

	var err error = &NetworkError{Operation: "connect", Err: underlying}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is(NetworkError, underlying) = false, want true")
	}

	err = &WireFormatError{Operation: "read field", Offset: 10, Message: "not enough bytes", Err: underlying}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is(WireFormatError, underlying) = false, want true")
	}

	// No cause means Unwrap reports nil rather than a wrapped nil interface.
	bare := &WireFormatError{Operation: "validate", Message: "invalid value"}
	if bare.Unwrap() != nil {
		t.Errorf("Unwrap() = %v, want nil", bare.Unwrap())
	}
}

func TestErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("responding: %w", &NameTakenError{Name: "printer.local"})
	var nt *NameTakenError
	if !errors.As(wrapped, &nt) {
		t.Fatal("errors.As(wrapped, *NameTakenError) = false, want true")
	}
	if nt.Name != "printer.local" {
		t.Errorf("Name = %q, want printer.local", nt.Name)
	}

	var err error = &ValidationError{Field: "port", Message: "out of range"}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Error("errors.As(error, *ValidationError) = false, want true")
	}

	if !errors.Is(ErrAborted, ErrAborted) {
		t.Error("errors.Is(ErrAborted, ErrAborted) = false, want true")
	}
}
