package status

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type probe struct {
	URL string `cbor:"url"`
}

func (probe) TypeName() string { return "test.Probe" }

func TestStatus_ErrNilForOK(t *testing.T) {
	if err := New(OK, "").Err(); err != nil {
		t.Errorf("OK Err() = %v, want nil", err)
	}
	var s *Status
	if err := s.Err(); err != nil {
		t.Errorf("nil Err() = %v, want nil", err)
	}
}

func TestFromError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Errorf(InvalidArgument, "bad %s", "url"))

	tests := []struct {
		name    string
		err     error
		code    Code
		message string
	}{
		{"nil", nil, OK, ""},
		{"status", wrapped, InvalidArgument, "bad url"},
		{"cancel", context.Canceled, Cancelled, context.Canceled.Error()},
		{"other", errors.New("boom"), Unknown, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := FromError(tt.err)
			if s.Code != tt.code {
				t.Errorf("Code = %v, want %v", s.Code, tt.code)
			}
			if s.Message != tt.message {
				t.Errorf("Message = %q, want %q", s.Message, tt.message)
			}
		})
	}
}

func TestStatus_PackUnpackDetail(t *testing.T) {
	s, err := New(InvalidArgument, "rejected").WithDetails(probe{URL: "https://x"})
	if err != nil {
		t.Fatalf("WithDetails() failed: %v", err)
	}
	if len(s.Details) != 1 || s.Details[0].TypeURL != "type.relay.dev/test.Probe" {
		t.Fatalf("Details = %+v", s.Details)
	}

	var got probe
	found, err := s.Unpack(TypeURL(probe{}), &got)
	if err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	if !found || got.URL != "https://x" {
		t.Errorf("Unpack() = %v, %+v", found, got)
	}

	found, err = s.Unpack(TypeURLPrefix+"other", &got)
	if err != nil || found {
		t.Errorf("Unpack(other) = %v, %v; want false, nil", found, err)
	}
}

func TestCode_String(t *testing.T) {
	if Unavailable.String() != "Unavailable" {
		t.Errorf("String() = %q", Unavailable.String())
	}
	if Code(99).String() != "Code(99)" {
		t.Errorf("String() = %q", Code(99).String())
	}
}
