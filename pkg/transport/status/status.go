// Package status carries the outcome of a transport call: a code, a
// human-readable message and optional typed details.
package status

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/relay/pkg/codec"
)

// TypeURLPrefix prefixes the type URL of every packed detail.
const TypeURLPrefix = "type.relay.dev/"

// Code classifies a call outcome. Values follow the conventional RPC
// status numbering so that logs read the same as other RPC systems.
type Code uint32

const (
	OK              Code = 0
	Cancelled       Code = 1
	Unknown         Code = 2
	InvalidArgument Code = 3
	Internal        Code = 13
	Unavailable     Code = 14
)

var codeNames = map[Code]string{
	OK:              "OK",
	Cancelled:       "Cancelled",
	Unknown:         "Unknown",
	InvalidArgument: "InvalidArgument",
	Internal:        "Internal",
	Unavailable:     "Unavailable",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// Typed is implemented by detail messages that can be packed into an Any.
type Typed interface {
	TypeName() string
}

// Any is a detail message with its type URL.
type Any struct {
	TypeURL string `cbor:"type_url"`
	Value   []byte `cbor:"value"`
}

// TypeURL returns the type URL a detail of type v is packed under.
func TypeURL(v Typed) string {
	return TypeURLPrefix + v.TypeName()
}

// Pack encodes v into an Any.
func Pack(v Typed) (Any, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return Any{}, fmt.Errorf("failed to pack %s: %w", v.TypeName(), err)
	}
	return Any{TypeURL: TypeURL(v), Value: data}, nil
}

// Status is the terminal status of a call.
type Status struct {
	Code    Code   `cbor:"code"`
	Message string `cbor:"message,omitempty"`
	Details []Any  `cbor:"details,omitempty"`
}

// New returns a Status with code and message.
func New(code Code, message string) *Status {
	return &Status{Code: code, Message: message}
}

// Newf returns a Status with a formatted message.
func Newf(code Code, format string, args ...any) *Status {
	return New(code, fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of s with the details appended.
func (s *Status) WithDetails(details ...Typed) (*Status, error) {
	out := &Status{Code: s.Code, Message: s.Message, Details: append([]Any(nil), s.Details...)}
	for _, d := range details {
		packed, err := Pack(d)
		if err != nil {
			return nil, err
		}
		out.Details = append(out.Details, packed)
	}
	return out, nil
}

// Unpack decodes the first detail with the given type URL into v. It
// reports false when no detail has that type URL.
func (s *Status) Unpack(typeURL string, v any) (bool, error) {
	if s == nil {
		return false, nil
	}
	for _, d := range s.Details {
		if d.TypeURL != typeURL {
			continue
		}
		if err := codec.Unmarshal(d.Value, v); err != nil {
			return true, fmt.Errorf("failed to unpack %s: %w", typeURL, err)
		}
		return true, nil
	}
	return false, nil
}

// Err returns s as an error, or nil when the code is OK.
func (s *Status) Err() error {
	if s == nil || s.Code == OK {
		return nil
	}
	return &Error{status: s}
}

func (s *Status) String() string {
	return fmt.Sprintf("code = %s desc = %s", s.Code, s.Message)
}

// Error is an error carrying a non-OK Status.
type Error struct {
	status *Status
}

func (e *Error) Error() string {
	return "rpc error: " + e.status.String()
}

// Status returns the status carried by the error.
func (e *Error) Status() *Status {
	return e.status
}

// Errorf returns an error carrying a Status with a formatted message.
func Errorf(code Code, format string, args ...any) error {
	return Newf(code, format, args...).Err()
}

// FromError converts err into a Status. A nil error is OK; an error
// carrying a Status anywhere in its chain yields that Status; context
// cancellation is Cancelled; anything else is Unknown.
func FromError(err error) *Status {
	if err == nil {
		return New(OK, "")
	}
	var se *Error
	if errors.As(err, &se) {
		return se.status
	}
	switch {
	case errors.Is(err, context.Canceled):
		return New(Cancelled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return New(Unavailable, err.Error())
	}
	return New(Unknown, err.Error())
}

// CodeOf returns the status code of err.
func CodeOf(err error) Code {
	return FromError(err).Code
}
