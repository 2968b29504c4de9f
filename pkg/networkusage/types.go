package networkusage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ConnectionType is the kind of network access being performed.
type ConnectionType int

const (
	ConnectionTypeUnknown ConnectionType = iota
	ConnectionTypeHTTP
	ConnectionTypePIR
	ConnectionTypeFCCheckIn
	ConnectionTypeFCTrainingStartQuery
	ConnectionTypeFCTrainingResultUpload
	ConnectionTypePD
)

var connectionTypeNames = map[ConnectionType]string{
	ConnectionTypeUnknown:                "UNKNOWN",
	ConnectionTypeHTTP:                   "HTTP",
	ConnectionTypePIR:                    "PIR",
	ConnectionTypeFCCheckIn:              "FC_CHECK_IN",
	ConnectionTypeFCTrainingStartQuery:   "FC_TRAINING_START_QUERY",
	ConnectionTypeFCTrainingResultUpload: "FC_TRAINING_RESULT_UPLOAD",
	ConnectionTypePD:                     "PD",
}

// ConnectionTypes lists every known type, UNKNOWN last.
var ConnectionTypes = []ConnectionType{
	ConnectionTypeHTTP,
	ConnectionTypePIR,
	ConnectionTypeFCCheckIn,
	ConnectionTypeFCTrainingStartQuery,
	ConnectionTypeFCTrainingResultUpload,
	ConnectionTypePD,
	ConnectionTypeUnknown,
}

// String returns the upper-case type name.
func (t ConnectionType) String() string {
	if name, ok := connectionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ConnectionType(%d)", int(t))
}

// ParseConnectionType parses an upper-case type name.
func ParseConnectionType(s string) (ConnectionType, error) {
	for t, name := range connectionTypeNames {
		if name == s {
			return t, nil
		}
	}
	return ConnectionTypeUnknown, fmt.Errorf("unknown connection type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t ConnectionType) MarshalText() ([]byte, error) {
	if _, ok := connectionTypeNames[t]; !ok {
		return nil, fmt.Errorf("invalid connection type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ConnectionType) UnmarshalText(text []byte) error {
	parsed, err := ParseConnectionType(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// URLKeyed reports whether keys of this type carry a URL pattern.
func (t ConnectionType) URLKeyed() bool {
	return t == ConnectionTypeHTTP || t == ConnectionTypePIR
}

// ConnectionKey identifies a connection within its type. Exactly the field
// that belongs to Type is set: URLRegex for HTTP and PIR, FeatureName for
// FC_TRAINING_START_QUERY, ClientID for PD, none otherwise.
//
// In a policy entry URLRegex is a pattern; in a lookup it holds the
// concrete URL being requested.
type ConnectionKey struct {
	Type        ConnectionType `json:"type"`
	URLRegex    string         `json:"url_regex,omitempty"`
	FeatureName string         `json:"feature_name,omitempty"`
	ClientID    string         `json:"client_id,omitempty"`
}

// HTTPKey returns an HTTP key.
func HTTPKey(urlRegex string) ConnectionKey {
	return ConnectionKey{Type: ConnectionTypeHTTP, URLRegex: urlRegex}
}

// PIRKey returns a PIR key.
func PIRKey(urlRegex string) ConnectionKey {
	return ConnectionKey{Type: ConnectionTypePIR, URLRegex: urlRegex}
}

// FCTrainingStartQueryKey returns a key for a federated training query.
func FCTrainingStartQueryKey(featureName string) ConnectionKey {
	return ConnectionKey{Type: ConnectionTypeFCTrainingStartQuery, FeatureName: featureName}
}

// PDKey returns a key for a protected download client.
func PDKey(clientID string) ConnectionKey {
	return ConnectionKey{Type: ConnectionTypePD, ClientID: clientID}
}

// EmptyKey returns the key of a type that carries no identifier.
func EmptyKey(t ConnectionType) ConnectionKey {
	return ConnectionKey{Type: t}
}

// Value returns the identifying field of the key.
func (k ConnectionKey) Value() string {
	switch k.Type {
	case ConnectionTypeHTTP, ConnectionTypePIR:
		return k.URLRegex
	case ConnectionTypeFCTrainingStartQuery:
		return k.FeatureName
	case ConnectionTypePD:
		return k.ClientID
	default:
		return ""
	}
}

// String returns "TYPE" or "TYPE:value".
func (k ConnectionKey) String() string {
	if v := k.Value(); v != "" {
		return k.Type.String() + ":" + v
	}
	return k.Type.String()
}

// ConnectionDetails describes a connection that can appear in the audit
// log. Key.Type always equals Type.
type ConnectionDetails struct {
	Key         ConnectionKey  `json:"key"`
	Type        ConnectionType `json:"type"`
	PackageName string         `json:"package_name"`
}

// Status is the outcome of an audited connection.
type Status int

const (
	StatusSucceeded Status = iota + 1
	StatusFailed
)

// String returns "SUCCEEDED" or "FAILED".
func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "SUCCEEDED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus parses a status name.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCEEDED":
		return StatusSucceeded, nil
	case "FAILED":
		return StatusFailed, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Entity is one immutable audit record. Build it with the New*Entity
// constructors, which stamp CreationTime. Storage assigns ID on insert.
type Entity struct {
	ID                int64             `json:"id"`
	ConnectionDetails ConnectionDetails `json:"connection_details"`
	URL               string            `json:"url,omitempty"`
	Status            Status            `json:"status"`
	DownloadSize      int64             `json:"download_size"`
	UploadSize        int64             `json:"upload_size"`
	CreationTime      time.Time         `json:"creation_time"`
	FCRunID           int64             `json:"fc_run_id"`
	PolicyProto       []byte            `json:"policy_proto,omitempty"`
}

// Query filters audit records.
type Query struct {
	// Time range
	Since *time.Time `json:"since,omitempty"` // Inclusive
	Until *time.Time `json:"until,omitempty"` // Exclusive

	// Filters
	Type        *ConnectionType `json:"type,omitempty"`
	Status      Status          `json:"status,omitempty"` // 0 matches any
	PackageName string          `json:"package_name,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder is "asc" or "desc" by creation time. Default "desc".
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage persists audit records. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Store persists entity and assigns its ID.
	Store(ctx context.Context, entity *Entity) error

	// Query returns the records matching q, or an empty slice.
	Query(ctx context.Context, q *Query) ([]*Entity, error)

	// Count returns the number of records matching q.
	Count(ctx context.Context, q *Query) (int64, error)

	// DeleteBefore removes records created strictly before t and returns
	// how many were removed.
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)

	// Close releases the backend.
	Close() error
}
