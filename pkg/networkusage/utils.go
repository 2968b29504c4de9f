package networkusage

import (
	"regexp"
	"time"

	"mercator-hq/relay/pkg/clock"
)

// DefaultPackageName is used for connections not attributed to a client
// package.
const DefaultPackageName = "unknown"

// NoRunID marks an entity that is not part of a federated run.
const NoRunID int64 = -1

// EntityOption adjusts how an entity constructor stamps the record.
type EntityOption func(*entityOptions)

type entityOptions struct {
	clock clock.Clock
	at    time.Time
}

// WithClock takes the creation time from clk.
func WithClock(clk clock.Clock) EntityOption {
	return func(o *entityOptions) { o.clock = clk }
}

// WithCreationTime sets the creation time to t.
func WithCreationTime(t time.Time) EntityOption {
	return func(o *entityOptions) { o.at = t }
}

func creationTime(opts []EntityOption) time.Time {
	o := entityOptions{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.at.IsZero() {
		return o.at
	}
	return o.clock.Now()
}

// NewHTTPConnectionDetails describes an HTTPS download allowed by urlRegex.
func NewHTTPConnectionDetails(urlRegex, packageName string) (ConnectionDetails, error) {
	return urlDetails(ConnectionTypeHTTP, urlRegex, packageName)
}

// NewPIRConnectionDetails describes a private information retrieval
// download allowed by urlRegex.
func NewPIRConnectionDetails(urlRegex, packageName string) (ConnectionDetails, error) {
	return urlDetails(ConnectionTypePIR, urlRegex, packageName)
}

// NewFCCheckInConnectionDetails describes a federated compute check-in.
func NewFCCheckInConnectionDetails() ConnectionDetails {
	return defaultDetails(ConnectionTypeFCCheckIn)
}

// NewFCTrainingResultUploadConnectionDetails describes a federated result
// upload.
func NewFCTrainingResultUploadConnectionDetails() ConnectionDetails {
	return defaultDetails(ConnectionTypeFCTrainingResultUpload)
}

// NewFCTrainingStartQueryConnectionDetails describes the start of a
// federated query for featureName.
func NewFCTrainingStartQueryConnectionDetails(featureName, packageName string) (ConnectionDetails, error) {
	if featureName == "" {
		return ConnectionDetails{}, NewValidationError("feature_name", "must not be empty")
	}
	d, err := packageDetails(ConnectionTypeFCTrainingStartQuery, packageName)
	if err != nil {
		return ConnectionDetails{}, err
	}
	d.Key = FCTrainingStartQueryKey(featureName)
	return d, nil
}

// NewPDConnectionDetails describes a protected download for clientID.
func NewPDConnectionDetails(clientID, packageName string) (ConnectionDetails, error) {
	if clientID == "" {
		return ConnectionDetails{}, NewValidationError("client_id", "must not be empty")
	}
	d, err := packageDetails(ConnectionTypePD, packageName)
	if err != nil {
		return ConnectionDetails{}, err
	}
	d.Key = PDKey(clientID)
	return d, nil
}

// NewHTTPEntity records an HTTPS download of url. url must fully match the
// regex of details.
func NewHTTPEntity(details ConnectionDetails, status Status, size int64, url string, opts ...EntityOption) (*Entity, error) {
	return urlEntity(ConnectionTypeHTTP, details, status, size, url, opts)
}

// NewPIREntity records a PIR download of url.
func NewPIREntity(details ConnectionDetails, status Status, size int64, url string, opts ...EntityOption) (*Entity, error) {
	return urlEntity(ConnectionTypePIR, details, status, size, url, opts)
}

// NewFCCheckInEntity records a successful check-in of size bytes.
func NewFCCheckInEntity(size int64, opts ...EntityOption) (*Entity, error) {
	return newEntity(NewFCCheckInConnectionDetails(), StatusSucceeded, size, opts)
}

// NewFCTrainingResultUploadEntity records the upload of run runID.
func NewFCTrainingResultUploadEntity(runID, size int64, opts ...EntityOption) (*Entity, error) {
	e, err := newEntity(NewFCTrainingResultUploadConnectionDetails(), StatusSucceeded, size, opts)
	if err != nil {
		return nil, err
	}
	e.FCRunID = runID
	return e, nil
}

// NewFCTrainingStartQueryEntity records the start of a federated query
// under the serialized policy.
func NewFCTrainingStartQueryEntity(details ConnectionDetails, runID int64, policy []byte, opts ...EntityOption) (*Entity, error) {
	if err := checkDetails(ConnectionTypeFCTrainingStartQuery, details); err != nil {
		return nil, err
	}
	if len(policy) == 0 {
		return nil, NewValidationError("policy", "must not be empty")
	}
	e, err := newEntity(details, StatusSucceeded, 0, opts)
	if err != nil {
		return nil, err
	}
	e.FCRunID = runID
	e.PolicyProto = append([]byte(nil), policy...)
	return e, nil
}

// NewPDEntity records a protected download exchange.
func NewPDEntity(details ConnectionDetails, status Status, downloadSize, uploadSize int64, opts ...EntityOption) (*Entity, error) {
	if err := checkDetails(ConnectionTypePD, details); err != nil {
		return nil, err
	}
	if uploadSize < 0 {
		return nil, NewValidationError("upload_size", "must not be negative")
	}
	e, err := newEntity(details, status, downloadSize, opts)
	if err != nil {
		return nil, err
	}
	e.UploadSize = uploadSize
	return e, nil
}

func defaultDetails(t ConnectionType) ConnectionDetails {
	return ConnectionDetails{Key: EmptyKey(t), Type: t, PackageName: DefaultPackageName}
}

func packageDetails(t ConnectionType, packageName string) (ConnectionDetails, error) {
	if packageName == "" {
		return ConnectionDetails{}, NewValidationError("package_name", "must not be empty")
	}
	d := defaultDetails(t)
	d.PackageName = packageName
	return d, nil
}

func urlDetails(t ConnectionType, urlRegex, packageName string) (ConnectionDetails, error) {
	if urlRegex == "" {
		return ConnectionDetails{}, NewValidationError("url_regex", "must not be empty")
	}
	d, err := packageDetails(t, packageName)
	if err != nil {
		return ConnectionDetails{}, err
	}
	d.Key = ConnectionKey{Type: t, URLRegex: urlRegex}
	return d, nil
}

func checkDetails(want ConnectionType, details ConnectionDetails) error {
	if details.Type != want {
		return NewValidationError("type", "expected "+want.String()+", got "+details.Type.String())
	}
	if details.Key.Type != want || details.Key.Value() == "" {
		return NewValidationError("key", "expected a "+want.String()+" connection key")
	}
	return nil
}

func urlEntity(t ConnectionType, details ConnectionDetails, status Status, size int64, url string, opts []EntityOption) (*Entity, error) {
	if err := checkDetails(t, details); err != nil {
		return nil, err
	}
	if url == "" {
		return nil, NewValidationError("url", "must not be empty")
	}
	if !FullMatch(details.Key.URLRegex, url) {
		return nil, NewValidationError("url", "does not match "+details.Key.URLRegex)
	}
	e, err := newEntity(details, status, size, opts)
	if err != nil {
		return nil, err
	}
	e.URL = url
	return e, nil
}

func newEntity(details ConnectionDetails, status Status, size int64, opts []EntityOption) (*Entity, error) {
	if status != StatusSucceeded && status != StatusFailed {
		return nil, NewValidationError("status", "must be SUCCEEDED or FAILED")
	}
	if size < 0 {
		return nil, NewValidationError("size", "must not be negative")
	}
	return &Entity{
		ConnectionDetails: details,
		Status:            status,
		DownloadSize:      size,
		CreationTime:      creationTime(opts),
		FCRunID:           NoRunID,
	}, nil
}

// FullMatch reports whether pattern matches the whole of s. An invalid
// pattern matches nothing.
func FullMatch(pattern, s string) bool {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
