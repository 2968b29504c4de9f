package networkusage

import "fmt"

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory")
	Operation string // Operation that failed ("store", "query", "delete", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// ValidationError reports an argument rejected by an entity or
// connection details constructor.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// UnrecognizedRequestError is returned when a connection has no policy
// entry and the repository rejects it.
type UnrecognizedRequestError struct {
	Type ConnectionType
	Key  ConnectionKey
}

// Error implements the error interface.
func (e *UnrecognizedRequestError) Error() string {
	switch e.Type {
	case ConnectionTypeHTTP, ConnectionTypePIR:
		return fmt.Sprintf("Unrecognized request for url '%s'", e.Key.URLRegex)
	case ConnectionTypeFCTrainingStartQuery:
		return fmt.Sprintf("Unrecognized request for feature name '%s'", e.Key.FeatureName)
	case ConnectionTypePD:
		return fmt.Sprintf("Unrecognized request for client id '%s'", e.Key.ClientID)
	default:
		return fmt.Sprintf("Unrecognized %s request", e.Type)
	}
}

// UnrecognizedRequestForURL returns the error for an unknown URL.
func UnrecognizedRequestForURL(url string) *UnrecognizedRequestError {
	return &UnrecognizedRequestError{Type: ConnectionTypeHTTP, Key: HTTPKey(url)}
}

// UnrecognizedRequestForFeatureName returns the error for an unknown
// federated feature.
func UnrecognizedRequestForFeatureName(featureName string) *UnrecognizedRequestError {
	return &UnrecognizedRequestError{
		Type: ConnectionTypeFCTrainingStartQuery,
		Key:  FCTrainingStartQueryKey(featureName),
	}
}

// RecorderError represents an error while recording an entity.
type RecorderError struct {
	Key   string // Connection key of the entity
	Cause error  // Underlying error
}

// Error implements the error interface.
func (e *RecorderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("recorder error [key=%s]: %v", e.Key, e.Cause)
	}
	return fmt.Sprintf("recorder error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RecorderError) Unwrap() error {
	return e.Cause
}

// NewRecorderError creates a new RecorderError.
func NewRecorderError(key string, cause error) *RecorderError {
	return &RecorderError{Key: key, Cause: cause}
}

// RetentionError represents an error during retention enforcement.
type RetentionError struct {
	RetentionDays int   // Configured retention period
	Cause         error // Underlying error
}

// Error implements the error interface.
func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention error [retention_days=%d]: %v", e.RetentionDays, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RetentionError) Unwrap() error {
	return e.Cause
}

// NewRetentionError creates a new RetentionError.
func NewRetentionError(retentionDays int, cause error) *RetentionError {
	return &RetentionError{RetentionDays: retentionDays, Cause: cause}
}

// ExportError represents an error while exporting records.
type ExportError struct {
	Format      string // Export format ("json", "csv")
	RecordCount int    // Number of records being exported
	Cause       error  // Underlying error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, record_count=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{Format: format, RecordCount: recordCount, Cause: cause}
}
