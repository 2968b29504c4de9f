package policy

import (
	"fmt"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"mercator-hq/relay/pkg/networkusage"
)

// MaxFileSize bounds the size of a policy file.
const MaxFileSize = 1 << 20

// LoadError reports a policy file that could not be read or parsed.
type LoadError struct {
	FilePath string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("policy file %s: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("policy file %s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

type fileFormat struct {
	Entries []fileEntry `yaml:"entries"`
}

type fileEntry struct {
	Type        string `yaml:"type"`
	Key         string `yaml:"key"`
	PackageName string `yaml:"package_name"`
	Feature     string `yaml:"feature"`
	Description string `yaml:"description"`
}

// LoadFile reads a YAML policy table:
//
//	entries:
//	  - type: HTTP
//	    key: 'https://cdn\.example\.com/models/.*'
//	    package_name: com.example.app
//	    feature: Model downloads
//	    description: Downloads updated on-device models.
func LoadFile(path string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &LoadError{FilePath: path, Message: "not a regular file"}
	}
	if info.Size() > MaxFileSize {
		return nil, &LoadError{
			FilePath: path,
			Message:  fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", info.Size(), MaxFileSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to read file", Cause: err}
	}
	if !utf8.Valid(data) {
		return nil, &LoadError{FilePath: path, Message: "file contains invalid UTF-8 encoding"}
	}

	table, err := Parse(data)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "invalid policy table", Cause: err}
	}
	return table, nil
}

// Parse builds a table from YAML.
func Parse(data []byte) (*Table, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("YAML parsing failed: %w", err)
	}

	entries := make([]Entry, 0, len(f.Entries))
	for i, fe := range f.Entries {
		e, err := fe.toEntry()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return NewTable(entries)
}

func (fe fileEntry) toEntry() (Entry, error) {
	ct, err := networkusage.ParseConnectionType(fe.Type)
	if err != nil {
		return Entry{}, err
	}
	pkg := fe.PackageName
	if pkg == "" {
		pkg = networkusage.DefaultPackageName
	}

	var details networkusage.ConnectionDetails
	switch ct {
	case networkusage.ConnectionTypeHTTP:
		details, err = networkusage.NewHTTPConnectionDetails(fe.Key, pkg)
	case networkusage.ConnectionTypePIR:
		details, err = networkusage.NewPIRConnectionDetails(fe.Key, pkg)
	case networkusage.ConnectionTypeFCTrainingStartQuery:
		details, err = networkusage.NewFCTrainingStartQueryConnectionDetails(fe.Key, pkg)
	case networkusage.ConnectionTypePD:
		details, err = networkusage.NewPDConnectionDetails(fe.Key, pkg)
	case networkusage.ConnectionTypeFCCheckIn:
		details = networkusage.NewFCCheckInConnectionDetails()
	case networkusage.ConnectionTypeFCTrainingResultUpload:
		details = networkusage.NewFCTrainingResultUploadConnectionDetails()
	default:
		err = fmt.Errorf("connection type %s cannot appear in a policy table", ct)
	}
	if err != nil {
		return Entry{}, err
	}
	return Entry{Details: details, FeatureName: fe.Feature, Description: fe.Description}, nil
}
