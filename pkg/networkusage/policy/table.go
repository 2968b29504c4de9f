// Package policy holds the table of network connections a relay may
// perform, with the human-readable feature information shown next to
// their audit records.
package policy

import (
	"fmt"
	"regexp"

	"mercator-hq/relay/pkg/networkusage"
)

// Entry is one allowed connection.
type Entry struct {
	Details     networkusage.ConnectionDetails
	FeatureName string
	Description string

	re *regexp.Regexp
}

// Matches reports whether key is covered by the entry. URL keys must
// fully match the entry's pattern; feature names and client ids must be
// equal; types without a key match on type alone.
func (e *Entry) Matches(key networkusage.ConnectionKey) bool {
	if key.Type != e.Details.Type {
		return false
	}
	switch {
	case e.Details.Type.URLKeyed():
		return e.re != nil && e.re.MatchString(key.URLRegex)
	default:
		return e.Details.Key.Value() == key.Value()
	}
}

// Table is an immutable, ordered set of entries grouped by type.
type Table struct {
	byType map[networkusage.ConnectionType][]*Entry
	size   int
}

// NewTable validates entries and builds a table. Entries keep their order
// within a type, and the first match wins.
func NewTable(entries []Entry) (*Table, error) {
	t := &Table{byType: map[networkusage.ConnectionType][]*Entry{}}
	for i := range entries {
		e := entries[i]
		if err := compileEntry(&e); err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, e.Details.Key, err)
		}
		t.byType[e.Details.Type] = append(t.byType[e.Details.Type], &e)
		t.size++
	}
	return t, nil
}

func compileEntry(e *Entry) error {
	d := e.Details
	if d.Type == networkusage.ConnectionTypeUnknown {
		return fmt.Errorf("connection type must not be UNKNOWN")
	}
	if d.Key.Type != d.Type {
		return fmt.Errorf("key type %s does not match connection type %s", d.Key.Type, d.Type)
	}
	if d.PackageName == "" {
		return fmt.Errorf("package name must not be empty")
	}
	switch d.Type {
	case networkusage.ConnectionTypeHTTP, networkusage.ConnectionTypePIR,
		networkusage.ConnectionTypeFCTrainingStartQuery, networkusage.ConnectionTypePD:
		if d.Key.Value() == "" {
			return fmt.Errorf("%s entries require a key", d.Type)
		}
	}
	if d.Type.URLKeyed() {
		re, err := regexp.Compile(`^(?:` + d.Key.URLRegex + `)$`)
		if err != nil {
			return fmt.Errorf("invalid url regex: %w", err)
		}
		e.re = re
	}
	return nil
}

// Match returns the first entry of type t covering key.
func (t *Table) Match(ct networkusage.ConnectionType, key networkusage.ConnectionKey) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	for _, e := range t.byType[ct] {
		if e.Matches(key) {
			return *e, true
		}
	}
	return Entry{}, false
}

// Entries returns all entries of type ct in table order.
func (t *Table) Entries(ct networkusage.ConnectionType) []Entry {
	out := make([]Entry, 0, len(t.byType[ct]))
	for _, e := range t.byType[ct] {
		out = append(out, *e)
	}
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return t.size
}

// MechanismName returns the name of the transfer mechanism used for a
// connection type.
func MechanismName(ct networkusage.ConnectionType) string {
	switch ct {
	case networkusage.ConnectionTypeHTTP:
		return "HTTPS download"
	case networkusage.ConnectionTypePIR:
		return "Private information retrieval"
	case networkusage.ConnectionTypeFCCheckIn,
		networkusage.ConnectionTypeFCTrainingStartQuery,
		networkusage.ConnectionTypeFCTrainingResultUpload:
		return "Federated compute"
	case networkusage.ConnectionTypePD:
		return "Protected download"
	default:
		return "Unknown"
	}
}
