package repository

import (
	"mercator-hq/relay/pkg/configreader"
	"mercator-hq/relay/pkg/flags"
)

// FlagPrefix is shared by every network usage flag.
const FlagPrefix = "NetworkUsageLog__"

var (
	// EnabledFlag turns audit logging on or off.
	EnabledFlag = flags.Bool(FlagPrefix+"enabled", true)

	// LogUnrecognizedFlag also audits connections with no policy entry.
	LogUnrecognizedFlag = flags.Bool(FlagPrefix+"log_unrecognized", false)
)

// Config is the flag snapshot consulted by the gate.
type Config struct {
	Enabled         bool
	LogUnrecognized bool
}

// NewConfigReader returns a reader refreshed whenever a NetworkUsageLog__
// flag changes in m.
func NewConfigReader(m *flags.Manager) *configreader.Reader[Config] {
	r := configreader.New(func() Config {
		return Config{
			Enabled:         flags.Get(m, EnabledFlag),
			LogUnrecognized: flags.Get(m, LogUnrecognizedFlag),
		}
	})
	configreader.BindPrefix(r, m.Listenable(), FlagPrefix)
	return r
}
