package transport

import (
	"time"

	"mercator-hq/relay/pkg/configreader"
	"mercator-hq/relay/pkg/flags"
)

// FlagPrefix is shared by every transport flag.
const FlagPrefix = "Transport__"

// IdleTimeoutFlag bounds how long a new connection may take to send its
// request.
var IdleTimeoutFlag = flags.Int32(FlagPrefix+"idle_timeout_seconds", 60)

// Config is the flag snapshot used by the server.
type Config struct {
	IdleTimeout time.Duration
}

// NewConfigReader returns a reader refreshed whenever a Transport__ flag
// changes in m.
func NewConfigReader(m *flags.Manager) *configreader.Reader[Config] {
	r := configreader.New(func() Config {
		seconds := flags.Get(m, IdleTimeoutFlag)
		if seconds <= 0 {
			seconds = IdleTimeoutFlag.Default()
		}
		return Config{IdleTimeout: time.Duration(seconds) * time.Second}
	})
	configreader.BindPrefix(r, m.Listenable(), FlagPrefix)
	return r
}
