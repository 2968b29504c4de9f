package relay

import (
	"time"

	"mercator-hq/relay/pkg/configreader"
	"mercator-hq/relay/pkg/flags"
)

// FlagPrefix is shared by every relay flag.
const FlagPrefix = "Relay__"

var (
	// ReadyHandlerFlag selects ready-driven streaming over push streaming.
	ReadyHandlerFlag = flags.Bool(FlagPrefix+"enable_ready_handler", true)

	// ThrottleFlag is the pause, in milliseconds, after every 16 MiB sent
	// in-band. Zero disables throttling.
	ThrottleFlag = flags.Int32(FlagPrefix+"streaming_throttle_ms", 0)

	// DirectSinkFlag allows writing the body to a client-supplied sink.
	DirectSinkFlag = flags.Bool(FlagPrefix+"direct_sink_enabled", false)

	ConnectTimeoutFlag = flags.Int32(FlagPrefix+"connect_timeout_ms", 10000)
	ReadTimeoutFlag    = flags.Int32(FlagPrefix+"read_timeout_ms", 30000)
	WriteTimeoutFlag   = flags.Int32(FlagPrefix+"write_timeout_ms", 30000)
	IdleTimeoutFlag    = flags.Int32(FlagPrefix+"idle_timeout_ms", 90000)
)

// Config is the relay flag snapshot. A call captures it once, before
// validation, and uses it throughout.
type Config struct {
	ReadyHandlerEnabled bool
	ThrottleMs          int32
	DirectSinkEnabled   bool
	Timeouts            Timeouts
}

// Timeouts configures the upstream HTTP client.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
	Idle    time.Duration
}

// NewConfigReader returns a reader refreshed whenever a Relay__ flag
// changes in m.
func NewConfigReader(m *flags.Manager) *configreader.Reader[Config] {
	r := configreader.New(func() Config {
		return Config{
			ReadyHandlerEnabled: flags.Get(m, ReadyHandlerFlag),
			ThrottleMs:          flags.Get(m, ThrottleFlag),
			DirectSinkEnabled:   flags.Get(m, DirectSinkFlag),
			Timeouts: Timeouts{
				Connect: millis(flags.Get(m, ConnectTimeoutFlag)),
				Read:    millis(flags.Get(m, ReadTimeoutFlag)),
				Write:   millis(flags.Get(m, WriteTimeoutFlag)),
				Idle:    millis(flags.Get(m, IdleTimeoutFlag)),
			},
		}
	})
	configreader.BindPrefix(r, m.Listenable(), FlagPrefix)
	return r
}

// millis converts a flag value; non-positive values disable the timeout.
func millis(ms int32) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
