package flags

import (
	"maps"
	"os"
	"strings"

	"mercator-hq/relay/pkg/listenable"
)

// EnvPrefix is prepended to the upper-cased flag name to form the
// environment variable that overrides it.
const EnvPrefix = "RELAY_FLAG_"

// EnvStore overlays environment variables on another Store. Environment
// overrides are read on every lookup but do not produce change
// notifications.
type EnvStore struct {
	base      Store
	lookupEnv func(string) (string, bool)
	environ   func() []string
}

// NewEnvStore wraps base.
func NewEnvStore(base Store) *EnvStore {
	return &EnvStore{base: base, lookupEnv: os.LookupEnv, environ: os.Environ}
}

// EnvName returns the environment variable consulted for a flag.
func EnvName(flagName string) string {
	return EnvPrefix + strings.ToUpper(flagName)
}

// Lookup implements Store.
func (s *EnvStore) Lookup(name string) (string, bool) {
	if v, ok := s.lookupEnv(EnvName(name)); ok {
		return v, true
	}
	return s.base.Lookup(name)
}

// Snapshot implements Store. Environment overrides replace base values of
// the same flag; overrides for flags unknown to the base are included
// under their upper-case names.
func (s *EnvStore) Snapshot() map[string]string {
	out := s.base.Snapshot()
	if out == nil {
		out = map[string]string{}
	}
	upper := make(map[string]string, len(out))
	for k := range out {
		upper[strings.ToUpper(k)] = k
	}

	overrides := map[string]string{}
	for _, kv := range s.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(name, EnvPrefix)
		if original, known := upper[key]; known {
			key = original
		}
		overrides[key] = value
	}
	maps.Copy(out, overrides)
	return out
}

// Listenable implements Store by delegating to the base store.
func (s *EnvStore) Listenable() listenable.Listenable[Listener] {
	return s.base.Listenable()
}
