// Package config provides process configuration for the relay.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. Anything that must change without a restart (throttling,
// timeouts, gate toggles) is a flag instead; see package flags.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("relay.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("relay.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RELAY_SECTION_FIELD:
//
//   - RELAY_TRANSPORT_SOCKET_PATH overrides transport.socket_path
//   - RELAY_NETWORK_USAGE_SQLITE_PATH overrides network_usage.sqlite.path
//   - RELAY_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Loading
//
//	cfg, err := config.LoadConfigWithEnvOverrides("relay.yaml")
//	if err != nil {
//	    return err
//	}
//
// The loaded Config is passed explicitly to the components that need it.
//
// # Example Configuration
//
//	transport:
//	  socket_path: "/run/relay/relay.sock"
//	  send_window: 16
//
//	admin:
//	  listen_address: "127.0.0.1:9090"
//
//	network_usage:
//	  policy_file: "/etc/relay/network_usage_policy.yaml"
//	  backend: "sqlite"
//	  sqlite:
//	    path: "/var/lib/relay/network_usage.db"
//	  retention:
//	    days: 30
//	    prune_schedule: "0 3 * * *"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
