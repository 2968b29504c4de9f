package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - policy gated download relay",
	Long: `Relay performs HTTPS downloads on behalf of sandboxed clients.

Clients connect to the daemon over a Unix socket and receive the response
as a stream of frames, or have it written straight into a file they pass
along with the request. Every request is checked against the network usage
policy table, and outcomes of recognized downloads are written to an audit
log.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == runCmd {
			return nil
		}
		level := "warn"
		if verbose {
			level = "debug"
		}
		_, err := logging.Setup(logging.Config{Level: level, Format: "text", Writer: cmd.ErrOrStderr()})
		return err
	},
}

// Execute runs the root command and exits with a code derived from the
// returned error.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and RELAY_* environment when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the configuration named by --config with environment
// overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		field := "config"
		if cfgFile != "" {
			field = cfgFile
		}
		return nil, cli.NewConfigError(field, err.Error())
	}
	slog.Debug("configuration loaded", "path", cfgFile)
	return cfg, nil
}

// commandContext returns the context cobra was executed with.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
