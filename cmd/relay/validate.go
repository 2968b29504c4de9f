package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/flags"
	"mercator-hq/relay/pkg/networkusage"
	"mercator-hq/relay/pkg/networkusage/policy"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, policy table and flag file",
	Long: `Validate the configuration file, the network usage policy table it names
and the values in the flag file, without starting the daemon.

Examples:
  relay validate --config /etc/relay/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return validateAll(cfg, cmd.OutOrStdout())
}

// validateAll checks everything cfg refers to and reports each part to w.
func validateAll(cfg *config.Config, w io.Writer) error {
	fmt.Fprintln(w, "✓ Configuration valid")

	if cfg.NetworkUsage.Enabled {
		table, err := policy.LoadFile(cfg.NetworkUsage.PolicyFile)
		if err != nil {
			return cli.NewConfigError("network_usage.policy_file", err.Error())
		}
		fmt.Fprintf(w, "✓ Policy table valid (%d entries)\n", table.Len())
		for _, ct := range networkusage.ConnectionTypes {
			if n := len(table.Entries(ct)); n > 0 {
				fmt.Fprintf(w, "    %s: %d (%s)\n", ct, n, policy.MechanismName(ct))
			}
		}
	}

	file, err := flags.NewFileStore(flags.FileStoreConfig{Path: cfg.Flags.File})
	if err != nil {
		return cli.NewConfigError("flags.file", err.Error())
	}
	defer file.Close()

	store := flags.NewEnvStore(file)
	var invalid int
	for _, f := range declaredFlags() {
		raw, ok := store.Lookup(f.name)
		if !ok {
			continue
		}
		if err := f.parse(raw); err != nil {
			fmt.Fprintf(w, "✗ %s: %q is not a valid %s\n", f.name, raw, f.kind)
			invalid++
		}
	}
	if invalid > 0 {
		return cli.NewConfigError(cfg.Flags.File, fmt.Sprintf("%d flag values are invalid", invalid))
	}
	fmt.Fprintln(w, "✓ Flag values valid")
	return nil
}
