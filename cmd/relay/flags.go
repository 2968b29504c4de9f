package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/flags"
	"mercator-hq/relay/pkg/listenable"
	"mercator-hq/relay/pkg/networkusage/repository"
	"mercator-hq/relay/pkg/relay"
	"mercator-hq/relay/pkg/transport"
)

// declaredFlag describes a runtime flag read by the daemon.
type declaredFlag struct {
	name  string
	kind  string
	def   string
	parse func(raw string) error
}

func declare[T any](f flags.Flag[T]) declaredFlag {
	return declaredFlag{
		name: f.Name(),
		kind: f.Kind(),
		def:  fmt.Sprint(f.Default()),
		parse: func(raw string) error {
			_, err := f.Parse(raw)
			return err
		},
	}
}

// declaredFlags lists every flag the daemon reads.
func declaredFlags() []declaredFlag {
	return []declaredFlag{
		declare(relay.ReadyHandlerFlag),
		declare(relay.ThrottleFlag),
		declare(relay.DirectSinkFlag),
		declare(relay.ConnectTimeoutFlag),
		declare(relay.ReadTimeoutFlag),
		declare(relay.WriteTimeoutFlag),
		declare(relay.IdleTimeoutFlag),
		declare(transport.IdleTimeoutFlag),
		declare(repository.EnabledFlag),
		declare(repository.LogUnrecognizedFlag),
	}
}

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Inspect runtime flags",
	Long: `Inspect the runtime flags read from the flag file and RELAY_* environment
overrides. The daemon reloads the flag file while running.`,
}

var flagsGetFlags struct {
	output string
}

var flagsGetCmd = &cobra.Command{
	Use:   "get [name...]",
	Short: "Show effective flag values",
	Long: `Show the effective value of each named flag, or of every declared flag and
every property set in the flag file when no name is given. Flags that are
not set show their default.

Examples:
  relay flags get
  relay flags get Relay__streaming_throttle_ms --output json`,
	RunE: runFlagsGet,
}

func init() {
	rootCmd.AddCommand(flagsCmd)
	flagsCmd.AddCommand(flagsGetCmd)

	flagsGetCmd.Flags().StringVarP(&flagsGetFlags.output, "output", "o", "text", "output format (text, json, csv)")
}

func runFlagsGet(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(flagsGetFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	kv, err := effectiveFlags(cfg, args)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), kv)
}

// effectiveFlags resolves names against the configured flag file with
// environment overrides. Unset declared flags report their default.
func effectiveFlags(cfg *config.Config, names []string) (cli.KeyValues, error) {
	file, err := flags.NewFileStore(flags.FileStoreConfig{Path: cfg.Flags.File})
	if err != nil {
		return cli.KeyValues{}, cli.NewConfigError("flags.file", err.Error())
	}
	defer file.Close()

	m := flags.NewManager(flags.NewEnvStore(file), listenable.Immediate())
	defer m.Close()

	defaults := make(map[string]string)
	upper := make(map[string]bool)
	for _, f := range declaredFlags() {
		defaults[f.name] = f.def
		upper[strings.ToUpper(f.name)] = true
	}

	values := m.Snapshot()
	if len(names) == 0 {
		for name := range defaults {
			names = append(names, name)
		}
		for name := range values {
			// Environment overrides of declared flags are keyed upper case.
			if _, ok := defaults[name]; !ok && !upper[name] {
				names = append(names, name)
			}
		}
		slices.Sort(names)
	}

	kv := cli.KeyValues{Names: names, Values: make(map[string]string, len(names))}
	for _, name := range names {
		if raw, ok := m.Raw(name); ok {
			kv.Values[name] = raw
			continue
		}
		if def, ok := defaults[name]; ok {
			kv.Values[name] = def + " (default)"
			continue
		}
		return cli.KeyValues{}, cli.NewConfigError(name, "unknown flag")
	}
	return kv, nil
}
