package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/networkusage"
	"mercator-hq/relay/pkg/networkusage/export"
	"mercator-hq/relay/pkg/networkusage/storage"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect the network usage audit log",
	Long: `Query and prune the network usage audit log written by the daemon.

These commands open the SQLite audit database named in the configuration
directly, so they work whether or not the daemon is running.`,
}

var usageQueryFlags struct {
	connectionType string
	status         string
	packageName    string
	since          string
	until          string
	limit          int
	offset         int
	format         string
}

var usageQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audited network accesses",
	Long: `List audited network accesses, newest first.

--since and --until take an RFC 3339 timestamp or a duration that is
subtracted from the current time.

Examples:
  # Everything from the last day as JSON
  relay usage query --since 24h

  # Failed HTTP downloads as CSV
  relay usage query --type HTTP --status FAILED --format csv`,
	RunE: runUsageQuery,
}

var usagePurgeFlags struct {
	before    string
	olderThan time.Duration
}

var usagePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete audited network accesses by age",
	Long: `Delete audit records created before a point in time.

Examples:
  # Delete records older than 30 days
  relay usage purge --older-than 720h

  # Delete records created before a timestamp
  relay usage purge --before 2026-01-01T00:00:00Z`,
	RunE: runUsagePurge,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageQueryCmd, usagePurgeCmd)

	f := usageQueryCmd.Flags()
	f.StringVar(&usageQueryFlags.connectionType, "type", "", "connection type (HTTP, PIR, FC_CHECK_IN, FC_TRAINING_START_QUERY, FC_TRAINING_RESULT_UPLOAD, PD)")
	f.StringVar(&usageQueryFlags.status, "status", "", "status (SUCCEEDED, FAILED)")
	f.StringVar(&usageQueryFlags.packageName, "package", "", "package name")
	f.StringVar(&usageQueryFlags.since, "since", "", "include records created at or after this time")
	f.StringVar(&usageQueryFlags.until, "until", "", "include records created before this time")
	f.IntVar(&usageQueryFlags.limit, "limit", 100, "maximum number of records (0 for all)")
	f.IntVar(&usageQueryFlags.offset, "offset", 0, "number of records to skip")
	f.StringVarP(&usageQueryFlags.format, "format", "f", "json", "output format (json, csv)")

	usagePurgeCmd.Flags().StringVar(&usagePurgeFlags.before, "before", "", "delete records created before this RFC 3339 time")
	usagePurgeCmd.Flags().DurationVar(&usagePurgeFlags.olderThan, "older-than", 0, "delete records older than this duration")
	usagePurgeCmd.MarkFlagsMutuallyExclusive("before", "older-than")
	usagePurgeCmd.MarkFlagsOneRequired("before", "older-than")
}

func runUsageQuery(cmd *cobra.Command, args []string) error {
	exporter, err := export.ForFormat(usageQueryFlags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}
	q, err := buildUsageQuery(time.Now())
	if err != nil {
		return err
	}

	st, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	records, err := st.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("usage query", err)
	}
	if err := exporter.Export(ctx, records, cmd.OutOrStdout()); err != nil {
		return cli.NewCommandError("usage query", err)
	}
	return nil
}

func runUsagePurge(cmd *cobra.Command, args []string) error {
	cutoff, err := purgeCutoff(time.Now())
	if err != nil {
		return err
	}

	st, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	deleted, err := st.DeleteBefore(commandContext(cmd), cutoff)
	if err != nil {
		return cli.NewCommandError("usage purge", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d records created before %s\n", deleted, cutoff.Format(time.RFC3339))
	return nil
}

func buildUsageQuery(now time.Time) (*networkusage.Query, error) {
	q := &networkusage.Query{
		PackageName: usageQueryFlags.packageName,
		Limit:       usageQueryFlags.limit,
		Offset:      usageQueryFlags.offset,
		SortOrder:   "desc",
	}
	if s := usageQueryFlags.connectionType; s != "" {
		ct, err := networkusage.ParseConnectionType(strings.ToUpper(s))
		if err != nil {
			return nil, cli.NewConfigError("--type", err.Error())
		}
		q.Type = &ct
	}
	if s := usageQueryFlags.status; s != "" {
		status, err := networkusage.ParseStatus(strings.ToUpper(s))
		if err != nil {
			return nil, cli.NewConfigError("--status", err.Error())
		}
		q.Status = status
	}
	if s := usageQueryFlags.since; s != "" {
		t, err := parseTimeArg(s, now)
		if err != nil {
			return nil, cli.NewConfigError("--since", err.Error())
		}
		q.Since = &t
	}
	if s := usageQueryFlags.until; s != "" {
		t, err := parseTimeArg(s, now)
		if err != nil {
			return nil, cli.NewConfigError("--until", err.Error())
		}
		q.Until = &t
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, cli.NewConfigError("--limit", "limit and offset must be non-negative")
	}
	return q, nil
}

func purgeCutoff(now time.Time) (time.Time, error) {
	if usagePurgeFlags.olderThan > 0 {
		return now.Add(-usagePurgeFlags.olderThan), nil
	}
	if usagePurgeFlags.before == "" {
		return time.Time{}, cli.NewConfigError("--before", "one of --before or --older-than is required")
	}
	t, err := time.Parse(time.RFC3339, usagePurgeFlags.before)
	if err != nil {
		return time.Time{}, cli.NewConfigError("--before", fmt.Sprintf("invalid time %q: want RFC 3339", usagePurgeFlags.before))
	}
	return t, nil
}

// parseTimeArg accepts an RFC 3339 timestamp or a duration before now.
func parseTimeArg(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or a positive duration", s)
	}
	return now.Add(-d), nil
}

// openAuditStorage opens the configured SQLite audit database.
func openAuditStorage() (*storage.SQLiteStorage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openAuditStorageFor(cfg)
}

func openAuditStorageFor(cfg *config.Config) (*storage.SQLiteStorage, error) {
	nu := &cfg.NetworkUsage
	if nu.Backend != "sqlite" {
		return nil, cli.NewConfigError("network_usage.backend",
			fmt.Sprintf("the %q backend keeps no records outside the daemon; use the admin API", nu.Backend))
	}
	st, err := storage.NewSQLiteStorage(sqliteConfig(&nu.SQLite))
	if err != nil {
		return nil, cli.NewCommandError("usage", err)
	}
	return st, nil
}
