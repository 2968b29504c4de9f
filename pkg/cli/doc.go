// Package cli holds helpers shared by the relay commands: output
// formatting (text, JSON, CSV), byte progress for downloads, typed command
// errors with exit codes, and signal handling.
//
//	ctx, stop := cli.SetupSignalHandler(context.Background())
//	defer stop()
//
//	formatter := cli.NewFormatter(cli.FormatJSON)
//	if err := formatter.FormatTo(os.Stdout, cli.KeyValues{...}); err != nil {
//	    return err
//	}
package cli
