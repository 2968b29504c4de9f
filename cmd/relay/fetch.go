package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/relay"
	"mercator-hq/relay/pkg/transport"
	"mercator-hq/relay/pkg/transport/status"
)

var fetchFlags struct {
	out     string
	direct  bool
	socket  string
	headers []string
	quiet   bool
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a URL through a running relay",
	Long: `Download a URL through the relay daemon listening on the transport socket.

The body is written to --out, or to standard output. With --direct the
output file is handed to the daemon, which writes the body into it itself
when the Relay__direct_sink_enabled flag is on.

Examples:
  # Print a small file
  relay fetch https://cdn.example.com/manifest.json

  # Save to a file with progress
  relay fetch https://cdn.example.com/model.bin --out model.bin

  # Let the daemon write the file
  relay fetch https://cdn.example.com/model.bin --out model.bin --direct

  # Send a request header
  relay fetch https://cdn.example.com/model.bin -H "Range: bytes=0-1023"`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&fetchFlags.out, "out", "o", "", "output file (default stdout)")
	fetchCmd.Flags().BoolVar(&fetchFlags.direct, "direct", false, "pass the output file to the daemon as a direct sink")
	fetchCmd.Flags().StringVar(&fetchFlags.socket, "socket", "", "transport socket path (default from config)")
	fetchCmd.Flags().StringArrayVarP(&fetchFlags.headers, "header", "H", nil, "request header as 'Name: value' (repeatable)")
	fetchCmd.Flags().BoolVarP(&fetchFlags.quiet, "quiet", "q", false, "do not report progress")
}

func runFetch(cmd *cobra.Command, args []string) error {
	socket := fetchFlags.socket
	if socket == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		socket = cfg.Transport.SocketPath
	}

	headers, err := parseHeaders(fetchFlags.headers)
	if err != nil {
		return err
	}
	if fetchFlags.direct && fetchFlags.out == "" {
		return cli.NewConfigError("--direct", "a direct sink requires --out")
	}

	var (
		out  io.Writer = cmd.OutOrStdout()
		file *os.File
	)
	if fetchFlags.out != "" {
		file, err = os.Create(fetchFlags.out)
		if err != nil {
			return cli.NewCommandError("fetch", err)
		}
		defer file.Close()
		out = file
	}
	var sink *os.File
	if fetchFlags.direct {
		sink = file
	}

	var progress *cli.ByteProgress
	if !fetchFlags.quiet && fetchFlags.out != "" {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
	}

	received, err := download(commandContext(cmd), transport.NewClient(socket), &transport.DownloadRequest{
		URL:     args[0],
		Headers: headers,
	}, sink, out, progress)
	if err != nil {
		if progress != nil {
			progress.Error(err)
		}
		return cli.NewCommandError("fetch", err)
	}

	if fetchFlags.out != "" && !fetchFlags.quiet {
		if sink != nil && received == 0 {
			if fi, statErr := file.Stat(); statErr == nil {
				received = fi.Size()
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "saved %d bytes to %s\n", received, fetchFlags.out)
	}
	return nil
}

// download runs one call and copies chunk frames to out. It returns the
// number of body bytes received in band. progress may be nil.
func download(ctx context.Context, client *transport.Client, req *transport.DownloadRequest,
	sink *os.File, out io.Writer, progress *cli.ByteProgress) (int64, error) {
	stream, err := client.Download(ctx, req, sink)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	var received int64
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return received, nil
		}
		if err != nil {
			return received, describeCallError(err)
		}

		switch ev.Type {
		case transport.FrameHeaders:
			if progress != nil {
				progress.Start(contentLength(ev.Headers.Headers))
			}
		case transport.FrameChunk:
			if _, err := out.Write(ev.Chunk); err != nil {
				return received, err
			}
			received += int64(len(ev.Chunk))
			if progress != nil {
				progress.Update(received)
			}
		case transport.FrameTrailer:
			if progress != nil {
				progress.Finish()
			}
		}
	}
}

// describeCallError turns a policy rejection into a readable error.
func describeCallError(err error) error {
	st := status.FromError(err)
	var rejected relay.UnrecognizedURL
	if ok, _ := st.Unpack(status.TypeURL(rejected), &rejected); ok {
		return fmt.Errorf("%s is not recognized by the network usage policy: %w", rejected.URL, err)
	}
	return err
}

func parseHeaders(raw []string) ([]transport.Property, error) {
	var props []transport.Property
	index := make(map[string]int)
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, cli.NewConfigError("--header", fmt.Sprintf("invalid header %q, want 'Name: value'", h))
		}
		key := strings.ToLower(name)
		if i, seen := index[key]; seen {
			props[i].Values = append(props[i].Values, strings.TrimSpace(value))
			continue
		}
		index[key] = len(props)
		props = append(props, transport.Property{Key: name, Values: []string{strings.TrimSpace(value)}})
	}
	return props, nil
}

// contentLength returns the Content-Length header value, or -1.
func contentLength(props []transport.Property) int64 {
	for _, p := range props {
		if !strings.EqualFold(p.Key, "Content-Length") || len(p.Values) == 0 {
			continue
		}
		if n, err := strconv.ParseInt(p.Values[0], 10, 64); err == nil {
			return n
		}
	}
	return -1
}
