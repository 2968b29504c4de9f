package relay

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/relay/pkg/configreader"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/transport"
)

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithTLSConfig sets the TLS configuration of the upstream client.
func WithTLSConfig(cfg *tls.Config) FetcherOption {
	return func(f *Fetcher) { f.tlsConfig = cfg }
}

// Fetcher performs upstream requests. Its HTTP client is rebuilt whenever
// the relay timeouts change.
type Fetcher struct {
	tlsConfig *tls.Config
	logger    *slog.Logger

	mu       sync.RWMutex
	client   *http.Client
	timeouts Timeouts

	unbind func()
}

// NewFetcher creates a fetcher configured from reader and subscribed to its
// changes.
func NewFetcher(reader *configreader.Reader[Config], opts ...FetcherOption) *Fetcher {
	f := &Fetcher{logger: slog.Default().With("component", "relay.fetcher")}
	for _, opt := range opts {
		opt(f)
	}
	f.rebuild(reader.GetConfig().Timeouts)
	f.unbind = reader.Listenable().AddListener(func(next, previous Config) {
		if next.Timeouts != previous.Timeouts {
			f.rebuild(next.Timeouts)
		}
	})
	return f
}

func (f *Fetcher) rebuild(t Timeouts) {
	dialer := &net.Dialer{Timeout: t.Connect, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, read: t.Read, write: t.Write}, nil
		},
		TLSClientConfig:     f.tlsConfig,
		TLSHandshakeTimeout: t.Connect,
		IdleConnTimeout:     t.Idle,
		MaxIdleConns:        32,
		ForceAttemptHTTP2:   true,
	}

	f.mu.Lock()
	old := f.client
	f.client = &http.Client{Transport: tr}
	f.timeouts = t
	f.mu.Unlock()

	if old != nil {
		old.CloseIdleConnections()
		f.logger.Info("upstream client rebuilt",
			"connect_timeout", t.Connect.String(),
			"read_timeout", t.Read.String(),
			"write_timeout", t.Write.String(),
			"idle_timeout", t.Idle.String(),
		)
	}
}

// Timeouts returns the timeouts of the current client.
func (f *Fetcher) Timeouts() Timeouts {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.timeouts
}

// Fetch issues a GET for url with the given request headers. The caller
// closes the response body.
func (f *Fetcher) Fetch(ctx context.Context, url string, headers []transport.Property) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for _, p := range headers {
		for _, v := range p.Values {
			req.Header.Add(p.Key, v)
		}
	}
	tracing.Inject(ctx, req.Header)

	f.mu.RLock()
	client := f.client
	f.mu.RUnlock()
	return client.Do(req)
}

// Close unsubscribes from config changes and drops idle connections.
func (f *Fetcher) Close() {
	if f.unbind != nil {
		f.unbind()
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	f.client.CloseIdleConnections()
}

// deadlineConn bounds each individual read and write, so a stalled upstream
// fails after the timeout while a slow but progressing one does not.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
