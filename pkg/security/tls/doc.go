/*
Package tls builds the TLS client configuration used by the relay for
upstream HTTPS downloads.

Extra trusted roots are added to the system pool, the minimum version
defaults to TLS 1.2, and an optional client certificate is presented to
upstreams that ask for one. The client certificate is reloaded when its
files change so it can be rotated without restarting the daemon.

	cfg := &tls.Config{
		CAFile:     "/etc/relay/ca.pem",
		MinVersion: "1.3",
		CertFile:   "/etc/relay/client.crt",
		KeyFile:    "/etc/relay/client.key",
	}
	tlsConfig, reloader, err := cfg.ToTLSConfig()
	if err != nil {
		return err
	}
	if reloader != nil {
		if err := reloader.Start(ctx); err != nil {
			return err
		}
	}
	fetcher := relay.NewFetcher(reader, relay.WithTLSConfig(tlsConfig))
*/
package tls
