package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// DefaultReloadInterval is how often a client certificate is checked for
// changes when Config.ReloadInterval is zero.
const DefaultReloadInterval = 5 * time.Minute

// Config describes the TLS client settings used for upstream HTTPS
// downloads. The zero value uses the system roots and Go's defaults.
type Config struct {
	// CAFile is a PEM bundle of extra trusted roots, added to the system
	// pool.
	CAFile string

	// MinVersion is the minimum TLS version ("1.2" or "1.3").
	// Default: "1.2"
	MinVersion string

	// CipherSuites restricts the TLS 1.2 cipher suites. Empty means Go's
	// secure defaults. TLS 1.3 suites cannot be configured.
	CipherSuites []string

	// CertFile and KeyFile hold a client certificate presented to
	// upstreams that request one. Both or neither must be set.
	CertFile string
	KeyFile  string

	// ReloadInterval is how often the client certificate files are checked
	// for changes.
	ReloadInterval time.Duration
}

// IsZero reports whether c leaves every setting at its default.
func (c *Config) IsZero() bool {
	return c.CAFile == "" && c.MinVersion == "" && len(c.CipherSuites) == 0 &&
		c.CertFile == "" && c.KeyFile == ""
}

// ToTLSConfig converts Config to a crypto/tls client config. When a client
// certificate is configured the returned reloader supplies it on every
// handshake and must be started by the caller; otherwise the reloader is
// nil.
func (c *Config) ToTLSConfig() (*tls.Config, *CertificateReloader, error) {
	minVersion, err := parseTLSVersion(c.MinVersion)
	if err != nil {
		return nil, nil, err
	}
	suites, err := parseCipherSuites(c.CipherSuites)
	if err != nil {
		return nil, nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:   minVersion,
		CipherSuites: suites,
	}

	if c.CAFile != "" {
		pool, err := loadCAPool(c.CAFile)
		if err != nil {
			return nil, nil, err
		}
		tlsConfig.RootCAs = pool
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		return nil, nil, fmt.Errorf("cert_file and key_file must be set together")
	}
	var reloader *CertificateReloader
	if c.CertFile != "" {
		interval := c.ReloadInterval
		if interval <= 0 {
			interval = DefaultReloadInterval
		}
		reloader = NewCertificateReloader(c.CertFile, c.KeyFile, interval)
		tlsConfig.GetClientCertificate = reloader.GetClientCertificateFunc()
	}
	return tlsConfig, reloader, nil
}

// loadCAPool returns the system pool with the certificates of path added.
func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in CA file %s", path)
	}
	return pool, nil
}

// parseTLSVersion converts a MinVersion string to a tls.Version constant.
// TLS 1.0 and 1.1 are not supported.
func parseTLSVersion(v string) (uint16, error) {
	switch v {
	case "1.2", "":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q: must be 1.2 or 1.3", v)
	}
}

// parseCipherSuites converts cipher suite names to their IDs. An empty list
// returns nil to use Go's defaults.
func parseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}
	suites := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := cipherSuiteMap[name]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher suite %q", name)
		}
		suites = append(suites, id)
	}
	return suites, nil
}

// cipherSuiteMap maps cipher suite names to their tls package constants.
// Only secure TLS 1.2 suites are included.
var cipherSuiteMap = map[string]uint16{
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// CipherSuiteSupported reports whether name is a supported cipher suite.
func CipherSuiteSupported(name string) bool {
	_, ok := cipherSuiteMap[name]
	return ok
}
