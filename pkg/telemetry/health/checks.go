package health

import (
	"context"
	"fmt"
	"net"
)

// Readier is implemented by components that open resources lazily, such as
// the network usage repository.
type Readier interface {
	Ready(ctx context.Context) error
}

// ReadyCheck adapts a Readier.
func ReadyCheck(r Readier) CheckFunc {
	return r.Ready
}

// SocketCheck dials a Unix-domain socket and hangs up.
func SocketCheck(path string) CheckFunc {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "unix", path)
		if err != nil {
			return fmt.Errorf("dial %s: %w", path, err)
		}
		return conn.Close()
	}
}

// NonEmptyCheck fails when size reports zero. name describes what is
// counted, e.g. "policy entries".
func NonEmptyCheck(name string, size func() int) CheckFunc {
	return func(context.Context) error {
		if size() == 0 {
			return fmt.Errorf("no %s loaded", name)
		}
		return nil
	}
}
