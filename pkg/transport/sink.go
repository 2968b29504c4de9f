package transport

import (
	"context"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

type sinkKey struct{}

// WithSink returns a context carrying the direct-delivery sink of a call.
func WithSink(ctx context.Context, sink *os.File) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink)
}

// SinkFromContext returns the sink attached to ctx, if any.
func SinkFromContext(ctx context.Context) (*os.File, bool) {
	sink, ok := ctx.Value(sinkKey{}).(*os.File)
	return sink, ok && sink != nil
}

// writeWithRights writes data in one sendmsg call carrying fd as
// SCM_RIGHTS ancillary data.
func writeWithRights(conn *net.UnixConn, data []byte, fd int) error {
	oob := unix.UnixRights(fd)
	n, oobn, err := conn.WriteMsgUnix(data, oob, nil)
	if err != nil {
		return fmt.Errorf("sendmsg: %w", err)
	}
	if n != len(data) || oobn != len(oob) {
		return fmt.Errorf("sendmsg: short write (%d/%d bytes, %d/%d oob)", n, len(data), oobn, len(oob))
	}
	return nil
}

// readWithRights reads into buf with room for one descriptor of ancillary
// data. It returns the bytes read and the received descriptors.
func readWithRights(conn *net.UnixConn, buf []byte) (int, []int, error) {
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return n, nil, err
	}
	if oobn == 0 {
		return n, nil, nil
	}
	messages, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return n, nil, fmt.Errorf("parse control message: %w", err)
	}
	var fds []int
	for i := range messages {
		rights, err := unix.ParseUnixRights(&messages[i])
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	return n, fds, nil
}
