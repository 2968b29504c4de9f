package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"mercator-hq/relay/pkg/codec"
)

// FrameType identifies the payload of a frame.
type FrameType byte

const (
	// FrameRequest carries a DownloadRequest (client to server, first frame).
	FrameRequest FrameType = 0x01

	// FrameCancel asks the server to stop the call. It has no payload.
	FrameCancel FrameType = 0x02

	// FrameHeaders carries ResponseHeaders.
	FrameHeaders FrameType = 0x03

	// FrameChunk carries raw body bytes.
	FrameChunk FrameType = 0x04

	// FrameTrailer carries the terminal Trailer. No frame follows it.
	FrameTrailer FrameType = 0x05
)

func (t FrameType) String() string {
	switch t {
	case FrameRequest:
		return "request"
	case FrameCancel:
		return "cancel"
	case FrameHeaders:
		return "headers"
	case FrameChunk:
		return "chunk"
	case FrameTrailer:
		return "trailer"
	default:
		return fmt.Sprintf("frame(0x%02x)", byte(t))
	}
}

// frameHeaderLength is the type byte plus the big-endian uint32 length.
const frameHeaderLength = 5

// DefaultMaxFrameBytes bounds the payload of a single frame.
const DefaultMaxFrameBytes = 16 * 1024 * 1024

// Frame is a single transport frame.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// encodeFrame returns the wire form of a frame as one buffer so that it can
// be sent in a single write (and carry ancillary data with it).
func encodeFrame(frame Frame) []byte {
	buf := make([]byte, frameHeaderLength+len(frame.Payload))
	buf[0] = byte(frame.Type)
	binary.BigEndian.PutUint32(buf[1:frameHeaderLength], uint32(len(frame.Payload)))
	copy(buf[frameHeaderLength:], frame.Payload)
	return buf
}

// cborFrame encodes message as the CBOR payload of a frame of type t.
func cborFrame(t FrameType, message any) (Frame, error) {
	payload, err := codec.Marshal(message)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s frame: %w", t, err)
	}
	return Frame{Type: t, Payload: payload}, nil
}

// WriteFrame writes a frame to w. The frame format is:
// [1 byte type] [4 bytes payload length, big-endian uint32] [payload].
func WriteFrame(w io.Writer, frame Frame) error {
	if _, err := w.Write(encodeFrame(frame)); err != nil {
		return fmt.Errorf("write %s frame: %w", frame.Type, err)
	}
	return nil
}

// ReadFrame reads a frame from r. A payload longer than maxBytes is an
// error; maxBytes <= 0 selects DefaultMaxFrameBytes.
func ReadFrame(r io.Reader, maxBytes int) (Frame, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	frameType := FrameType(header[0])
	length := binary.BigEndian.Uint32(header[1:frameHeaderLength])
	if uint64(length) > uint64(maxBytes) {
		return Frame{}, fmt.Errorf("%s frame length %d exceeds maximum %d", frameType, length, maxBytes)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("read %s frame payload: %w", frameType, err)
		}
	}
	return Frame{Type: frameType, Payload: payload}, nil
}

// decodeFrame decodes the CBOR payload of frame into v after checking its
// type.
func decodeFrame(frame Frame, want FrameType, v any) error {
	if frame.Type != want {
		return fmt.Errorf("unexpected %s frame, want %s", frame.Type, want)
	}
	if err := codec.Unmarshal(frame.Payload, v); err != nil {
		return fmt.Errorf("decode %s frame: %w", want, err)
	}
	return nil
}
