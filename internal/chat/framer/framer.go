package framer

import (
	"encoding/binary"
	"io"

	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

const (
	// headerSize is the length prefix size in bytes.
	headerSize = 4

	// DefaultMaxFrameSize bounds a single frame payload.
	DefaultMaxFrameSize = 1 << 20
)

// Framer reads and writes length-prefixed frames. Each frame is a 4-byte
// big-endian payload length followed by exactly that many payload bytes.
// A Framer is stateless and safe for concurrent use on distinct streams;
// callers must serialize writes to a shared stream themselves.
type Framer struct {
	maxFrameSize uint32
}

// New creates a Framer. maxFrameSize <= 0 selects DefaultMaxFrameSize.
func New(maxFrameSize int) *Framer {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Framer{maxFrameSize: uint32(maxFrameSize)}
}

// ReadFrame reads one complete frame payload from r. Short reads are retried
// until the full payload arrives, so payloads split across TCP segments
// reassemble correctly. Oversized length prefixes are rejected before any
// payload allocation.
func (f *Framer) ReadFrame(r io.Reader) ([]byte, error) {
	var head [headerSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(head[:])
	if size > f.maxFrameSize {
		return nil, merr.WrapErrFrameTooLarge(size, f.maxFrameSize)
	}
	if size == 0 {
		return nil, nil
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload as a single frame. The header and payload are
// written with one Write call so a frame is never interleaved with another
// writer's partial frame.
func (f *Framer) WriteFrame(w io.Writer, payload []byte) error {
	if uint32(len(payload)) > f.maxFrameSize {
		return merr.WrapErrFrameTooLarge(uint32(len(payload)), f.maxFrameSize)
	}

	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)

	_, err := w.Write(buf)
	return err
}
