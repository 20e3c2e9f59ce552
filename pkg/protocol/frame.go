package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FrameHeaderSize is the size of the big-endian length prefix.
	FrameHeaderSize = 4

	// MaxFrameSize bounds the payload of a single frame.
	MaxFrameSize = 1 << 20
)

// ErrFrameTooLarge is returned when a frame declares a payload above the limit.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// AppendFrame appends payload to dst, prefixed with its length.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// WriteFrame writes payload as one frame using a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, 0, FrameHeaderSize+len(payload))
	buf = AppendFrame(buf, payload)
	_, err := w.Write(buf)
	return err
}

// FrameReader splits a byte stream into frames. Reads that end mid-frame are
// buffered until the rest arrives, and a read carrying several frames yields
// them one at a time.
type FrameReader struct {
	r   *bufio.Reader
	max int
}

// NewFrameReader returns a FrameReader over r. An existing *bufio.Reader is
// reused so that bytes it has already peeked are not lost.
func NewFrameReader(r io.Reader) *FrameReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &FrameReader{r: br, max: MaxFrameSize}
}

// ReadFrame returns the next frame payload. It returns io.EOF only when the
// stream ends cleanly on a frame boundary and io.ErrUnexpectedEOF when it
// ends inside one.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(fr.r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(fr.max) {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
