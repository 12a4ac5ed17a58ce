// Package protocol implements the lrpc frame format.
//
// A frame is a varint length prefix followed by exactly that many payload
// bytes. There is no header, magic number or sequence id: one request frame
// in, one response frame out.
//
//	┌───────────────────────┬────────────────────────┐
//	│ size (1..5 bytes)     │ payload (size bytes)   │
//	│ 7 bits/byte, LSB first│                        │
//	│ 0x80 = more follows   │                        │
//	└───────────────────────┴────────────────────────┘
//
// The Assembler rebuilds one frame from whatever chunks TCP hands back,
// including a length prefix split across reads. Bytes that arrive after the
// frame boundary in the same chunk are dropped, not kept for the next frame:
// the protocol is strictly request/response and peers never pipeline.
package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/MechWipf/lrpc/queue"
)

// DefaultMaxFrameSize bounds payloads when no other limit is configured.
const DefaultMaxFrameSize = 16 << 20

// DefaultReadBufferSize is the receive buffer size used per connection.
const DefaultReadBufferSize = 1024

var ErrFrameTooLarge = errors.New("protocol: frame exceeds max frame size")

// Limits constrains memory use while assembling frames.
type Limits struct {
	// MaxFrameSize is the largest payload accepted. Zero or less disables the check.
	MaxFrameSize int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameSize: DefaultMaxFrameSize}
}

func (l Limits) check(size int) error {
	if l.MaxFrameSize > 0 && size > l.MaxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, l.MaxFrameSize)
	}
	return nil
}

// Encode returns the wire bytes of one frame carrying payload. The payload
// queue is not consumed.
func Encode(payload *queue.ByteQueue) []byte {
	q := queue.New()
	q.PushSize(payload.Len())
	q.Append(payload.Bytes())
	return q.Bytes()
}

// WriteFrame encodes payload and writes it to w, looping until every byte
// has been accepted.
func WriteFrame(w io.Writer, payload *queue.ByteQueue) (int, error) {
	b := Encode(payload)
	off := 0
	for off < len(b) {
		n, err := w.Write(b[off:])
		off += n
		if err != nil {
			return off, err
		}
		if n == 0 {
			return off, io.ErrShortWrite
		}
	}
	return off, nil
}

// ReadFrame reads one frame from r, using buf as the receive buffer. dropped
// counts the bytes of the final read that lay past the frame boundary.
//
// A clean end of stream before any byte of the frame returns io.EOF, and a
// zero-byte read is treated the same way. End of stream in the middle of a
// frame returns io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, buf []byte, limits Limits) (payload *queue.ByteQueue, dropped int, err error) {
	if len(buf) == 0 {
		buf = make([]byte, DefaultReadBufferSize)
	}
	a := NewAssembler(limits)
	for !a.Complete() {
		n, rerr := r.Read(buf)
		if n > 0 {
			kept, ferr := a.Feed(buf[:n])
			if ferr != nil {
				return nil, 0, ferr
			}
			dropped = n - kept
		}
		if a.Complete() {
			break
		}
		if rerr == nil && n == 0 {
			rerr = io.EOF
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) && (a.State() != AwaitingLength || a.Buffered() > 0) {
				return nil, 0, io.ErrUnexpectedEOF
			}
			return nil, 0, rerr
		}
	}
	return a.Payload(), dropped, nil
}
