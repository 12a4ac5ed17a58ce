package protocol

import "github.com/MechWipf/lrpc/queue"

// State is the progress of an Assembler.
type State int

const (
	AwaitingLength State = iota
	AwaitingBody
	Complete
)

func (s State) String() string {
	switch s {
	case AwaitingLength:
		return "awaiting-length"
	case AwaitingBody:
		return "awaiting-body"
	case Complete:
		return "complete"
	}
	return "unknown"
}

// Assembler reconstructs a single frame from a sequence of chunks. Create a
// fresh Assembler for every frame; it is owned by one connection goroutine.
type Assembler struct {
	limits Limits
	state  State
	target int
	// buf holds the prefix bytes while the size is unknown, then the payload.
	buf *queue.ByteQueue
	err error
}

func NewAssembler(limits Limits) *Assembler {
	return &Assembler{limits: limits, target: -1, buf: queue.New()}
}

// Feed consumes chunk and returns how many of its bytes belong to the frame.
// Once the frame is complete the remaining bytes of chunk are dropped, so a
// return value below len(chunk) means data past the boundary was discarded.
// Feed fails with ErrFrameTooLarge when the decoded size exceeds the limit;
// the assembler then refuses further input.
func (a *Assembler) Feed(chunk []byte) (int, error) {
	if a.err != nil {
		return 0, a.err
	}
	kept := 0
	if a.state == AwaitingLength {
		for i, b := range chunk {
			a.buf.PushByte(b)
			kept++
			if b&0x80 != 0 && a.buf.Len() < queue.MaxSizeBytes {
				continue
			}
			// Terminator found: the prefix queue holds exactly the size bytes.
			size := a.buf.PopSize()
			if err := a.limits.check(size); err != nil {
				a.err = err
				return kept, err
			}
			a.target = size
			a.state = AwaitingBody
			chunk = chunk[i+1:]
			break
		}
		if a.state == AwaitingLength {
			return kept, nil
		}
	}
	if a.state == AwaitingBody {
		n := min(a.target-a.buf.Len(), len(chunk))
		a.buf.AppendRange(chunk, 0, n)
		kept += n
		if a.buf.Len() == a.target {
			a.state = Complete
		}
	}
	return kept, nil
}

func (a *Assembler) State() State { return a.state }

func (a *Assembler) Complete() bool { return a.state == Complete }

// TargetSize is the payload size announced by the prefix. ok is false until
// the prefix has been fully read.
func (a *Assembler) TargetSize() (size int, ok bool) {
	return a.target, a.state != AwaitingLength
}

// Buffered is the number of bytes held: prefix bytes while awaiting the
// length, payload bytes afterwards.
func (a *Assembler) Buffered() int { return a.buf.Len() }

// Payload returns the assembled payload, or nil if the frame is incomplete.
func (a *Assembler) Payload() *queue.ByteQueue {
	if a.state != Complete {
		return nil
	}
	return a.buf
}
