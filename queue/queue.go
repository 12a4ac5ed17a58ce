// Package queue implements ByteQueue, the growable ring buffer every lrpc
// payload is built in and read back from.
//
// The backing array length is always a power of two, so positions wrap with a
// mask instead of a modulo. The queue never shrinks: whenever a write would
// fill it, the array doubles and the live bytes are repacked from index 0.
//
//	 head               tail
//	  ▼                  ▼
//	┌──┬──┬──┬──┬──┬──┬──┬──┬──┬──┬──┬──┬──┬──┬──┬──┐
//	│  │d0│d1│d2│d3│d4│d5│  │  │  │  │  │  │  │  │  │   Len = (tail-head) & (cap-1)
//	└──┴──┴──┴──┴──┴──┴──┴──┴──┴──┴──┴──┴──┴──┴──┴──┘
//
// Pops on an empty queue return zero bytes instead of failing. Decoders must
// consume exactly as many bytes as the encoder produced; the frame length
// prefix is the only bound the queue knows about.
package queue

const minCap = 16

// ByteQueue is a FIFO of raw bytes. The zero value is an empty queue ready
// to use. A ByteQueue is not safe for concurrent use.
type ByteQueue struct {
	buf  []byte
	head int
	tail int
}

// New returns an empty queue with the minimum capacity.
func New() *ByteQueue {
	return &ByteQueue{buf: make([]byte, minCap)}
}

// FromBytes returns a queue holding a copy of b.
func FromBytes(b []byte) *ByteQueue {
	n := minCap
	for n <= len(b) {
		n <<= 1
	}
	q := &ByteQueue{buf: make([]byte, n), tail: len(b)}
	copy(q.buf, b)
	return q
}

// Len is the number of unread bytes.
func (q *ByteQueue) Len() int {
	return (q.tail - q.head) & (len(q.buf) - 1)
}

// Cap is the size of the backing array. It is always a power of two.
func (q *ByteQueue) Cap() int {
	return len(q.buf)
}

// Reset drops all unread bytes but keeps the capacity.
func (q *ByteQueue) Reset() {
	q.head, q.tail = 0, 0
}

func (q *ByteQueue) lazyInit() {
	if q.buf == nil {
		q.buf = make([]byte, minCap)
	}
}

// PushByte appends b at the tail.
func (q *ByteQueue) PushByte(b byte) {
	q.lazyInit()
	q.buf[q.tail] = b
	q.tail = (q.tail + 1) & (len(q.buf) - 1)
	if q.tail == q.head {
		// Full: head == tail would read as empty, relocate into a doubled array.
		a := make([]byte, len(q.buf)<<1)
		n := copy(a, q.buf[q.head:])
		copy(a[n:], q.buf[:q.head])
		q.head = 0
		q.tail = len(q.buf)
		q.buf = a
	}
}

// PopByte removes and returns the byte at the head, or 0 if the queue is empty.
func (q *ByteQueue) PopByte() byte {
	if q.head == q.tail {
		return 0
	}
	b := q.buf[q.head]
	q.head = (q.head + 1) & (len(q.buf) - 1)
	return b
}

// AppendRange appends src[start:end]. A negative start is treated as 0 and an
// end that is negative or past len(src) is treated as len(src), so
// AppendRange(src, 0, -1) appends the whole slice.
func (q *ByteQueue) AppendRange(src []byte, start, end int) {
	if start < 0 {
		start = 0
	}
	if end < 0 || end > len(src) {
		end = len(src)
	}
	if start >= end {
		return
	}
	q.lazyInit()
	n := end - start
	if len(q.buf)-q.Len() <= n {
		size := len(q.buf)
		for size <= q.Len()+n {
			size <<= 1
		}
		a := make([]byte, size)
		l := q.CopyTo(a)
		copy(a[l:], src[start:end])
		q.buf = a
		q.head = 0
		q.tail = l + n
		return
	}
	// Free space is strictly larger than n, so tail cannot catch up with head.
	if first := len(q.buf) - q.tail; n <= first {
		copy(q.buf[q.tail:], src[start:end])
	} else {
		copy(q.buf[q.tail:], src[start:start+first])
		copy(q.buf, src[start+first:end])
	}
	q.tail = (q.tail + n) & (len(q.buf) - 1)
}

// Append appends all of src.
func (q *ByteQueue) Append(src []byte) {
	q.AppendRange(src, 0, len(src))
}

// CopyTo copies the unread bytes, in order, into dst without consuming them.
// It returns the number of bytes copied.
func (q *ByteQueue) CopyTo(dst []byte) int {
	if q.head <= q.tail {
		return copy(dst, q.buf[q.head:q.tail])
	}
	n := copy(dst, q.buf[q.head:])
	return n + copy(dst[n:], q.buf[:q.tail])
}

// Bytes returns a linear copy of the unread bytes.
func (q *ByteQueue) Bytes() []byte {
	b := make([]byte, q.Len())
	q.CopyTo(b)
	return b
}

// Truncate drops bytes from the tail until n unread bytes remain. It does
// nothing when n is not below Len.
func (q *ByteQueue) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n >= q.Len() {
		return
	}
	q.tail = (q.head + n) & (len(q.buf) - 1)
}

// PushBytes appends b. Unlike a string codec it writes no length.
func (q *ByteQueue) PushBytes(b []byte) {
	q.Append(b)
}

// PopBytes removes n bytes from the head. Missing bytes read as zero.
func (q *ByteQueue) PopBytes(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	b := make([]byte, n)
	avail := min(n, q.Len())
	if avail > 0 {
		if first := len(q.buf) - q.head; avail <= first {
			copy(b, q.buf[q.head:q.head+avail])
		} else {
			copy(b, q.buf[q.head:])
			copy(b[first:], q.buf[:avail-first])
		}
		q.head = (q.head + avail) & (len(q.buf) - 1)
	}
	return b
}
