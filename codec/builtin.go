package codec

import (
	"fmt"
	"unicode/utf8"

	"github.com/MechWipf/lrpc/queue"
)

// Char is a 16-bit code unit. It travels as two little-endian bytes.
type Char uint16

// MaxStringBytes bounds the length prefix a string or []byte codec will
// allocate for.
const MaxStringBytes = 64 << 20

func plain[T any](store func(q *queue.ByteQueue, v T), restore func(q *queue.ByteQueue) T) Codec {
	return typed[T]{
		store: func(q *queue.ByteQueue, v T) error {
			store(q, v)
			return nil
		},
		restore: func(q *queue.ByteQueue) (T, error) {
			return restore(q), nil
		},
	}
}

func registerBuiltins(r *Registry) {
	r.codecs[TypeIDOf[uint8]()] = plain((*queue.ByteQueue).PushUint8, (*queue.ByteQueue).PopUint8)
	r.codecs[TypeIDOf[int8]()] = plain((*queue.ByteQueue).PushInt8, (*queue.ByteQueue).PopInt8)
	r.codecs[TypeIDOf[uint16]()] = plain((*queue.ByteQueue).PushUint16, (*queue.ByteQueue).PopUint16)
	r.codecs[TypeIDOf[int16]()] = plain((*queue.ByteQueue).PushInt16, (*queue.ByteQueue).PopInt16)
	r.codecs[TypeIDOf[uint32]()] = plain((*queue.ByteQueue).PushUint32, (*queue.ByteQueue).PopUint32)
	r.codecs[TypeIDOf[int32]()] = plain((*queue.ByteQueue).PushInt32, (*queue.ByteQueue).PopInt32)
	r.codecs[TypeIDOf[uint64]()] = plain((*queue.ByteQueue).PushUint64, (*queue.ByteQueue).PopUint64)
	r.codecs[TypeIDOf[int64]()] = plain((*queue.ByteQueue).PushInt64, (*queue.ByteQueue).PopInt64)
	r.codecs[TypeIDOf[float32]()] = plain((*queue.ByteQueue).PushFloat32, (*queue.ByteQueue).PopFloat32)
	r.codecs[TypeIDOf[float64]()] = plain((*queue.ByteQueue).PushFloat64, (*queue.ByteQueue).PopFloat64)
	r.codecs[TypeIDOf[complex64]()] = plain((*queue.ByteQueue).PushComplex64, (*queue.ByteQueue).PopComplex64)
	r.codecs[TypeIDOf[complex128]()] = plain((*queue.ByteQueue).PushComplex128, (*queue.ByteQueue).PopComplex128)
	r.codecs[TypeIDOf[bool]()] = plain((*queue.ByteQueue).PushBool, (*queue.ByteQueue).PopBool)

	// int and uint have no fixed width in Go; they travel as 8 bytes.
	r.codecs[TypeIDOf[int]()] = plain(
		func(q *queue.ByteQueue, v int) { q.PushInt64(int64(v)) },
		func(q *queue.ByteQueue) int { return int(q.PopInt64()) },
	)
	r.codecs[TypeIDOf[uint]()] = plain(
		func(q *queue.ByteQueue, v uint) { q.PushUint64(uint64(v)) },
		func(q *queue.ByteQueue) uint { return uint(q.PopUint64()) },
	)
	r.codecs[TypeIDOf[Char]()] = plain(
		func(q *queue.ByteQueue, v Char) { q.PushChar(uint16(v)) },
		func(q *queue.ByteQueue) Char { return Char(q.PopChar()) },
	)
	r.codecs[TypeIDOf[string]()] = Of(storeString, restoreString)
	r.codecs[TypeIDOf[[]byte]()] = Of(storeBytes, restoreBytes)
}

func storeString(q *queue.ByteQueue, v string) error {
	if !utf8.ValidString(v) {
		return fmt.Errorf("codec: string is not valid UTF-8")
	}
	q.PushSize(len(v))
	q.PushBytes([]byte(v))
	return nil
}

func restoreString(q *queue.ByteQueue) (string, error) {
	b, err := restoreBytes(q)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func storeBytes(q *queue.ByteQueue, v []byte) error {
	q.PushSize(len(v))
	q.PushBytes(v)
	return nil
}

func restoreBytes(q *queue.ByteQueue) ([]byte, error) {
	n := q.PopSize()
	if n > MaxStringBytes {
		return nil, fmt.Errorf("codec: length %d exceeds %d bytes", n, MaxStringBytes)
	}
	if n > q.Len() {
		return nil, fmt.Errorf("%w: %d bytes announced, %d left", ErrTruncated, n, q.Len())
	}
	return q.PopBytes(n), nil
}
