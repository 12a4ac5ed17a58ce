package queue

import "math"

// MaxSizeBytes caps a size prefix. Encoders stop after this many 7-bit
// groups even if the value has more bits, and decoders stop reading after
// it regardless of the continuation bit.
const MaxSizeBytes = 5

// PushSize writes n as a base-128 varint, least significant group first,
// with 0x80 set on every group but the last. n must be non-negative.
func (q *ByteQueue) PushSize(n int) {
	v := uint64(n)
	for i := 0; i < MaxSizeBytes; i++ {
		if v <= 0x7f {
			q.PushByte(byte(v))
			return
		}
		q.PushByte(byte(v&0x7f) | 0x80)
		v >>= 7
	}
}

// PopSize reads a varint written by PushSize.
func (q *ByteQueue) PopSize() int {
	s := 0
	for i := 0; i < MaxSizeBytes; i++ {
		b := q.PopByte()
		s |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			break
		}
	}
	return s
}

// SizeLen reports how many bytes PushSize(n) writes.
func SizeLen(n int) int {
	v := uint64(n)
	l := 1
	for v > 0x7f && l < MaxSizeBytes {
		v >>= 7
		l++
	}
	return l
}

func (q *ByteQueue) pushLE(v uint64, width int) {
	for i := 0; i < width; i++ {
		q.PushByte(byte(v >> (8 * i)))
	}
}

func (q *ByteQueue) popLE(width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(q.PopByte()) << (8 * i)
	}
	return v
}

// Fixed-width values are little-endian, low byte first.

func (q *ByteQueue) PushUint8(v uint8)   { q.PushByte(v) }
func (q *ByteQueue) PushInt8(v int8)     { q.PushByte(byte(v)) }
func (q *ByteQueue) PushUint16(v uint16) { q.pushLE(uint64(v), 2) }
func (q *ByteQueue) PushInt16(v int16)   { q.pushLE(uint64(uint16(v)), 2) }
func (q *ByteQueue) PushUint32(v uint32) { q.pushLE(uint64(v), 4) }
func (q *ByteQueue) PushInt32(v int32)   { q.pushLE(uint64(uint32(v)), 4) }
func (q *ByteQueue) PushUint64(v uint64) { q.pushLE(v, 8) }
func (q *ByteQueue) PushInt64(v int64)   { q.pushLE(uint64(v), 8) }

func (q *ByteQueue) PopUint8() uint8   { return q.PopByte() }
func (q *ByteQueue) PopInt8() int8     { return int8(q.PopByte()) }
func (q *ByteQueue) PopUint16() uint16 { return uint16(q.popLE(2)) }
func (q *ByteQueue) PopInt16() int16   { return int16(q.popLE(2)) }
func (q *ByteQueue) PopUint32() uint32 { return uint32(q.popLE(4)) }
func (q *ByteQueue) PopInt32() int32   { return int32(q.popLE(4)) }
func (q *ByteQueue) PopUint64() uint64 { return q.popLE(8) }
func (q *ByteQueue) PopInt64() int64   { return int64(q.popLE(8)) }

// PushFloat32 writes the IEEE-754 single precision bit pattern.
func (q *ByteQueue) PushFloat32(v float32) { q.pushLE(uint64(math.Float32bits(v)), 4) }

// PushFloat64 writes the IEEE-754 double precision bit pattern.
func (q *ByteQueue) PushFloat64(v float64) { q.pushLE(math.Float64bits(v), 8) }

func (q *ByteQueue) PopFloat32() float32 { return math.Float32frombits(uint32(q.popLE(4))) }
func (q *ByteQueue) PopFloat64() float64 { return math.Float64frombits(q.popLE(8)) }

// PushComplex64 writes the real part then the imaginary part.
func (q *ByteQueue) PushComplex64(v complex64) {
	q.PushFloat32(real(v))
	q.PushFloat32(imag(v))
}

func (q *ByteQueue) PushComplex128(v complex128) {
	q.PushFloat64(real(v))
	q.PushFloat64(imag(v))
}

func (q *ByteQueue) PopComplex64() complex64 {
	re := q.PopFloat32()
	return complex(re, q.PopFloat32())
}

func (q *ByteQueue) PopComplex128() complex128 {
	re := q.PopFloat64()
	return complex(re, q.PopFloat64())
}

// PushBool writes 1 for true and 0 for false.
func (q *ByteQueue) PushBool(v bool) {
	if v {
		q.PushByte(1)
	} else {
		q.PushByte(0)
	}
}

// PopBool treats any non-zero byte as true.
func (q *ByteQueue) PopBool() bool { return q.PopByte() != 0 }

// PushChar writes a 16-bit code unit.
func (q *ByteQueue) PushChar(v uint16) { q.pushLE(uint64(v), 2) }
func (q *ByteQueue) PopChar() uint16   { return uint16(q.popLE(2)) }
