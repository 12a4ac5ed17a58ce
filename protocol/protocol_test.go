package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/MechWipf/lrpc/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadOf(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestEncodeSmallPayload(t *testing.T) {
	wire := Encode(queue.FromBytes([]byte{0x01, 0x02, 0x03}))
	assert.Equal(t, []byte{0x03, 0x01, 0x02, 0x03}, wire)
}

func TestEncodeTwoBytePrefix(t *testing.T) {
	body := payloadOf(200)
	wire := Encode(queue.FromBytes(body))
	require.Len(t, wire, 202)
	assert.Equal(t, []byte{0xc8, 0x01}, wire[:2])
	assert.Equal(t, body, wire[2:])
}

func TestEncodeEmptyPayload(t *testing.T) {
	assert.Equal(t, []byte{0x00}, Encode(queue.New()))
}

func TestEncodeDoesNotConsume(t *testing.T) {
	q := queue.FromBytes([]byte{9, 9})
	Encode(q)
	assert.Equal(t, 2, q.Len())
}

func TestAssembleSingleChunk(t *testing.T) {
	a := NewAssembler(DefaultLimits())
	kept, err := a.Feed([]byte{0x03, 0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.Equal(t, 4, kept)
	require.True(t, a.Complete())
	size, ok := a.TargetSize()
	assert.True(t, ok)
	assert.Equal(t, 3, size)
	assert.Equal(t, []byte{1, 2, 3}, a.Payload().Bytes())
}

func TestAssembleByteAtATime(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 200, 5000, 70000} {
		body := payloadOf(n)
		wire := Encode(queue.FromBytes(body))

		whole := NewAssembler(DefaultLimits())
		_, err := whole.Feed(wire)
		require.NoError(t, err)
		require.True(t, whole.Complete())

		split := NewAssembler(DefaultLimits())
		for i, b := range wire {
			require.False(t, split.Complete(), "complete early at byte %d of %d", i, len(wire))
			kept, err := split.Feed([]byte{b})
			require.NoError(t, err)
			require.Equal(t, 1, kept)
		}
		require.True(t, split.Complete())
		assert.Equal(t, whole.Payload().Bytes(), split.Payload().Bytes())
		assert.Equal(t, body, split.Payload().Bytes())
	}
}

func TestAssembleArbitraryChunks(t *testing.T) {
	body := payloadOf(3000)
	wire := Encode(queue.FromBytes(body))
	for _, size := range []int{2, 3, 7, 100, 1024, 2999} {
		a := NewAssembler(DefaultLimits())
		for off := 0; off < len(wire); off += size {
			_, err := a.Feed(wire[off:min(off+size, len(wire))])
			require.NoError(t, err)
		}
		require.True(t, a.Complete(), "chunk size %d", size)
		assert.Equal(t, body, a.Payload().Bytes())
	}
}

func TestAssembleStates(t *testing.T) {
	a := NewAssembler(DefaultLimits())
	assert.Equal(t, AwaitingLength, a.State())
	_, ok := a.TargetSize()
	assert.False(t, ok)
	assert.Nil(t, a.Payload())

	// First prefix byte of 200 carries the continuation bit.
	_, err := a.Feed([]byte{0xc8})
	require.NoError(t, err)
	assert.Equal(t, AwaitingLength, a.State())
	assert.Equal(t, 1, a.Buffered())

	_, err = a.Feed([]byte{0x01, 0xaa})
	require.NoError(t, err)
	assert.Equal(t, AwaitingBody, a.State())
	size, ok := a.TargetSize()
	assert.True(t, ok)
	assert.Equal(t, 200, size)
	assert.Equal(t, 1, a.Buffered())

	_, err = a.Feed(payloadOf(199))
	require.NoError(t, err)
	assert.Equal(t, Complete, a.State())
	assert.Equal(t, 200, a.Buffered())
}

func TestAssembleZeroLength(t *testing.T) {
	a := NewAssembler(DefaultLimits())
	kept, err := a.Feed([]byte{0x00})
	require.NoError(t, err)
	assert.Equal(t, 1, kept)
	assert.True(t, a.Complete())
	assert.Equal(t, 0, a.Payload().Len())
}

func TestAssembleDropsBytesPastBoundary(t *testing.T) {
	a := NewAssembler(DefaultLimits())
	// One frame of two bytes, immediately followed by the start of another.
	kept, err := a.Feed([]byte{0x02, 0xaa, 0xbb, 0x01, 0xcc})
	require.NoError(t, err)
	assert.Equal(t, 3, kept)
	require.True(t, a.Complete())
	assert.Equal(t, []byte{0xaa, 0xbb}, a.Payload().Bytes())

	kept, err = a.Feed([]byte{0xdd})
	require.NoError(t, err)
	assert.Equal(t, 0, kept)
	assert.Equal(t, []byte{0xaa, 0xbb}, a.Payload().Bytes())
}

func TestAssembleDropsAfterSplitPrefix(t *testing.T) {
	a := NewAssembler(DefaultLimits())
	_, err := a.Feed([]byte{0x81})
	require.NoError(t, err)
	// Prefix completes with 0x01 → size 129; the chunk holds 129 body bytes plus 3 extra.
	chunk := append([]byte{0x01}, payloadOf(132)...)
	kept, err := a.Feed(chunk)
	require.NoError(t, err)
	assert.Equal(t, 130, kept)
	require.True(t, a.Complete())
	assert.Equal(t, payloadOf(129), a.Payload().Bytes())
}

func TestAssembleFifthByteTerminates(t *testing.T) {
	a := NewAssembler(Limits{})
	// Five bytes with continuation bits set; the fifth ends the prefix regardless.
	kept, err := a.Feed([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0xee})
	require.NoError(t, err)
	assert.Equal(t, 5, kept)
	size, ok := a.TargetSize()
	assert.True(t, ok)
	assert.Equal(t, 0, size)
	assert.True(t, a.Complete())
}

func TestAssembleFifthByteCarriesHighBits(t *testing.T) {
	a := NewAssembler(Limits{})
	_, err := a.Feed([]byte{0x80, 0x80, 0x80, 0x80})
	require.NoError(t, err)
	assert.Equal(t, AwaitingLength, a.State())
	assert.Equal(t, 4, a.Buffered())

	_, err = a.Feed([]byte{0x81})
	require.NoError(t, err)
	size, ok := a.TargetSize()
	assert.True(t, ok)
	assert.Equal(t, 1<<28, size)
	assert.Equal(t, AwaitingBody, a.State())
}

func TestAssembleRejectsOversizeFrame(t *testing.T) {
	a := NewAssembler(Limits{MaxFrameSize: 100})
	_, err := a.Feed([]byte{0xc8, 0x01})
	require.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = a.Feed([]byte{0x00})
	assert.ErrorIs(t, err, ErrFrameTooLarge, "assembler stays failed")
	assert.False(t, a.Complete())
}

func TestAssembleAtLimit(t *testing.T) {
	a := NewAssembler(Limits{MaxFrameSize: 200})
	_, err := a.Feed(Encode(queue.FromBytes(payloadOf(200))))
	require.NoError(t, err)
	assert.True(t, a.Complete())
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteFrame(&buf, queue.FromBytes([]byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{3, 1, 2, 3}, buf.Bytes())
}

type zeroWriter struct{}

func (zeroWriter) Write(p []byte) (int, error) { return 0, nil }

func TestWriteFrameZeroWrite(t *testing.T) {
	_, err := WriteFrame(zeroWriter{}, queue.FromBytes([]byte{1}))
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestReadFrame(t *testing.T) {
	body := payloadOf(5000)
	r := iotest.OneByteReader(bytes.NewReader(Encode(queue.FromBytes(body))))
	payload, dropped, err := ReadFrame(r, make([]byte, 1024), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, body, payload.Bytes())
}

func TestReadFrameReportsDropped(t *testing.T) {
	wire := append(Encode(queue.FromBytes([]byte{7})), 0x05, 0x06)
	payload, dropped, err := ReadFrame(bytes.NewReader(wire), nil, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []byte{7}, payload.Bytes())
}

func TestReadFrameEOF(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader(nil), nil, DefaultLimits())
	assert.ErrorIs(t, err, io.EOF)

	_, _, err = ReadFrame(bytes.NewReader([]byte{0x05, 1, 2}), nil, DefaultLimits())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, err = ReadFrame(bytes.NewReader([]byte{0x85}), nil, DefaultLimits())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameDataWithEOF(t *testing.T) {
	wire := Encode(queue.FromBytes([]byte{4, 5}))
	payload, _, err := ReadFrame(iotest.DataErrReader(bytes.NewReader(wire)), nil, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, payload.Bytes())
}

func TestReadFrameError(t *testing.T) {
	boom := errors.New("boom")
	_, _, err := ReadFrame(iotest.ErrReader(boom), nil, DefaultLimits())
	assert.ErrorIs(t, err, boom)
}

func TestReadFrameTooLarge(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0x7f}), nil, Limits{MaxFrameSize: 1024})
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting-length", AwaitingLength.String())
	assert.Equal(t, "awaiting-body", AwaitingBody.String())
	assert.Equal(t, "complete", Complete.String())
}
