// Package buffer implements the byte buffer every wire codec in zealnet
// reads and writes through: an ordered cursor with independent reader and
// writer indices, the integer/float/string encodings spec §4.1 defines, and
// the reference-counting discipline payload buffers must follow as they
// cross the decode->handler boundary (spec §5).
package buffer

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
)

// Buffer is a growable byte buffer with separate read and write cursors.
// It is not safe for concurrent use — each connection/handler owns its own
// buffer for the lifetime of one frame, matching the teacher's BytePool
// discipline of one owner at a time.
type Buffer struct {
	data   []byte
	rIndex int
	wIndex int
	refs   atomic.Int32
}

// New creates an empty Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	b := &Buffer{data: make([]byte, 0, capacity)}
	b.refs.Store(1)
	return b
}

// Wrap adopts an existing byte slice as the buffer's backing storage,
// positioning the writer index at the end (fully readable) and the reader
// index at the start. Used when a frame has already been read off the wire.
func Wrap(data []byte) *Buffer {
	b := &Buffer{data: data, wIndex: len(data)}
	b.refs.Store(1)
	return b
}

// Retain adds one reference. Call before handing the buffer to a second
// owner (e.g. fanning the same payload out to several handlers).
func (b *Buffer) Retain() *Buffer {
	b.refs.Add(1)
	return b
}

// Release drops one reference. The scoped-release wrapper (Use, below) is
// the preferred way to guarantee this runs on every exit path.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	b.refs.Add(-1)
}

// RefCount reports the current reference count. Test/diagnostic use.
func (b *Buffer) RefCount() int32 {
	return b.refs.Load()
}

// Use runs fn with buf, then releases buf exactly once regardless of how fn
// returns — the Go equivalent of the try-with-resources wrapper spec §9
// calls for ("trivially expressible... defer").
func Use(buf *Buffer, fn func(*Buffer) error) error {
	defer buf.Release()
	return fn(buf)
}

// Readable returns the number of unread bytes.
func (b *Buffer) Readable() int {
	return b.wIndex - b.rIndex
}

// Bytes returns the unread portion of the buffer. The returned slice aliases
// the buffer's storage; callers must not retain it past the buffer's life.
func (b *Buffer) Bytes() []byte {
	return b.data[b.rIndex:b.wIndex]
}

// All returns the full written region regardless of read position.
func (b *Buffer) All() []byte {
	return b.data[:b.wIndex]
}

// Reset clears both cursors so the buffer can be reused for a new frame.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.rIndex = 0
	b.wIndex = 0
}

func (b *Buffer) ensure(n int) {
	need := b.wIndex + n
	if need <= cap(b.data) {
		b.data = b.data[:need]
		b.wIndex = need
		return
	}
	grown := make([]byte, need, need*2+16)
	copy(grown, b.data[:b.wIndex])
	b.data = grown[:need]
	b.wIndex = need
}

func (b *Buffer) requireReadable(n int) error {
	if b.Readable() < n {
		return fmt.Errorf("buffer: need %d readable bytes, have %d", n, b.Readable())
	}
	return nil
}

// --- unsigned writes ---

func (b *Buffer) WriteUint8(v uint8) {
	b.ensure(1)
	b.data[b.wIndex-1] = v
}

func (b *Buffer) WriteUint16(v uint16) {
	b.ensure(2)
	binary.BigEndian.PutUint16(b.data[b.wIndex-2:b.wIndex], v)
}

// WriteUint24 writes the low 24 bits of v, big-endian.
func (b *Buffer) WriteUint24(v uint32) {
	b.ensure(3)
	off := b.wIndex - 3
	b.data[off] = byte(v >> 16)
	b.data[off+1] = byte(v >> 8)
	b.data[off+2] = byte(v)
}

func (b *Buffer) WriteUint32(v uint32) {
	b.ensure(4)
	binary.BigEndian.PutUint32(b.data[b.wIndex-4:b.wIndex], v)
}

func (b *Buffer) WriteUint64(v uint64) {
	b.ensure(8)
	binary.BigEndian.PutUint64(b.data[b.wIndex-8:b.wIndex], v)
}

// --- signed writes (reuse the unsigned wire encoding) ---

func (b *Buffer) WriteInt8(v int8)   { b.WriteUint8(uint8(v)) }
func (b *Buffer) WriteInt16(v int16) { b.WriteUint16(uint16(v)) }
func (b *Buffer) WriteInt32(v int32) { b.WriteUint32(uint32(v)) }
func (b *Buffer) WriteInt64(v int64) { b.WriteUint64(uint64(v)) }

func (b *Buffer) WriteFloat32(v float32) {
	b.WriteUint32(math.Float32bits(v))
}

func (b *Buffer) WriteFloat64(v float64) {
	b.WriteUint64(math.Float64bits(v))
}

// WriteString writes a 32-bit big-endian length prefix followed by the
// UTF-8 bytes of s (spec §4.1).
func (b *Buffer) WriteString(s string) {
	b.WriteUint32(uint32(len(s)))
	b.ensure(len(s))
	copy(b.data[b.wIndex-len(s):b.wIndex], s)
}

// WriteBytes appends raw bytes with no length prefix.
func (b *Buffer) WriteBytes(p []byte) {
	b.ensure(len(p))
	copy(b.data[b.wIndex-len(p):b.wIndex], p)
}

// --- reads ---

func (b *Buffer) ReadUint8() (uint8, error) {
	if err := b.requireReadable(1); err != nil {
		return 0, err
	}
	v := b.data[b.rIndex]
	b.rIndex++
	return v, nil
}

func (b *Buffer) ReadUint16() (uint16, error) {
	if err := b.requireReadable(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(b.data[b.rIndex : b.rIndex+2])
	b.rIndex += 2
	return v, nil
}

func (b *Buffer) ReadUint24() (uint32, error) {
	if err := b.requireReadable(3); err != nil {
		return 0, err
	}
	v := uint32(b.data[b.rIndex])<<16 | uint32(b.data[b.rIndex+1])<<8 | uint32(b.data[b.rIndex+2])
	b.rIndex += 3
	return v, nil
}

func (b *Buffer) ReadUint32() (uint32, error) {
	if err := b.requireReadable(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(b.data[b.rIndex : b.rIndex+4])
	b.rIndex += 4
	return v, nil
}

func (b *Buffer) ReadUint64() (uint64, error) {
	if err := b.requireReadable(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(b.data[b.rIndex : b.rIndex+8])
	b.rIndex += 8
	return v, nil
}

func (b *Buffer) ReadInt8() (int8, error) {
	v, err := b.ReadUint8()
	return int8(v), err
}

func (b *Buffer) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

func (b *Buffer) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}

func (b *Buffer) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadString reads a 32-bit length prefix followed by that many UTF-8 bytes.
// Per spec §4.1, at least 5 readable bytes (length + payload) are required;
// anything less yields ("", false, nil) rather than an error.
func (b *Buffer) ReadString() (string, bool, error) {
	if b.Readable() < 5 {
		return "", false, nil
	}
	save := b.rIndex
	length, err := b.ReadUint32()
	if err != nil {
		return "", false, nil
	}
	if err := b.requireReadable(int(length)); err != nil {
		b.rIndex = save
		return "", false, nil
	}
	s := string(b.data[b.rIndex : b.rIndex+int(length)])
	b.rIndex += int(length)
	return s, true, nil
}

// ReadBytes reads n raw bytes with no length prefix.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if err := b.requireReadable(n); err != nil {
		return nil, err
	}
	out := b.data[b.rIndex : b.rIndex+n]
	b.rIndex += n
	return out, nil
}

// ObjectWriter marshals a domain value into wire bytes for WriteObject.
type ObjectWriter func(v any) ([]byte, error)

// ObjectReader unmarshals wire bytes back into a domain value for ReadObject.
type ObjectReader func(data []byte) (any, error)

// WriteObject writes a 16-bit unsigned length prefix followed by conv(v).
func (b *Buffer) WriteObject(v any, conv ObjectWriter) error {
	data, err := conv(v)
	if err != nil {
		return fmt.Errorf("buffer: encoding object: %w", err)
	}
	if len(data) > 0xFFFF {
		return fmt.Errorf("buffer: object too large (%d bytes)", len(data))
	}
	b.WriteUint16(uint16(len(data)))
	b.WriteBytes(data)
	return nil
}

// ReadObject reads a 16-bit length prefix then decodes that many bytes with
// conv.
func (b *Buffer) ReadObject(conv ObjectReader) (any, error) {
	length, err := b.ReadUint16()
	if err != nil {
		return nil, err
	}
	data, err := b.ReadBytes(int(length))
	if err != nil {
		return nil, err
	}
	return conv(data)
}
