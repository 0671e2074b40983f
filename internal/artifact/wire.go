package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// maxChunk bounds any single length-prefixed read.
	maxChunk = 1 << 24
	// maxBody bounds the decompressed size of a container body.
	maxBody = 64 << 20
	// eagerAlloc is the largest read buffer allocated before any data
	// has arrived.
	eagerAlloc = 64 << 10
)

// capReader fails with CorruptState once more than n bytes are read.
type capReader struct {
	r io.Reader
	n int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.n <= 0 {
		return 0, decodeErr(CorruptState, fmt.Sprintf("body exceeds %d bytes", int64(maxBody)), nil)
	}
	if int64(len(p)) > c.n {
		p = p[:c.n]
	}
	n, err := c.r.Read(p)
	c.n -= int64(n)
	return n, err
}

// capped limits a decompression stream to maxBody bytes.
func capped(r io.Reader) io.Reader {
	return &capReader{r: r, n: maxBody}
}

// reader is a big-endian stream reader with a sticky error.
type reader struct {
	r   io.Reader
	err error
}

func (r *reader) read(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > maxChunk {
		r.err = decodeErr(CorruptState, fmt.Sprintf("length %d out of range", n), nil)
		return nil
	}
	if n <= eagerAlloc {
		buf := make([]byte, n)
		if _, err := io.ReadFull(r.r, buf); err != nil {
			r.err = err
			return nil
		}
		return buf
	}
	// Large lengths come from untrusted prefixes; grow with the data.
	var buf bytes.Buffer
	got, err := io.CopyN(&buf, r.r, int64(n))
	if err != nil {
		if errors.Is(err, io.EOF) && got < int64(n) {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
		return nil
	}
	return buf.Bytes()
}

func (r *reader) u8() uint8 {
	b := r.read(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.read(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) i16() int16 { return int16(r.u16()) }

func (r *reader) i32() int32 {
	b := r.read(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *reader) i64() int64 {
	b := r.read(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *reader) f32() float32 { return math.Float32frombits(uint32(r.i32())) }

func (r *reader) f64() float64 { return math.Float64frombits(uint64(r.i64())) }

// utf reads a u16 length-prefixed string.
func (r *reader) utf() string {
	n := int(r.u16())
	b := r.read(n)
	return string(b)
}

// fail records a decode error unless one is already pending.
func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// classify maps a low-level read error to a DecodeError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return decodeErr(Truncated, "", err)
	}
	return decodeErr(CorruptState, "", err)
}

// writer is the encoding counterpart of reader.
type writer struct {
	buf bytes.Buffer
	err error
}

func (w *writer) u8(v uint8) { w.buf.WriteByte(v) }

func (w *writer) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) i16(v int16) { w.u16(uint16(v)) }

func (w *writer) i32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
}

func (w *writer) i64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

func (w *writer) f32(v float32) { w.i32(int32(math.Float32bits(v))) }

func (w *writer) f64(v float64) { w.i64(int64(math.Float64bits(v))) }

func (w *writer) utf(s string) {
	if len(s) > math.MaxUint16 {
		if w.err == nil {
			w.err = fmt.Errorf("string of %d bytes exceeds %d", len(s), math.MaxUint16)
		}
		return
	}
	w.u16(uint16(len(s)))
	w.buf.WriteString(s)
}
