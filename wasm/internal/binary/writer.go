package binary

import "encoding/binary"

// Writer accumulates an encoded byte stream.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Byte appends one byte.
func (w *Writer) Byte(b byte) { w.buf = append(w.buf, b) }

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(data []byte) { w.buf = append(w.buf, data...) }

// WriteU32 appends an unsigned LEB128 uint32.
func (w *Writer) WriteU32(v uint32) { w.WriteU64(uint64(v)) }

// WriteU64 appends an unsigned LEB128 uint64.
func (w *Writer) WriteU64(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
		if v == 0 {
			return
		}
	}
}

// WriteS32 appends a signed LEB128 int32.
func (w *Writer) WriteS32(v int32) { w.WriteS64(int64(v)) }

// WriteS64 appends a signed LEB128 int64.
func (w *Writer) WriteS64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
		if done {
			return
		}
	}
}

// WriteName appends a length-prefixed string.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteU32LE appends a fixed 4-byte little-endian word.
func (w *Writer) WriteU32LE(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteU64LE appends a fixed 8-byte little-endian word.
func (w *Writer) WriteU64LE(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// Section appends a section with the given id whose payload is produced
// by body.
func (w *Writer) Section(id byte, body func(*Writer)) {
	inner := NewWriter()
	body(inner)
	w.Byte(id)
	w.WriteU32(uint32(inner.Len()))
	w.WriteBytes(inner.Bytes())
}
