package wasm

import (
	"bytes"
	"encoding/binary"
)

// writer accumulates binary format output. Integers are LEB128 encoded
// except the fixed-width magic and version words.
type writer struct {
	bytes.Buffer
}

// u32 writes an unsigned LEB128 encoded uint32.
func (w *writer) u32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// s32 writes a signed LEB128 encoded int32.
func (w *writer) s32(v int32) {
	w.s64(int64(v))
}

// s64 writes a signed LEB128 encoded int64.
func (w *writer) s64(v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}

// name writes a length-prefixed UTF-8 name.
func (w *writer) name(s string) {
	w.u32(uint32(len(s)))
	w.WriteString(s)
}

// u32le writes a fixed little-endian uint32.
func (w *writer) u32le(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

// section writes a section header followed by the section body.
func (w *writer) section(id byte, body *writer) {
	w.WriteByte(id)
	w.u32(uint32(body.Len()))
	w.Write(body.Bytes())
}
