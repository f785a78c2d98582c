package protocol

import (
	"fmt"
	"math"
)

// IO walks the fields of a packet in wire order. The same Marshal method
// drives decoding, encoding and diagnostic dumps, so the branches a packet
// takes on read and on write can never drift apart.
//
// Length-prefixed arrays are expressed as a count followed by the array:
//
//	n := io.Len16("Length", len(p.Data))
//	io.Bytes("Data", &p.Data, n)
//
// When encoding, the count is taken from the slice and written; when
// decoding, the count is read from the wire and returned.
type IO interface {
	Bool(name string, x *bool)
	Int8(name string, x *int8)
	Uint8(name string, x *uint8)
	Int16(name string, x *int16)
	Uint16(name string, x *uint16)
	Int32(name string, x *int32)
	Int64(name string, x *int64)
	Float32(name string, x *float32)
	Float64(name string, x *float64)
	String(name string, x *string)
	Slot(name string, x *Slot)
	Metadata(name string, x *Metadata)

	Len8(name string, n int) int
	Len16(name string, n int) int
	Len32(name string, n int) int
	Bytes(name string, x *[]byte, n int)
	Int32s(name string, x *[]int32, n int)
	Slots(name string, x *[]Slot, n int)
}

// scoper is implemented by walkers that label nested record fields.
type scoper interface {
	scope(name string, i int) (restore func())
}

// records walks n fixed-shape records. Decoding starts from a nil slice and
// allocates it; encoding passes n == len(*x) and the slice is kept as is.
func records[T any](io IO, name string, x *[]T, n int, each func(e *T)) {
	if n < 0 {
		n = 0
	}
	// A decoded count is untrusted; grow with the records actually read.
	if len(*x) != n {
		*x = make([]T, 0, min(n, allocChunk/8))
		for i := 0; i < n && !failed(io); i++ {
			var e T
			*x = append(*x, e)
			visit(io, name, i, &(*x)[i], each)
		}
		return
	}
	for i := range *x {
		visit(io, name, i, &(*x)[i], each)
	}
}

func visit[T any](io IO, name string, i int, e *T, each func(e *T)) {
	if s, ok := io.(scoper); ok {
		restore := s.scope(name, i)
		each(e)
		restore()
		return
	}
	each(e)
}

func failed(io IO) bool {
	d, ok := io.(*decoder)
	return ok && d.err != nil
}

// ---------------------------------------------------------------------------
// decoder
// ---------------------------------------------------------------------------

// decoder reads fields and keeps the first error; later calls are no-ops.
type decoder struct {
	r   *Reader
	err error
}

func (d *decoder) fail(name string, err error) {
	if d.err == nil && err != nil {
		d.err = fmt.Errorf("%s: %w", name, err)
	}
}

func decode[T any](d *decoder, name string, x *T, read func() (T, error)) {
	if d.err != nil {
		return
	}
	v, err := read()
	if err != nil {
		d.fail(name, err)
		return
	}
	*x = v
}

func (d *decoder) Bool(name string, x *bool)         { decode(d, name, x, d.r.ReadBool) }
func (d *decoder) Int8(name string, x *int8)         { decode(d, name, x, d.r.ReadInt8) }
func (d *decoder) Uint8(name string, x *uint8)       { decode(d, name, x, d.r.ReadUint8) }
func (d *decoder) Int16(name string, x *int16)       { decode(d, name, x, d.r.ReadInt16) }
func (d *decoder) Uint16(name string, x *uint16)     { decode(d, name, x, d.r.ReadUint16) }
func (d *decoder) Int32(name string, x *int32)       { decode(d, name, x, d.r.ReadInt32) }
func (d *decoder) Int64(name string, x *int64)       { decode(d, name, x, d.r.ReadInt64) }
func (d *decoder) Float32(name string, x *float32)   { decode(d, name, x, d.r.ReadFloat32) }
func (d *decoder) Float64(name string, x *float64)   { decode(d, name, x, d.r.ReadFloat64) }
func (d *decoder) String(name string, x *string)     { decode(d, name, x, d.r.ReadString) }
func (d *decoder) Slot(name string, x *Slot)         { decode(d, name, x, d.r.ReadSlot) }
func (d *decoder) Metadata(name string, x *Metadata) { decode(d, name, x, d.r.ReadMetadata) }

func (d *decoder) Len8(name string, _ int) int {
	var n uint8
	d.Uint8(name, &n)
	return int(n)
}

func (d *decoder) Len16(name string, _ int) int {
	var n int16
	d.Int16(name, &n)
	if n < 0 {
		d.fail(name, fmt.Errorf("%w: negative count %d", ErrMalformed, n))
		return 0
	}
	return int(n)
}

func (d *decoder) Len32(name string, _ int) int {
	var n int32
	d.Int32(name, &n)
	if n < 0 {
		d.fail(name, fmt.Errorf("%w: negative count %d", ErrMalformed, n))
		return 0
	}
	if n > MaxLength32 {
		d.fail(name, fmt.Errorf("%w: %d elements, limit %d", ErrArrayTooLong, n, MaxLength32))
		return 0
	}
	return int(n)
}

func (d *decoder) Bytes(name string, x *[]byte, n int) {
	decode(d, name, x, func() ([]byte, error) { return d.r.ReadBytes(n) })
}

func (d *decoder) Int32s(name string, x *[]int32, n int) {
	decode(d, name, x, func() ([]int32, error) { return d.r.ReadInt32s(n) })
}

func (d *decoder) Slots(name string, x *[]Slot, n int) {
	decode(d, name, x, func() ([]Slot, error) { return readArray(n, d.r.ReadSlot) })
}

// ---------------------------------------------------------------------------
// encoder
// ---------------------------------------------------------------------------

// encoder writes fields and keeps the first error; later calls are no-ops.
type encoder struct {
	w   *Writer
	err error
}

func (e *encoder) fail(name string, err error) {
	if e.err == nil && err != nil {
		e.err = fmt.Errorf("%s: %w", name, err)
	}
}

func encode[T any](e *encoder, name string, v T, write func(T) error) {
	if e.err != nil {
		return
	}
	e.fail(name, write(v))
}

func (e *encoder) Bool(name string, x *bool)         { encode(e, name, *x, e.w.WriteBool) }
func (e *encoder) Int8(name string, x *int8)         { encode(e, name, *x, e.w.WriteInt8) }
func (e *encoder) Uint8(name string, x *uint8)       { encode(e, name, *x, e.w.WriteUint8) }
func (e *encoder) Int16(name string, x *int16)       { encode(e, name, *x, e.w.WriteInt16) }
func (e *encoder) Uint16(name string, x *uint16)     { encode(e, name, *x, e.w.WriteUint16) }
func (e *encoder) Int32(name string, x *int32)       { encode(e, name, *x, e.w.WriteInt32) }
func (e *encoder) Int64(name string, x *int64)       { encode(e, name, *x, e.w.WriteInt64) }
func (e *encoder) Float32(name string, x *float32)   { encode(e, name, *x, e.w.WriteFloat32) }
func (e *encoder) Float64(name string, x *float64)   { encode(e, name, *x, e.w.WriteFloat64) }
func (e *encoder) String(name string, x *string)     { encode(e, name, *x, e.w.WriteString) }
func (e *encoder) Slot(name string, x *Slot)         { encode(e, name, *x, e.w.WriteSlot) }
func (e *encoder) Metadata(name string, x *Metadata) { encode(e, name, *x, e.w.WriteMetadata) }

func (e *encoder) count(name string, n, max int) bool {
	if n > max {
		e.fail(name, fmt.Errorf("%w: %d elements, limit %d", ErrArrayTooLong, n, max))
		return false
	}
	return true
}

func (e *encoder) Len8(name string, n int) int {
	if e.count(name, n, math.MaxUint8) {
		encode(e, name, uint8(n), e.w.WriteUint8)
	}
	return n
}

func (e *encoder) Len16(name string, n int) int {
	if e.count(name, n, math.MaxInt16) {
		encode(e, name, int16(n), e.w.WriteInt16)
	}
	return n
}

func (e *encoder) Len32(name string, n int) int {
	if e.count(name, n, MaxLength32) {
		encode(e, name, int32(n), e.w.WriteInt32)
	}
	return n
}

func (e *encoder) length(name string, got, want int) bool {
	if got != want {
		e.fail(name, fmt.Errorf("%w: count %d does not match %d elements", ErrMalformed, want, got))
		return false
	}
	return true
}

func (e *encoder) Bytes(name string, x *[]byte, n int) {
	if e.length(name, len(*x), n) {
		encode(e, name, *x, e.w.WriteBytes)
	}
}

func (e *encoder) Int32s(name string, x *[]int32, n int) {
	if e.length(name, len(*x), n) {
		encode(e, name, *x, e.w.WriteInt32s)
	}
}

func (e *encoder) Slots(name string, x *[]Slot, n int) {
	if e.length(name, len(*x), n) {
		encode(e, name, *x, func(v []Slot) error { return writeArray(v, e.w.WriteSlot) })
	}
}
