package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Wire-level errors. All of them are fatal for the stream they occur on:
// packets carry no length prefix, so there is no way to resynchronize.
var (
	ErrUnknownPacket       = errors.New("unknown packet id")
	ErrMalformed           = errors.New("malformed field")
	ErrStringTooLong       = errors.New("string too long")
	ErrArrayTooLong        = errors.New("array too long")
	ErrMetadataKeyReserved = errors.New("metadata key collides with terminator")
)

// MaxStringLength is the largest number of UTF-16 code units a string can
// carry, bounded by its signed 16-bit length prefix.
const MaxStringLength = math.MaxInt16

// MaxLength32 bounds 32-bit length prefixes. The largest real payloads,
// compressed chunk batches, stay far below it.
const MaxLength32 = 1 << 24

// allocChunk is how much is allocated up front for a length read off the
// wire; anything longer grows as the bytes actually arrive.
const allocChunk = 64 * 1024

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// Reader decodes big-endian primitives from a byte stream. Every method
// either returns a complete value or an error; a short stream yields
// io.ErrUnexpectedEOF (or io.EOF if nothing at all could be read).
type Reader struct {
	r   io.Reader
	buf [8]byte
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) fill(n int) ([]byte, error) {
	b := r.buf[:n]
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadString reads an int16 code unit count followed by UTF-16BE text.
// Unpaired surrogates are kept as their WTF-8 form so that WriteString
// reproduces them exactly.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadInt16()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative string length %d", ErrMalformed, n)
	}
	raw, err := r.ReadBytes(int(n) * 2)
	if err != nil {
		return "", err
	}
	if hasLoneSurrogate(raw) {
		return decodeWTF16(raw), nil
	}
	s, err := utf16be.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(s), nil
}

// ReadBytes reads exactly n raw bytes. A zero count yields nil.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrMalformed, n)
	}
	if n == 0 {
		return nil, nil
	}
	if n <= allocChunk {
		b := make([]byte, n)
		if _, err := io.ReadFull(r.r, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	var buf bytes.Buffer
	buf.Grow(allocChunk)
	got, err := io.CopyN(&buf, r.r, int64(n))
	if err != nil {
		if err == io.EOF && got > 0 {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadInt8s reads n signed bytes. The count is supplied by the caller.
func (r *Reader) ReadInt8s(n int) ([]int8, error) {
	return readArray(n, r.ReadInt8)
}

func (r *Reader) ReadInt16s(n int) ([]int16, error) {
	return readArray(n, r.ReadInt16)
}

func (r *Reader) ReadInt32s(n int) ([]int32, error) {
	return readArray(n, r.ReadInt32)
}

func (r *Reader) ReadInt64s(n int) ([]int64, error) {
	return readArray(n, r.ReadInt64)
}

func readArray[T any](n int, read func() (T, error)) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative array length %d", ErrMalformed, n)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]T, 0, min(n, allocChunk/8))
	for i := 0; i < n; i++ {
		v, err := read()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// Writer encodes big-endian primitives onto a byte stream.
type Writer struct {
	w   io.Writer
	buf [8]byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) put(b []byte) error {
	_, err := w.w.Write(b)
	return err
}

func (w *Writer) WriteUint8(v uint8) error {
	w.buf[0] = v
	return w.put(w.buf[:1])
}

func (w *Writer) WriteInt8(v int8) error {
	return w.WriteUint8(uint8(v))
}

func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

func (w *Writer) WriteUint16(v uint16) error {
	binary.BigEndian.PutUint16(w.buf[:2], v)
	return w.put(w.buf[:2])
}

func (w *Writer) WriteInt16(v int16) error {
	return w.WriteUint16(uint16(v))
}

func (w *Writer) WriteUint32(v uint32) error {
	binary.BigEndian.PutUint32(w.buf[:4], v)
	return w.put(w.buf[:4])
}

func (w *Writer) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v))
}

func (w *Writer) WriteUint64(v uint64) error {
	binary.BigEndian.PutUint64(w.buf[:8], v)
	return w.put(w.buf[:8])
}

func (w *Writer) WriteInt64(v int64) error {
	return w.WriteUint64(uint64(v))
}

func (w *Writer) WriteFloat32(v float32) error {
	return w.WriteUint32(math.Float32bits(v))
}

func (w *Writer) WriteFloat64(v float64) error {
	return w.WriteUint64(math.Float64bits(v))
}

// WriteString writes s as an int16 code unit count followed by UTF-16BE text.
// WTF-8 encoded surrogates, as produced by ReadString, are written back as
// the lone code units they stand for.
func (w *Writer) WriteString(s string) error {
	var raw []byte
	if utf8.ValidString(s) {
		b, err := utf16be.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		raw = b
	} else {
		raw = encodeWTF16(s)
	}
	n := len(raw) / 2
	if n > MaxStringLength {
		return fmt.Errorf("%w: %d code units", ErrStringTooLong, n)
	}
	if err := w.WriteInt16(int16(n)); err != nil {
		return err
	}
	return w.put(raw)
}

// WriteBytes writes b verbatim, without a length prefix.
func (w *Writer) WriteBytes(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return w.put(b)
}

func (w *Writer) WriteInt8s(v []int8) error {
	return writeArray(v, w.WriteInt8)
}

func (w *Writer) WriteInt16s(v []int16) error {
	return writeArray(v, w.WriteInt16)
}

func (w *Writer) WriteInt32s(v []int32) error {
	return writeArray(v, w.WriteInt32)
}

func (w *Writer) WriteInt64s(v []int64) error {
	return writeArray(v, w.WriteInt64)
}

func writeArray[T any](v []T, write func(T) error) error {
	for _, e := range v {
		if err := write(e); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Unpaired surrogates
// ---------------------------------------------------------------------------

// hasLoneSurrogate reports whether UTF-16BE text holds a surrogate that is
// not part of a valid pair.
func hasLoneSurrogate(raw []byte) bool {
	for i := 0; i+1 < len(raw); i += 2 {
		u := rune(binary.BigEndian.Uint16(raw[i:]))
		switch {
		case u >= 0xD800 && u < 0xDC00:
			if i+3 >= len(raw) {
				return true
			}
			next := rune(binary.BigEndian.Uint16(raw[i+2:]))
			if next < 0xDC00 || next > 0xDFFF {
				return true
			}
			i += 2
		case u >= 0xDC00 && u <= 0xDFFF:
			return true
		}
	}
	return false
}

// decodeWTF16 converts UTF-16BE text to UTF-8, writing unpaired surrogates
// in their 3-byte generalized UTF-8 form.
func decodeWTF16(raw []byte) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i+1 < len(raw); i += 2 {
		u := rune(binary.BigEndian.Uint16(raw[i:]))
		if utf16.IsSurrogate(u) && u < 0xDC00 && i+3 < len(raw) {
			if r := utf16.DecodeRune(u, rune(binary.BigEndian.Uint16(raw[i+2:]))); r != utf8.RuneError {
				out = utf8.AppendRune(out, r)
				i += 2
				continue
			}
		}
		if utf16.IsSurrogate(u) {
			out = append(out, 0xE0|byte(u>>12), 0x80|byte(u>>6)&0x3F, 0x80|byte(u)&0x3F)
			continue
		}
		out = utf8.AppendRune(out, u)
	}
	return string(out)
}

// encodeWTF16 is the inverse of decodeWTF16. Bytes that are neither UTF-8
// nor an encoded surrogate become U+FFFD.
func encodeWTF16(s string) []byte {
	out := make([]byte, 0, 2*len(s))
	unit := func(u rune) { out = binary.BigEndian.AppendUint16(out, uint16(u)) }
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			if i+2 < len(s) && s[i] == 0xED && s[i+1] >= 0xA0 && s[i+1] <= 0xBF && s[i+2]&0xC0 == 0x80 {
				unit(0xD000 | rune(s[i+1]&0x3F)<<6 | rune(s[i+2]&0x3F))
				i += 3
				continue
			}
			unit(utf8.RuneError)
			i++
			continue
		}
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			unit(r1)
			unit(r2)
		} else {
			unit(r)
		}
		i += size
	}
	return out
}
