package protocol

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPrimitivesBigEndian verifies the exact byte layout of every fixed-width
// primitive.
func TestPrimitivesBigEndian(t *testing.T) {
	testCases := []struct {
		name  string
		write func(w *Writer) error
		want  []byte
	}{
		{"int8 min", func(w *Writer) error { return w.WriteInt8(math.MinInt8) }, []byte{0x80}},
		{"uint8 max", func(w *Writer) error { return w.WriteUint8(math.MaxUint8) }, []byte{0xFF}},
		{"bool true", func(w *Writer) error { return w.WriteBool(true) }, []byte{0x01}},
		{"int16 -1", func(w *Writer) error { return w.WriteInt16(-1) }, []byte{0xFF, 0xFF}},
		{"uint16", func(w *Writer) error { return w.WriteUint16(0x1234) }, []byte{0x12, 0x34}},
		{"int32 42", func(w *Writer) error { return w.WriteInt32(42) }, []byte{0x00, 0x00, 0x00, 0x2A}},
		{"int32 min", func(w *Writer) error { return w.WriteInt32(math.MinInt32) }, []byte{0x80, 0x00, 0x00, 0x00}},
		{"int64", func(w *Writer) error { return w.WriteInt64(0x0102030405060708) }, []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{"float32 1.0", func(w *Writer) error { return w.WriteFloat32(1.0) }, []byte{0x3F, 0x80, 0x00, 0x00}},
		{"float64 -2.0", func(w *Writer) error { return w.WriteFloat64(-2.0) }, []byte{0xC0, 0, 0, 0, 0, 0, 0, 0}},
		{"int16 array", func(w *Writer) error { return w.WriteInt16s([]int16{1, -2}) }, []byte{0x00, 0x01, 0xFF, 0xFE}},
		{"string", func(w *Writer) error { return w.WriteString("hi") }, []byte{0x00, 0x02, 0x00, 'h', 0x00, 'i'}},
		{"empty string", func(w *Writer) error { return w.WriteString("") }, []byte{0x00, 0x00}},
		{"surrogate pair", func(w *Writer) error { return w.WriteString("\U0001F600") }, []byte{0x00, 0x02, 0xD8, 0x3D, 0xDE, 0x00}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tc.write(NewWriter(&buf)))
			require.Equal(t, tc.want, buf.Bytes())
		})
	}
}

// TestFloatBitPatterns verifies floats are reinterpreted bit for bit.
func TestFloatBitPatterns(t *testing.T) {
	values := []float64{0, math.Copysign(0, -1), math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(-1), math.NaN()}

	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, NewWriter(&buf).WriteFloat64(v))
		got, err := NewReader(&buf).ReadFloat64()
		require.NoError(t, err)
		require.Equal(t, math.Float64bits(v), math.Float64bits(got))
	}
}

// TestArraysConsumeExactly verifies array reads stop after n elements.
func TestArraysConsumeExactly(t *testing.T) {
	data := []byte{0, 0, 0, 1, 0, 0, 0, 2, 0xAA}
	r := bytes.NewReader(data)

	got, err := NewReader(r).ReadInt32s(2)
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2}, got)
	require.Equal(t, 1, r.Len())

	none, err := NewReader(r).ReadInt64s(0)
	require.NoError(t, err)
	require.Nil(t, none)
	require.Equal(t, 1, r.Len())
}

// TestShortReads verifies that truncated input never yields a partial value.
func TestShortReads(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
		read func(r *Reader) error
	}{
		{"int16", []byte{0x01}, func(r *Reader) error { _, err := r.ReadInt16(); return err }},
		{"int32", []byte{0x01, 0x02, 0x03}, func(r *Reader) error { _, err := r.ReadInt32(); return err }},
		{"int64", []byte{1, 2, 3, 4, 5, 6, 7}, func(r *Reader) error { _, err := r.ReadInt64(); return err }},
		{"string body", []byte{0x00, 0x02, 0x00, 'h'}, func(r *Reader) error { _, err := r.ReadString(); return err }},
		{"int16 array", []byte{0x00, 0x01, 0x00}, func(r *Reader) error { _, err := r.ReadInt16s(2); return err }},
		{"slot tail", []byte{0x00, 0x01, 0x05, 0x00}, func(r *Reader) error { _, err := r.ReadSlot(); return err }},
		{"long byte run", []byte{1, 2, 3}, func(r *Reader) error { _, err := r.ReadBytes(allocChunk + 10); return err }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.read(NewReader(bytes.NewReader(tc.data)))
			require.ErrorIs(t, err, io.ErrUnexpectedEOF)
		})
	}
}

// TestStringLimits covers the maximal length string and the limits on
// both sides of it.
func TestStringLimits(t *testing.T) {
	t.Run("maximal length round trip", func(t *testing.T) {
		s := strings.Repeat("a", MaxStringLength)
		var buf bytes.Buffer
		require.NoError(t, NewWriter(&buf).WriteString(s))
		require.Equal(t, 2+2*MaxStringLength, buf.Len())

		got, err := NewReader(&buf).ReadString()
		require.NoError(t, err)
		require.Equal(t, s, got)
	})

	t.Run("too long", func(t *testing.T) {
		err := NewWriter(io.Discard).WriteString(strings.Repeat("a", MaxStringLength+1))
		require.ErrorIs(t, err, ErrStringTooLong)
	})

	t.Run("negative length", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte{0xFF, 0xFE})).ReadString()
		require.ErrorIs(t, err, ErrMalformed)
	})
}

// TestUnpairedSurrogates verifies UTF-16 text that is not valid Unicode is
// written back exactly as it was read.
func TestUnpairedSurrogates(t *testing.T) {
	testCases := []struct {
		name string
		wire []byte
	}{
		{"lone high", []byte{0x00, 0x01, 0xD8, 0x00}},
		{"lone low", []byte{0x00, 0x01, 0xDC, 0x00}},
		{"high then letter", []byte{0x00, 0x02, 0xD8, 0x3D, 0x00, 'A'}},
		{"letter then low", []byte{0x00, 0x02, 0x00, 'A', 0xDE, 0x00}},
		{"reversed pair", []byte{0x00, 0x02, 0xDE, 0x00, 0xD8, 0x3D}},
		{"pair then lone high", []byte{0x00, 0x03, 0xD8, 0x3D, 0xDE, 0x00, 0xDB, 0xFF}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewReader(bytes.NewReader(tc.wire)).ReadString()
			require.NoError(t, err)
			require.NotContains(t, s, "\uFFFD")

			var buf bytes.Buffer
			require.NoError(t, NewWriter(&buf).WriteString(s))
			require.Equal(t, tc.wire, buf.Bytes())
		})
	}

	t.Run("invalid UTF-8 becomes replacement", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewWriter(&buf).WriteString("a\xFF"))
		require.Equal(t, []byte{0x00, 0x02, 0x00, 'a', 0xFF, 0xFD}, buf.Bytes())
	})
}

// TestSlotSentinel verifies an empty slot is exactly its 2-byte id and that
// decoding stops there.
func TestSlotSentinel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteSlot(EmptySlot()))
	require.Equal(t, []byte{0xFF, 0xFF}, buf.Bytes())

	r := bytes.NewReader([]byte{0xFF, 0xFF, 0x12, 0x34})
	s, err := NewReader(r).ReadSlot()
	require.NoError(t, err)
	require.True(t, s.Empty())
	require.Equal(t, 2, r.Len())
}

// TestSlotNBTPresence verifies absent, empty and populated NBT payloads each
// survive a round trip as themselves.
func TestSlotNBTPresence(t *testing.T) {
	testCases := []struct {
		name string
		slot Slot
		size int
	}{
		{"absent", Slot{ID: 276, Count: 1, Damage: 3}, 7},
		{"present empty", Slot{ID: 276, Count: 1, Damage: 3, NBT: []byte{}}, 7},
		{"present", Slot{ID: 276, Count: 64, Damage: -1, NBT: []byte{0x1F, 0x8B, 0x08}}, 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewWriter(&buf).WriteSlot(tc.slot))
			require.Equal(t, tc.size, buf.Len())

			got, err := NewReader(&buf).ReadSlot()
			require.NoError(t, err)
			require.Equal(t, tc.slot, got)
			require.Equal(t, tc.slot.NBT == nil, got.NBT == nil)
		})
	}
}

// TestSlotBadNBTLength verifies a length below the -1 sentinel is rejected.
func TestSlotBadNBTLength(t *testing.T) {
	data := []byte{0x00, 0x01, 0x01, 0x00, 0x00, 0xFF, 0xFE}
	_, err := NewReader(bytes.NewReader(data)).ReadSlot()
	require.ErrorIs(t, err, ErrMalformed)
}

// TestMetadataTermination verifies the terminator law.
func TestMetadataTermination(t *testing.T) {
	t.Run("empty dictionary", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewWriter(&buf).WriteMetadata(nil))
		require.Equal(t, []byte{MetadataTerminator}, buf.Bytes())
	})

	t.Run("trailing garbage is ignored", func(t *testing.T) {
		md := Metadata{
			NewMetadataEntry(0, MetadataByte(0x20)),
			NewMetadataEntry(8, MetadataInt(-7)),
		}
		var buf bytes.Buffer
		require.NoError(t, NewWriter(&buf).WriteMetadata(md))
		encoded := append([]byte{}, buf.Bytes()...)

		for _, garbage := range [][]byte{nil, {0x00}, {0x7F, 0x7F}, {0xFF, 0x01, 0x02}} {
			r := bytes.NewReader(append(append([]byte{}, encoded...), garbage...))
			got, err := NewReader(r).ReadMetadata()
			require.NoError(t, err)
			require.Equal(t, md, got)
			require.Equal(t, len(garbage), r.Len())
		}
	})
}

// TestMetadataEntries round-trips every value type and checks key packing.
func TestMetadataEntries(t *testing.T) {
	md := Metadata{
		NewMetadataEntry(0, MetadataByte(-1)),
		NewMetadataEntry(1, MetadataShort(300)),
		NewMetadataEntry(2, MetadataInt(math.MaxInt32)),
		NewMetadataEntry(3, MetadataFloat(0.5)),
		NewMetadataEntry(5, MetadataString("Notch")),
		NewMetadataEntry(10, MetadataSlot(Slot{ID: 1, Count: 2, Damage: 3})),
		NewMetadataEntry(17, MetadataPosition{X: -1, Y: 64, Z: 1}),
	}

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteMetadata(md))
	require.Equal(t, byte(0x00), buf.Bytes()[0])

	got, err := NewReader(&buf).ReadMetadata()
	require.NoError(t, err)
	require.Equal(t, md, got)

	require.Equal(t, byte(0xAA), NewMetadataEntry(10, MetadataSlot{}).Key())
	require.Equal(t, uint8(0x03), NewMetadataEntry(0x23, MetadataByte(0)).Index)
}

// TestMetadataErrors covers the unknown type tag and the key that would be
// indistinguishable from the terminator.
func TestMetadataErrors(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte{0xE0, 0x00, 0x7F})).ReadMetadata()
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("float at index 31", func(t *testing.T) {
		md := Metadata{NewMetadataEntry(31, MetadataFloat(1))}
		err := NewWriter(io.Discard).WriteMetadata(md)
		require.ErrorIs(t, err, ErrMetadataKeyReserved)
	})

	t.Run("missing terminator", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte{0x00, 0x01})).ReadMetadata()
		require.True(t, errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF))
	})
}
