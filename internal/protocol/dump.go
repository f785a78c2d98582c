package protocol

import (
	"bytes"
	"compress/gzip"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/Tnze/go-mc/nbt"
)

// maxDumpBytes caps how much of a byte array a dump renders.
const maxDumpBytes = 64

// Field is one rendered packet field.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Dump renders the fields of p in wire order.
func Dump(p Packet) []Field {
	d := &dumper{}
	p.Marshal(d)
	return d.fields
}

// Describe renders p on a single line, e.g. "KeepAlive (0x00) KeepAliveID=42".
func Describe(p Packet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (0x%02X)", Name(p.ID()), p.ID())
	for _, f := range Dump(p) {
		sb.WriteByte(' ')
		sb.WriteString(f.Name)
		sb.WriteByte('=')
		sb.WriteString(f.Value)
	}
	return sb.String()
}

// dumper is an IO that renders instead of reading or writing.
type dumper struct {
	prefix string
	fields []Field
}

func (d *dumper) add(name, value string) {
	d.fields = append(d.fields, Field{Name: d.prefix + name, Value: value})
}

func (d *dumper) scope(name string, i int) func() {
	old := d.prefix
	d.prefix = fmt.Sprintf("%s%s[%d].", old, name, i)
	return func() { d.prefix = old }
}

func (d *dumper) Bool(name string, x *bool)       { d.add(name, strconv.FormatBool(*x)) }
func (d *dumper) Int8(name string, x *int8)       { d.add(name, strconv.Itoa(int(*x))) }
func (d *dumper) Uint8(name string, x *uint8)     { d.add(name, strconv.Itoa(int(*x))) }
func (d *dumper) Int16(name string, x *int16)     { d.add(name, strconv.Itoa(int(*x))) }
func (d *dumper) Uint16(name string, x *uint16)   { d.add(name, fmt.Sprintf("0x%04X", *x)) }
func (d *dumper) Int32(name string, x *int32)     { d.add(name, strconv.Itoa(int(*x))) }
func (d *dumper) Int64(name string, x *int64)     { d.add(name, strconv.FormatInt(*x, 10)) }
func (d *dumper) Float32(name string, x *float32) { d.add(name, strconv.FormatFloat(float64(*x), 'g', -1, 32)) }
func (d *dumper) Float64(name string, x *float64) { d.add(name, strconv.FormatFloat(*x, 'g', -1, 64)) }
func (d *dumper) String(name string, x *string)   { d.add(name, strconv.Quote(*x)) }
func (d *dumper) Slot(name string, x *Slot)       { d.add(name, FormatSlot(*x)) }

func (d *dumper) Metadata(name string, x *Metadata) {
	parts := make([]string, 0, len(*x))
	for _, e := range *x {
		if e.Value == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d:%s=%s", e.Index, e.Value.MetadataType(), formatMetadataValue(e.Value)))
	}
	d.add(name, "{"+strings.Join(parts, ", ")+"}")
}

func (d *dumper) Len8(name string, n int) int  { d.add(name, strconv.Itoa(n)); return n }
func (d *dumper) Len16(name string, n int) int { d.add(name, strconv.Itoa(n)); return n }
func (d *dumper) Len32(name string, n int) int { d.add(name, strconv.Itoa(n)); return n }

func (d *dumper) Bytes(name string, x *[]byte, _ int) {
	b := *x
	if len(b) > maxDumpBytes {
		d.add(name, hex.EncodeToString(b[:maxDumpBytes])+"...")
		return
	}
	d.add(name, hex.EncodeToString(b))
}

func (d *dumper) Int32s(name string, x *[]int32, _ int) {
	d.add(name, fmt.Sprint(*x))
}

func (d *dumper) Slots(name string, x *[]Slot, _ int) {
	parts := make([]string, len(*x))
	for i, s := range *x {
		parts[i] = FormatSlot(s)
	}
	d.add(name, "["+strings.Join(parts, ", ")+"]")
}

// FormatSlot renders an item stack, decoding its NBT payload when possible.
func FormatSlot(s Slot) string {
	if s.Empty() {
		return "empty"
	}
	out := fmt.Sprintf("id=%d count=%d damage=%d", s.ID, s.Count, s.Damage)
	if s.NBT != nil {
		out += " nbt=" + FormatNBT(s.NBT)
	}
	return out
}

// FormatNBT renders a gzip-compressed NBT payload. Payloads that do not
// decode are shown by size only.
func FormatNBT(data []byte) string {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Sprintf("<%d bytes>", len(data))
	}
	defer zr.Close()

	var v any
	if _, err := nbt.NewDecoder(zr).Decode(&v); err != nil {
		return fmt.Sprintf("<%d bytes>", len(data))
	}
	return fmt.Sprintf("%v", v)
}

func formatMetadataValue(v MetadataValue) string {
	switch v := v.(type) {
	case MetadataString:
		return strconv.Quote(string(v))
	case MetadataSlot:
		return FormatSlot(Slot(v))
	case MetadataPosition:
		return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
	default:
		return fmt.Sprint(v)
	}
}
