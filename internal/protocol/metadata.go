package protocol

import "fmt"

// MetadataTerminator ends an entity metadata dictionary.
const MetadataTerminator byte = 0x7F

// MetadataType is the 3-bit value type stored in the high bits of an entry key.
type MetadataType uint8

const (
	MetadataTypeByte MetadataType = iota
	MetadataTypeShort
	MetadataTypeInt
	MetadataTypeFloat
	MetadataTypeString
	MetadataTypeSlot
	MetadataTypePosition
)

var metadataTypeNames = [...]string{"byte", "short", "int", "float", "string", "slot", "position"}

func (t MetadataType) String() string {
	if int(t) < len(metadataTypeNames) {
		return metadataTypeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// MetadataValue is one of MetadataByte, MetadataShort, MetadataInt,
// MetadataFloat, MetadataString, MetadataSlot or MetadataPosition.
type MetadataValue interface {
	MetadataType() MetadataType
}

type (
	MetadataByte     int8
	MetadataShort    int16
	MetadataInt      int32
	MetadataFloat    float32
	MetadataString   string
	MetadataSlot     Slot
	MetadataPosition struct{ X, Y, Z int32 }
)

func (MetadataByte) MetadataType() MetadataType     { return MetadataTypeByte }
func (MetadataShort) MetadataType() MetadataType    { return MetadataTypeShort }
func (MetadataInt) MetadataType() MetadataType      { return MetadataTypeInt }
func (MetadataFloat) MetadataType() MetadataType    { return MetadataTypeFloat }
func (MetadataString) MetadataType() MetadataType   { return MetadataTypeString }
func (MetadataSlot) MetadataType() MetadataType     { return MetadataTypeSlot }
func (MetadataPosition) MetadataType() MetadataType { return MetadataTypePosition }

// MetadataEntry is a single indexed value of an entity metadata dictionary.
type MetadataEntry struct {
	Index uint8
	Value MetadataValue
}

// NewMetadataEntry builds an entry, masking index to its 5-bit range.
func NewMetadataEntry(index uint8, v MetadataValue) MetadataEntry {
	return MetadataEntry{Index: index & 0x1F, Value: v}
}

// Key packs the value type and index the way they appear on the wire.
func (e MetadataEntry) Key() byte {
	return byte(e.Value.MetadataType())<<5 | e.Index&0x1F
}

// Metadata is an ordered entity metadata dictionary.
type Metadata []MetadataEntry

// ReadMetadata decodes entries up to and including the terminator. Bytes
// after the terminator are left unread.
func (r *Reader) ReadMetadata() (Metadata, error) {
	var md Metadata
	for {
		key, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		if key == MetadataTerminator {
			return md, nil
		}
		v, err := r.readMetadataValue(MetadataType(key >> 5))
		if err != nil {
			return nil, err
		}
		md = append(md, MetadataEntry{Index: key & 0x1F, Value: v})
	}
}

func (r *Reader) readMetadataValue(t MetadataType) (MetadataValue, error) {
	switch t {
	case MetadataTypeByte:
		v, err := r.ReadInt8()
		return MetadataByte(v), err
	case MetadataTypeShort:
		v, err := r.ReadInt16()
		return MetadataShort(v), err
	case MetadataTypeInt:
		v, err := r.ReadInt32()
		return MetadataInt(v), err
	case MetadataTypeFloat:
		v, err := r.ReadFloat32()
		return MetadataFloat(v), err
	case MetadataTypeString:
		v, err := r.ReadString()
		return MetadataString(v), err
	case MetadataTypeSlot:
		v, err := r.ReadSlot()
		return MetadataSlot(v), err
	case MetadataTypePosition:
		var p MetadataPosition
		var err error
		if p.X, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if p.Y, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		p.Z, err = r.ReadInt32()
		return p, err
	default:
		return nil, fmt.Errorf("%w: metadata type %d", ErrMalformed, t)
	}
}

// WriteMetadata encodes the entries followed by the terminator.
func (w *Writer) WriteMetadata(md Metadata) error {
	for _, e := range md {
		if e.Value == nil {
			return fmt.Errorf("%w: metadata index %d has no value", ErrMalformed, e.Index)
		}
		key := e.Key()
		if key == MetadataTerminator {
			return fmt.Errorf("%w: %s at index %d", ErrMetadataKeyReserved, e.Value.MetadataType(), e.Index)
		}
		if err := w.WriteUint8(key); err != nil {
			return err
		}
		if err := w.writeMetadataValue(e.Value); err != nil {
			return err
		}
	}
	return w.WriteUint8(MetadataTerminator)
}

func (w *Writer) writeMetadataValue(v MetadataValue) error {
	switch v := v.(type) {
	case MetadataByte:
		return w.WriteInt8(int8(v))
	case MetadataShort:
		return w.WriteInt16(int16(v))
	case MetadataInt:
		return w.WriteInt32(int32(v))
	case MetadataFloat:
		return w.WriteFloat32(float32(v))
	case MetadataString:
		return w.WriteString(string(v))
	case MetadataSlot:
		return w.WriteSlot(Slot(v))
	case MetadataPosition:
		if err := w.WriteInt32(v.X); err != nil {
			return err
		}
		if err := w.WriteInt32(v.Y); err != nil {
			return err
		}
		return w.WriteInt32(v.Z)
	default:
		return fmt.Errorf("%w: unsupported metadata value %T", ErrMalformed, v)
	}
}
