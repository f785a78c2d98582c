package protocol

import "fmt"

// EmptySlotID marks a slot with no item. Nothing follows it on the wire.
const EmptySlotID int16 = -1

// Slot is an item stack. NBT holds the gzip-compressed tag payload exactly
// as received; nil means the payload is absent (length -1 on the wire), a
// non-nil empty slice is a present payload of length zero.
type Slot struct {
	ID     int16
	Count  int8
	Damage int16
	NBT    []byte
}

// EmptySlot returns a slot holding nothing.
func EmptySlot() Slot {
	return Slot{ID: EmptySlotID}
}

// Empty reports whether the slot holds no item.
func (s Slot) Empty() bool {
	return s.ID == EmptySlotID
}

// ReadSlot decodes an item stack, stopping after the id when it is empty.
func (r *Reader) ReadSlot() (Slot, error) {
	id, err := r.ReadInt16()
	if err != nil {
		return Slot{}, err
	}
	s := Slot{ID: id}
	if s.Empty() {
		return s, nil
	}
	if s.Count, err = r.ReadInt8(); err != nil {
		return Slot{}, err
	}
	if s.Damage, err = r.ReadInt16(); err != nil {
		return Slot{}, err
	}
	n, err := r.ReadInt16()
	if err != nil {
		return Slot{}, err
	}
	switch {
	case n == -1:
	case n < -1:
		return Slot{}, fmt.Errorf("%w: slot nbt length %d", ErrMalformed, n)
	case n == 0:
		s.NBT = []byte{}
	default:
		if s.NBT, err = r.ReadBytes(int(n)); err != nil {
			return Slot{}, err
		}
	}
	return s, nil
}

// WriteSlot encodes an item stack. An empty slot is exactly two bytes.
func (w *Writer) WriteSlot(s Slot) error {
	if err := w.WriteInt16(s.ID); err != nil {
		return err
	}
	if s.Empty() {
		return nil
	}
	if err := w.WriteInt8(s.Count); err != nil {
		return err
	}
	if err := w.WriteInt16(s.Damage); err != nil {
		return err
	}
	if s.NBT == nil {
		return w.WriteInt16(-1)
	}
	if len(s.NBT) > MaxStringLength {
		return fmt.Errorf("%w: slot nbt of %d bytes", ErrArrayTooLong, len(s.NBT))
	}
	if err := w.WriteInt16(int16(len(s.NBT))); err != nil {
		return err
	}
	return w.WriteBytes(s.NBT)
}
