// Package protocol implements the wire format of the Minecraft protocol
// version 49 (game version 1.4.4): big-endian primitives, UTF-16 strings,
// item stacks, entity metadata and the tagged packet set.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Version is the protocol version the packet table models.
const Version = 49

// Packet is one decoded wire message. Marshal walks its fields in wire
// order; see IO.
type Packet interface {
	ID() byte
	Marshal(io IO)
}

// Direction tells which peer sent a packet.
type Direction uint8

const (
	ClientToServer Direction = 1 << iota
	ServerToClient

	Bidirectional = ClientToServer | ServerToClient
)

func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "CLIENT->SERVER"
	case ServerToClient:
		return "SERVER->CLIENT"
	case Bidirectional:
		return "BOTH"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

type entry struct {
	name string
	dir  Direction
	new  func() Packet
}

var registry [256]*entry

func register(id byte, name string, dir Direction, fn func() Packet) {
	if registry[id] != nil {
		panic(fmt.Sprintf("protocol: packet 0x%02X registered twice", id))
	}
	registry[id] = &entry{name: name, dir: dir, new: fn}
}

// Registered reports whether id has a known layout.
func Registered(id byte) bool {
	return registry[id] != nil
}

// Name returns the human readable name of a packet id.
func Name(id byte) string {
	if e := registry[id]; e != nil {
		return e.name
	}
	return fmt.Sprintf("Unknown(0x%02X)", id)
}

// Allowed reports whether id may be sent in direction d. Unknown ids are
// never allowed.
func Allowed(id byte, d Direction) bool {
	e := registry[id]
	return e != nil && e.dir&d != 0
}

// New returns a zero packet for id.
func New(id byte) (Packet, error) {
	e := registry[id]
	if e == nil {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownPacket, id)
	}
	return e.new(), nil
}

// ---------------------------------------------------------------------------
// Read / Write
// ---------------------------------------------------------------------------

// ReadPacket reads a tag byte and decodes the packet registered for it.
// io.EOF is returned untouched when the stream ends cleanly before a tag.
func ReadPacket(r io.Reader) (Packet, error) {
	rd := NewReader(r)
	id, err := rd.ReadUint8()
	if err != nil {
		return nil, err
	}
	return ReadPayload(id, rd)
}

// ReadPayload decodes the body of packet id whose tag was already consumed.
func ReadPayload(id byte, rd *Reader) (Packet, error) {
	p, err := New(id)
	if err != nil {
		return nil, err
	}
	d := &decoder{r: rd}
	p.Marshal(d)
	if d.err == nil {
		d.err = check(p)
	}
	if d.err != nil {
		err := d.err
		// A stream ending inside a packet is a truncation, not a clean close.
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w (%v)", io.ErrUnexpectedEOF, err)
		}
		return nil, fmt.Errorf("%s (0x%02X): %w", Name(id), id, err)
	}
	return p, nil
}

// WritePacket writes the tag byte of p followed by its fields.
func WritePacket(w io.Writer, p Packet) error {
	if err := check(p); err != nil {
		return fmt.Errorf("%s (0x%02X): %w", Name(p.ID()), p.ID(), err)
	}
	wr := NewWriter(w)
	if err := wr.WriteUint8(p.ID()); err != nil {
		return err
	}
	e := &encoder{w: wr}
	p.Marshal(e)
	if e.err != nil {
		return fmt.Errorf("%s (0x%02X): %w", Name(p.ID()), p.ID(), e.err)
	}
	return nil
}

// checker is implemented by packets whose fields constrain each other in
// ways a single Marshal pass cannot express.
type checker interface {
	check() error
}

func check(p Packet) error {
	if c, ok := p.(checker); ok {
		return c.check()
	}
	return nil
}

// Encode returns the full wire form of p.
func Encode(p Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses exactly one packet from data and reports how many bytes it
// consumed.
func Decode(data []byte) (Packet, int, error) {
	r := bytes.NewReader(data)
	p, err := ReadPacket(r)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}
	return p, len(data) - r.Len(), nil
}
