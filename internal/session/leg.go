package session

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/smproxy/internal/protocol"
	"github.com/1ureka/smproxy/internal/tunnel"
	"github.com/1ureka/smproxy/internal/util"
)

// Tuning constants.
const (
	pollTimeout       = 5 * time.Millisecond // how long a leg is watched for data per pump turn
	disconnectTimeout = time.Second          // write deadline for a best-effort disconnect
	readBufferSize    = 32 * 1024
)

// DefaultPacketTimeout bounds how long the rest of a packet may take to
// arrive once its first byte has been seen.
const DefaultPacketTimeout = 30 * time.Second

// TransportError reports an I/O failure on one leg of a session.
type TransportError struct {
	Leg string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session: %s transport: %v", e.Leg, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// leg is one side of a session. Reads happen on the pump goroutine only;
// writes may come from anywhere and are serialized by wmu.
type leg struct {
	name string
	dir  protocol.Direction // direction of packets read from this leg
	conn net.Conn
	raw  *meter

	r       *bufio.Reader
	timeout time.Duration

	wmu sync.Mutex
	w   io.Writer
}

func newLeg(name string, dir protocol.Direction, conn net.Conn, timeout time.Duration) *leg {
	m := &meter{conn: conn, upstream: dir == protocol.ClientToServer}
	return &leg{
		name:    name,
		dir:     dir,
		conn:    conn,
		raw:     m,
		r:       bufio.NewReaderSize(m, readBufferSize),
		timeout: timeout,
		w:       m,
	}
}

// available reports whether a packet can be read without waiting longer
// than pollTimeout for its first byte.
func (l *leg) available() (bool, error) {
	if l.r.Buffered() > 0 {
		return true, nil
	}
	if err := l.conn.SetReadDeadline(time.Now().Add(pollTimeout)); err != nil {
		return false, &TransportError{Leg: l.name, Err: err}
	}
	_, err := l.r.Peek(1)
	l.conn.SetReadDeadline(time.Time{})
	if err == nil {
		return true, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false, nil
	}
	return false, &TransportError{Leg: l.name, Err: err}
}

// read decodes the next packet, giving the peer at most l.timeout to deliver
// all of it. Framing errors are returned as they are; I/O failures, a peer
// that hangs up mid-packet and a stalled packet come back as *TransportError.
func (l *leg) read() (protocol.Packet, error) {
	if l.timeout > 0 {
		if err := l.conn.SetReadDeadline(time.Now().Add(l.timeout)); err != nil {
			return nil, &TransportError{Leg: l.name, Err: err}
		}
		defer l.conn.SetReadDeadline(time.Time{})
	}
	p, err := protocol.ReadPacket(l.r)
	if err == nil {
		return p, nil
	}
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
	case errors.As(err, &ne), errors.Is(err, net.ErrClosed):
	default:
		return nil, err
	}
	return nil, &TransportError{Leg: l.name, Err: err}
}

// send encodes p and writes it in one piece.
func (l *leg) send(p protocol.Packet) error {
	b, err := protocol.Encode(p)
	if err != nil {
		return err
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if _, err := l.w.Write(b); err != nil {
		return &TransportError{Leg: l.name, Err: err}
	}
	return nil
}

// encrypt sends preface in plaintext and then switches both directions of
// the leg to a tunnel keyed with key. Bytes the reader had already pulled
// off the wire are ciphertext and are fed through the tunnel first.
func (l *leg) encrypt(key []byte, preface ...protocol.Packet) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	for _, p := range preface {
		b, err := protocol.Encode(p)
		if err != nil {
			return err
		}
		if _, err := l.w.Write(b); err != nil {
			return &TransportError{Leg: l.name, Err: err}
		}
	}

	var pending []byte
	if n := l.r.Buffered(); n > 0 {
		b, _ := l.r.Peek(n)
		pending = bytes.Clone(b)
	}

	t, err := tunnel.New(struct {
		io.Reader
		io.Writer
	}{io.MultiReader(bytes.NewReader(pending), l.raw), l.raw}, key)
	if err != nil {
		return err
	}

	l.r = bufio.NewReaderSize(t, readBufferSize)
	l.w = t
	return nil
}

// disconnect makes a best-effort attempt to tell the peer why the session
// is ending.
func (l *leg) disconnect(reason string) {
	l.conn.SetWriteDeadline(time.Now().Add(disconnectTimeout))
	if err := l.send(&protocol.Disconnect{Reason: reason}); err != nil {
		util.LogDebug("disconnect to %s not delivered: %v", l.name, err)
	}
}

func (l *leg) close() error {
	return l.conn.Close()
}

// meter counts the wire bytes moving through a connection. Reads also feed
// the process-wide stats: upstream for the client leg, downstream for the
// server leg.
type meter struct {
	conn     net.Conn
	upstream bool
	in, out  atomic.Int64
}

func (m *meter) Read(p []byte) (int, error) {
	n, err := m.conn.Read(p)
	m.in.Add(int64(n))
	if m.upstream {
		util.Stats.AddUpstream(n)
	} else {
		util.Stats.AddDownstream(n)
	}
	return n, err
}

func (m *meter) Write(p []byte) (int, error) {
	n, err := m.conn.Write(p)
	m.out.Add(int64(n))
	return n, err
}
