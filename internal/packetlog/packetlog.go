// Package packetlog writes a human readable log of every packet a session
// relays: time, direction, name, a hex dump of the wire bytes and the
// decoded fields.
package packetlog

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/1ureka/smproxy/internal/config"
	"github.com/1ureka/smproxy/internal/protocol"
	"github.com/1ureka/smproxy/internal/session"
	"github.com/1ureka/smproxy/internal/util"
)

const (
	timeFormat = "15:04:05.000"
	// maxHexBytes caps the hex dump of a single packet; chunk data easily
	// runs into hundreds of kilobytes.
	maxHexBytes = 4096
)

// Options select what gets logged.
type Options struct {
	LogClient bool // client -> server packets
	LogServer bool // server -> client packets
	Filter    config.Filter
}

// Opener returns the destination for one session's log.
type Opener func(s *session.Session) (io.WriteCloser, error)

// Logger is a session.Observer writing packet logs.
type Logger struct {
	opts Options
	open Opener
	now  func() time.Time

	mu   sync.Mutex
	logs map[*session.Session]*bufio.Writer
	outs map[*session.Session]io.Closer
}

// New returns a logger writing each session to the destination open
// returns for it.
func New(open Opener, opts Options) *Logger {
	return &Logger{
		opts: opts,
		open: open,
		now:  time.Now,
		logs: make(map[*session.Session]*bufio.Writer),
		outs: make(map[*session.Session]io.Closer),
	}
}

// DirOpener creates one file per session in dir, named after the time the
// session started.
func DirOpener(dir string) Opener {
	return func(s *session.Session) (io.WriteCloser, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("log_%s_%s.txt", time.Now().Format("02-01-2006_15-04-05"), s.ID.String()[:8])
		return os.Create(filepath.Join(dir, name))
	}
}

// WriterOpener sends every session to w. w is never closed.
func WriterOpener(w io.Writer) Opener {
	return func(*session.Session) (io.WriteCloser, error) {
		return nopCloser{w}, nil
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// ---------------------------------------------------------------------------
// session.Observer
// ---------------------------------------------------------------------------

func (l *Logger) SessionStarted(s *session.Session) {
	out, err := l.open(s)
	if err != nil {
		util.LogWarning("%s packet log unavailable: %v", s.Tag(), err)
		return
	}
	w := bufio.NewWriter(out)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs[s] = w
	l.outs[s] = out
	fmt.Fprintf(w, "{%s} Session %s started: client %s, server %s\n\n",
		l.now().Format(timeFormat), s.ID, s.ClientAddr(), s.ServerAddr())
	w.Flush()
}

func (l *Logger) PacketReceived(e *session.Event) {
	if e.Packet == nil || !l.wants(e.Packet.ID(), e.Direction) {
		return
	}
	entry := l.format(e)

	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.logs[e.Session]
	if !ok {
		return
	}
	w.Write(entry)
	w.Flush()
}

func (l *Logger) SessionClosed(s *session.Session, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.logs[s]
	if !ok {
		return
	}
	reason := "disconnected"
	if err != nil {
		reason = err.Error()
	}
	now := l.now().Format(timeFormat)
	fmt.Fprintf(w, "{%s} Client traffic: %d bytes in, %d bytes out\n", now, s.BytesIn(), s.BytesOut())
	fmt.Fprintf(w, "{%s} Session %s closed: %s\n", now, s.ID, reason)
	w.Flush()
	l.outs[s].Close()
	delete(l.logs, s)
	delete(l.outs, s)
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

func (l *Logger) wants(id byte, dir protocol.Direction) bool {
	if dir == protocol.ClientToServer && !l.opts.LogClient {
		return false
	}
	if dir == protocol.ServerToClient && !l.opts.LogServer {
		return false
	}
	return l.opts.Filter.Contains(id)
}

// format renders one entry:
//
//	{12:00:00.000} [CLIENT->SERVER] KeepAlive (0x00)
//	00000000  00 00 00 00 2a                                    |....*|
//	 KeepAliveID: 42
func (l *Logger) format(e *session.Event) []byte {
	p := e.Packet
	var b []byte
	b = fmt.Appendf(b, "{%s} [%s] %s (0x%02X)", l.now().Format(timeFormat), e.Direction, protocol.Name(p.ID()), p.ID())
	if e.Suppressed {
		b = append(b, " (suppressed)"...)
	}
	b = append(b, '\n')

	raw, err := protocol.Encode(p)
	switch {
	case err != nil:
		b = fmt.Appendf(b, " <encode error: %v>\n", err)
	case len(raw) > maxHexBytes:
		b = append(b, hex.Dump(raw[:maxHexBytes])...)
		b = fmt.Appendf(b, " ... %d more bytes\n", len(raw)-maxHexBytes)
	default:
		b = append(b, hex.Dump(raw)...)
	}

	for _, f := range protocol.Dump(p) {
		b = fmt.Appendf(b, " %s: %s\n", f.Name, f.Value)
	}
	return append(b, '\n')
}
