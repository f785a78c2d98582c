// Package session relays one client connection to the real server, decoding
// every packet in both directions and taking over the key exchange so that
// encrypted traffic stays readable at the proxy.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/smproxy/internal/auth"
	"github.com/1ureka/smproxy/internal/handshake"
	"github.com/1ureka/smproxy/internal/protocol"
	"github.com/1ureka/smproxy/internal/util"
)

var (
	ErrProtocolViolation = errors.New("session: protocol violation")
	ErrAuthFailed        = errors.New("session: authentication failed")
)

// State is the coarse lifecycle state of a session.
type State int32

const (
	Handshaking State = iota
	Relaying
	Closed
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Relaying:
		return "relaying"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configure a session. They are shared read-only between sessions.
type Options struct {
	// Keys is the keypair presented to clients. Required.
	Keys *handshake.KeyPair

	// Auth is used to log in to online mode servers and to verify clients.
	Auth auth.Authenticator

	// Username and Password are the account the proxy joins servers with.
	Username string
	Password string

	// AuthenticateClients makes the proxy check that each client joined it
	// through the session server.
	AuthenticateClients bool

	// StrictVerifyToken aborts the session when the client echoes a wrong
	// verify token instead of only logging it.
	StrictVerifyToken bool

	// PacketTimeout bounds how long a peer may take to finish a packet it
	// has started. Zero means DefaultPacketTimeout; negative disables it.
	PacketTimeout time.Duration

	Observer Observer
}

// Session owns one client connection and the matching server connection.
type Session struct {
	ID uuid.UUID

	opts     Options
	observer Observer
	client   *leg
	server   *leg
	ic       *handshake.Interceptor
	cred     *auth.Credential

	state    atomic.Int32
	awaiting atomic.Int32
	username atomic.Value

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps an accepted client connection and a dialed server connection.
func New(client, server net.Conn, opts Options) *Session {
	timeout := opts.PacketTimeout
	if timeout == 0 {
		timeout = DefaultPacketTimeout
	}
	s := &Session{
		ID:       uuid.New(),
		opts:     opts,
		observer: opts.Observer,
		client:   newLeg("client", protocol.ClientToServer, client, timeout),
		server:   newLeg("server", protocol.ServerToClient, server, timeout),
		ic:       handshake.NewInterceptor(opts.Keys, opts.AuthenticateClients, opts.StrictVerifyToken),
		done:     make(chan struct{}),
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}
	s.username.Store("")
	return s
}

// Tag is the short prefix used in log lines about this session.
func (s *Session) Tag() string {
	return fmt.Sprintf("[%s]", s.ID.String()[:8])
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Awaiting returns the key exchange packet the session waits for while
// handshaking.
func (s *Session) Awaiting() handshake.Stage {
	return handshake.Stage(s.awaiting.Load())
}

// Username is the name the client logged in with, once known.
func (s *Session) Username() string {
	return s.username.Load().(string)
}

// ClientAddr is the remote address of the client connection.
func (s *Session) ClientAddr() net.Addr { return s.client.conn.RemoteAddr() }

// ServerAddr is the remote address of the server connection.
func (s *Session) ServerAddr() net.Addr { return s.server.conn.RemoteAddr() }

// BytesIn and BytesOut count wire bytes read from and written to the client.
func (s *Session) BytesIn() int64  { return s.client.raw.in.Load() }
func (s *Session) BytesOut() int64 { return s.client.raw.out.Load() }

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// SendToClient writes p to the client outside the relay flow.
func (s *Session) SendToClient(p protocol.Packet) error {
	if s.State() == Closed {
		return net.ErrClosed
	}
	return s.client.send(p)
}

// SendToServer writes p to the server outside the relay flow.
func (s *Session) SendToServer(p protocol.Packet) error {
	if s.State() == Closed {
		return net.ErrClosed
	}
	return s.server.send(p)
}

// Close stops the session and closes both connections. It may be called
// from any goroutine, any number of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closed))
		s.client.close()
		s.server.close()
	})
}

// Run pumps packets until either side disconnects, an error occurs or ctx
// is cancelled. It returns nil for a regular disconnect or cancellation.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	util.LogInfo("%s session %s <-> %s", s.Tag(), s.ClientAddr(), s.ServerAddr())
	s.observer.SessionStarted(s)

	err := s.pump(ctx)
	if s.State() == Closed && isTransport(err) {
		// Close was called while the pump was reading.
		err = nil
	}
	if err != nil && !isTransport(err) {
		s.notifyPeers(err)
	}
	s.Close()

	switch {
	case err == nil:
		util.LogInfo("%s session closed", s.Tag())
	case isTransport(err):
		util.LogInfo("%s session closed: %v", s.Tag(), err)
	default:
		util.LogWarning("%s session aborted: %v", s.Tag(), err)
	}
	s.observer.SessionClosed(s, err)
	return err
}

// ---------------------------------------------------------------------------
// Pump
// ---------------------------------------------------------------------------

// pump polls both legs in turn. Whatever a leg has already buffered is
// drained before the other leg is looked at; a leg with nothing to read
// costs at most pollTimeout.
func (s *Session) pump(ctx context.Context) error {
	legs := [2]*leg{s.server, s.client}
	for {
		for _, l := range legs {
			if ctx.Err() != nil {
				return nil
			}
			ok, err := l.available()
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			for {
				done, err := s.step(ctx, l)
				if err != nil || done {
					return err
				}
				if l.r.Buffered() == 0 {
					break
				}
			}
		}
	}
}

// step reads and handles one packet from l. done reports a clean end of
// the session.
func (s *Session) step(ctx context.Context, from *leg) (done bool, err error) {
	p, err := from.read()
	if err != nil {
		return false, err
	}
	util.Stats.AddPacket()
	if util.DebugEnabled() {
		util.LogDebug("%s %s %s", s.Tag(), from.dir, protocol.Describe(p))
	}

	switch pk := p.(type) {
	case *protocol.EncryptionKeyRequest:
		return false, s.onKeyRequest(ctx, from, pk)
	case *protocol.EncryptionKeyResponse:
		return false, s.onKeyResponse(ctx, from, pk)
	}
	return s.relay(from, p)
}

// relay hands p to the observer and forwards it unless suppressed.
func (s *Session) relay(from *leg, p protocol.Packet) (bool, error) {
	if !protocol.Allowed(p.ID(), from.dir) {
		util.LogWarning("%s %s sent by the %s", s.Tag(), protocol.Name(p.ID()), from.name)
	}
	if hs, ok := p.(*protocol.Handshake); ok && from == s.client {
		s.username.Store(hs.Username)
		if hs.ProtocolVersion != protocol.Version {
			util.LogWarning("%s client speaks protocol %d, expected %d", s.Tag(), hs.ProtocolVersion, protocol.Version)
		}
	}

	ev := &Event{Session: s, Direction: from.dir, Packet: p}
	s.observer.PacketReceived(ev)

	if !ev.Suppressed && ev.Packet != nil {
		if err := s.opposite(from).send(ev.Packet); err != nil {
			return false, err
		}
	}

	if p.ID() == protocol.IDDisconnect {
		util.LogInfo("%s %s disconnected: %s", s.Tag(), from.name, p.(*protocol.Disconnect).Reason)
		return true, nil
	}
	return false, nil
}

func (s *Session) opposite(l *leg) *leg {
	if l == s.client {
		return s.server
	}
	return s.client
}

// ---------------------------------------------------------------------------
// Key exchange
// ---------------------------------------------------------------------------

// onKeyRequest takes the server's key request and answers the client with
// the proxy's own key.
func (s *Session) onKeyRequest(ctx context.Context, from *leg, req *protocol.EncryptionKeyRequest) error {
	if from != s.server || s.State() != Handshaking {
		return fmt.Errorf("%w: key request from %s while %s", ErrProtocolViolation, from.name, s.State())
	}
	s.observe(from, req)

	// ── 1. Stage the server leg ─────────────────────────────────────────
	forged, err := s.ic.ServerRequest(req)
	if err != nil {
		if errors.Is(err, handshake.ErrUnexpectedPacket) {
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		return err
	}
	s.awaiting.Store(int32(s.ic.Stage()))

	// ── 2. Log in if the server is in online mode ───────────────────────
	if s.ic.ServerRequiresAuth() {
		if s.opts.Auth == nil || s.opts.Username == "" {
			util.LogWarning("%s server %q requires a login but no account is configured", s.Tag(), req.ServerID)
		} else {
			cred, err := s.opts.Auth.Login(ctx, s.opts.Username, s.opts.Password)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrAuthFailed, err)
			}
			s.cred = &cred
			util.LogDebug("%s logged in as %s", s.Tag(), cred.Username)
		}
	}

	// ── 3. Present the proxy key to the client ──────────────────────────
	util.LogDebug("%s key request forwarded with server id %q", s.Tag(), forged.ServerID)
	return s.client.send(forged)
}

// onKeyResponse handles the client's secret and, after it, the server's
// empty acknowledgement that switches both legs to encryption.
func (s *Session) onKeyResponse(ctx context.Context, from *leg, resp *protocol.EncryptionKeyResponse) error {
	if s.State() != Handshaking {
		return fmt.Errorf("%w: key response from %s while %s", ErrProtocolViolation, from.name, s.State())
	}
	s.observe(from, resp)

	if from == s.client {
		return s.onClientSecret(ctx, resp)
	}
	return s.onServerAck(resp)
}

func (s *Session) onClientSecret(ctx context.Context, resp *protocol.EncryptionKeyResponse) error {
	// ── 1. Recover the client secret ────────────────────────────────────
	staged, mismatch, err := s.ic.ClientResponse(resp)
	if err != nil {
		if errors.Is(err, handshake.ErrUnexpectedPacket) {
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		return err
	}
	s.awaiting.Store(int32(s.ic.Stage()))
	if mismatch {
		util.LogWarning("%s client returned a wrong verify token", s.Tag())
	}

	// ── 2. Verify the client ────────────────────────────────────────────
	if s.opts.AuthenticateClients {
		if s.opts.Auth == nil {
			return fmt.Errorf("%w: no authenticator configured", ErrAuthFailed)
		}
		user := s.Username()
		ok, err := s.opts.Auth.CheckServer(ctx, user, s.ic.ClientHash())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		if !ok {
			return fmt.Errorf("%w: %q did not join through the session server", ErrAuthFailed, user)
		}
		util.LogDebug("%s client %s verified", s.Tag(), user)
	}

	// ── 3. Join the real server ─────────────────────────────────────────
	if s.cred != nil {
		if err := s.opts.Auth.JoinServer(ctx, *s.cred, s.ic.ServerHash()); err != nil {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
	}

	// ── 4. Hand the server its secret ───────────────────────────────────
	return s.server.send(staged)
}

func (s *Session) onServerAck(resp *protocol.EncryptionKeyResponse) error {
	serverSecret, clientSecret, err := s.ic.ServerResponse(resp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	s.awaiting.Store(int32(s.ic.Stage()))

	if err := s.server.encrypt(serverSecret); err != nil {
		return err
	}
	if err := s.client.encrypt(clientSecret, &protocol.EncryptionKeyResponse{}); err != nil {
		return err
	}
	s.state.CompareAndSwap(int32(Handshaking), int32(Relaying))
	util.LogDebug("%s both legs encrypted", s.Tag())
	return nil
}

// observe reports a key exchange packet. The session handles these itself,
// so a suppression is ignored.
func (s *Session) observe(from *leg, p protocol.Packet) {
	s.observer.PacketReceived(&Event{Session: s, Direction: from.dir, Packet: p})
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// notifyPeers sends a disconnect to both sides.
func (s *Session) notifyPeers(err error) {
	reason := "Proxy error: " + err.Error()
	if errors.Is(err, ErrAuthFailed) {
		reason = "Failed to verify username!"
	}
	s.client.disconnect(reason)
	s.server.disconnect(reason)
}

func isTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
