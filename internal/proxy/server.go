// Package proxy accepts game clients, dials the real server for each of them
// and runs a session between the two.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/1ureka/smproxy/internal/auth"
	"github.com/1ureka/smproxy/internal/config"
	"github.com/1ureka/smproxy/internal/handshake"
	"github.com/1ureka/smproxy/internal/protocol"
	"github.com/1ureka/smproxy/internal/resolve"
	"github.com/1ureka/smproxy/internal/session"
	"github.com/1ureka/smproxy/internal/util"
)

// Tuning constants.
const (
	DialTimeout    = 10 * time.Second
	resolveTimeout = 5 * time.Second
	refuseTimeout  = time.Second
)

// Server is the listening side of the proxy.
type Server struct {
	remote   string
	opts     session.Options
	resolver *resolve.Resolver
	limiter  *rate.Limiter
	dialer   net.Dialer

	mu       sync.Mutex
	sessions map[uuid.UUID]*session.Session
	wg       sync.WaitGroup
}

// New builds a server relaying to cfg.RemoteAddr with the given session
// options.
func New(cfg config.Config, opts session.Options, resolver *resolve.Resolver) *Server {
	s := &Server{
		remote:   cfg.RemoteAddr,
		opts:     opts,
		resolver: resolver,
		dialer:   net.Dialer{Timeout: DialTimeout},
		sessions: make(map[uuid.UUID]*session.Session),
	}
	if cfg.AcceptRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst)
	}
	return s
}

// SessionOptions derives per-session options from cfg. keys is presented to
// every client and observer sees every session.
func SessionOptions(cfg config.Config, keys *handshake.KeyPair, observer session.Observer) session.Options {
	timeout := cfg.PacketTimeout
	if timeout == 0 {
		timeout = -1
	}
	return session.Options{
		Keys:                keys,
		Auth:                auth.NewClient(cfg.LoginURL, cfg.JoinURL, cfg.CheckURL),
		Username:            cfg.Username,
		Password:            cfg.Password,
		AuthenticateClients: cfg.AuthenticateClients,
		StrictVerifyToken:   cfg.StrictVerifyToken,
		PacketTimeout:       timeout,
		Observer:            observer,
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then waits
// for the running sessions to end. listener is closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	// Close the listener when context is done so Accept() returns an error.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	defer s.wg.Wait()

	util.LogSuccess("proxy listening on %s, relaying to %s", listener.Addr(), s.remote)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil // normal shutdown
			default:
				return fmt.Errorf("accept error: %w", err)
			}
		}

		if s.limiter != nil && !s.limiter.Allow() {
			util.LogWarning("refusing %s: too many new connections", conn.RemoteAddr())
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// Sessions returns the sessions that are currently running.
func (s *Server) Sessions() []*session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// ---------------------------------------------------------------------------
// Per-connection handling
// ---------------------------------------------------------------------------

func (s *Server) handle(ctx context.Context, client net.Conn) {
	util.LogInfo("new connection from %s", client.RemoteAddr())

	server, err := s.dial(ctx)
	if err != nil {
		util.LogWarning("%s: %v", client.RemoteAddr(), err)
		refuse(client, "Failed to connect to server")
		return
	}

	sess := session.New(client, server, s.opts)
	s.track(sess)
	defer s.untrack(sess)

	sess.Run(ctx)
}

func (s *Server) dial(ctx context.Context) (net.Conn, error) {
	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	addr, err := s.resolver.Resolve(rctx, s.remote)
	cancel()
	if err != nil {
		return nil, err
	}

	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

func (s *Server) track(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	util.Stats.AddSession()
}

func (s *Server) untrack(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.ID)
	util.Stats.RemoveSession()
}

// refuse tells a client that never got a session why, then hangs up.
func refuse(conn net.Conn, reason string) {
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(refuseTimeout))
	if err := protocol.WritePacket(conn, &protocol.Disconnect{Reason: reason}); err != nil && !errors.Is(err, net.ErrClosed) {
		util.LogDebug("refuse %s: %v", conn.RemoteAddr(), err)
	}
}
