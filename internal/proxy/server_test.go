package proxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/smproxy/internal/config"
	"github.com/1ureka/smproxy/internal/protocol"
	"github.com/1ureka/smproxy/internal/resolve"
	"github.com/1ureka/smproxy/internal/session"
)

// fakeServer accepts one game connection at a time and hands it to the test.
func fakeServer(t *testing.T) (string, <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 4)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- c
		}
	}()
	return ln.Addr().String(), conns
}

// startProxy runs a Server for remote on a loopback listener.
func startProxy(t *testing.T, cfg config.Config) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := New(cfg, session.Options{}, resolve.WithServers("127.0.0.1:1"))
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})
	return srv, ln.Addr().String()
}

func dialClient(t *testing.T, addr string) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	c.SetDeadline(time.Now().Add(5 * time.Second))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRelaysBothWays(t *testing.T) {
	remote, conns := fakeServer(t)
	cfg := config.Default()
	cfg.RemoteAddr = remote
	srv, addr := startProxy(t, cfg)

	client := dialClient(t, addr)
	require.NoError(t, protocol.WritePacket(client, &protocol.Handshake{ProtocolVersion: protocol.Version, Username: "steve", ServerHost: "localhost", ServerPort: 25565}))

	var server net.Conn
	select {
	case server = <-conns:
	case <-time.After(5 * time.Second):
		t.Fatal("proxy never dialed the server")
	}
	server.SetDeadline(time.Now().Add(5 * time.Second))

	p, err := protocol.ReadPacket(server)
	require.NoError(t, err)
	require.Equal(t, "steve", p.(*protocol.Handshake).Username)

	require.NoError(t, protocol.WritePacket(server, &protocol.KeepAlive{KeepAliveID: 9}))
	p, err = protocol.ReadPacket(client)
	require.NoError(t, err)
	require.Equal(t, &protocol.KeepAlive{KeepAliveID: 9}, p)

	require.Eventually(t, func() bool {
		s := srv.Sessions()
		return len(s) == 1 && s[0].Username() == "steve"
	}, time.Second, 5*time.Millisecond)

	client.Close()
	require.Eventually(t, func() bool { return len(srv.Sessions()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestUnreachableServerIsReported(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	remote := ln.Addr().String()
	ln.Close()

	cfg := config.Default()
	cfg.RemoteAddr = remote
	_, addr := startProxy(t, cfg)

	client := dialClient(t, addr)
	p, err := protocol.ReadPacket(client)
	require.NoError(t, err)
	require.Equal(t, &protocol.Disconnect{Reason: "Failed to connect to server"}, p)

	_, err = protocol.ReadPacket(client)
	require.Error(t, err)
}

func TestAcceptRateLimit(t *testing.T) {
	remote, conns := fakeServer(t)
	cfg := config.Default()
	cfg.RemoteAddr = remote
	cfg.AcceptRate = 0.001
	cfg.AcceptBurst = 1
	_, addr := startProxy(t, cfg)

	first := dialClient(t, addr)
	select {
	case <-conns:
	case <-time.After(5 * time.Second):
		t.Fatal("first connection was not relayed")
	}

	second := dialClient(t, addr)
	buf := make([]byte, 1)
	_, err := second.Read(buf)
	require.Error(t, err, "second connection should be closed without a session")

	// The first session is unaffected.
	require.NoError(t, protocol.WritePacket(first, &protocol.KeepAlive{}))
}

func TestSessionOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Username, cfg.Password = "steve", "pw"
	cfg.AuthenticateClients = true
	cfg.StrictVerifyToken = true

	obs := session.NopObserver{}
	opts := SessionOptions(cfg, nil, obs)
	require.Equal(t, "steve", opts.Username)
	require.Equal(t, "pw", opts.Password)
	require.True(t, opts.AuthenticateClients)
	require.True(t, opts.StrictVerifyToken)
	require.NotNil(t, opts.Auth)
	require.Equal(t, obs, opts.Observer)
	require.Equal(t, 30*time.Second, opts.PacketTimeout)

	cfg.PacketTimeout = 0
	require.Negative(t, SessionOptions(cfg, nil, obs).PacketTimeout, "zero waits forever")
}

func TestListenAndServeBadAddress(t *testing.T) {
	srv := New(config.Default(), session.Options{}, resolve.New())
	err := srv.ListenAndServe(context.Background(), "256.0.0.1:1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to listen")
}
