package session

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/smproxy/internal/auth"
	"github.com/1ureka/smproxy/internal/handshake"
	"github.com/1ureka/smproxy/internal/protocol"
	"github.com/1ureka/smproxy/internal/tunnel"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var (
	keysOnce       sync.Once
	realServerKeys *handshake.KeyPair
	proxyKeys      *handshake.KeyPair
)

func testKeys(t *testing.T) (*handshake.KeyPair, *handshake.KeyPair) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		if realServerKeys, err = handshake.GenerateKeyPair(handshake.KeyBits); err != nil {
			panic(err)
		}
		if proxyKeys, err = handshake.GenerateKeyPair(handshake.KeyBits); err != nil {
			panic(err)
		}
	})
	return realServerKeys, proxyKeys
}

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	a, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	b, ok := <-accepted
	require.True(t, ok)
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

// peer plays a real client or server on the far end of one leg.
type peer struct {
	t    *testing.T
	conn net.Conn
	r    io.Reader
	bw   *bufio.Writer
	w    io.Writer
}

func newPeer(t *testing.T, conn net.Conn) *peer {
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	bw := bufio.NewWriter(conn)
	return &peer{t: t, conn: conn, r: conn, bw: bw, w: bw}
}

// queue encodes p without flushing.
func (p *peer) queue(pk protocol.Packet) {
	p.t.Helper()
	require.NoError(p.t, protocol.WritePacket(p.w, pk))
}

func (p *peer) flush() {
	p.t.Helper()
	require.NoError(p.t, p.bw.Flush())
}

func (p *peer) send(pk protocol.Packet) {
	p.t.Helper()
	p.queue(pk)
	p.flush()
}

func (p *peer) recv() protocol.Packet {
	p.t.Helper()
	pk, err := protocol.ReadPacket(p.r)
	require.NoError(p.t, err)
	return pk
}

// encrypt switches the peer to the cipher from now on. Anything already
// queued stays plaintext.
func (p *peer) encrypt(key []byte) {
	p.t.Helper()
	tn, err := tunnel.New(struct {
		io.Reader
		io.Writer
	}{p.conn, p.bw}, key)
	require.NoError(p.t, err)
	p.r, p.w = tn, tn
}

// expectClosed waits for the connection to reach EOF.
func (p *peer) expectClosed() {
	p.t.Helper()
	_, err := protocol.ReadPacket(p.r)
	require.Error(p.t, err)
}

// fakeAuth records what the session asks of the session server.
type fakeAuth struct {
	mu      sync.Mutex
	checkOK bool
	checked []string
	joined  []string
}

func (f *fakeAuth) Login(_ context.Context, username, _ string) (auth.Credential, error) {
	return auth.Credential{Username: username, SessionID: "sid"}, nil
}

func (f *fakeAuth) JoinServer(_ context.Context, _ auth.Credential, serverHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, serverHash)
	return nil
}

func (f *fakeAuth) CheckServer(_ context.Context, _ string, serverHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, serverHash)
	return f.checkOK, nil
}

// recorder captures events and suppresses packets with the given ids.
type recorder struct {
	mu       sync.Mutex
	suppress map[byte]bool
	events   []Event
	closed   chan error
}

func newRecorder(suppress ...byte) *recorder {
	r := &recorder{suppress: map[byte]bool{}, closed: make(chan error, 1)}
	for _, id := range suppress {
		r.suppress[id] = true
	}
	return r
}

func (r *recorder) SessionStarted(*Session) {}

func (r *recorder) PacketReceived(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.suppress[e.Packet.ID()] {
		e.Suppress()
	}
	r.events = append(r.events, *e)
}

func (r *recorder) SessionClosed(_ *Session, err error) { r.closed <- err }

func (r *recorder) ids() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []byte
	for _, e := range r.events {
		ids = append(ids, e.Packet.ID())
	}
	return ids
}

// env is a running session with both far ends under test control.
type env struct {
	s      *Session
	client *peer
	server *peer
	obs    *recorder
	errc   chan error
}

func start(t *testing.T, opts Options) *env {
	t.Helper()
	_, keys := testKeys(t)
	if opts.Keys == nil {
		opts.Keys = keys
	}
	obs := newRecorder()
	if opts.Observer == nil {
		opts.Observer = obs
	}

	clientEnd, proxyClient := tcpPair(t)
	proxyServer, serverEnd := tcpPair(t)

	e := &env{
		s:      New(proxyClient, proxyServer, opts),
		client: newPeer(t, clientEnd),
		server: newPeer(t, serverEnd),
		obs:    obs,
		errc:   make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { e.errc <- e.s.Run(ctx) }()
	return e
}

func (e *env) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-e.errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

// handshake drives a full login through the proxy and returns the secret
// each far end ended up with. The server sends a keep-alive right behind its
// final key response, in the same segment, encrypted.
func (e *env) handshake(t *testing.T, serverID string) (clientSecret, serverSecret []byte) {
	t.Helper()
	serverKeys, _ := testKeys(t)

	e.client.send(&protocol.Handshake{ProtocolVersion: protocol.Version, Username: "alice", ServerHost: "localhost", ServerPort: 25565})
	require.Equal(t, "alice", e.server.recv().(*protocol.Handshake).Username)

	token := []byte{0xCA, 0xFE, 0xBA, 0xBE}
	e.server.send(&protocol.EncryptionKeyRequest{ServerID: serverID, PublicKey: serverKeys.PublicKey(), VerifyToken: token})

	// ── client answers the forged request ──────────────────────────────
	forged := e.client.recv().(*protocol.EncryptionKeyRequest)
	pub, err := handshake.ParsePublicKey(forged.PublicKey)
	require.NoError(t, err)
	clientSecret, err = handshake.RandomBytes(handshake.SecretSize)
	require.NoError(t, err)
	encSecret, err := handshake.Encrypt(pub, clientSecret)
	require.NoError(t, err)
	encToken, err := handshake.Encrypt(pub, forged.VerifyToken)
	require.NoError(t, err)
	e.client.send(&protocol.EncryptionKeyResponse{SharedSecret: encSecret, VerifyToken: encToken})

	// ── server reads the staged response ───────────────────────────────
	staged := e.server.recv().(*protocol.EncryptionKeyResponse)
	serverSecret, err = serverKeys.Decrypt(staged.SharedSecret)
	require.NoError(t, err)
	gotToken, err := serverKeys.Decrypt(staged.VerifyToken)
	require.NoError(t, err)
	require.Equal(t, token, gotToken)

	e.server.queue(&protocol.EncryptionKeyResponse{})
	e.server.encrypt(serverSecret)
	e.server.queue(&protocol.KeepAlive{KeepAliveID: 7})
	e.server.flush()

	// ── client switches on the empty response ──────────────────────────
	ack := e.client.recv().(*protocol.EncryptionKeyResponse)
	require.Empty(t, ack.SharedSecret)
	require.Empty(t, ack.VerifyToken)
	e.client.encrypt(clientSecret)

	require.Equal(t, int32(7), e.client.recv().(*protocol.KeepAlive).KeepAliveID)
	require.Eventually(t, func() bool { return e.s.State() == Relaying }, time.Second, time.Millisecond)
	require.Equal(t, handshake.Done, e.s.Awaiting())
	return clientSecret, serverSecret
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestInitialState(t *testing.T) {
	e := start(t, Options{})
	require.Equal(t, Handshaking, e.s.State())
	require.Equal(t, handshake.AwaitNone, e.s.Awaiting())
	e.s.Close()
	require.NoError(t, e.wait(t))
}

// TestPlainRelay sends a keep-alive through an encrypted session and checks
// the exact bytes the server sees.
func TestPlainRelay(t *testing.T) {
	e := start(t, Options{})
	e.handshake(t, handshake.OfflineServerID)

	e.client.send(&protocol.KeepAlive{KeepAliveID: 42})

	buf := make([]byte, 5)
	_, err := io.ReadFull(e.server.r, buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x2A}, buf)
}

func TestLegSecretsDiffer(t *testing.T) {
	e := start(t, Options{})
	clientSecret, serverSecret := e.handshake(t, handshake.OfflineServerID)
	require.Len(t, clientSecret, handshake.SecretSize)
	require.Len(t, serverSecret, handshake.SecretSize)
	require.NotEqual(t, clientSecret, serverSecret)
}

func TestSuppressedPacket(t *testing.T) {
	obs := newRecorder(protocol.IDChatMessage)
	e := start(t, Options{Observer: obs})
	e.handshake(t, handshake.OfflineServerID)

	e.client.send(&protocol.ChatMessage{Message: "do not forward"})
	e.client.send(&protocol.KeepAlive{KeepAliveID: 1})

	// The keep-alive is the next thing on the wire.
	require.Equal(t, int32(1), e.server.recv().(*protocol.KeepAlive).KeepAliveID)
	require.Contains(t, obs.ids(), protocol.IDChatMessage)
	require.Equal(t, Relaying, e.s.State())
}

func TestObserverCanReplacePacket(t *testing.T) {
	rewrite := &rewriter{}
	e := start(t, Options{Observer: Observers{newRecorder(), rewrite}})
	e.handshake(t, handshake.OfflineServerID)

	e.server.send(&protocol.ChatMessage{Message: "hello"})
	require.Equal(t, "[proxied] hello", e.client.recv().(*protocol.ChatMessage).Message)
}

type rewriter struct{ NopObserver }

func (rewriter) PacketReceived(e *Event) {
	if chat, ok := e.Packet.(*protocol.ChatMessage); ok {
		e.Packet = &protocol.ChatMessage{Message: "[proxied] " + chat.Message}
	}
}

func TestFailedClientAuthentication(t *testing.T) {
	fa := &fakeAuth{checkOK: false}
	e := start(t, Options{Auth: fa, AuthenticateClients: true})
	serverKeys, _ := testKeys(t)

	e.client.send(&protocol.Handshake{ProtocolVersion: protocol.Version, Username: "mallory", ServerHost: "localhost", ServerPort: 25565})
	e.server.recv()
	e.server.send(&protocol.EncryptionKeyRequest{ServerID: handshake.OfflineServerID, PublicKey: serverKeys.PublicKey(), VerifyToken: []byte{1, 2, 3, 4}})

	forged := e.client.recv().(*protocol.EncryptionKeyRequest)
	require.NotEqual(t, handshake.OfflineServerID, forged.ServerID)

	pub, err := handshake.ParsePublicKey(forged.PublicKey)
	require.NoError(t, err)
	secret, _ := handshake.RandomBytes(handshake.SecretSize)
	encSecret, _ := handshake.Encrypt(pub, secret)
	encToken, _ := handshake.Encrypt(pub, forged.VerifyToken)
	e.client.send(&protocol.EncryptionKeyResponse{SharedSecret: encSecret, VerifyToken: encToken})

	toClient := e.client.recv().(*protocol.Disconnect)
	toServer := e.server.recv().(*protocol.Disconnect)
	require.NotEmpty(t, toClient.Reason)
	require.NotEmpty(t, toServer.Reason)

	require.ErrorIs(t, e.wait(t), ErrAuthFailed)
	require.Equal(t, Closed, e.s.State())
	require.Equal(t, []string{handshake.ServerHash(forged.ServerID, secret, forged.PublicKey)}, fa.checked)
	require.ErrorIs(t, <-e.obs.closed, ErrAuthFailed)
}

// TestServerLogin checks the proxy joins an online mode server with the
// hash of its own server leg.
func TestServerLogin(t *testing.T) {
	fa := &fakeAuth{}
	e := start(t, Options{Auth: fa, Username: "proxy", Password: "pw"})
	serverKeys, _ := testKeys(t)

	_, serverSecret := e.handshake(t, "5e1f00d")

	fa.mu.Lock()
	defer fa.mu.Unlock()
	require.Equal(t, []string{handshake.ServerHash("5e1f00d", serverSecret, serverKeys.PublicKey())}, fa.joined)
}

func TestUnknownTag(t *testing.T) {
	e := start(t, Options{})

	// 0xFE followed by what would be a valid keep-alive.
	_, err := e.client.conn.Write([]byte{0xFE, 0x00, 0x00, 0x00, 0x00, 0x01})
	require.NoError(t, err)

	require.ErrorIs(t, e.wait(t), protocol.ErrUnknownPacket)
	require.Equal(t, Closed, e.s.State())

	// The server is told why and never sees the trailing bytes.
	require.NotEmpty(t, e.server.recv().(*protocol.Disconnect).Reason)
	e.server.expectClosed()
}

func TestHandshakeAfterRelaying(t *testing.T) {
	e := start(t, Options{})
	serverKeys, _ := testKeys(t)
	e.handshake(t, handshake.OfflineServerID)

	e.server.send(&protocol.EncryptionKeyRequest{ServerID: handshake.OfflineServerID, PublicKey: serverKeys.PublicKey()})

	require.ErrorIs(t, e.wait(t), ErrProtocolViolation)
	require.Equal(t, Closed, e.s.State())
}

func TestKeyResponseOutOfOrder(t *testing.T) {
	e := start(t, Options{})
	e.client.send(&protocol.EncryptionKeyResponse{})
	require.ErrorIs(t, e.wait(t), ErrProtocolViolation)
}

func TestDisconnectEndsSession(t *testing.T) {
	e := start(t, Options{})
	e.handshake(t, handshake.OfflineServerID)

	e.server.send(&protocol.Disconnect{Reason: "Server closed"})
	require.Equal(t, "Server closed", e.client.recv().(*protocol.Disconnect).Reason)

	require.NoError(t, e.wait(t))
	require.NoError(t, <-e.obs.closed)
	require.Equal(t, Closed, e.s.State())
	e.client.expectClosed()
}

func TestPeerHangup(t *testing.T) {
	e := start(t, Options{})
	e.client.conn.Close()

	var te *TransportError
	require.ErrorAs(t, e.wait(t), &te)
	require.Equal(t, "client", te.Leg)
}

// TestTruncatedPacketFromPeer verifies a peer that goes quiet or hangs up
// part way through a packet ends the session like any other hangup: the
// other side sees a plain close and no disconnect reason.
func TestTruncatedPacketFromPeer(t *testing.T) {
	testCases := []struct {
		name   string
		hangup bool
		check  func(t *testing.T, err error)
	}{
		{
			name: "stalls",
			check: func(t *testing.T, err error) {
				var ne net.Error
				require.ErrorAs(t, err, &ne)
				require.True(t, ne.Timeout())
			},
		},
		{
			name:   "hangs up",
			hangup: true,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, io.ErrUnexpectedEOF)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := start(t, Options{PacketTimeout: 200 * time.Millisecond})
			began := time.Now()

			// A keep-alive tag and half of its id.
			_, err := e.client.conn.Write([]byte{protocol.IDKeepAlive, 0x00, 0x00})
			require.NoError(t, err)
			if tc.hangup {
				e.client.conn.Close()
			}

			err = e.wait(t)
			var te *TransportError
			require.ErrorAs(t, err, &te)
			require.Equal(t, "client", te.Leg)
			tc.check(t, err)
			require.Less(t, time.Since(began), 3*time.Second)

			_, err = protocol.ReadPacket(e.server.r)
			require.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestCloseStopsPump(t *testing.T) {
	e := start(t, Options{})
	e.handshake(t, handshake.OfflineServerID)

	e.s.Close()
	require.NoError(t, e.wait(t))

	select {
	case <-e.s.Done():
	default:
		t.Fatal("Done not closed")
	}
	require.ErrorIs(t, e.s.SendToClient(&protocol.KeepAlive{}), net.ErrClosed)
}

func TestOutOfBandSend(t *testing.T) {
	e := start(t, Options{})
	e.handshake(t, handshake.OfflineServerID)

	require.NoError(t, e.s.SendToClient(&protocol.ChatMessage{Message: "from the proxy"}))
	require.Equal(t, "from the proxy", e.client.recv().(*protocol.ChatMessage).Message)

	require.NoError(t, e.s.SendToServer(&protocol.KeepAlive{KeepAliveID: 9}))
	require.Equal(t, int32(9), e.server.recv().(*protocol.KeepAlive).KeepAliveID)
}

func TestObserverSeesHandshake(t *testing.T) {
	e := start(t, Options{})
	e.handshake(t, handshake.OfflineServerID)
	e.client.send(&protocol.KeepAlive{KeepAliveID: 3})
	e.server.recv()

	require.Equal(t, []byte{
		protocol.IDHandshake,
		protocol.IDEncryptionKeyRequest,
		protocol.IDEncryptionKeyResponse,
		protocol.IDEncryptionKeyResponse,
		protocol.IDKeepAlive,
		protocol.IDKeepAlive,
	}, e.obs.ids())
	require.Equal(t, "alice", e.s.Username())
}
