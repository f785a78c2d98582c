package handshake

import (
	"bytes"
	"fmt"

	"github.com/1ureka/smproxy/internal/protocol"
)

// Stage is the key exchange packet the interceptor is waiting for.
type Stage int

const (
	// AwaitNone: no key exchange in progress.
	AwaitNone Stage = iota
	// AwaitClientSecret: the client has our key request and owes a response.
	AwaitClientSecret
	// AwaitServerSecret: the server has our response and owes its empty reply.
	AwaitServerSecret
	// Done: both legs hold their secrets.
	Done
)

func (s Stage) String() string {
	switch s {
	case AwaitNone:
		return "none"
	case AwaitClientSecret:
		return "client-secret"
	case AwaitServerSecret:
		return "server-secret"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Interceptor holds the transient key exchange state of one session. It is
// not safe for concurrent use; the session pump drives it.
type Interceptor struct {
	keys                *KeyPair
	authenticateClients bool
	strictToken         bool

	stage Stage

	// server leg
	serverID     string
	serverKey    []byte
	serverSecret []byte
	staged       *protocol.EncryptionKeyResponse

	// client leg
	clientServerID string
	clientToken    []byte
	clientSecret   []byte
}

// NewInterceptor prepares an interceptor presenting keys to the client.
// With authenticateClients the client is sent a random server id so its
// login can be checked against the session server. With strictToken a
// verify token mismatch aborts the exchange instead of being reported.
func NewInterceptor(keys *KeyPair, authenticateClients, strictToken bool) *Interceptor {
	return &Interceptor{
		keys:                keys,
		authenticateClients: authenticateClients,
		strictToken:         strictToken,
	}
}

// Stage returns the packet the interceptor expects next.
func (i *Interceptor) Stage() Stage {
	return i.stage
}

// ServerRequest consumes the real server's key request. It stages the
// response for the server leg and returns the forged request to send to
// the client in its place.
func (i *Interceptor) ServerRequest(req *protocol.EncryptionKeyRequest) (*protocol.EncryptionKeyRequest, error) {
	if i.stage != AwaitNone {
		return nil, fmt.Errorf("%w: server key request while awaiting %s", ErrUnexpectedPacket, i.stage)
	}

	// ── 1. Server leg secret ───────────────────────────────────────────
	secret, err := RandomBytes(SecretSize)
	if err != nil {
		return nil, err
	}

	// ── 2. Server public key ───────────────────────────────────────────
	pub, err := ParsePublicKey(req.PublicKey)
	if err != nil {
		return nil, err
	}

	// ── 3. Staged response for the server ──────────────────────────────
	encSecret, err := Encrypt(pub, secret)
	if err != nil {
		return nil, fmt.Errorf("handshake: encrypt shared secret: %w", err)
	}
	encToken, err := Encrypt(pub, req.VerifyToken)
	if err != nil {
		return nil, fmt.Errorf("handshake: encrypt verify token: %w", err)
	}

	// ── 4. Forged request for the client ───────────────────────────────
	token, err := RandomBytes(TokenSize)
	if err != nil {
		return nil, err
	}
	clientServerID := OfflineServerID
	if i.authenticateClients {
		if clientServerID, err = NewServerID(); err != nil {
			return nil, err
		}
	}

	i.serverID = req.ServerID
	i.serverKey = append([]byte(nil), req.PublicKey...)
	i.serverSecret = secret
	i.staged = &protocol.EncryptionKeyResponse{SharedSecret: encSecret, VerifyToken: encToken}
	i.clientServerID = clientServerID
	i.clientToken = token
	i.stage = AwaitClientSecret

	return &protocol.EncryptionKeyRequest{
		ServerID:    clientServerID,
		PublicKey:   i.keys.PublicKey(),
		VerifyToken: append([]byte(nil), token...),
	}, nil
}

// ClientResponse decrypts the client's secret and verify token and returns
// the staged response to forward to the server. mismatch reports a verify
// token that differs from the one sent; in strict mode it is an error.
func (i *Interceptor) ClientResponse(resp *protocol.EncryptionKeyResponse) (staged *protocol.EncryptionKeyResponse, mismatch bool, err error) {
	if i.stage != AwaitClientSecret {
		return nil, false, fmt.Errorf("%w: client key response while awaiting %s", ErrUnexpectedPacket, i.stage)
	}

	secret, err := i.keys.Decrypt(resp.SharedSecret)
	if err != nil {
		return nil, false, fmt.Errorf("handshake: decrypt shared secret: %w", err)
	}
	if len(secret) != SecretSize {
		return nil, false, fmt.Errorf("handshake: shared secret is %d bytes, want %d", len(secret), SecretSize)
	}
	token, err := i.keys.Decrypt(resp.VerifyToken)
	if err != nil {
		return nil, false, fmt.Errorf("handshake: decrypt verify token: %w", err)
	}

	mismatch = !bytes.Equal(token, i.clientToken)
	if mismatch && i.strictToken {
		return nil, true, ErrVerifyTokenMismatch
	}

	i.clientSecret = secret
	i.stage = AwaitServerSecret
	return i.staged, mismatch, nil
}

// ServerResponse consumes the server's final, empty key response and
// returns the secrets for the server and client legs. The interceptor is
// spent afterwards.
func (i *Interceptor) ServerResponse(*protocol.EncryptionKeyResponse) (serverSecret, clientSecret []byte, err error) {
	if i.stage != AwaitServerSecret {
		return nil, nil, fmt.Errorf("%w: server key response while awaiting %s", ErrUnexpectedPacket, i.stage)
	}
	serverSecret, clientSecret = i.serverSecret, i.clientSecret
	i.serverSecret, i.clientSecret, i.staged = nil, nil, nil
	i.stage = Done
	return serverSecret, clientSecret, nil
}

// ServerRequiresAuth reports whether the real server expects the proxy to
// join through the session server.
func (i *Interceptor) ServerRequiresAuth() bool {
	return i.serverID != "" && i.serverID != OfflineServerID
}

// ServerHash is the hash the proxy presents to the session server when
// joining the real server.
func (i *Interceptor) ServerHash() string {
	return ServerHash(i.serverID, i.serverSecret, i.serverKey)
}

// ClientHash is the hash the client presented to the session server when
// it joined the proxy.
func (i *Interceptor) ClientHash() string {
	return ServerHash(i.clientServerID, i.clientSecret, i.keys.public)
}

// ClientServerID is the server id sent to the client.
func (i *Interceptor) ClientServerID() string {
	return i.clientServerID
}
