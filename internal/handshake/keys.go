// Package handshake impersonates both ends of the protocol's RSA key
// exchange so that each leg of a proxied session gets its own AES secret.
package handshake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// KeyBits is the modulus size the game's own servers use.
	KeyBits = 1024
	// SecretSize is the length of a shared AES secret.
	SecretSize = 16
	// TokenSize is the length of a verify token.
	TokenSize = 4
	// OfflineServerID tells the client no session server lookup is needed.
	OfflineServerID = "-"
)

var (
	ErrBadPublicKey        = errors.New("handshake: malformed public key")
	ErrVerifyTokenMismatch = errors.New("handshake: verify token mismatch")
	ErrUnexpectedPacket    = errors.New("handshake: unexpected key exchange packet")
)

// KeyPair is the proxy's own RSA key, presented to clients in place of the
// real server's. It is immutable and shared by all sessions.
type KeyPair struct {
	private *rsa.PrivateKey
	public  []byte
}

// GenerateKeyPair creates a keypair of the given modulus size.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("handshake: generate key: %w", err)
	}
	return NewKeyPair(priv)
}

// NewKeyPair wraps an existing private key.
func NewKeyPair(priv *rsa.PrivateKey) (*KeyPair, error) {
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("handshake: encode public key: %w", err)
	}
	return &KeyPair{private: priv, public: der}, nil
}

// PublicKey returns the DER encoded SubjectPublicKeyInfo sent on the wire.
func (k *KeyPair) PublicKey() []byte {
	return append([]byte(nil), k.public...)
}

// Decrypt reverses a PKCS#1 v1.5 encryption made with the public key.
func (k *KeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	return rsa.DecryptPKCS1v15(rand.Reader, k.private, ciphertext)
}

// ParsePublicKey decodes the DER public key a server offers.
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not an RSA key", ErrBadPublicKey, pub)
	}
	return rsaPub, nil
}

// Encrypt encrypts data for pub with PKCS#1 v1.5 padding.
func Encrypt(pub *rsa.PublicKey, data []byte) ([]byte, error) {
	return rsa.EncryptPKCS1v15(rand.Reader, pub, data)
}

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("handshake: random: %w", err)
	}
	return b, nil
}

// NewServerID returns a random server id for client authentication, in the
// same short lowercase hex form the game's servers use.
func NewServerID() (string, error) {
	b, err := RandomBytes(8)
	if err != nil {
		return "", err
	}
	id := strings.TrimLeft(hex.EncodeToString(b), "0")
	if id == "" {
		id = "0"
	}
	return id, nil
}

// ServerHash computes the session hash sent to the session server: the
// SHA-1 of serverID, secret and public key, printed as a signed
// two's-complement hex number without leading zeros.
func ServerHash(serverID string, secret, publicKey []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(secret)
	h.Write(publicKey)
	sum := h.Sum(nil)

	negative := sum[0]&0x80 != 0
	if negative {
		// two's complement
		carry := true
		for i := len(sum) - 1; i >= 0; i-- {
			sum[i] = ^sum[i]
			if carry {
				carry = sum[i] == 0xFF
				sum[i]++
			}
		}
	}
	s := new(big.Int).SetBytes(sum).Text(16)
	if negative {
		s = "-" + s
	}
	return s
}
