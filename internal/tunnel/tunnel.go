// Package tunnel wraps a byte stream in the AES/CFB8 cipher used by the
// game protocol once the key exchange is done.
package tunnel

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Tnze/go-mc/net/CFB8"
)

// KeySize is the length of the shared secret; it is also the IV.
const KeySize = 16

var (
	ErrKeySize         = errors.New("tunnel: shared secret must be 16 bytes")
	ErrSeekUnsupported = errors.New("tunnel: cipher stream cannot seek")
)

// Tunnel encrypts everything written to it and decrypts everything read
// from it. Reads and writes keep separate cipher state, so one reader and
// one writer may use it concurrently.
type Tunnel struct {
	rw  io.ReadWriter
	r   cipher.StreamReader
	w   cipher.StreamWriter
	key [KeySize]byte

	closeOnce sync.Once
	closeErr  error
}

// New wraps rw. The key doubles as the initialization vector.
func New(rw io.ReadWriter, key []byte) (*Tunnel, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("tunnel: %w", err)
	}

	t := &Tunnel{rw: rw}
	copy(t.key[:], key)

	encIV := append([]byte(nil), key...)
	decIV := append([]byte(nil), key...)
	t.w = cipher.StreamWriter{S: CFB8.NewCFB8Encrypt(block, encIV), W: rw}
	t.r = cipher.StreamReader{S: CFB8.NewCFB8Decrypt(block, decIV), R: rw}
	return t, nil
}

// Read decrypts whatever the underlying stream returns.
func (t *Tunnel) Read(p []byte) (int, error) {
	return t.r.Read(p)
}

// Write encrypts p and forwards it immediately. p is not modified.
func (t *Tunnel) Write(p []byte) (int, error) {
	return t.w.Write(p)
}

// Seek always fails: the cipher state only moves forward.
func (t *Tunnel) Seek(int64, int) (int64, error) {
	return 0, ErrSeekUnsupported
}

// Key returns a copy of the shared secret.
func (t *Tunnel) Key() []byte {
	return append([]byte(nil), t.key[:]...)
}

// Close closes the underlying stream if it is closable. Both directions
// stop working afterwards.
func (t *Tunnel) Close() error {
	t.closeOnce.Do(func() {
		if c, ok := t.rw.(io.Closer); ok {
			t.closeErr = c.Close()
		}
	})
	return t.closeErr
}
