package cipher

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// #region config

// envelopePrefix marks a sealed payload on disk.
var envelopePrefix = []byte("continuity-sealed:v1:")

// ErrNotSealed is returned by Decrypt for data without the envelope prefix.
var ErrNotSealed = errors.New("cipher: payload is not sealed")

// #endregion config

// #region key

// Sealer encrypts record payloads with XChaCha20-Poly1305 under a key
// kept in a local key file.
type Sealer struct {
	key []byte
}

// NewSealer loads the key at keyFile, generating it only when the file
// does not exist. A key file of the wrong size is an error.
func NewSealer(keyFile string) (*Sealer, error) {
	key, err := ensureKey(keyFile)
	if err != nil {
		return nil, err
	}
	return &Sealer{key: key}, nil
}

func ensureKey(keyFile string) ([]byte, error) {
	data, err := os.ReadFile(keyFile)
	switch {
	case err == nil:
		return checkKey(keyFile, data)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyFile), 0o700); err != nil {
		return nil, fmt.Errorf("key dir: %w", err)
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("keygen: %w", err)
	}

	// O_EXCL: an existing key file is never replaced.
	f, err := os.OpenFile(keyFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		return checkKey(keyFile, data)
	}
	if err != nil {
		return nil, fmt.Errorf("create key: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		return nil, fmt.Errorf("write key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}
	return key, nil
}

// checkKey rejects a key file of the wrong size rather than replacing it.
func checkKey(keyFile string, data []byte) ([]byte, error) {
	if len(data) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("cipher: key file %s is %d bytes, want %d", keyFile, len(data), chacha20poly1305.KeySize)
	}
	return data, nil
}

// #endregion key

// #region encrypt-decrypt

// Encrypt seals plaintext into a base64 envelope.
func (s *Sealer) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	out := make([]byte, len(envelopePrefix)+base64.StdEncoding.EncodedLen(len(sealed)))
	copy(out, envelopePrefix)
	base64.StdEncoding.Encode(out[len(envelopePrefix):], sealed)
	return out, nil
}

// Decrypt opens an envelope produced by Encrypt.
func (s *Sealer) Decrypt(envelope []byte) ([]byte, error) {
	if !IsSealed(envelope) {
		return nil, ErrNotSealed
	}
	body := bytes.TrimSpace(envelope[len(envelopePrefix):])
	sealed := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(sealed, body)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	sealed = sealed[:n]

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("aead: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("cipher: envelope too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plain, nil
}

// IsSealed reports whether data carries the envelope prefix.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, envelopePrefix)
}

// #endregion encrypt-decrypt
