package cipher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSealer(t *testing.T) (*Sealer, string) {
	t.Helper()
	keyFile := filepath.Join(t.TempDir(), "keys", ".cipher_key")
	s, err := NewSealer(keyFile)
	require.NoError(t, err)
	return s, keyFile
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	s, _ := newSealer(t)
	plain := []byte(`{"session_id":"session_1"}`)

	sealed, err := s.Encrypt(plain)
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, string(sealed), "session_1")

	got, err := s.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	s, _ := newSealer(t)
	a, err := s.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := s.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestKeyPersistsAcrossSealers(t *testing.T) {
	s1, keyFile := newSealer(t)
	sealed, err := s1.Encrypt([]byte("payload"))
	require.NoError(t, err)

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	s2, err := NewSealer(keyFile)
	require.NoError(t, err)
	got, err := s2.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestTruncatedKeyFileIsNotReplaced(t *testing.T) {
	s1, keyFile := newSealer(t)
	sealed, err := s1.Encrypt([]byte("payload"))
	require.NoError(t, err)

	original, err := os.ReadFile(keyFile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(keyFile, original[:10], 0o600))

	_, err = NewSealer(keyFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "10 bytes")

	left, err := os.ReadFile(keyFile)
	require.NoError(t, err)
	assert.Equal(t, original[:10], left, "key file must be left untouched")

	// restoring the key recovers the sealed record
	require.NoError(t, os.WriteFile(keyFile, original, 0o600))
	s2, err := NewSealer(keyFile)
	require.NoError(t, err)
	got, err := s2.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestUnreadableKeyFileIsAnError(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), ".cipher_key")
	require.NoError(t, os.Mkdir(keyFile, 0o700))

	_, err := NewSealer(keyFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read key")

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDecryptWrongKey(t *testing.T) {
	s1, _ := newSealer(t)
	s2, _ := newSealer(t)
	sealed, err := s1.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = s2.Decrypt(sealed)
	assert.Error(t, err)
}

func TestDecryptRejectsPlainAndTampered(t *testing.T) {
	s, _ := newSealer(t)

	_, err := s.Decrypt([]byte(`{"plain":true}`))
	assert.ErrorIs(t, err, ErrNotSealed)

	_, err = s.Decrypt(append([]byte(nil), append(envelopePrefix, []byte("%%%")...)...))
	assert.Error(t, err)

	_, err = s.Decrypt(append(append([]byte(nil), envelopePrefix...), []byte("AAAA")...))
	assert.Error(t, err, "too short")

	sealed, err := s.Encrypt([]byte("payload"))
	require.NoError(t, err)
	sealed[len(sealed)-3] ^= 0x01
	_, err = s.Decrypt(sealed)
	assert.Error(t, err)
}
