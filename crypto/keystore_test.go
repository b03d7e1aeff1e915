package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStoreRoundtrip(t *testing.T) {
	dir := t.TempDir()

	ks, err := NewKeyStore(dir, []byte("correct horse"))
	require.NoError(t, err)
	defer ks.Close()

	secret := []byte("identity material")
	require.NoError(t, ks.Save("identity.enc", secret))

	loaded, err := ks.Load("identity.enc")
	require.NoError(t, err)
	assert.Equal(t, "identity material", string(loaded))

	// A second store over the same directory with the same passphrase
	// must reuse the salt and read the same file.
	ks2, err := NewKeyStore(dir, []byte("correct horse"))
	require.NoError(t, err)
	defer ks2.Close()

	loaded, err = ks2.Load("identity.enc")
	require.NoError(t, err)
	assert.Equal(t, "identity material", string(loaded))
}

func TestKeyStoreWrongPassphrase(t *testing.T) {
	dir := t.TempDir()

	ks, err := NewKeyStore(dir, []byte("right"))
	require.NoError(t, err)
	require.NoError(t, ks.Save("identity.enc", []byte("secret")))
	ks.Close()

	ks2, err := NewKeyStore(dir, []byte("wrong"))
	require.NoError(t, err)
	defer ks2.Close()

	_, err = ks2.Load("identity.enc")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestKeyStoreTamperDetection(t *testing.T) {
	dir := t.TempDir()

	ks, err := NewKeyStore(dir, []byte("pass"))
	require.NoError(t, err)
	defer ks.Close()
	require.NoError(t, ks.Save("identity.enc", []byte("secret")))

	path := filepath.Join(dir, "identity.enc")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = ks.Load("identity.enc")
	assert.Error(t, err)
}

func TestKeyStoreRejectsEmptyPassphrase(t *testing.T) {
	_, err := NewKeyStore(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestKeyStoreWipesPassphrase(t *testing.T) {
	pass := []byte("wipe me")
	ks, err := NewKeyStore(t.TempDir(), pass)
	require.NoError(t, err)
	defer ks.Close()

	assert.Equal(t, make([]byte, len(pass)), pass)
}
