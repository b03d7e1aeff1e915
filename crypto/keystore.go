package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeyStore wraps file storage with authenticated encryption at rest so
// identity material survives on disk without being readable from it.
//
// The file format is [version:2][nonce:24][ciphertext+tag]. The file key
// is derived from the passphrase with Argon2id over a per-store salt.
type KeyStore struct {
	fileKey  [32]byte
	dataDir  string
	saltPath string
}

const (
	keyStoreVersion = 1
	saltSize        = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// NewKeyStore opens (or initializes) a keystore rooted at dataDir.
// The passphrase is wiped before returning.
func NewKeyStore(dataDir string, passphrase []byte) (*KeyStore, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	ks := &KeyStore{
		dataDir:  dataDir,
		saltPath: filepath.Join(dataDir, ".salt"),
	}

	salt, err := ks.loadOrGenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("initialize salt: %w", err)
	}

	derived := argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, 32)
	copy(ks.fileKey[:], derived)
	ZeroBytes(derived)
	ZeroBytes(passphrase)

	return ks, nil
}

func (ks *KeyStore) loadOrGenerateSalt() ([]byte, error) {
	data, err := os.ReadFile(ks.saltPath)
	if err == nil {
		if len(data) != saltSize {
			return nil, fmt.Errorf("invalid salt file size: got %d, want %d", len(data), saltSize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read salt file: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	if err := os.WriteFile(ks.saltPath, salt, 0o600); err != nil {
		return nil, fmt.Errorf("save salt file: %w", err)
	}
	return salt, nil
}

// Save encrypts and writes plaintext under the given name. Writes are
// atomic (temp file + rename) so a crash never leaves a torn file.
func (ks *KeyStore) Save(name string, plaintext []byte) error {
	aead, err := chacha20poly1305.NewX(ks.fileKey[:])
	if err != nil {
		return fmt.Errorf("create AEAD: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 2+len(nonce)+len(ciphertext))
	binary.BigEndian.PutUint16(out[0:2], keyStoreVersion)
	copy(out[2:2+len(nonce)], nonce)
	copy(out[2+len(nonce):], ciphertext)

	tmp := filepath.Join(ks.dataDir, name+".tmp")
	final := filepath.Join(ks.dataDir, name)
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write temporary file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// Load reads and decrypts a previously saved file. Fails if the file is
// missing, truncated, tampered with, or the passphrase was wrong.
func (ks *KeyStore) Load(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(ks.dataDir, name))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	aead, err := chacha20poly1305.NewX(ks.fileKey[:])
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	minSize := 2 + aead.NonceSize() + aead.Overhead()
	if len(data) < minSize {
		return nil, fmt.Errorf("file too short: %d bytes (minimum %d)", len(data), minSize)
	}

	if v := binary.BigEndian.Uint16(data[0:2]); v != keyStoreVersion {
		return nil, fmt.Errorf("unsupported keystore version: %d", v)
	}

	nonce := data[2 : 2+aead.NonceSize()]
	ciphertext := data[2+aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong passphrase or corrupted file", ErrDecryptionFailed)
	}
	return plaintext, nil
}

// Close wipes the derived file key. The store must not be used afterward.
func (ks *KeyStore) Close() error {
	ZeroBytes(ks.fileKey[:])
	return nil
}
