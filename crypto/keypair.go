package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

var (
	// ErrKeyGeneration indicates the platform has no usable strong-crypto
	// provider. This is fatal at startup; there is no fallback mode.
	ErrKeyGeneration = errors.New("key generation failed: no strong crypto provider")
	// ErrDecryptionFailed indicates tampering, corruption, or a wrong key.
	// Callers must discard the message; no partial output is ever returned.
	ErrDecryptionFailed = errors.New("decryption failed")
)

const (
	// RSAKeyBits is the modulus size for identity keypairs.
	RSAKeyBits = 2048
	// SessionKeySize is the size of the one-time AES-256 session key.
	SessionKeySize = 32
	// NonceSize is the AES-GCM nonce size used for message content.
	NonceSize = 12
)

// KeyPair holds an identity's asymmetric encryption keypair.
// The private key never leaves the owning process except through the
// explicit keystore/export paths.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// VerifyStrongCrypto checks that the platform entropy source works.
// Call once at startup; a failure here must abort, not degrade.
func VerifyStrongCrypto() error {
	var probe [16]byte
	if _, err := io.ReadFull(rand.Reader, probe[:]); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "VerifyStrongCrypto",
			"error":    err.Error(),
		}).Error("Platform entropy source unavailable")
		return fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return nil
}

// GenerateKeyPair creates a new RSA-2048 identity keypair.
func GenerateKeyPair() (*KeyPair, error) {
	if err := VerifyStrongCrypto(); err != nil {
		return nil, err
	}

	priv, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "GenerateKeyPair",
			"error":    err.Error(),
		}).Error("RSA key generation failed")
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "GenerateKeyPair",
		"bits":     RSAKeyBits,
	}).Debug("Identity keypair generated")

	return &KeyPair{
		Public:  &priv.PublicKey,
		Private: priv,
	}, nil
}
