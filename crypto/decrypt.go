package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DecryptMessage unwraps the session key with the recipient's private key
// and opens the AEAD-protected content.
//
// Every failure path, including an authentication-tag mismatch, a
// malformed wrapped key, bad encoding, or a wrong private key, returns
// ErrDecryptionFailed. Unauthenticated or partial plaintext is never
// returned.
func DecryptMessage(env *EnvelopeCipher, own *rsa.PrivateKey) ([]byte, error) {
	if env == nil || own == nil {
		return nil, fmt.Errorf("%w: missing envelope or key", ErrDecryptionFailed)
	}

	wrappedKey, err := base64.StdEncoding.DecodeString(env.EncryptedKey)
	if err != nil {
		return nil, decryptionError("decode wrapped key", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.EncryptedContent)
	if err != nil {
		return nil, decryptionError("decode content", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, decryptionError("decode nonce", err)
	}
	if len(nonce) != NonceSize {
		return nil, decryptionError("nonce size", fmt.Errorf("got %d bytes", len(nonce)))
	}

	sessionKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, own, wrappedKey, nil)
	if err != nil {
		return nil, decryptionError("unwrap session key", err)
	}
	defer ZeroBytes(sessionKey)

	if len(sessionKey) != SessionKeySize {
		return nil, decryptionError("session key size", fmt.Errorf("got %d bytes", len(sessionKey)))
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, decryptionError("create cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, decryptionError("create GCM", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, decryptionError("authenticate content", err)
	}

	return plaintext, nil
}

// decryptionError logs and wraps the sentinel so callers can match with
// errors.Is while logs retain the failing step.
func decryptionError(step string, err error) error {
	logrus.WithFields(logrus.Fields{
		"function": "DecryptMessage",
		"step":     step,
		"error":    err.Error(),
	}).Warn("Discarding undecryptable message")
	return fmt.Errorf("%w: %s", ErrDecryptionFailed, step)
}
