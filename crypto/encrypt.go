package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// EnvelopeCipher carries the three encrypted fields of a message envelope.
// All fields are standard base64 so they can travel inside JSON payloads.
type EnvelopeCipher struct {
	EncryptedKey     string `json:"encryptedKey"`
	EncryptedContent string `json:"encryptedContent"`
	IV               string `json:"iv"`
}

// EncryptMessage seals plaintext for the given recipient.
//
// A fresh 256-bit session key and a fresh 96-bit nonce are generated on
// every call; neither is ever reused, even for identical plaintext and
// recipient. The content is AES-256-GCM encrypted under the session key
// and the raw session key is wrapped with RSA-OAEP (SHA-256).
func EncryptMessage(plaintext []byte, to *rsa.PublicKey) (*EnvelopeCipher, error) {
	if to == nil {
		return nil, fmt.Errorf("recipient public key is nil")
	}

	sessionKey := make([]byte, SessionKeySize)
	if _, err := io.ReadFull(rand.Reader, sessionKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	defer ZeroBytes(sessionKey)

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, to, sessionKey, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap session key: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":        "EncryptMessage",
		"plaintext_size":  len(plaintext),
		"ciphertext_size": len(ciphertext),
	}).Debug("Message sealed")

	return &EnvelopeCipher{
		EncryptedKey:     base64.StdEncoding.EncodeToString(wrappedKey),
		EncryptedContent: base64.StdEncoding.EncodeToString(ciphertext),
		IV:               base64.StdEncoding.EncodeToString(nonce),
	}, nil
}
