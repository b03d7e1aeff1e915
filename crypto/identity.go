package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Identity binds an opaque id and username to a keypair. The keypair is
// generated once; persistence is handled by the caller through the
// keystore or the serialized backup string.
type Identity struct {
	ID       string
	Username string
	KeyPair  *KeyPair
}

// identityExport is the on-disk / backup-string form of an identity.
type identityExport struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	PublicKey  *JWK   `json:"publicKey"`
	PrivateKey *JWK   `json:"privateKey"`
	Version    int    `json:"version"`
	ExportedAt int64  `json:"exportedAt"`
}

const identityExportVersion = 1

var errInvalidIdentity = errors.New("invalid identity backup")

// SerializeIdentity renders an identity as a single portable string:
// JSON with JWK-encoded keys, then base64. The result contains private
// key material and must be treated accordingly.
func SerializeIdentity(id *Identity) (string, error) {
	if id == nil || id.KeyPair == nil {
		return "", errInvalidIdentity
	}
	pub, err := ExportPublicKey(id.KeyPair.Public)
	if err != nil {
		return "", fmt.Errorf("export public key: %w", err)
	}
	priv, err := ExportPrivateKey(id.KeyPair.Private)
	if err != nil {
		return "", fmt.Errorf("export private key: %w", err)
	}
	raw, err := json.Marshal(identityExport{
		ID:         id.ID,
		Username:   id.Username,
		PublicKey:  pub,
		PrivateKey: priv,
		Version:    identityExportVersion,
		ExportedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal identity: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DeserializeIdentity restores an identity from its backup string.
func DeserializeIdentity(s string) (*Identity, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidIdentity, err)
	}
	var exp identityExport
	if err := json.Unmarshal(raw, &exp); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidIdentity, err)
	}
	if exp.ID == "" || exp.PrivateKey == nil {
		return nil, errInvalidIdentity
	}
	priv, err := ImportPrivateKey(exp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidIdentity, err)
	}
	return &Identity{
		ID:       exp.ID,
		Username: exp.Username,
		KeyPair: &KeyPair{
			Public:  &priv.PublicKey,
			Private: priv,
		},
	}, nil
}
