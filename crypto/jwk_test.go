package crypto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicKeyJWKRoundtrip(t *testing.T) {
	kp, _ := testKeys(t)

	jwk, err := ExportPublicKey(kp.Public)
	require.NoError(t, err)
	assert.Equal(t, "RSA", jwk.Kty)
	assert.Empty(t, jwk.D, "public JWK must not carry private material")

	// Must survive JSON transport through the directory.
	raw, err := json.Marshal(jwk)
	require.NoError(t, err)
	var parsed JWK
	require.NoError(t, json.Unmarshal(raw, &parsed))

	pub, err := ImportPublicKey(&parsed)
	require.NoError(t, err)
	assert.Equal(t, 0, kp.Public.N.Cmp(pub.N))
	assert.Equal(t, kp.Public.E, pub.E)
}

func TestPrivateKeyJWKRoundtrip(t *testing.T) {
	kp, _ := testKeys(t)

	jwk, err := ExportPrivateKey(kp.Private)
	require.NoError(t, err)
	require.NotEmpty(t, jwk.D)

	priv, err := ImportPrivateKey(jwk)
	require.NoError(t, err)

	// Imported key must actually decrypt traffic for the original key.
	env, err := EncryptMessage([]byte("roundtrip"), kp.Public)
	require.NoError(t, err)
	plain, err := DecryptMessage(env, priv)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", string(plain))
}

func TestImportRejectsInvalidJWK(t *testing.T) {
	tests := []struct {
		name string
		jwk  *JWK
	}{
		{"nil", nil},
		{"wrong kty", &JWK{Kty: "EC", N: "AQAB", E: "AQAB"}},
		{"missing modulus", &JWK{Kty: "RSA", E: "AQAB"}},
		{"garbage base64", &JWK{Kty: "RSA", N: "<<>>", E: "AQAB"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportPublicKey(tt.jwk)
			assert.Error(t, err)
		})
	}

	_, err := ImportPrivateKey(&JWK{Kty: "RSA", N: "AQAB", E: "AQAB"})
	assert.Error(t, err, "private import without D must fail")
}

func TestIdentitySerializationRoundtrip(t *testing.T) {
	kp, _ := testKeys(t)
	id := &Identity{ID: "user-1", Username: "nyx", KeyPair: kp}

	s, err := SerializeIdentity(id)
	require.NoError(t, err)

	restored, err := DeserializeIdentity(s)
	require.NoError(t, err)
	assert.Equal(t, id.ID, restored.ID)
	assert.Equal(t, id.Username, restored.Username)

	env, err := EncryptMessage([]byte("post-restore"), kp.Public)
	require.NoError(t, err)
	plain, err := DecryptMessage(env, restored.KeyPair.Private)
	require.NoError(t, err)
	assert.Equal(t, "post-restore", string(plain))
}

func TestDeserializeIdentityRejectsGarbage(t *testing.T) {
	_, err := DeserializeIdentity("not base64 at all !!!")
	assert.Error(t, err)

	_, err = DeserializeIdentity("aGVsbG8=") // valid base64, not an identity
	assert.Error(t, err)
}
