package crypto

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// JWK is an RSA JSON Web Key (RFC 7517) restricted to the fields this
// protocol needs. Public keys carry only N and E; private keys carry the
// full CRT parameter set. All values are base64url without padding.
type JWK struct {
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
	D   string `json:"d,omitempty"`
	P   string `json:"p,omitempty"`
	Q   string `json:"q,omitempty"`
	DP  string `json:"dp,omitempty"`
	DQ  string `json:"dq,omitempty"`
	QI  string `json:"qi,omitempty"`
}

const jwkAlg = "RSA-OAEP-256"

var errInvalidJWK = errors.New("invalid JSON Web Key")

// ExportPublicKey converts a public key to its transportable JWK form,
// suitable for the relay directory.
func ExportPublicKey(pub *rsa.PublicKey) (*JWK, error) {
	if pub == nil || pub.N == nil {
		return nil, errInvalidJWK
	}
	return &JWK{
		Kty: "RSA",
		Alg: jwkAlg,
		N:   b64Int(pub.N),
		E:   b64Int(big.NewInt(int64(pub.E))),
	}, nil
}

// ExportPrivateKey converts a private key to JWK form for persistence.
func ExportPrivateKey(priv *rsa.PrivateKey) (*JWK, error) {
	if priv == nil || len(priv.Primes) < 2 {
		return nil, errInvalidJWK
	}
	priv.Precompute()
	return &JWK{
		Kty: "RSA",
		Alg: jwkAlg,
		N:   b64Int(priv.N),
		E:   b64Int(big.NewInt(int64(priv.E))),
		D:   b64Int(priv.D),
		P:   b64Int(priv.Primes[0]),
		Q:   b64Int(priv.Primes[1]),
		DP:  b64Int(priv.Precomputed.Dp),
		DQ:  b64Int(priv.Precomputed.Dq),
		QI:  b64Int(priv.Precomputed.Qinv),
	}, nil
}

// ImportPublicKey rebuilds a public key from its JWK form.
func ImportPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	if jwk == nil || jwk.Kty != "RSA" {
		return nil, errInvalidJWK
	}
	n, err := intB64(jwk.N)
	if err != nil {
		return nil, err
	}
	e, err := intB64(jwk.E)
	if err != nil {
		return nil, err
	}
	if !e.IsInt64() || e.Int64() <= 1 {
		return nil, fmt.Errorf("%w: bad public exponent", errInvalidJWK)
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// ImportPrivateKey rebuilds a private key from its JWK form and validates
// the parameter set before returning it.
func ImportPrivateKey(jwk *JWK) (*rsa.PrivateKey, error) {
	if jwk == nil || jwk.Kty != "RSA" || jwk.D == "" {
		return nil, errInvalidJWK
	}
	pub, err := ImportPublicKey(jwk)
	if err != nil {
		return nil, err
	}
	d, err := intB64(jwk.D)
	if err != nil {
		return nil, err
	}
	p, err := intB64(jwk.P)
	if err != nil {
		return nil, err
	}
	q, err := intB64(jwk.Q)
	if err != nil {
		return nil, err
	}

	priv := &rsa.PrivateKey{
		PublicKey: *pub,
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	priv.Precompute()
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidJWK, err)
	}
	return priv, nil
}

func b64Int(v *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(v.Bytes())
}

func intB64(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: missing field", errInvalidJWK)
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidJWK, err)
	}
	return new(big.Int).SetBytes(raw), nil
}
