// Package crypto implements the Nyxar encryption envelope protocol.
//
// Every message is protected by a hybrid scheme: the content is sealed
// with a fresh one-time AES-256-GCM session key, and the session key is
// wrapped under the recipient's RSA-OAEP public key. The relay only ever
// sees the wrapped key and the ciphertext, never the plaintext.
//
// The package also provides JSON Web Key serialization so identities can
// be persisted and public keys exchanged through the relay directory, and
// a passphrase-protected keystore for identity material at rest.
//
// Strong platform crypto is a hard precondition: key generation fails
// closed if the system entropy source is unavailable. There is no
// degraded or mock mode.
package crypto
