package crypto

// ZeroBytes overwrites a byte slice with zeros. Used on session keys and
// derived key material as soon as they are no longer needed.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
