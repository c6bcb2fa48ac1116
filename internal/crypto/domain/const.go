package domain

import "fmt"

// Algorithm identifies the AEAD used to encrypt a credential payload.
//
// Both algorithms take a 256-bit key, a 12-byte random nonce and produce a 16-byte tag.
// Use AESGCM on CPUs with AES-NI; ChaCha20 is constant-time in software.
type Algorithm string

const (
	// AESGCM is AES-256 in Galois/Counter Mode.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 is ChaCha20-Poly1305 (RFC 8439).
	ChaCha20 Algorithm = "chacha20-poly1305"
)

const (
	// KeySize is the DEK length in bytes for every supported algorithm.
	KeySize = 32
	// TagSize is the AEAD authentication tag length in bytes.
	TagSize = 16
)

// ParseAlgorithm validates an algorithm name read from configuration or storage.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch alg := Algorithm(s); alg {
	case AESGCM, ChaCha20:
		return alg, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}
