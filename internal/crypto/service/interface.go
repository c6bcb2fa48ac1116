// Package service provides the cryptographic primitives behind the vault: AEAD ciphers
// for credential payloads, age X25519 sealing of data encryption keys, and wrapping of
// the vault private key with a passphrase or a KMS.
package service

import (
	"context"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext (tag appended) and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)

	// Overhead is the tag length appended by Encrypt.
	Overhead() int
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// Sealer encrypts small payloads (data encryption keys) to an X25519 public key.
type Sealer interface {
	// GenerateKeyPair creates a new keypair. The returned private key is the only copy;
	// the caller must move it into protected memory and zero the slice.
	GenerateKeyPair() (*cryptoDomain.KeyPair, []byte, error)

	// Seal encrypts plaintext to publicKey.
	Seal(plaintext []byte, publicKey string) ([]byte, error)

	// Open decrypts sealed with privateKey.
	Open(sealed, privateKey []byte) ([]byte, error)
}

// KeyWrapper protects the vault private key at rest.
type KeyWrapper interface {
	// Mode names the wrapping scheme persisted alongside the wrapped key.
	Mode() string

	// Wrap encrypts privateKey. passphrase is ignored by wrappers that do not use one.
	Wrap(ctx context.Context, privateKey, passphrase []byte) ([]byte, error)

	// Unwrap reverses Wrap. It fails with ErrUnwrapFailed when the secret does not open it.
	Unwrap(ctx context.Context, wrapped, passphrase []byte) ([]byte, error)
}
