package domain

import (
	"context"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// KeyIDLength is the number of hex characters kept from the public key fingerprint.
const KeyIDLength = 16

// KeyPair is the public half of the vault keypair. The private half never lives in a
// domain struct; it is held in a secret.Buffer while the vault is unlocked.
type KeyPair struct {
	// KeyID fingerprints PublicKey and is stamped on every record encrypted under it.
	KeyID string
	// PublicKey is the age X25519 recipient ("age1...").
	PublicKey string
}

// KeyIDFor returns the first KeyIDLength hex characters of the BLAKE3 hash of publicKey.
func KeyIDFor(publicKey string) string {
	sum := blake3.Sum256([]byte(publicKey))
	return hex.EncodeToString(sum[:])[:KeyIDLength]
}

// KMSKeeper is the subset of *secrets.Keeper used to wrap the private key in kms mode.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
