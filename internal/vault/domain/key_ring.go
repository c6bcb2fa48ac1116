// Package domain defines the vault data model: the keyring that owns the asymmetric
// keypair, the encrypted credential records, and the request-scoped credential session
// that carries one decrypted credential.
package domain

import (
	"time"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
)

// KeyRing is the persisted form of the vault keypair. The private key only ever appears
// here wrapped by the passphrase (age scrypt) or by a KMS keeper.
type KeyRing struct {
	KeyID             string
	Generation        int
	PublicKey         string
	WrappedPrivateKey []byte
	WrapMode          string
	// PassphraseHash is an Argon2id verifier used to tell a wrong passphrase apart from
	// a damaged wrapped key.
	PassphraseHash string
	CreatedAt      time.Time
}

// KeyPair returns the public half of the keyring.
func (k *KeyRing) KeyPair() cryptoDomain.KeyPair {
	return cryptoDomain.KeyPair{KeyID: k.KeyID, PublicKey: k.PublicKey}
}

// Consistent reports whether KeyID matches the fingerprint of PublicKey.
func (k *KeyRing) Consistent() bool {
	return k.KeyID == cryptoDomain.KeyIDFor(k.PublicKey) && len(k.WrappedPrivateKey) > 0
}
