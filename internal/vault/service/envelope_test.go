package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/capvault/internal/clock"
	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	cryptoService "github.com/allisson/capvault/internal/crypto/service"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

func newTestEnvelope(t *testing.T, alg cryptoDomain.Algorithm) (*Envelope, cryptoDomain.KeyPair, []byte) {
	t.Helper()
	sealer := cryptoService.NewAgeSealer()
	keyPair, privateKey, err := sealer.GenerateKeyPair()
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := NewEnvelope(cryptoService.NewAEADManager(), sealer, alg, clock.Fake(now))
	return env, *keyPair, privateKey
}

func TestEnvelope_RoundTrip(t *testing.T) {
	plaintexts := [][]byte{
		[]byte("sk-proj-abcdef0123456789"),
		[]byte("x"),
		make([]byte, 4096),
		[]byte("unicode ✓ credential"),
	}

	for _, alg := range []cryptoDomain.Algorithm{cryptoDomain.AESGCM, cryptoDomain.ChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			env, keyPair, privateKey := newTestEnvelope(t, alg)

			for _, plaintext := range plaintexts {
				record, err := env.Encrypt("provider-a", 1, plaintext, keyPair)
				require.NoError(t, err)

				assert.Equal(t, alg, record.Algorithm)
				assert.Equal(t, keyPair.KeyID, record.KeyID)
				assert.Len(t, record.Tag, cryptoDomain.TagSize)
				assert.Len(t, record.Ciphertext, len(plaintext))
				if len(plaintext) > 8 {
					assert.NotContains(t, string(record.Ciphertext), string(plaintext))
				}

				decrypted, err := env.Decrypt(record, privateKey)
				require.NoError(t, err)
				assert.Equal(t, plaintext, decrypted)
			}
		})
	}
}

func TestEnvelope_FreshDEKPerRecord(t *testing.T) {
	env, keyPair, _ := newTestEnvelope(t, cryptoDomain.AESGCM)

	a, err := env.Encrypt("provider-a", 1, []byte("same"), keyPair)
	require.NoError(t, err)
	b, err := env.Encrypt("provider-a", 1, []byte("same"), keyPair)
	require.NoError(t, err)

	assert.NotEqual(t, a.WrappedKey, b.WrappedKey)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestEnvelope_TamperDetection(t *testing.T) {
	env, keyPair, privateKey := newTestEnvelope(t, cryptoDomain.AESGCM)

	fresh := func() *vaultDomain.CredentialRecord {
		record, err := env.Encrypt("provider-a", 1, []byte("sk-live-0123456789"), keyPair)
		require.NoError(t, err)
		return record
	}

	flipEveryBit := func(t *testing.T, field func(r *vaultDomain.CredentialRecord) []byte) {
		record := fresh()
		n := len(field(record)) * 8
		for i := 0; i < n; i++ {
			record := fresh()
			b := field(record)
			b[i/8] ^= 1 << (i % 8)

			plaintext, err := env.Decrypt(record, privateKey)
			require.ErrorIs(t, err, vaultDomain.ErrCorrupt, "bit %d", i)
			require.Nil(t, plaintext)
		}
	}

	t.Run("ciphertext", func(t *testing.T) {
		flipEveryBit(t, func(r *vaultDomain.CredentialRecord) []byte { return r.Ciphertext })
	})
	t.Run("tag", func(t *testing.T) {
		flipEveryBit(t, func(r *vaultDomain.CredentialRecord) []byte { return r.Tag })
	})
	t.Run("nonce", func(t *testing.T) {
		flipEveryBit(t, func(r *vaultDomain.CredentialRecord) []byte { return r.Nonce })
	})

	metadata := map[string]func(r *vaultDomain.CredentialRecord){
		"provider":        func(r *vaultDomain.CredentialRecord) { r.ProviderID = "provider-b" },
		"version":         func(r *vaultDomain.CredentialRecord) { r.Version++ },
		"key id":          func(r *vaultDomain.CredentialRecord) { r.KeyID = "ffffffffffffffff" },
		"algorithm":       func(r *vaultDomain.CredentialRecord) { r.Algorithm = cryptoDomain.ChaCha20 },
		"unknown alg":     func(r *vaultDomain.CredentialRecord) { r.Algorithm = "rot13" },
		"truncated tag":   func(r *vaultDomain.CredentialRecord) { r.Tag = r.Tag[:8] },
		"truncated nonce": func(r *vaultDomain.CredentialRecord) { r.Nonce = r.Nonce[:4] },
		"wrapped key":     func(r *vaultDomain.CredentialRecord) { r.WrappedKey[len(r.WrappedKey)-1] ^= 0x80 },
		"swapped payload": func(r *vaultDomain.CredentialRecord) {
			other := fresh()
			r.Ciphertext, r.Tag, r.Nonce = other.Ciphertext, other.Tag, other.Nonce
		},
	}

	for name, mutate := range metadata {
		t.Run(name, func(t *testing.T) {
			record := fresh()
			mutate(record)

			plaintext, err := env.Decrypt(record, privateKey)
			assert.ErrorIs(t, err, vaultDomain.ErrCorrupt)
			assert.Nil(t, plaintext)
		})
	}
}

func TestEnvelope_WrongPrivateKey(t *testing.T) {
	env, keyPair, _ := newTestEnvelope(t, cryptoDomain.ChaCha20)
	_, otherKey, err := cryptoService.NewAgeSealer().GenerateKeyPair()
	require.NoError(t, err)

	record, err := env.Encrypt("provider-a", 1, []byte("secret"), keyPair)
	require.NoError(t, err)

	_, err = env.Decrypt(record, otherKey)
	assert.ErrorIs(t, err, vaultDomain.ErrCorrupt)
}

func TestEnvelope_InvalidPublicKey(t *testing.T) {
	env, _, _ := newTestEnvelope(t, cryptoDomain.AESGCM)

	_, err := env.Encrypt("provider-a", 1, []byte("secret"), cryptoDomain.KeyPair{KeyID: "x", PublicKey: "nope"})
	assert.ErrorIs(t, err, vaultDomain.ErrEncryptionFailure)
}
