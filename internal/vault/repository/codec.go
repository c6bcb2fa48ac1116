// Package repository persists the vault keyring and credential records, either as CBOR
// blobs in generation directories or as rows in PostgreSQL, MySQL or SQLite.
package repository

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding: identical records produce identical bytes.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("repository: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("repository: CBOR decoder initialization failed: " + err.Error())
	}
}

type recordBlob struct {
	ID         []byte `cbor:"id"`
	ProviderID string `cbor:"pid"`
	Algorithm  string `cbor:"alg"`
	Version    int    `cbor:"ver"`
	KeyID      string `cbor:"kid"`
	WrappedKey []byte `cbor:"wk"`
	Nonce      []byte `cbor:"n"`
	Ciphertext []byte `cbor:"ct"`
	Tag        []byte `cbor:"tag"`
	CreatedAt  int64  `cbor:"ts"`
}

type keyRingBlob struct {
	KeyID             string `cbor:"kid"`
	Generation        int    `cbor:"gen"`
	PublicKey         string `cbor:"pub"`
	WrappedPrivateKey []byte `cbor:"wpk"`
	WrapMode          string `cbor:"mode"`
	PassphraseHash    string `cbor:"vh"`
	CreatedAt         int64  `cbor:"ts"`
}

func encodeRecord(r *vaultDomain.CredentialRecord) ([]byte, error) {
	id, err := r.ID.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record id: %w", err)
	}
	return encMode.Marshal(recordBlob{
		ID:         id,
		ProviderID: r.ProviderID,
		Algorithm:  string(r.Algorithm),
		Version:    r.Version,
		KeyID:      r.KeyID,
		WrappedKey: r.WrappedKey,
		Nonce:      r.Nonce,
		Ciphertext: r.Ciphertext,
		Tag:        r.Tag,
		CreatedAt:  r.CreatedAt.UnixMilli(),
	})
}

func decodeRecord(data []byte) (*vaultDomain.CredentialRecord, error) {
	var blob recordBlob
	if err := decMode.Unmarshal(data, &blob); err != nil {
		return nil, err
	}
	id, err := uuid.FromBytes(blob.ID)
	if err != nil {
		return nil, err
	}
	return &vaultDomain.CredentialRecord{
		ID:         id,
		ProviderID: blob.ProviderID,
		Algorithm:  cryptoDomain.Algorithm(blob.Algorithm),
		KeyID:      blob.KeyID,
		Version:    blob.Version,
		WrappedKey: blob.WrappedKey,
		Nonce:      blob.Nonce,
		Ciphertext: blob.Ciphertext,
		Tag:        blob.Tag,
		CreatedAt:  time.UnixMilli(blob.CreatedAt).UTC(),
	}, nil
}

func encodeKeyRing(k *vaultDomain.KeyRing) ([]byte, error) {
	return encMode.Marshal(keyRingBlob{
		KeyID:             k.KeyID,
		Generation:        k.Generation,
		PublicKey:         k.PublicKey,
		WrappedPrivateKey: k.WrappedPrivateKey,
		WrapMode:          k.WrapMode,
		PassphraseHash:    k.PassphraseHash,
		CreatedAt:         k.CreatedAt.UnixMilli(),
	})
}

func decodeKeyRing(data []byte) (*vaultDomain.KeyRing, error) {
	var blob keyRingBlob
	if err := decMode.Unmarshal(data, &blob); err != nil {
		return nil, err
	}
	return &vaultDomain.KeyRing{
		KeyID:             blob.KeyID,
		Generation:        blob.Generation,
		PublicKey:         blob.PublicKey,
		WrappedPrivateKey: blob.WrappedPrivateKey,
		WrapMode:          blob.WrapMode,
		PassphraseHash:    blob.PassphraseHash,
		CreatedAt:         time.UnixMilli(blob.CreatedAt).UTC(),
	}, nil
}
