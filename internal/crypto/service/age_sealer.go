package service

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
)

// AgeSealer implements Sealer with age X25519 recipients.
type AgeSealer struct{}

// NewAgeSealer creates a new AgeSealer.
func NewAgeSealer() *AgeSealer {
	return &AgeSealer{}
}

// GenerateKeyPair creates a fresh X25519 identity. age only exposes the private key as
// a string, so one heap copy of it exists until the garbage collector reclaims it.
func (s *AgeSealer) GenerateKeyPair() (*cryptoDomain.KeyPair, []byte, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate identity: %w", err)
	}

	publicKey := identity.Recipient().String()
	return &cryptoDomain.KeyPair{
		KeyID:     cryptoDomain.KeyIDFor(publicKey),
		PublicKey: publicKey,
	}, []byte(identity.String()), nil
}

// Seal encrypts plaintext to a single X25519 recipient.
func (s *AgeSealer) Seal(plaintext []byte, publicKey string) ([]byte, error) {
	recipient, err := age.ParseX25519Recipient(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrInvalidPublicKey, err)
	}
	return ageEncrypt(plaintext, recipient)
}

// Open decrypts sealed with the X25519 identity in privateKey.
func (s *AgeSealer) Open(sealed, privateKey []byte) ([]byte, error) {
	identity, err := age.ParseX25519Identity(string(privateKey))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid identity", cryptoDomain.ErrUnwrapFailed)
	}
	return ageDecrypt(sealed, identity)
}

// PublicKeyOf derives the recipient string from an X25519 identity.
func PublicKeyOf(privateKey []byte) (string, error) {
	identity, err := age.ParseX25519Identity(string(privateKey))
	if err != nil {
		return "", fmt.Errorf("%w: invalid identity", cryptoDomain.ErrUnwrapFailed)
	}
	return identity.Recipient().String(), nil
}

func ageEncrypt(plaintext []byte, recipients ...age.Recipient) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("failed to write plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close encryptor: %w", err)
	}
	return buf.Bytes(), nil
}

func ageDecrypt(sealed []byte, identities ...age.Identity) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(sealed), identities...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrUnwrapFailed, err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrUnwrapFailed, err)
	}
	return plaintext, nil
}
