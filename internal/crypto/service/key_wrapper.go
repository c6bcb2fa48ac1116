package service

import (
	"context"
	"errors"
	"fmt"
	"net"

	"filippo.io/age"
	"gocloud.dev/gcerrors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
)

// Wrap modes persisted with the keyring.
const (
	WrapModePassphrase = "passphrase"
	WrapModeKMS        = "kms"
)

// DefaultScryptWorkFactor is age's own default (log2 of the scrypt N parameter).
const DefaultScryptWorkFactor = 18

var errEmptyPassphrase = errors.New("passphrase must not be empty")

// PassphraseKeyWrapper wraps the private key with an age scrypt recipient derived from
// the user's passphrase.
type PassphraseKeyWrapper struct {
	workFactor int
}

// NewPassphraseKeyWrapper creates a wrapper using the given scrypt work factor.
// Values below 10 fall back to DefaultScryptWorkFactor.
func NewPassphraseKeyWrapper(workFactor int) *PassphraseKeyWrapper {
	if workFactor < 10 {
		workFactor = DefaultScryptWorkFactor
	}
	return &PassphraseKeyWrapper{workFactor: workFactor}
}

func (w *PassphraseKeyWrapper) Mode() string { return WrapModePassphrase }

func (w *PassphraseKeyWrapper) Wrap(_ context.Context, privateKey, passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, errEmptyPassphrase
	}
	recipient, err := age.NewScryptRecipient(string(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to create scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(w.workFactor)
	return ageEncrypt(privateKey, recipient)
}

func (w *PassphraseKeyWrapper) Unwrap(_ context.Context, wrapped, passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, cryptoDomain.ErrUnwrapFailed
	}
	identity, err := age.NewScryptIdentity(string(passphrase))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrUnwrapFailed, err)
	}
	identity.SetMaxWorkFactor(max(w.workFactor, DefaultScryptWorkFactor))
	return ageDecrypt(wrapped, identity)
}

// KMSKeyWrapper wraps the private key with a gocloud.dev secrets keeper. The passphrase
// still gates Unlock through the keyring verifier but takes no part in the wrapping.
type KMSKeyWrapper struct {
	keeper cryptoDomain.KMSKeeper
}

// NewKMSKeyWrapper creates a wrapper around an opened keeper. The caller owns the keeper.
func NewKMSKeyWrapper(keeper cryptoDomain.KMSKeeper) *KMSKeyWrapper {
	return &KMSKeyWrapper{keeper: keeper}
}

func (w *KMSKeyWrapper) Mode() string { return WrapModeKMS }

func (w *KMSKeyWrapper) Wrap(ctx context.Context, privateKey, _ []byte) ([]byte, error) {
	wrapped, err := w.keeper.Encrypt(ctx, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key with KMS: %w", err)
	}
	return wrapped, nil
}

// Unwrap returns ErrUnwrapFailed only when the key service rejected the ciphertext.
// Outages and timeouts are returned as-is so callers can retry later.
func (w *KMSKeyWrapper) Unwrap(ctx context.Context, wrapped, _ []byte) ([]byte, error) {
	plaintext, err := w.keeper.Decrypt(ctx, wrapped)
	if err != nil {
		if kmsUnavailable(err) {
			return nil, fmt.Errorf("key service: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrUnwrapFailed, err)
	}
	return plaintext, nil
}

// kmsUnavailable reports whether err means the key service could not answer. gocloud
// has no code for an unreachable service: gRPC drivers report it as Unknown, so the
// gRPC status and network errors are checked as well.
func kmsUnavailable(err error) bool {
	switch gcerrors.Code(err) {
	case gcerrors.DeadlineExceeded, gcerrors.Canceled, gcerrors.ResourceExhausted, gcerrors.Internal:
		return true
	case gcerrors.Unknown:
		switch status.Code(err) {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return true
		}
		var netErr net.Error
		return errors.As(err, &netErr)
	}
	return false
}
