package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
	vaultUseCase "github.com/allisson/capvault/internal/vault/usecase"
)

// RunInit creates the vault keypair and wraps the private key with a new passphrase.
// The passphrase is asked twice. Fails with ErrKeyRingExists when the vault already has
// a keypair.
func RunInit(
	ctx context.Context,
	keyManager vaultUseCase.KeyManager,
	logger *slog.Logger,
	io IOTuple,
) error {
	passphrase, err := readNewSecret(io, "New vault passphrase: ")
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}
	defer cryptoDomain.Zero(passphrase)

	keyPair, err := keyManager.Init(ctx, passphrase)
	if err != nil {
		return err
	}

	logger.Info("vault initialized", slog.String("key_id", keyPair.KeyID))
	_, _ = fmt.Fprintf(io.Writer, "Vault initialized.\nKey ID: %s\nPublic key: %s\n", keyPair.KeyID, keyPair.PublicKey)
	return nil
}

// RunUnlockCheck verifies the passphrase by unlocking the vault, then locks it again.
func RunUnlockCheck(
	ctx context.Context,
	keyManager vaultUseCase.KeyManager,
	logger *slog.Logger,
	io IOTuple,
) error {
	keyPair, err := unlock(ctx, keyManager, io)
	if err != nil {
		return err
	}
	defer keyManager.Lock()

	logger.Info("unlock check passed", slog.String("key_id", keyPair.KeyID))
	_, _ = fmt.Fprintf(io.Writer, "Passphrase OK. Key ID: %s\n", keyPair.KeyID)
	return nil
}

// RunRotateKey replaces the keypair and re-encrypts every stored credential. With
// changePassphrase the new private key is wrapped with a new passphrase.
func RunRotateKey(
	ctx context.Context,
	keyManager vaultUseCase.KeyManager,
	logger *slog.Logger,
	io IOTuple,
	changePassphrase bool,
) error {
	passphrase, err := readSecret(io, "Current vault passphrase: ")
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}
	defer cryptoDomain.Zero(passphrase)

	var newPassphrase []byte
	if changePassphrase {
		newPassphrase, err = readNewSecret(io, "New vault passphrase: ")
		if err != nil {
			return fmt.Errorf("failed to read new passphrase: %w", err)
		}
		defer cryptoDomain.Zero(newPassphrase)
	}

	keyPair, err := keyManager.Rotate(ctx, passphrase, newPassphrase)
	if err != nil {
		return err
	}

	logger.Info("vault key rotated", slog.String("key_id", keyPair.KeyID))
	_, _ = fmt.Fprintf(io.Writer, "Key rotated. New key ID: %s\n", keyPair.KeyID)
	return nil
}

// RunSetCredential encrypts and stores the credential of providerID. Only the public key
// is needed, so the vault stays locked.
func RunSetCredential(
	ctx context.Context,
	vault vaultUseCase.VaultUseCase,
	logger *slog.Logger,
	io IOTuple,
	providerID string,
) error {
	if err := vaultDomain.ValidateProviderID(providerID); err != nil {
		return err
	}

	value, err := readSecret(io, fmt.Sprintf("Credential for %s: ", providerID))
	if err != nil {
		return fmt.Errorf("failed to read credential: %w", err)
	}
	// Store zeroes value; this covers the error paths before it.
	defer cryptoDomain.Zero(value)

	info, err := vault.Store(ctx, providerID, value)
	if err != nil {
		return err
	}

	logger.Info("credential stored",
		slog.String("provider_id", info.ProviderID),
		slog.Int("version", info.Version),
	)
	_, _ = fmt.Fprintf(io.Writer, "Stored credential for %s (version %d, key %s)\n", info.ProviderID, info.Version, info.KeyID)
	return nil
}

// RunDeleteCredential removes the credential of providerID.
func RunDeleteCredential(
	ctx context.Context,
	vault vaultUseCase.VaultUseCase,
	logger *slog.Logger,
	io IOTuple,
	providerID string,
) error {
	if err := vault.Delete(ctx, providerID); err != nil {
		return err
	}

	logger.Info("credential deleted", slog.String("provider_id", providerID))
	_, _ = fmt.Fprintf(io.Writer, "Deleted credential for %s\n", providerID)
	return nil
}

// RunListCredentials prints the metadata of every stored credential, never a value.
func RunListCredentials(
	ctx context.Context,
	vault vaultUseCase.VaultUseCase,
	io IOTuple,
	format string,
) error {
	infos, err := vault.List(ctx)
	if err != nil {
		return err
	}

	if format == "json" {
		if infos == nil {
			infos = []vaultDomain.CredentialInfo{}
		}
		return outputJSON(infos, io.Writer)
	}

	if len(infos) == 0 {
		_, _ = fmt.Fprintln(io.Writer, "No credentials stored.")
		return nil
	}
	for _, info := range infos {
		if info.NeedsReentry {
			_, _ = fmt.Fprintf(io.Writer, "%s\tNEEDS RE-ENTRY\n", info.ProviderID)
			continue
		}
		_, _ = fmt.Fprintf(io.Writer, "%s\tv%d\t%s\tkey %s\t%s\n",
			info.ProviderID,
			info.Version,
			info.Algorithm,
			info.KeyID,
			info.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return nil
}

// unlock prompts for the passphrase and unlocks the vault.
func unlock(
	ctx context.Context,
	keyManager vaultUseCase.KeyManager,
	io IOTuple,
) (*cryptoDomain.KeyPair, error) {
	passphrase, err := readSecret(io, "Vault passphrase: ")
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	defer cryptoDomain.Zero(passphrase)

	return keyManager.Unlock(ctx, passphrase)
}

// unlockIfInitialized unlocks an initialized vault and does nothing for a vault without a
// keypair, so capabilities that need no credential still work before init.
func unlockIfInitialized(
	ctx context.Context,
	keyManager vaultUseCase.KeyManager,
	io IOTuple,
) error {
	if _, err := keyManager.KeyPair(ctx); err != nil {
		if errors.Is(err, vaultDomain.ErrKeyMissing) {
			return nil
		}
		return err
	}
	_, err := unlock(ctx, keyManager, io)
	return err
}
