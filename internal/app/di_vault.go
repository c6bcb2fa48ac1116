package app

import (
	"context"
	"fmt"

	"github.com/allisson/capvault/internal/config"
	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	cryptoService "github.com/allisson/capvault/internal/crypto/service"
	"github.com/allisson/capvault/internal/metrics"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
	vaultRepository "github.com/allisson/capvault/internal/vault/repository"
	vaultService "github.com/allisson/capvault/internal/vault/service"
	vaultUsecase "github.com/allisson/capvault/internal/vault/usecase"
)

// VaultStore returns the keyring and credential store selected by VAULT_STORE.
func (c *Container) VaultStore() (vaultUsecase.Store, error) {
	var err error
	c.vaultStoreInit.Do(func() {
		c.vaultStore, err = c.initVaultStore()
		if err != nil {
			c.initErrors["vaultStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["vaultStore"]; exists {
		return nil, storedErr
	}
	return c.vaultStore, nil
}

// KeyWrapper returns the private key wrapper selected by VAULT_WRAP_MODE.
func (c *Container) KeyWrapper() (cryptoService.KeyWrapper, error) {
	var err error
	c.keyWrapperInit.Do(func() {
		c.keyWrapper, err = c.initKeyWrapper()
		if err != nil {
			c.initErrors["keyWrapper"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyWrapper"]; exists {
		return nil, storedErr
	}
	return c.keyWrapper, nil
}

// KeyManager returns the vault key manager. It starts locked.
func (c *Container) KeyManager() (*vaultUsecase.KeyManagerService, error) {
	var err error
	c.keyManagerInit.Do(func() {
		c.keyManager, err = c.initKeyManager()
		if err != nil {
			c.initErrors["keyManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyManager"]; exists {
		return nil, storedErr
	}
	return c.keyManager, nil
}

// VaultUseCase returns the credential vault, wrapped with metrics when enabled.
func (c *Container) VaultUseCase() (vaultUsecase.VaultUseCase, error) {
	var err error
	c.vaultUseCaseInit.Do(func() {
		c.vaultUseCase, err = c.initVaultUseCase()
		if err != nil {
			c.initErrors["vaultUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["vaultUseCase"]; exists {
		return nil, storedErr
	}
	return c.vaultUseCase, nil
}

func (c *Container) initVaultStore() (vaultUsecase.Store, error) {
	if c.config.VaultStore == config.StoreFile {
		store, err := vaultRepository.NewFileStore(c.config.VaultDir())
		if err != nil {
			return nil, fmt.Errorf("failed to open vault directory: %w", err)
		}
		return store, nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for vault store: %w", err)
	}
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for vault store: %w", err)
	}

	// Select the appropriate store based on the database driver
	switch c.config.DBDriver {
	case "mysql":
		return vaultRepository.NewMySQLStore(db, txManager), nil
	case "postgres", "sqlite3":
		return vaultRepository.NewPostgreSQLStore(db, txManager), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initKeyWrapper() (cryptoService.KeyWrapper, error) {
	if c.config.VaultWrapMode != config.WrapModeKMS {
		return cryptoService.NewPassphraseKeyWrapper(c.config.VaultScryptWorkFactor), nil
	}

	keeper, err := cryptoService.NewKMSService().OpenKeeper(context.Background(), c.config.KMSKeyURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaultDomain.ErrKeyUnavailable, err)
	}
	c.kmsKeeper = keeper
	return cryptoService.NewKMSKeyWrapper(keeper), nil
}

func (c *Container) envelope() (*vaultService.Envelope, error) {
	algorithm, err := cryptoDomain.ParseAlgorithm(c.config.VaultDEKAlgorithm)
	if err != nil {
		return nil, err
	}
	return vaultService.NewEnvelope(
		cryptoService.NewAEADManager(),
		cryptoService.NewAgeSealer(),
		algorithm,
		c.Clock(),
	), nil
}

func (c *Container) initKeyManager() (*vaultUsecase.KeyManagerService, error) {
	store, err := c.VaultStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get vault store for key manager: %w", err)
	}
	wrapper, err := c.KeyWrapper()
	if err != nil {
		return nil, fmt.Errorf("failed to get key wrapper for key manager: %w", err)
	}
	envelope, err := c.envelope()
	if err != nil {
		return nil, fmt.Errorf("failed to create envelope for key manager: %w", err)
	}

	return vaultUsecase.NewKeyManager(
		store,
		wrapper,
		cryptoService.NewAgeSealer(),
		envelope,
		vaultService.NewPassphraseVerifier(),
		c.Clock(),
		c.Logger(),
		vaultUsecase.KeyManagerConfig{
			IdleTimeout:         c.config.VaultIdleTimeout,
			UnlockRatePerMinute: c.config.UnlockRateLimitPerMinute,
			UnlockBurst:         c.config.UnlockBurst,
		},
	), nil
}

func (c *Container) initVaultUseCase() (vaultUsecase.VaultUseCase, error) {
	keyManager, err := c.KeyManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get key manager for vault use case: %w", err)
	}
	store, err := c.VaultStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get vault store for vault use case: %w", err)
	}
	envelope, err := c.envelope()
	if err != nil {
		return nil, fmt.Errorf("failed to create envelope for vault use case: %w", err)
	}

	useCase := vaultUsecase.NewVaultUseCase(keyManager, store, envelope, c.Logger())

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for vault use case: %w", err)
	}
	if provider == nil {
		return useCase, nil
	}

	gauges := &vaultGauges{keyManager: keyManager, vault: useCase}
	if err := metrics.RegisterVaultGauges(provider.MeterProvider(), c.config.MetricsNamespace, gauges); err != nil {
		return nil, fmt.Errorf("failed to register vault gauges: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for vault use case: %w", err)
	}
	return vaultUsecase.NewVaultUseCaseWithMetrics(useCase, businessMetrics), nil
}

// vaultGauges feeds the observable vault gauges.
type vaultGauges struct {
	keyManager vaultUsecase.KeyManager
	vault      vaultUsecase.VaultUseCase
}

func (g *vaultGauges) Unlocked() bool {
	return g.keyManager.State() == vaultDomain.Unlocked
}

func (g *vaultGauges) LiveSessions() int {
	return g.vault.LiveSessions()
}

func (g *vaultGauges) NeedsReentry() int {
	return len(g.vault.NeedsReentry())
}
