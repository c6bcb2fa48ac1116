package app

import (
	"context"
	"errors"
	"fmt"

	assistantHTTP "github.com/allisson/capvault/internal/assistant/http"
	capabilityHTTP "github.com/allisson/capvault/internal/capability/http"
	"github.com/allisson/capvault/internal/config"
	"github.com/allisson/capvault/internal/http"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
	vaultHTTP "github.com/allisson/capvault/internal/vault/http"
)

var errRegistryNotLoaded = errors.New("capability registry not loaded")

// HTTPServer returns the local API server.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	keyManager, err := c.KeyManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get key manager for http server: %w", err)
	}
	vaultUseCase, err := c.VaultUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get vault use case for http server: %w", err)
	}
	supervisor, err := c.Supervisor()
	if err != nil {
		return nil, fmt.Errorf("failed to get supervisor for http server: %w", err)
	}
	assistant, err := c.Assistant()
	if err != nil {
		return nil, fmt.Errorf("failed to get assistant for http server: %w", err)
	}
	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	registry := c.Registry()
	checks := []http.ReadinessCheck{
		{
			Name: "vault",
			Check: func(ctx context.Context) error {
				// An uninitialized vault is ready: init is one of the things it serves.
				if _, err := keyManager.KeyPair(ctx); err != nil && !errors.Is(err, vaultDomain.ErrKeyMissing) {
					return err
				}
				return nil
			},
		},
		{
			Name: "capabilities",
			Check: func(context.Context) error {
				if registry.Version() == 0 {
					return errRegistryNotLoaded
				}
				return nil
			},
		},
	}
	if c.config.VaultStore == config.StoreSQL {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for http server: %w", err)
		}
		checks = append(checks, http.ReadinessCheck{Name: "database", Check: db.PingContext})
	}

	server := http.NewServer(c.config.ServerHost, c.config.ServerPort, logger, checks...)
	server.SetupRouter(
		c.config,
		vaultHTTP.NewVaultHandler(keyManager, vaultUseCase, logger),
		capabilityHTTP.NewCapabilityHandler(registry, c.Router(), logger),
		assistantHTTP.NewAssistantHandler(assistant, supervisor, logger),
		metricsProvider,
	)
	return server, nil
}

func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	if provider == nil {
		return nil, nil
	}
	return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
}
