package app

import (
	"fmt"
	"net/http"
	"time"

	assistantUsecase "github.com/allisson/capvault/internal/assistant/usecase"
	capabilityRepository "github.com/allisson/capvault/internal/capability/repository"
	capabilityUsecase "github.com/allisson/capvault/internal/capability/usecase"
	orchestratorService "github.com/allisson/capvault/internal/orchestrator/service"
	orchestratorUsecase "github.com/allisson/capvault/internal/orchestrator/usecase"
	routerRepository "github.com/allisson/capvault/internal/router/repository"
	routerUsecase "github.com/allisson/capvault/internal/router/usecase"
	"github.com/allisson/capvault/internal/watch"
)

const (
	execWaitDelay = 2 * time.Second
	userAgent     = "capvault"
)

// Registry returns the capability registry. It is empty until refreshed.
func (c *Container) Registry() capabilityUsecase.Registry {
	c.registryInit.Do(func() {
		c.registry = capabilityUsecase.NewRegistry(
			capabilityRepository.NewManifestLoader(c.config.ManifestPath),
			c.Clock(),
			c.Logger(),
			watch.DefaultDebounce,
		)
	})
	return c.registry
}

// Router returns the command router. Its table is empty until refreshed.
func (c *Container) Router() routerUsecase.Router {
	c.routerInit.Do(func() {
		c.router = routerUsecase.NewRouter(
			routerRepository.NewTableLoader(c.config.RoutingTablePath),
			c.Registry(),
			c.config.DefaultCapability,
			c.Clock(),
			c.Logger(),
			watch.DefaultDebounce,
		)
	})
	return c.router
}

// Invoker returns the invoker that picks exec, http or builtin by target scheme.
func (c *Container) Invoker() *orchestratorService.SchemeInvoker {
	c.invokerInit.Do(func() {
		c.invoker = orchestratorService.NewSchemeInvoker(
			orchestratorService.NewExecInvoker(execWaitDelay),
			orchestratorService.NewHTTPInvoker(&http.Client{}, userAgent),
			orchestratorService.NewBuiltinInvoker(nil),
		)
	})
	return c.invoker
}

// Supervisor returns the dispatch supervisor, wrapped with metrics when enabled.
func (c *Container) Supervisor() (orchestratorUsecase.Supervisor, error) {
	var err error
	c.supervisorInit.Do(func() {
		c.supervisor, err = c.initSupervisor()
		if err != nil {
			c.initErrors["supervisor"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["supervisor"]; exists {
		return nil, storedErr
	}
	return c.supervisor, nil
}

// Assistant returns the conversational front end shared by the REPL and the API.
func (c *Container) Assistant() (assistantUsecase.Assistant, error) {
	var err error
	c.assistantInit.Do(func() {
		c.assistant, err = c.initAssistant()
		if err != nil {
			c.initErrors["assistant"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["assistant"]; exists {
		return nil, storedErr
	}
	return c.assistant, nil
}

func (c *Container) initSupervisor() (orchestratorUsecase.Supervisor, error) {
	vaultUseCase, err := c.VaultUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get vault use case for supervisor: %w", err)
	}

	supervisor := orchestratorUsecase.NewSupervisor(
		c.Registry(),
		vaultUseCase,
		c.Invoker(),
		c.Clock(),
		c.Logger(),
		orchestratorUsecase.SupervisorConfig{
			DispatchTimeout: c.config.DispatchTimeout,
			AttemptTimeout:  c.config.DispatchAttemptTimeout,
			MaxAttempts:     c.config.DispatchMaxAttempts,
			BaseBackoff:     c.config.DispatchBaseBackoff,
			ProbeTimeout:    c.config.HealthProbeTimeout,
		},
	)

	if !c.config.MetricsEnabled {
		return supervisor, nil
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for supervisor: %w", err)
	}
	return orchestratorUsecase.NewSupervisorWithMetrics(supervisor, businessMetrics), nil
}

func (c *Container) initAssistant() (assistantUsecase.Assistant, error) {
	keyManager, err := c.KeyManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get key manager for assistant: %w", err)
	}
	vaultUseCase, err := c.VaultUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get vault use case for assistant: %w", err)
	}
	supervisor, err := c.Supervisor()
	if err != nil {
		return nil, fmt.Errorf("failed to get supervisor for assistant: %w", err)
	}

	return assistantUsecase.NewAssistant(
		c.Router(),
		supervisor,
		keyManager,
		vaultUseCase,
		c.Registry(),
		c.config.DefaultCapability,
		c.Logger(),
	), nil
}
