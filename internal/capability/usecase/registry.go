// Package usecase implements the capability registry.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	"github.com/allisson/capvault/internal/clock"
	"github.com/allisson/capvault/internal/watch"
)

// ManifestLoader reads the descriptors of the manifest source.
type ManifestLoader interface {
	Load(ctx context.Context) ([]capabilityDomain.Descriptor, error)
	Path() string
}

// Registry holds the active capability set. Readers never block: every read goes
// through one atomic pointer load, and a refresh publishes a new set with one store.
type Registry interface {
	// Refresh rescans the manifest source and swaps in the new set. On error the active
	// set is left untouched.
	Refresh(ctx context.Context) (*capabilityDomain.Set, error)

	// Lookup finds a capability by name or alias.
	Lookup(name string) (capabilityDomain.Descriptor, error)

	// List returns every capability sorted by name.
	List() []capabilityDomain.Descriptor

	// Version returns the refresh generation of the active set; 0 before the first refresh.
	Version() uint64

	// Snapshot returns the active set. It stays valid and unchanged after later refreshes.
	Snapshot() *capabilityDomain.Set

	// Watch refreshes on every manifest change until ctx is done.
	Watch(ctx context.Context) error
}

type registry struct {
	loader   ManifestLoader
	clock    clock.Clock
	logger   *slog.Logger
	debounce time.Duration

	refreshMu sync.Mutex
	active    atomic.Pointer[capabilityDomain.Set]
}

// NewRegistry creates a registry with an empty active set. Call Refresh to load it.
func NewRegistry(loader ManifestLoader, clk clock.Clock, logger *slog.Logger, debounce time.Duration) Registry {
	r := &registry{
		loader:   loader,
		clock:    clk,
		logger:   logger,
		debounce: debounce,
	}
	r.active.Store(capabilityDomain.EmptySet())
	return r
}

func (r *registry) Refresh(ctx context.Context) (*capabilityDomain.Set, error) {
	// Serialized so versions are handed out in publication order.
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	descriptors, err := r.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	current := r.active.Load()
	next, err := capabilityDomain.NewSet(current.Version()+1, r.loader.Path(), r.clock.Now(), descriptors)
	if err != nil {
		return nil, err
	}
	r.active.Store(next)

	r.logger.Info("capability registry refreshed",
		slog.String("source", next.Source()),
		slog.Uint64("version", next.Version()),
		slog.Int("capabilities", next.Len()),
	)
	return next, nil
}

func (r *registry) Lookup(name string) (capabilityDomain.Descriptor, error) {
	descriptor, ok := r.active.Load().Lookup(name)
	if !ok {
		return capabilityDomain.Descriptor{}, fmt.Errorf("%w: %q", capabilityDomain.ErrCapabilityNotFound, name)
	}
	return descriptor, nil
}

func (r *registry) List() []capabilityDomain.Descriptor {
	return r.active.Load().List()
}

func (r *registry) Version() uint64 {
	return r.active.Load().Version()
}

func (r *registry) Snapshot() *capabilityDomain.Set {
	return r.active.Load()
}

func (r *registry) Watch(ctx context.Context) error {
	w := watch.New(r.loader.Path(), r.debounce, r.clock, r.logger, func(ctx context.Context) error {
		_, err := r.Refresh(ctx)
		return err
	})
	return w.Run(ctx)
}
