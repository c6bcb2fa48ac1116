// Package usecase implements the command router.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	"github.com/allisson/capvault/internal/clock"
	routerDomain "github.com/allisson/capvault/internal/router/domain"
	"github.com/allisson/capvault/internal/watch"
)

// TableLoader reads the routing table source.
type TableLoader interface {
	Load(ctx context.Context) (*routerDomain.Table, error)
	Path() string
}

// CapabilitySource exposes the active capability set.
type CapabilitySource interface {
	Snapshot() *capabilityDomain.Set
}

// Router classifies raw input and resolves it to a capability.
type Router interface {
	// Classify turns raw input into a Command or FreeText decision.
	Classify(raw string) routerDomain.Decision

	// Resolve returns the capability a decision routes to. Resolution is deterministic
	// for a given table and capability set:
	//  1. exact match on a rule pattern or capability name
	//  2. alias match, then prefix match, on rules and capabilities
	//  3. session override (research mode) for free text
	//  4. the default capability for free text
	// Candidates at one step are ranked by priority, then command name.
	Resolve(
		ctx context.Context,
		decision routerDomain.Decision,
		session routerDomain.Session,
	) (capabilityDomain.Descriptor, error)

	// Help renders the built-in and routable commands.
	Help() string

	// Table returns the active routing table.
	Table() *routerDomain.Table

	// Refresh reloads the routing table. On error the active table stays in place.
	Refresh(ctx context.Context) (*routerDomain.Table, error)

	// Watch reloads the routing table on every change until ctx is done.
	Watch(ctx context.Context) error
}

type router struct {
	loader            TableLoader
	capabilities      CapabilitySource
	defaultCapability string
	clock             clock.Clock
	logger            *slog.Logger
	debounce          time.Duration

	refreshMu sync.Mutex
	table     atomic.Pointer[routerDomain.Table]
}

// NewRouter creates a router with an empty table. defaultCapability is used for free
// text when the table names no default.
func NewRouter(
	loader TableLoader,
	capabilities CapabilitySource,
	defaultCapability string,
	clk clock.Clock,
	logger *slog.Logger,
	debounce time.Duration,
) Router {
	r := &router{
		loader:            loader,
		capabilities:      capabilities,
		defaultCapability: defaultCapability,
		clock:             clk,
		logger:            logger,
		debounce:          debounce,
	}
	r.table.Store(&routerDomain.Table{})
	return r
}

func (r *router) Classify(raw string) routerDomain.Decision {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, routerDomain.CommandPrefix) {
		return routerDomain.NewFreeText(text)
	}
	name, args, _ := strings.Cut(text, " ")
	return routerDomain.NewCommand(name, strings.TrimSpace(args))
}

func (r *router) Resolve(
	ctx context.Context,
	decision routerDomain.Decision,
	session routerDomain.Session,
) (capabilityDomain.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return capabilityDomain.Descriptor{}, err
	}

	// One snapshot of each for the whole resolution.
	table := r.table.Load()
	set := r.capabilities.Snapshot()

	var target string
	if decision.IsCommand() {
		var ok bool
		target, ok = resolveCommand(decision.Name, table, set)
		if !ok {
			return capabilityDomain.Descriptor{}, &routerDomain.UnknownCommandError{Command: decision.Name}
		}
	} else {
		switch {
		case session.Research && table.Research != "":
			target = table.Research
		default:
			target = table.DefaultTarget(r.defaultCapability)
		}
		if target == "" {
			return capabilityDomain.Descriptor{}, routerDomain.ErrNoDefaultRoute
		}
	}

	descriptor, ok := set.Lookup(target)
	if !ok {
		return capabilityDomain.Descriptor{}, fmt.Errorf("%w: %q", capabilityDomain.ErrCapabilityNotFound, target)
	}
	return descriptor, nil
}

// resolveCommand applies steps 1 and 2 of the resolution order.
func resolveCommand(name string, table *routerDomain.Table, set *capabilityDomain.Set) (string, bool) {
	if name == "" {
		return "", false
	}
	routes := commandRoutes(table, set)

	steps := []func(routerDomain.Route) bool{
		func(rt routerDomain.Route) bool { return rt.Primary && rt.Command == name },
		func(rt routerDomain.Route) bool { return !rt.Primary && rt.Command == name },
		func(rt routerDomain.Route) bool { return strings.HasPrefix(rt.Command, name) },
	}
	for _, match := range steps {
		// routes is sorted, so the first match is the best candidate of this step.
		if i := slices.IndexFunc(routes, match); i >= 0 {
			return routes[i].Target, true
		}
	}
	return "", false
}

// commandRoutes merges table routes with capability names and aliases, sorted with
// routerDomain.CompareRoutes. Capabilities route to themselves at priority 0.
func commandRoutes(table *routerDomain.Table, set *capabilityDomain.Set) []routerDomain.Route {
	routes := table.Routes()
	for _, d := range set.List() {
		routes = append(routes, routerDomain.Route{Command: d.Name, Target: d.Name, Primary: true})
		for _, alias := range d.Aliases {
			routes = append(routes, routerDomain.Route{Command: alias, Target: d.Name})
		}
	}
	slices.SortFunc(routes, routerDomain.CompareRoutes)
	return routes
}

func (r *router) Help() string {
	table := r.table.Load()
	set := r.capabilities.Snapshot()

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)

	fmt.Fprintln(w, "Built-in commands:")
	for _, entry := range routerDomain.Builtins {
		fmt.Fprintf(w, "  %s\t%s\n", entry.Usage, entry.Description)
	}

	entries := commandHelp(table, set)
	if len(entries) > 0 {
		fmt.Fprintln(w, "\nCommands:")
		for _, entry := range entries {
			fmt.Fprintf(w, "  %s\t%s\n", entry.Usage, entry.Description)
		}
	}
	_ = w.Flush()

	if target := table.DefaultTarget(r.defaultCapability); target != "" {
		fmt.Fprintf(&b, "\nFree text goes to %s", target)
		if table.Research != "" {
			fmt.Fprintf(&b, " (%s in research mode)", table.Research)
		}
		b.WriteString(".\n")
	}
	return b.String()
}

// commandHelp lists every explicit command: rules first in resolution order, then
// capabilities no rule targets.
func commandHelp(table *routerDomain.Table, set *capabilityDomain.Set) []routerDomain.HelpEntry {
	var entries []routerDomain.HelpEntry
	routed := make(map[string]bool)

	rules := slices.Clone(table.Rules)
	slices.SortFunc(rules, func(a, b routerDomain.Rule) int {
		return routerDomain.CompareRoutes(
			routerDomain.Route{Command: a.Command(), Target: a.Target, Priority: a.Priority},
			routerDomain.Route{Command: b.Command(), Target: b.Target, Priority: b.Priority},
		)
	})
	for _, rule := range rules {
		if rule.IsDefault() {
			continue
		}
		routed[rule.Target] = true
		entries = append(entries, routerDomain.HelpEntry{
			Usage:       usage(rule.Command(), rule.Aliases),
			Description: describe(rule.Target, set),
		})
	}
	for _, d := range set.List() {
		if routed[d.Name] {
			continue
		}
		entries = append(entries, routerDomain.HelpEntry{
			Usage:       usage(d.Name, d.Aliases),
			Description: describe(d.Name, set),
		})
	}
	return entries
}

func usage(command string, aliases []string) string {
	out := routerDomain.CommandPrefix + command
	if len(aliases) == 0 {
		return out
	}
	names := make([]string, len(aliases))
	for i, alias := range aliases {
		names[i] = routerDomain.CommandPrefix + routerDomain.NormalizeCommand(alias)
	}
	return out + " (" + strings.Join(names, ", ") + ")"
}

func describe(target string, set *capabilityDomain.Set) string {
	d, ok := set.Lookup(target)
	if !ok {
		return target + " (not registered)"
	}
	if d.Description == "" {
		return d.Name
	}
	return d.Name + ": " + d.Description
}

func (r *router) Table() *routerDomain.Table {
	return r.table.Load()
}

func (r *router) Refresh(ctx context.Context) (*routerDomain.Table, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	loaded, err := r.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	next := loaded.WithVersion(r.table.Load().Version() + 1)
	r.table.Store(next)

	r.logger.Info("routing table refreshed",
		slog.String("source", r.loader.Path()),
		slog.Uint64("version", next.Version()),
		slog.Int("rules", len(next.Rules)),
		slog.String("default", next.DefaultTarget(r.defaultCapability)),
	)
	return next, nil
}

func (r *router) Watch(ctx context.Context) error {
	w := watch.New(r.loader.Path(), r.debounce, r.clock, r.logger, func(ctx context.Context) error {
		_, err := r.Refresh(ctx)
		return err
	})
	return w.Run(ctx)
}
