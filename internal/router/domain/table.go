package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/capvault/internal/validation"
)

// DefaultPattern is the rule pattern that names the fallback capability.
const DefaultPattern = "default"

// Rule maps a literal slash command, or "default", to a capability.
type Rule struct {
	Pattern  string   `yaml:"pattern"  json:"pattern"`
	Target   string   `yaml:"target"   json:"target"`
	Priority int      `yaml:"priority" json:"priority"`
	Aliases  []string `yaml:"aliases"  json:"aliases,omitempty"`
}

// IsDefault reports whether the rule names the fallback capability.
func (r *Rule) IsDefault() bool {
	return r.Pattern == DefaultPattern
}

// Command returns the normalized command the rule answers to.
func (r *Rule) Command() string {
	return NormalizeCommand(r.Pattern)
}

// Validate checks the rule fields.
func (r *Rule) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Pattern,
			validation.Required,
			validation.By(func(value any) error {
				if r.IsDefault() {
					return nil
				}
				if !strings.HasPrefix(r.Pattern, CommandPrefix) {
					return validation.NewError("validation_rule_pattern", "must start with / or be \"default\"")
				}
				if IsBuiltin(r.Pattern) {
					return validation.NewError("validation_rule_builtin", "is a built-in command")
				}
				return customValidation.Slug.Validate(r.Command())
			}),
		),
		validation.Field(&r.Target, validation.Required, customValidation.Slug),
		validation.Field(&r.Aliases, validation.Each(validation.By(func(value any) error {
			alias, _ := value.(string)
			if IsBuiltin(alias) {
				return validation.NewError("validation_rule_builtin", "is a built-in command")
			}
			return customValidation.Slug.Validate(NormalizeCommand(alias))
		}))),
	)
}

// Table is the routing table document:
//
//	default: chat-default
//	research: research
//	rules:
//	  - pattern: /web
//	    target: web-search
//	    priority: 10
//	    aliases: [/w]
type Table struct {
	Default  string `yaml:"default"  json:"default,omitempty"`
	Research string `yaml:"research" json:"research,omitempty"`
	Rules    []Rule `yaml:"rules"    json:"rules"`

	version uint64
}

// Validate checks every rule and the fallback targets.
func (t *Table) Validate() error {
	err := validation.ValidateStruct(t,
		validation.Field(&t.Default, customValidation.Slug),
		validation.Field(&t.Research, customValidation.Slug),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRoutingTable, err)
	}
	for i := range t.Rules {
		if err := t.Rules[i].Validate(); err != nil {
			return fmt.Errorf("%w: rule %d (%s): %v", ErrInvalidRoutingTable, i, t.Rules[i].Pattern, err)
		}
	}
	return nil
}

// Version is the reload generation that produced the table.
func (t *Table) Version() uint64 { return t.version }

// WithVersion returns a copy of the table stamped with version.
func (t *Table) WithVersion(version uint64) *Table {
	c := *t
	c.Rules = slices.Clone(t.Rules)
	c.version = version
	return &c
}

// DefaultTarget returns the fallback capability: the default key, else the highest
// priority "default" rule, else fallback.
func (t *Table) DefaultTarget(fallback string) string {
	if t.Default != "" {
		return t.Default
	}
	var best *Rule
	for i := range t.Rules {
		r := &t.Rules[i]
		if !r.IsDefault() {
			continue
		}
		if best == nil || r.Priority > best.Priority ||
			(r.Priority == best.Priority && r.Target < best.Target) {
			best = r
		}
	}
	if best != nil {
		return best.Target
	}
	return fallback
}

// Route is one command name that resolves to a target.
type Route struct {
	Command  string // Normalized, without prefix
	Target   string
	Priority int
	Primary  bool // Rule pattern or capability name, as opposed to an alias
}

// CompareRoutes orders routes by priority (highest first), then command, then target.
func CompareRoutes(a, b Route) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if c := strings.Compare(a.Command, b.Command); c != 0 {
		return c
	}
	return strings.Compare(a.Target, b.Target)
}

// Routes returns one Route per rule pattern and rule alias. Default rules are skipped.
func (t *Table) Routes() []Route {
	var routes []Route
	for i := range t.Rules {
		r := &t.Rules[i]
		if r.IsDefault() {
			continue
		}
		routes = append(routes, Route{Command: r.Command(), Target: r.Target, Priority: r.Priority, Primary: true})
		for _, alias := range r.Aliases {
			routes = append(routes, Route{Command: NormalizeCommand(alias), Target: r.Target, Priority: r.Priority})
		}
	}
	return routes
}
