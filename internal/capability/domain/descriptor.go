// Package domain defines capability descriptors: the invocable skills and workers the
// supervisor can dispatch to.
//
// Descriptors are loaded from YAML manifests and published as immutable Sets. A Set is
// never modified after it is built; a refresh replaces it wholesale.
package domain

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/capvault/internal/validation"
)

// Kind tags a descriptor as a skill or a worker. Both share one invoke contract.
type Kind string

const (
	// KindSkill is a single-purpose tool, usually backed by an HTTP endpoint.
	KindSkill Kind = "skill"
	// KindWorker is an agent process that handles a whole conversation turn.
	KindWorker Kind = "worker"
)

// HealthProbe describes how to check a capability's liveness.
type HealthProbe struct {
	Target             string `yaml:"target"              json:"target,omitempty"`              // Probe target; defaults to the invocation target
	RequiresCredential bool   `yaml:"requires_credential" json:"requires_credential,omitempty"` // Whether the probe itself needs the credential
	Disabled           bool   `yaml:"disabled"            json:"disabled,omitempty"`            // Skip this capability when aggregating health
}

// Descriptor is one invocable capability.
type Descriptor struct {
	Name                 string      `yaml:"name"                   json:"name"`
	Kind                 Kind        `yaml:"kind"                   json:"kind"`
	InvocationTarget     string      `yaml:"invocation_target"      json:"invocation_target"` // exec://, http(s):// or builtin:
	RequiresCredential   bool        `yaml:"requires_credential"    json:"requires_credential"`
	CredentialProviderID string      `yaml:"credential_provider_id" json:"credential_provider_id,omitempty"` // Defaults to Name
	Description          string      `yaml:"description"            json:"description,omitempty"`
	Aliases              []string    `yaml:"aliases"                json:"aliases,omitempty"`
	HealthProbe          HealthProbe `yaml:"health_probe"           json:"health_probe"`
}

// Validate checks the descriptor fields.
func (d *Descriptor) Validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Name, validation.Required, customValidation.Slug),
		validation.Field(&d.Kind, validation.Required, validation.In(KindSkill, KindWorker)),
		validation.Field(&d.InvocationTarget, validation.Required, customValidation.InvocationTarget),
		validation.Field(&d.CredentialProviderID, customValidation.Slug),
		validation.Field(&d.Aliases, validation.Each(customValidation.Slug)),
		validation.Field(&d.HealthProbe),
	)
}

// Validate checks the probe target when one is set.
func (p HealthProbe) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Target, customValidation.InvocationTarget),
	)
}

// ProviderID returns the vault provider whose credential this capability uses.
func (d *Descriptor) ProviderID() string {
	if d.CredentialProviderID != "" {
		return d.CredentialProviderID
	}
	return d.Name
}

// Scheme returns the scheme of the invocation target ("exec", "http", "https", "builtin").
func (d *Descriptor) Scheme() string {
	return targetScheme(d.InvocationTarget)
}

// ProbeTarget returns the health probe target, falling back to the invocation target.
func (d *Descriptor) ProbeTarget() string {
	if d.HealthProbe.Target != "" {
		return d.HealthProbe.Target
	}
	return d.InvocationTarget
}

// Names returns the name followed by every alias.
func (d *Descriptor) Names() []string {
	return append([]string{d.Name}, d.Aliases...)
}

// Clone returns a deep copy so callers cannot mutate a published Set.
func (d *Descriptor) Clone() Descriptor {
	c := *d
	c.Aliases = slices.Clone(d.Aliases)
	return c
}

func targetScheme(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Set is an immutable, validated descriptor set.
type Set struct {
	version     uint64
	loadedAt    time.Time
	source      string
	descriptors []Descriptor
	byName      map[string]int
}

// NewSet validates descriptors and indexes them by name and alias. Names and aliases
// share one namespace and must be unique across the set.
func NewSet(version uint64, source string, loadedAt time.Time, descriptors []Descriptor) (*Set, error) {
	s := &Set{
		version:     version,
		loadedAt:    loadedAt,
		source:      source,
		descriptors: make([]Descriptor, 0, len(descriptors)),
		byName:      make(map[string]int, len(descriptors)),
	}
	for i := range descriptors {
		d := descriptors[i].Clone()
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: capability %q: %v", ErrInvalidManifest, d.Name, err)
		}
		for _, name := range d.Names() {
			if _, exists := s.byName[name]; exists {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateCapability, name)
			}
			s.byName[name] = len(s.descriptors)
		}
		s.descriptors = append(s.descriptors, d)
	}
	slices.SortFunc(s.descriptors, func(a, b Descriptor) int { return strings.Compare(a.Name, b.Name) })
	for i, d := range s.descriptors {
		for _, name := range d.Names() {
			s.byName[name] = i
		}
	}
	return s, nil
}

// EmptySet returns the set published before the first refresh.
func EmptySet() *Set {
	return &Set{byName: map[string]int{}}
}

// Version is the refresh generation that produced the set.
func (s *Set) Version() uint64 { return s.version }

// LoadedAt is when the set was built.
func (s *Set) LoadedAt() time.Time { return s.loadedAt }

// Source names the manifest file or directory.
func (s *Set) Source() string { return s.source }

// Len returns the number of capabilities.
func (s *Set) Len() int { return len(s.descriptors) }

// Lookup finds a descriptor by name or alias.
func (s *Set) Lookup(name string) (Descriptor, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return s.descriptors[i].Clone(), true
}

// List returns copies of every descriptor sorted by name.
func (s *Set) List() []Descriptor {
	out := make([]Descriptor, len(s.descriptors))
	for i, d := range s.descriptors {
		out[i] = d.Clone()
	}
	return out
}
