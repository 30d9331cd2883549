package spec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"
)

// ErrNotFound indicates no registered spec matches a lookup.
var ErrNotFound = errors.New("agent spec not found")

// Registry holds frozen agent specs keyed by name and version.
type Registry struct {
	specs map[string]map[string]*AgentSpec
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]map[string]*AgentSpec),
	}
}

// Register adds a frozen spec. Re-registering the same name/version pair
// is rejected so published definitions stay immutable.
func (r *Registry) Register(s *AgentSpec) error {
	if s == nil {
		return fmt.Errorf("%w: nil spec", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.specs[s.Name]
	if !ok {
		versions = make(map[string]*AgentSpec)
		r.specs[s.Name] = versions
	}

	if _, exists := versions[s.Version]; exists {
		return fmt.Errorf("%w: agent %s version %s already registered", ErrValidation, s.Name, s.Version)
	}

	versions[s.Version] = s

	log.Info().Str("agent", s.Name).Str("version", s.Version).Msg("Agent spec registered")

	return nil
}

// Require resolves a spec by name. An explicit version must match
// exactly; an empty version resolves to the highest registered version.
func (r *Registry) Require(name, version string) (*AgentSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.specs[name]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if version != "" {
		s, ok := versions[version]
		if !ok {
			return nil, fmt.Errorf("%w: %s version %s", ErrNotFound, name, version)
		}
		return s, nil
	}

	var best *AgentSpec
	for _, s := range versions {
		if best == nil || versionLess(best.Version, s.Version) {
			best = s
		}
	}
	return best, nil
}

// List returns all registered name/version pairs.
func (r *Registry) List() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.specs))
	for name, versions := range r.specs {
		for v := range versions {
			out[name] = append(out[name], v)
		}
	}
	return out
}

// versionLess reports whether a sorts before b. Semver when both parse,
// lexical otherwise.
func versionLess(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.LessThan(vb)
	}
	return a < b
}
