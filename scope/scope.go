package scope

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrRegistryFrozen = errors.New("scope registry frozen")
	ErrUnknownRole    = errors.New("unknown role")
)

// Registry resolves the scopes a set of roles grants. Mutation is only legal
// before Freeze; afterwards every method is safe for concurrent readers.
type Registry struct {
	frozen bool
	roles  map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		roles: make(map[string][]string),
	}
}

// RegisterRole binds scopes to a role, replacing any earlier binding.
func (r *Registry) RegisterRole(role string, scopes ...string) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	if role == "" {
		return fmt.Errorf("register role: empty role name")
	}

	owned := make([]string, len(scopes))
	copy(owned, scopes)
	r.roles[role] = owned
	return nil
}

// Freeze ends the mutation phase. Idempotent.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen reports whether the registry has been sealed.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// ScopesFor merges the scopes of all given roles, deduplicated and sorted.
// Unknown roles contribute nothing; they are not an error here because role
// data comes from the user store, which may lag the registry.
func (r *Registry) ScopesFor(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	for _, role := range roles {
		for _, s := range r.roles[role] {
			seen[s] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	merged := make([]string, 0, len(seen))
	for s := range seen {
		merged = append(merged, s)
	}
	sort.Strings(merged)
	return merged
}

// Scopes returns the exact binding of a single role. Unlike ScopesFor it
// treats an unregistered role as an error, for callers validating role
// configuration rather than resolving user claims.
func (r *Registry) Scopes(role string) ([]string, error) {
	bound, ok := r.roles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	out := make([]string, len(bound))
	copy(out, bound)
	return out, nil
}

// HasRole reports whether role is registered.
func (r *Registry) HasRole(role string) bool {
	_, ok := r.roles[role]
	return ok
}
