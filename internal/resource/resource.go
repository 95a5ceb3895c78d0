// Package resource defines the typed (kind, id) reference used to point a
// role assignment or a workflow at any record type without depending on the
// concrete record definitions.
package resource

import (
	"context"
	"fmt"

	"github.com/meetpoint/meetpoint/internal/shared"
)

// Kind enumerates the record types a reference can target. The set is
// closed; registering lookups for anything else is a programming error.
type Kind string

const (
	KindProfile Kind = "profile"
	KindEvent   Kind = "event"
	KindProject Kind = "project"
	KindTask    Kind = "task"
)

// Valid reports whether k is one of the registered kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindProfile, KindEvent, KindProject, KindTask:
		return true
	}
	return false
}

// Ref points at a single record. A nil *Ref denotes global scope.
type Ref struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

// String renders the reference as kind:id.
func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Equal reports whether two references identify the same record.
// Both kind and id must match.
func (r Ref) Equal(other Ref) bool {
	return r.Kind == other.Kind && r.ID == other.ID
}

// Validate checks the reference shape.
func (r Ref) Validate() error {
	if !r.Kind.Valid() {
		return shared.Validationf("unknown resource kind %q", r.Kind)
	}
	if r.ID <= 0 {
		return shared.Validationf("resource id must be positive")
	}
	return nil
}

// LookupFunc reports whether the record identified by id exists.
type LookupFunc func(ctx context.Context, id int64) (bool, error)

// Registry maps kinds to lookup functions. Record modules register
// themselves during wiring; the authorization layer resolves references
// through the registry without importing the record packages.
type Registry struct {
	lookups map[Kind]LookupFunc
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{lookups: make(map[Kind]LookupFunc)}
}

// Register installs the lookup for a kind. Last registration wins.
func (g *Registry) Register(kind Kind, fn LookupFunc) {
	if !kind.Valid() {
		panic(fmt.Sprintf("resource: register unknown kind %q", kind))
	}
	g.lookups[kind] = fn
}

// Exists resolves the reference. Unknown kinds and unregistered kinds are
// validation errors; a missing record is a negative answer, not an error.
func (g *Registry) Exists(ctx context.Context, ref Ref) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	fn, ok := g.lookups[ref.Kind]
	if !ok {
		return false, shared.Validationf("no lookup registered for kind %q", ref.Kind)
	}
	return fn(ctx, ref.ID)
}
