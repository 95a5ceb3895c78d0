package app

import (
	"context"
	"fmt"

	"github.com/meetpoint/meetpoint/internal/automation"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// TargetMux routes automation target operations to the service owning
// the target's kind. Events and tasks both move through pipelines, so
// the coordinator sees one store for either.
type TargetMux struct {
	stores map[resource.Kind]automation.TargetStore
}

// NewTargetMux builds the mux.
func NewTargetMux() *TargetMux {
	return &TargetMux{stores: make(map[resource.Kind]automation.TargetStore)}
}

// Register installs the store for a kind.
func (m *TargetMux) Register(kind resource.Kind, store automation.TargetStore) {
	m.stores[kind] = store
}

// StageOf resolves through the kind's store.
func (m *TargetMux) StageOf(ctx context.Context, target resource.Ref) (int64, error) {
	store, err := m.store(target)
	if err != nil {
		return 0, err
	}
	return store.StageOf(ctx, target)
}

// MoveToStage resolves through the kind's store.
func (m *TargetMux) MoveToStage(ctx context.Context, target resource.Ref, stageID int64) error {
	store, err := m.store(target)
	if err != nil {
		return err
	}
	return store.MoveToStage(ctx, target, stageID)
}

// Field resolves through the kind's store.
func (m *TargetMux) Field(ctx context.Context, target resource.Ref, name string) (any, error) {
	store, err := m.store(target)
	if err != nil {
		return nil, err
	}
	return store.Field(ctx, target, name)
}

func (m *TargetMux) store(target resource.Ref) (automation.TargetStore, error) {
	store, ok := m.stores[target.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s records do not move through stages", shared.ErrValidation, target.Kind)
	}
	return store, nil
}
