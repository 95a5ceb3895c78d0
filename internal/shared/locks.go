package shared

import (
	"fmt"
	"sync"
)

// ScopeLocks serializes position-shifting mutations per parent scope:
// all stage operations under one workflow, or all action operations under
// one stage, take the same mutex. Different scopes never contend.
type ScopeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewScopeLocks builds an empty lock table.
func NewScopeLocks() *ScopeLocks {
	return &ScopeLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use. The returned
// function releases it.
func (s *ScopeLocks) Lock(key string) func() {
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// WorkflowLockKey builds the lock key for stage mutations under a workflow.
func WorkflowLockKey(kind string, id int64) string {
	return fmt.Sprintf("pipeline:workflow:%s:%d", kind, id)
}

// StageLockKey builds the lock key for action mutations under a stage.
func StageLockKey(stageID int64) string {
	return fmt.Sprintf("automation:stage:%d", stageID)
}

// ExpirationScanLockKey is the redis key guarding the worker's trigger scan.
const ExpirationScanLockKey = "automation:expiration-scan:lock"
