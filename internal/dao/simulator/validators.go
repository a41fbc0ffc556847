package simulator

import (
	"context"
	"sync"

	id "daofund/pkg/domain"
)

// ValidatorRegistry serves a fixed validator set, mutable for tests that
// exercise registry churn.
type ValidatorRegistry struct {
	mu      sync.Mutex
	members []id.Address
}

func NewValidatorRegistry(members ...id.Address) *ValidatorRegistry {
	return &ValidatorRegistry{members: members}
}

func (r *ValidatorRegistry) CurrentMembers(_ context.Context) ([]id.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]id.Address(nil), r.members...), nil
}

// SetMembers replaces the validator set.
func (r *ValidatorRegistry) SetMembers(members ...id.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = append([]id.Address(nil), members...)
}
