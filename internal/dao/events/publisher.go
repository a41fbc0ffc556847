// Package events publishes lifecycle and feedback notifications: investment
// shortfall/completion feedback, status transitions, and phase payouts.
package events

import (
	"context"
	"sync"

	"daofund/internal/dao/models"
)

// Event types emitted by the services.
const (
	TypeInvestmentShortfall = "investment_shortfall"
	TypeProjectFullyFunded  = "project_fully_funded"
	TypeStatusChanged       = "status_changed"
	TypePhasePaid           = "phase_paid"
)

// MemoryPublisher buffers events in memory. It is the test sink and the
// fallback when no broker is configured.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Emit(_ context.Context, event models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of everything emitted so far.
func (p *MemoryPublisher) Events() []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Event(nil), p.events...)
}
