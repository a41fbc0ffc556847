package simulator

import (
	"context"
	"sync"

	id "daofund/pkg/domain"
	dErrors "daofund/pkg/domain-errors"
)

// TokenLedger keeps balances in memory. Transfer draws from the configured
// custodian account, which models the funding organization's own holdings.
type TokenLedger struct {
	mu        sync.Mutex
	balances  map[id.Address]map[string]int64
	custodian id.Address
}

func NewTokenLedger(custodian id.Address) *TokenLedger {
	return &TokenLedger{
		balances:  make(map[id.Address]map[string]int64),
		custodian: custodian,
	}
}

// Mint credits an account out of thin air. Test setup only.
func (l *TokenLedger) Mint(owner id.Address, symbol string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(owner, symbol, amount)
}

func (l *TokenLedger) Transfer(ctx context.Context, to id.Address, symbol string, amount int64) error {
	return l.TransferFrom(ctx, l.custodian, to, symbol, amount)
}

func (l *TokenLedger) TransferFrom(_ context.Context, from, to id.Address, symbol string, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "transfer amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from][symbol] < amount {
		return dErrors.Newf(dErrors.CodeFailedPrecondition, "insufficient %s balance on %s", symbol, from)
	}
	l.balances[from][symbol] -= amount
	l.credit(to, symbol, amount)
	return nil
}

func (l *TokenLedger) GetBalance(_ context.Context, owner id.Address, symbol string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[owner][symbol], nil
}

func (l *TokenLedger) credit(owner id.Address, symbol string, amount int64) {
	if l.balances[owner] == nil {
		l.balances[owner] = make(map[string]int64)
	}
	l.balances[owner][symbol] += amount
}
