package simulator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"daofund/internal/dao/ports"
	id "daofund/pkg/domain"
	dErrors "daofund/pkg/domain-errors"
	"daofund/pkg/platform/sentinel"
)

type beneficiary struct {
	shares    int64
	endPeriod int64
}

type scheme struct {
	manager       id.Address
	account       id.Address
	beneficiaries map[id.Address]beneficiary
	// claimable accumulates each beneficiary's share at distribution time,
	// keyed by beneficiary then symbol.
	claimable map[id.Address]map[string]int64
}

// ProfitLedger models period-based profit schemes: beneficiaries hold shares
// bounded by an end period, contributions pool on a scheme account, and
// distribution splits a period's pool pro rata.
type ProfitLedger struct {
	mu      sync.Mutex
	schemes map[id.SchemeID]*scheme
	tokens  *TokenLedger
}

func NewProfitLedger(tokens *TokenLedger) *ProfitLedger {
	return &ProfitLedger{
		schemes: make(map[id.SchemeID]*scheme),
		tokens:  tokens,
	}
}

func (l *ProfitLedger) CreateScheme(_ context.Context, manager id.Address) (id.SchemeID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	schemeID := id.SchemeID(uuid.NewString())
	l.schemes[schemeID] = &scheme{
		manager:       manager,
		account:       id.Address("scheme-" + uuid.NewString()),
		beneficiaries: make(map[id.Address]beneficiary),
		claimable:     make(map[id.Address]map[string]int64),
	}
	return schemeID, nil
}

func (l *ProfitLedger) AddBeneficiary(_ context.Context, schemeID id.SchemeID, endPeriod int64, addr id.Address, shares int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.schemes[schemeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.beneficiaries[addr] = beneficiary{shares: shares, endPeriod: endPeriod}
	return nil
}

func (l *ProfitLedger) RemoveBeneficiary(_ context.Context, schemeID id.SchemeID, addr id.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.schemes[schemeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.beneficiaries, addr)
	return nil
}

func (l *ProfitLedger) Contribute(ctx context.Context, from id.Address, schemeID id.SchemeID, symbol string, amount int64) error {
	l.mu.Lock()
	s, ok := l.schemes[schemeID]
	l.mu.Unlock()
	if !ok {
		return sentinel.ErrNotFound
	}
	return l.tokens.TransferFrom(ctx, from, s.account, symbol, amount)
}

// Distribute splits the given amounts among beneficiaries whose shares are
// still live at the period, pro rata by shares.
func (l *ProfitLedger) Distribute(_ context.Context, schemeID id.SchemeID, period int64, amounts map[string]int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.schemes[schemeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	var totalShares int64
	for _, b := range s.beneficiaries {
		if b.endPeriod >= period {
			totalShares += b.shares
		}
	}
	if totalShares == 0 {
		return dErrors.New(dErrors.CodeFailedPrecondition, "no beneficiaries eligible for period")
	}
	for addr, b := range s.beneficiaries {
		if b.endPeriod < period {
			continue
		}
		for symbol, amount := range amounts {
			if s.claimable[addr] == nil {
				s.claimable[addr] = make(map[string]int64)
			}
			s.claimable[addr][symbol] += amount * b.shares / totalShares
		}
	}
	return nil
}

// Claim pays out everything distributed to the beneficiary so far and resets
// its claimable balance.
func (l *ProfitLedger) Claim(ctx context.Context, schemeID id.SchemeID, addr id.Address) (map[string]int64, error) {
	l.mu.Lock()
	s, ok := l.schemes[schemeID]
	if !ok {
		l.mu.Unlock()
		return nil, sentinel.ErrNotFound
	}
	pending := s.claimable[addr]
	delete(s.claimable, addr)
	account := s.account
	l.mu.Unlock()

	paid := make(map[string]int64, len(pending))
	for symbol, amount := range pending {
		if amount == 0 {
			continue
		}
		if err := l.tokens.TransferFrom(ctx, account, addr, symbol, amount); err != nil {
			return paid, err
		}
		paid[symbol] = amount
	}
	return paid, nil
}

var _ ports.ProfitLedger = (*ProfitLedger)(nil)
