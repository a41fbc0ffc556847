// Package budget owns the ordered sequence of budget phases attached to a
// project. It computes and reports; persistence stays with the caller.
package budget

import (
	"daofund/internal/dao/models"
	id "daofund/pkg/domain"
	dErrors "daofund/pkg/domain-errors"
)

// ValidateSequence rejects budget plans whose indices do not start at 0 and
// increase strictly by 1 with no gaps.
func ValidateSequence(plans []models.BudgetPlan) error {
	if len(plans) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "at least one budget plan is required")
	}
	for i, plan := range plans {
		if plan.Index != i {
			return dErrors.New(dErrors.CodeBadRequest, "budget plan indices must be contiguous from 0")
		}
		if plan.Amount <= 0 {
			return dErrors.Newf(dErrors.CodeBadRequest, "budget plan %d must have a positive amount", plan.Index)
		}
		if plan.Symbol == "" {
			return dErrors.Newf(dErrors.CodeBadRequest, "budget plan %d must carry a currency symbol", plan.Index)
		}
	}
	return nil
}

// Fund applies amount toward the unfunded remainder of phases matching
// symbol, in index order, capping each phase's escrowed total at its nominal
// amount. It mutates the plans in place and returns (consumed, remainder).
// Excess is never escrowed, so double funding is harmless beyond each cap.
func Fund(plans []models.BudgetPlan, symbol string, amount int64) (consumed, remainder int64) {
	remainder = amount
	for i := range plans {
		if plans[i].Symbol != symbol || remainder == 0 {
			continue
		}
		gap := plans[i].Amount - plans[i].PaidIn
		if gap <= 0 {
			continue
		}
		if gap > remainder {
			gap = remainder
		}
		plans[i].PaidIn += gap
		consumed += gap
		remainder -= gap
	}
	return consumed, remainder
}

// Shortfall reports the total unfunded remainder across every phase.
func Shortfall(plans []models.BudgetPlan) int64 {
	var short int64
	for i := range plans {
		short += plans[i].Amount - plans[i].PaidIn
	}
	return short
}

// IsFullyFunded reports whether every phase's escrowed amount equals its
// nominal amount.
func IsFullyFunded(project *models.Project) bool {
	if len(project.Plans) == 0 {
		return false
	}
	for i := range project.Plans {
		if project.Plans[i].PaidIn != project.Plans[i].Amount {
			return false
		}
	}
	return true
}

// IsFullyDelivered reports whether the highest-indexed phase has evidence
// recorded and the cursor has moved past it.
func IsFullyDelivered(project *models.Project) bool {
	if len(project.Plans) == 0 {
		return false
	}
	last := &project.Plans[len(project.Plans)-1]
	return last.Delivered() && project.PhaseCursor == len(project.Plans)
}

// AssignClaimant records claimant on each requested phase and reports whether
// all phases of the project are now claimed. Fails if any requested index
// already has a claimant, before any assignment is written.
func AssignClaimant(project *models.Project, indices []int, claimant id.Address) (allClaimed bool, err error) {
	for _, index := range indices {
		plan, err := project.Plan(index)
		if err != nil {
			return false, err
		}
		if !plan.Claimant.IsNil() {
			return false, dErrors.Newf(dErrors.CodeConflict, "budget plan %d already taken", index)
		}
	}
	for _, index := range indices {
		plan, _ := project.Plan(index)
		plan.Claimant = claimant
	}
	allClaimed = true
	for i := range project.Plans {
		if project.Plans[i].Claimant.IsNil() {
			allClaimed = false
			break
		}
	}
	return allClaimed, nil
}

// Claimants returns the distinct claimant addresses across all phases, in
// first-claimed phase order.
func Claimants(project *models.Project) []id.Address {
	var out []id.Address
	seen := make(map[id.Address]struct{})
	for i := range project.Plans {
		claimant := project.Plans[i].Claimant
		if claimant.IsNil() {
			continue
		}
		if _, ok := seen[claimant]; ok {
			continue
		}
		seen[claimant] = struct{}{}
		out = append(out, claimant)
	}
	return out
}
