package models

import (
	id "daofund/pkg/domain"
	dErrors "daofund/pkg/domain-errors"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	StatusProposed  ProjectStatus = "proposed"
	StatusApproved  ProjectStatus = "approved"
	StatusReady     ProjectStatus = "ready"
	StatusTaken     ProjectStatus = "taken"
	StatusDelivered ProjectStatus = "delivered"
)

// ProjectType classifies how claimants are bound to a project.
type ProjectType string

const (
	// TypeGrant fixes claimants at proposal time.
	TypeGrant ProjectType = "grant"
	// TypeBounty leaves phases open to claiming after funding.
	TypeBounty ProjectType = "bounty"
)

// BudgetPlan is one funding phase of a project.
//
// Invariants:
//   - Index is unique within the project; indices are contiguous from 0
//   - PaidIn never exceeds Amount
type BudgetPlan struct {
	Index    int        `json:"index"`
	Phase    int        `json:"phase"`
	Symbol   string     `json:"symbol"`
	Amount   int64      `json:"amount"`
	PaidIn   int64      `json:"paid_in"`
	Claimant id.Address `json:"claimant,omitempty"`

	AuditionPassed bool `json:"audition_passed,omitempty"`

	DeliverPullRequestURL string `json:"deliver_pull_request_url,omitempty"`
	DeliverCommitID       string `json:"deliver_commit_id,omitempty"`
}

// Delivered reports whether delivery evidence has been recorded for the phase.
func (b *BudgetPlan) Delivered() bool {
	return b.DeliverCommitID != "" || b.DeliverPullRequestURL != ""
}

// Project is the aggregate root for a governed funding request.
//
// Invariants:
//   - ID is the content hash of (CommitID, PullRequestURL) and never changes
//   - once Status reaches delivered, no further mutation is permitted
//   - EscrowAddress and SchemeID are assigned once and immutable thereafter
//   - PhaseCursor is the index of the next phase to deliver
type Project struct {
	ID             id.ProjectID  `json:"id"`
	PullRequestURL string        `json:"pull_request_url"`
	CommitID       string        `json:"commit_id"`
	Type           ProjectType   `json:"type"`
	Status         ProjectStatus `json:"status"`
	Plans          []BudgetPlan  `json:"plans"`
	PhaseCursor    int           `json:"phase_cursor"`
	EscrowAddress  id.Address    `json:"escrow_address"`
	SchemeID       id.SchemeID   `json:"scheme_id,omitempty"`

	// AuditionRequired gates bounty deliveries on peer approval.
	AuditionRequired bool `json:"audition_required,omitempty"`
	// PreAuditionHash records evidence submitted ahead of the peer vote.
	PreAuditionHash string `json:"pre_audition_hash,omitempty"`
}

// NewProject registers a project in its initial state with a derived escrow
// address.
func NewProject(pullRequestURL, commitID string, projectType ProjectType, auditionRequired bool) *Project {
	projectID := id.ComputeProjectID(pullRequestURL, commitID)
	return &Project{
		ID:               projectID,
		PullRequestURL:   pullRequestURL,
		CommitID:         commitID,
		Type:             projectType,
		Status:           StatusProposed,
		EscrowAddress:    id.EscrowAddress(projectID),
		AuditionRequired: auditionRequired,
	}
}

// Plan returns the budget plan at the given index.
func (p *Project) Plan(index int) (*BudgetPlan, error) {
	for i := range p.Plans {
		if p.Plans[i].Index == index {
			return &p.Plans[i], nil
		}
	}
	return nil, dErrors.Newf(dErrors.CodeNotFound, "budget plan %d not found", index)
}

// CanApprove checks the transition into approved.
func (p *Project) CanApprove() error {
	if p.Status != StatusProposed {
		return dErrors.New(dErrors.CodeInvariantViolation, "incorrect status")
	}
	return nil
}

// CanInvest checks that the project accepts funding.
func (p *Project) CanInvest() error {
	switch p.Status {
	case StatusApproved, StatusReady:
		return nil
	case StatusDelivered:
		return dErrors.New(dErrors.CodeConflict, "project already delivered")
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "incorrect status")
	}
}

// CanTakeOver checks that phases of a bounty project are open to claiming.
func (p *Project) CanTakeOver() error {
	if p.Type != TypeBounty {
		return dErrors.New(dErrors.CodeInvariantViolation, "only bounty project phases can be taken over")
	}
	if p.Status != StatusReady {
		return dErrors.New(dErrors.CodeInvariantViolation, "incorrect status")
	}
	return nil
}

// CanDeliver checks the status precondition for delivering a phase.
// Phase ordering itself is the budget ledger's concern.
func (p *Project) CanDeliver() error {
	switch {
	case p.Status == StatusDelivered:
		return dErrors.New(dErrors.CodeConflict, "project already delivered")
	case p.Type == TypeBounty && p.Status != StatusTaken:
		return dErrors.New(dErrors.CodeInvariantViolation, "incorrect status")
	case p.Type == TypeGrant && p.Status != StatusReady:
		return dErrors.New(dErrors.CodeInvariantViolation, "incorrect status")
	}
	return nil
}

// CanRemove checks that the project has not reached its terminal state.
func (p *Project) CanRemove() error {
	if p.Status == StatusDelivered {
		return dErrors.New(dErrors.CodeConflict, "project already delivered")
	}
	return nil
}

// ApplyApproval records the approved budget and scheme. Bounty claimants are
// stripped; they are assigned later through take-over votes.
func (p *Project) ApplyApproval(plans []BudgetPlan, schemeID id.SchemeID) {
	if p.Type == TypeBounty {
		for i := range plans {
			plans[i].Claimant = ""
		}
	}
	p.Plans = plans
	p.SchemeID = schemeID
	p.Status = StatusApproved
}
