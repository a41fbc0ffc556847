// Package ports declares the collaborator contracts this system consumes.
// The voting mechanism, token ledger, profit ledger, and validator registry
// contain no project-specific logic; they are invoked, not reimplemented.
package ports

import (
	"context"
	"time"

	"daofund/internal/dao/models"
	id "daofund/pkg/domain"
)

// Executor is the callback a voting body invokes when releasing a proposal:
// the target operation name and its payload, executed against this system.
type Executor interface {
	Execute(ctx context.Context, target string, payload []byte) error
}

// CreateProposalInput describes a proposal registered with a voting body.
type CreateProposalInput struct {
	Target         string
	Payload        []byte
	OrganizationID id.OrganizationID
	Expiry         time.Time
	Token          []byte
}

// CreateOrganizationInput describes a new sub-organization of a voting body.
type CreateOrganizationInput struct {
	Members      []id.Address
	MinApprovals int64
	MinVotes     int64
	Proposers    []id.Address
}

// VotingBody is an external multi-party voting mechanism. Its internal quorum
// is distinct from this system's release threshold.
type VotingBody interface {
	CreateProposal(ctx context.Context, in CreateProposalInput) (id.ProposalID, error)
	Approve(ctx context.Context, proposalID id.ProposalID) error
	GetTally(ctx context.Context, proposalID id.ProposalID) (models.VoteTally, error)
	// Release invokes the proposal's target operation against the registered
	// Executor once the body's own internal quorum is satisfied.
	Release(ctx context.Context, proposalID id.ProposalID) error

	CreateOrganization(ctx context.Context, in CreateOrganizationInput) (id.OrganizationID, error)
	ChangeOrganizationMembers(ctx context.Context, orgID id.OrganizationID, members []id.Address) error
	MemberCount(ctx context.Context, orgID id.OrganizationID) (int, error)
	// DefaultExecutorAddress is the address permitted to trigger
	// membership-changing operations (validator body only).
	DefaultExecutorAddress(ctx context.Context) (id.Address, error)
}

// TokenLedger moves balances between accounts.
type TokenLedger interface {
	Transfer(ctx context.Context, to id.Address, symbol string, amount int64) error
	TransferFrom(ctx context.Context, from, to id.Address, symbol string, amount int64) error
	GetBalance(ctx context.Context, owner id.Address, symbol string) (int64, error)
}

// ProfitLedger holds contributed funds per period and distributes them to
// registered beneficiaries.
type ProfitLedger interface {
	CreateScheme(ctx context.Context, manager id.Address) (id.SchemeID, error)
	AddBeneficiary(ctx context.Context, schemeID id.SchemeID, endPeriod int64, beneficiary id.Address, shares int64) error
	RemoveBeneficiary(ctx context.Context, schemeID id.SchemeID, beneficiary id.Address) error
	Contribute(ctx context.Context, from id.Address, schemeID id.SchemeID, symbol string, amount int64) error
	Distribute(ctx context.Context, schemeID id.SchemeID, period int64, amounts map[string]int64) error
}

// ValidatorRegistry reports the current validator set; consulted only at
// organization bootstrap.
type ValidatorRegistry interface {
	CurrentMembers(ctx context.Context) ([]id.Address, error)
}

// EventPublisher emits lifecycle and feedback events.
type EventPublisher interface {
	Emit(ctx context.Context, event models.Event) error
}

// EntropySource supplies a recent unpredictable value used to salt proposal
// identities so distinct proposals never collide.
type EntropySource interface {
	Recent(ctx context.Context) ([]byte, error)
}
