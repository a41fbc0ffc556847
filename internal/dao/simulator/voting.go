// Package simulator provides in-process implementations of the external
// collaborators: voting bodies, the token ledger, the profit ledger, and the
// validator registry. Tests and the development server run against these;
// deployments swap in real clients behind the same ports.
package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"daofund/internal/dao/models"
	"daofund/internal/dao/ports"
	id "daofund/pkg/domain"
	"daofund/pkg/platform/sentinel"
	"daofund/pkg/requestcontext"
)

type vote int

const (
	voteApprove vote = iota
	voteReject
	voteAbstain
)

type organization struct {
	members      map[id.Address]struct{}
	minApprovals int64
	minVotes     int64
	proposers    map[id.Address]struct{}
}

type proposal struct {
	target   string
	payload  []byte
	orgID    id.OrganizationID
	expiry   time.Time
	votes    map[id.Address]vote
	released bool
}

// VotingBody is a stateful voting mechanism with its own internal quorum,
// distinct from the system's release threshold.
type VotingBody struct {
	mu            sync.Mutex
	organizations map[id.OrganizationID]*organization
	proposals     map[id.ProposalID]*proposal
	executor      ports.Executor
	defaultExec   id.Address
	now           func() time.Time
}

// Option configures a VotingBody.
type Option func(*VotingBody)

// WithDefaultExecutor sets the address reported by DefaultExecutorAddress.
func WithDefaultExecutor(addr id.Address) Option {
	return func(b *VotingBody) { b.defaultExec = addr }
}

// WithClock overrides the expiry clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *VotingBody) { b.now = now }
}

func NewVotingBody(opts ...Option) *VotingBody {
	b := &VotingBody{
		organizations: make(map[id.OrganizationID]*organization),
		proposals:     make(map[id.ProposalID]*proposal),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetExecutor registers the callback invoked when a proposal is released.
func (b *VotingBody) SetExecutor(executor ports.Executor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executor = executor
}

func (b *VotingBody) CreateOrganization(_ context.Context, in ports.CreateOrganizationInput) (id.OrganizationID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	orgID := id.OrganizationID(uuid.NewString())
	org := &organization{
		members:      make(map[id.Address]struct{}, len(in.Members)),
		minApprovals: in.MinApprovals,
		minVotes:     in.MinVotes,
		proposers:    make(map[id.Address]struct{}, len(in.Proposers)),
	}
	for _, m := range in.Members {
		org.members[m] = struct{}{}
	}
	for _, p := range in.Proposers {
		org.proposers[p] = struct{}{}
	}
	b.organizations[orgID] = org
	return orgID, nil
}

func (b *VotingBody) ChangeOrganizationMembers(_ context.Context, orgID id.OrganizationID, members []id.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	org, ok := b.organizations[orgID]
	if !ok {
		return sentinel.ErrNotFound
	}
	org.members = make(map[id.Address]struct{}, len(members))
	for _, m := range members {
		org.members[m] = struct{}{}
	}
	return nil
}

func (b *VotingBody) MemberCount(_ context.Context, orgID id.OrganizationID) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	org, ok := b.organizations[orgID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return len(org.members), nil
}

func (b *VotingBody) DefaultExecutorAddress(_ context.Context) (id.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.defaultExec.IsNil() {
		return "", sentinel.ErrNotFound
	}
	return b.defaultExec, nil
}

func (b *VotingBody) CreateProposal(_ context.Context, in ports.CreateProposalInput) (id.ProposalID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.organizations[in.OrganizationID]; !ok {
		return "", sentinel.ErrNotFound
	}
	proposalID := id.ComputeProposalID(in.Target, in.Payload, in.Token)
	b.proposals[proposalID] = &proposal{
		target:  in.Target,
		payload: in.Payload,
		orgID:   in.OrganizationID,
		expiry:  in.Expiry,
		votes:   make(map[id.Address]vote),
	}
	return proposalID, nil
}

// Approve records an approval vote from the context caller. Only members of
// the proposal's organization may vote.
func (b *VotingBody) Approve(ctx context.Context, proposalID id.ProposalID) error {
	return b.castVote(ctx, proposalID, voteApprove)
}

// Reject records a rejection vote from the context caller.
func (b *VotingBody) Reject(ctx context.Context, proposalID id.ProposalID) error {
	return b.castVote(ctx, proposalID, voteReject)
}

// Abstain records an abstention from the context caller.
func (b *VotingBody) Abstain(ctx context.Context, proposalID id.ProposalID) error {
	return b.castVote(ctx, proposalID, voteAbstain)
}

func (b *VotingBody) castVote(ctx context.Context, proposalID id.ProposalID, v vote) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prop, ok := b.proposals[proposalID]
	if !ok {
		return sentinel.ErrNotFound
	}
	org := b.organizations[prop.orgID]
	caller := requestcontext.Caller(ctx)
	if _, ok := org.members[caller]; !ok {
		return sentinel.ErrConflict
	}
	prop.votes[caller] = v
	return nil
}

func (b *VotingBody) GetTally(_ context.Context, proposalID id.ProposalID) (models.VoteTally, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prop, ok := b.proposals[proposalID]
	if !ok {
		return models.VoteTally{}, sentinel.ErrNotFound
	}
	return tallyOf(prop), nil
}

func tallyOf(prop *proposal) models.VoteTally {
	var t models.VoteTally
	for _, v := range prop.votes {
		switch v {
		case voteApprove:
			t.Approvals++
		case voteReject:
			t.Rejections++
		case voteAbstain:
			t.Abstentions++
		}
	}
	return t
}

// Release executes the proposal's target operation once the body's internal
// quorum is satisfied. Expired or already-released proposals are permanently
// unreleasable.
func (b *VotingBody) Release(ctx context.Context, proposalID id.ProposalID) error {
	b.mu.Lock()
	prop, ok := b.proposals[proposalID]
	if !ok {
		b.mu.Unlock()
		return sentinel.ErrNotFound
	}
	if prop.released || b.now().After(prop.expiry) {
		b.mu.Unlock()
		return sentinel.ErrConflict
	}
	org := b.organizations[prop.orgID]
	tally := tallyOf(prop)
	if tally.Approvals < org.minApprovals ||
		tally.Approvals+tally.Rejections+tally.Abstentions < org.minVotes {
		b.mu.Unlock()
		return sentinel.ErrConflict
	}
	prop.released = true
	executor := b.executor
	target, payload := prop.target, prop.payload
	b.mu.Unlock()

	if executor == nil {
		return sentinel.ErrUnavailable
	}
	return executor.Execute(ctx, target, payload)
}
