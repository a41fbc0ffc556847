// Package dispatch mediates between callers and the voting bodies. It mints
// deterministic proposal identities, records which project and threshold a
// proposal is bound to, gates release on the system threshold, and routes
// released payloads back into the services.
package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"daofund/internal/dao/budget"
	"daofund/internal/dao/membership"
	"daofund/internal/dao/metrics"
	"daofund/internal/dao/models"
	"daofund/internal/dao/ports"
	"daofund/internal/dao/project"
	"daofund/internal/dao/store"
	"daofund/internal/dao/threshold"
	id "daofund/pkg/domain"
	dErrors "daofund/pkg/domain-errors"
	"daofund/pkg/requestcontext"
)

// Proposal targets routed by the executor.
const (
	TargetAddProject    = "add_project"
	TargetApproveBudget = "approve_budget"
	TargetTakeOver      = "take_over"
	TargetAudition      = "audition"
	TargetDeliver       = "deliver"
	TargetRemoveProject = "remove_project"
	TargetJoinMember    = "join_member"
	TargetExpelMember   = "expel_member"
)

type thresholdKind int

const (
	kindOrganization thresholdKind = iota
	kindClaimants
)

type record struct {
	body      ports.VotingBody
	kind      thresholdKind
	projectID id.ProjectID
}

// Dispatcher owns proposal routing. Proposal-to-project bindings are held
// instance-locally; the pending release markers they guard live in the shared
// marker store.
type Dispatcher struct {
	assoc      ports.VotingBody
	validators ports.VotingBody
	registry   ports.ValidatorRegistry
	members    store.MemberStore
	markers    store.MarkerStore
	proposals  store.ProposalStore
	membership *membership.Service
	projects   *project.Service
	entropy    ports.EntropySource
	ttl        time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu      sync.Mutex
	records map[id.ProposalID]record
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics sets the workflow metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTTL overrides the proposal expiry window.
func WithTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) { d.ttl = ttl }
}

func NewDispatcher(
	assoc ports.VotingBody,
	validators ports.VotingBody,
	registry ports.ValidatorRegistry,
	members store.MemberStore,
	markers store.MarkerStore,
	proposals store.ProposalStore,
	membershipSvc *membership.Service,
	projectSvc *project.Service,
	entropy ports.EntropySource,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		assoc:      assoc,
		validators: validators,
		registry:   registry,
		members:    members,
		markers:    markers,
		proposals:  proposals,
		membership: membershipSvc,
		projects:   projectSvc,
		entropy:    entropy,
		ttl:        7 * 24 * time.Hour,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		records:    make(map[id.ProposalID]record),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProposeAddProject opens an organization vote to register a project. The
// preview proposal id is stored against the derived project identity so
// voters can locate the proposal from the work itself.
func (d *Dispatcher) ProposeAddProject(ctx context.Context, pullRequestURL, commitID string, projectType models.ProjectType, auditionRequired bool) (id.ProposalID, error) {
	if err := d.requireMember(ctx); err != nil {
		return "", err
	}
	projectID := id.ComputeProjectID(pullRequestURL, commitID)
	payload, err := json.Marshal(addProjectPayload{
		Actor:            requestcontext.Caller(ctx).String(),
		PullRequestURL:   pullRequestURL,
		CommitID:         commitID,
		Type:             string(projectType),
		AuditionRequired: auditionRequired,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode payload")
	}

	proposalID, err := d.createProposal(ctx, d.assoc, d.membership.OrganizationID(), TargetAddProject, payload, kindOrganization, projectID)
	if err != nil {
		return "", err
	}
	if err := d.proposals.SetPreview(ctx, projectID, proposalID); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "store preview proposal id")
	}
	return proposalID, nil
}

// PreviewProposalID returns the proposal id minted when the project was
// proposed, looked up by the work's derived identity.
func (d *Dispatcher) PreviewProposalID(ctx context.Context, projectID id.ProjectID) (id.ProposalID, error) {
	proposalID, err := d.proposals.Preview(ctx, projectID)
	if err != nil {
		return "", dErrors.Newf(dErrors.CodeNotFound, "no pending proposal for project %s", projectID)
	}
	return proposalID, nil
}

// ProposeApproveBudget opens an organization vote to attach budget plans to a
// proposed project.
func (d *Dispatcher) ProposeApproveBudget(ctx context.Context, projectID id.ProjectID, plans []models.BudgetPlan) (id.ProposalID, error) {
	if err := d.requireMember(ctx); err != nil {
		return "", err
	}
	if err := budget.ValidateSequence(plans); err != nil {
		return "", err
	}
	payload, err := json.Marshal(approveBudgetPayload{
		Actor:     requestcontext.Caller(ctx).String(),
		ProjectID: projectID.String(),
		Plans:     plans,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode payload")
	}
	return d.createProposal(ctx, d.assoc, d.membership.OrganizationID(), TargetApproveBudget, payload, kindOrganization, projectID)
}

// ProposeTakeOver opens an organization vote to award bounty phases to the
// caller.
func (d *Dispatcher) ProposeTakeOver(ctx context.Context, projectID id.ProjectID, indices []int) (id.ProposalID, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}
	if len(indices) == 0 {
		return "", dErrors.New(dErrors.CodeBadRequest, "at least one phase index is required")
	}
	payload, err := json.Marshal(takeOverPayload{
		Actor:     caller.String(),
		ProjectID: projectID.String(),
		Indices:   indices,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode payload")
	}
	return d.createProposal(ctx, d.assoc, d.membership.OrganizationID(), TargetTakeOver, payload, kindOrganization, projectID)
}

// ProposeAudition opens a claimant-peer vote on the caller's submitted
// audition evidence for one phase.
func (d *Dispatcher) ProposeAudition(ctx context.Context, projectID id.ProjectID, index int) (id.ProposalID, error) {
	orgID, err := d.requireClaimant(ctx, projectID)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(auditionPayload{
		Actor:     requestcontext.Caller(ctx).String(),
		ProjectID: projectID.String(),
		Index:     index,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode payload")
	}
	return d.createProposal(ctx, d.assoc, orgID, TargetAudition, payload, kindClaimants, projectID)
}

// ProposeDeliver opens a claimant-peer vote to accept delivery evidence for
// the next phase.
func (d *Dispatcher) ProposeDeliver(ctx context.Context, projectID id.ProjectID, index int, deliverCommitID, deliverPullRequestURL string) (id.ProposalID, error) {
	orgID, err := d.requireClaimant(ctx, projectID)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(deliverPayload{
		Actor:          requestcontext.Caller(ctx).String(),
		ProjectID:      projectID.String(),
		Index:          index,
		CommitID:       deliverCommitID,
		PullRequestURL: deliverPullRequestURL,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode payload")
	}
	return d.createProposal(ctx, d.assoc, orgID, TargetDeliver, payload, kindClaimants, projectID)
}

// ProposeRemoveProject opens an organization vote to remove a project.
func (d *Dispatcher) ProposeRemoveProject(ctx context.Context, projectID id.ProjectID) (id.ProposalID, error) {
	if err := d.requireMember(ctx); err != nil {
		return "", err
	}
	payload, err := json.Marshal(removeProjectPayload{
		Actor:     requestcontext.Caller(ctx).String(),
		ProjectID: projectID.String(),
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode payload")
	}
	return d.createProposal(ctx, d.assoc, d.membership.OrganizationID(), TargetRemoveProject, payload, kindOrganization, projectID)
}

// ProposeJoin opens a validator vote to admit the caller as a member. The
// deposit is escrowed from the candidate's balance when the vote releases.
func (d *Dispatcher) ProposeJoin(ctx context.Context) (id.ProposalID, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}
	isMember, err := d.members.Contains(ctx, caller)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "check membership")
	}
	if isMember {
		return "", dErrors.Newf(dErrors.CodeConflict, "%s is already a member", caller)
	}
	payload, err := json.Marshal(joinMemberPayload{Candidate: caller.String()})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode payload")
	}
	return d.createProposal(ctx, d.validators, d.membership.ValidatorOrganizationID(), TargetJoinMember, payload, kindOrganization, "")
}

// ProposeExpelMember opens a validator vote to expel a member without a
// deposit refund. Only current validators may propose.
func (d *Dispatcher) ProposeExpelMember(ctx context.Context, member id.Address) (id.ProposalID, error) {
	caller := requestcontext.Caller(ctx)
	validators, err := d.registry.CurrentMembers(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "fetch validator set")
	}
	isValidator := false
	for _, v := range validators {
		if v == caller {
			isValidator = true
			break
		}
	}
	if !isValidator {
		return "", dErrors.New(dErrors.CodeUnauthorized, "only a validator may propose expulsion")
	}
	payload, err := json.Marshal(expelMemberPayload{Member: member.String()})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode payload")
	}
	return d.createProposal(ctx, d.validators, d.membership.ValidatorOrganizationID(), TargetExpelMember, payload, kindOrganization, "")
}

// Release applies the system threshold gate to the proposal's tally, sets the
// pending release marker, and asks the voting body to release. The body's own
// quorum and the marker consumption in the target operation form the second
// and third lines of defense.
func (d *Dispatcher) Release(ctx context.Context, proposalID id.ProposalID) error {
	start := time.Now()
	d.mu.Lock()
	rec, ok := d.records[proposalID]
	d.mu.Unlock()
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "proposal %s not found", proposalID)
	}

	tally, err := rec.body.GetTally(ctx, proposalID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "fetch tally")
	}
	th, err := d.thresholdFor(ctx, rec)
	if err != nil {
		return err
	}
	if !threshold.IsReleasable(tally, th) {
		if d.metrics != nil {
			d.metrics.ThresholdRejected.Inc()
		}
		return dErrors.New(dErrors.CodeFailedPrecondition, "release threshold not met")
	}

	if !rec.projectID.IsNil() {
		if err := d.markers.Set(ctx, rec.projectID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "set release marker")
		}
	}
	if err := rec.body.Release(ctx, proposalID); err != nil {
		if !rec.projectID.IsNil() {
			// The target never ran; clear the marker so it cannot authorize an
			// unrelated mutation later.
			if consumeErr := d.markers.Consume(ctx, rec.projectID); consumeErr != nil {
				d.logger.Error("roll back release marker",
					slog.String("project_id", rec.projectID.String()),
					slog.String("error", consumeErr.Error()))
			}
		}
		return dErrors.Wrap(err, dErrors.CodeFailedPrecondition, "voting body refused release")
	}

	d.mu.Lock()
	delete(d.records, proposalID)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.ProposalsReleased.Inc()
		d.metrics.ObserveRelease(start)
	}
	d.logger.Info("proposal released", slog.String("proposal_id", proposalID.String()))
	return nil
}

func (d *Dispatcher) createProposal(ctx context.Context, body ports.VotingBody, orgID id.OrganizationID, target string, payload []byte, kind thresholdKind, projectID id.ProjectID) (id.ProposalID, error) {
	if orgID.IsNil() {
		return "", dErrors.New(dErrors.CodeFailedPrecondition, "organization not bootstrapped")
	}
	salt, err := d.entropy.Recent(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "fetch entropy")
	}
	proposalID, err := body.CreateProposal(ctx, ports.CreateProposalInput{
		Target:         target,
		Payload:        payload,
		OrganizationID: orgID,
		Expiry:         requestcontext.Now(ctx).Add(d.ttl),
		Token:          salt,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "create proposal")
	}

	d.mu.Lock()
	d.records[proposalID] = record{body: body, kind: kind, projectID: projectID}
	d.mu.Unlock()

	d.logger.Info("proposal created",
		slog.String("proposal_id", proposalID.String()),
		slog.String("target", target))
	return proposalID, nil
}

func (d *Dispatcher) thresholdFor(ctx context.Context, rec record) (models.ReleaseThreshold, error) {
	switch rec.kind {
	case kindClaimants:
		proj, err := d.projects.Get(ctx, rec.projectID)
		if err != nil {
			return models.ReleaseThreshold{}, err
		}
		return threshold.RecomputeForClaimants(len(budget.Claimants(proj))), nil
	default:
		th, err := d.members.Threshold(ctx)
		if err != nil {
			return models.ReleaseThreshold{}, dErrors.Wrap(err, dErrors.CodeInternal, "load threshold")
		}
		return th, nil
	}
}

func (d *Dispatcher) requireMember(ctx context.Context) error {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}
	isMember, err := d.members.Contains(ctx, caller)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check membership")
	}
	if !isMember {
		return dErrors.Newf(dErrors.CodeUnauthorized, "%s is not a member", caller)
	}
	return nil
}

// requireClaimant verifies the caller claims at least one phase of the
// project and returns the claimant sub-organization to vote in.
func (d *Dispatcher) requireClaimant(ctx context.Context, projectID id.ProjectID) (id.OrganizationID, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}
	proj, err := d.projects.Get(ctx, projectID)
	if err != nil {
		return "", err
	}
	isClaimant := false
	for _, c := range budget.Claimants(proj) {
		if c == caller {
			isClaimant = true
			break
		}
	}
	if !isClaimant {
		return "", dErrors.New(dErrors.CodeUnauthorized, "only a phase claimant may propose")
	}
	orgID, err := d.proposals.ClaimantOrg(ctx, projectID)
	if err != nil {
		return "", dErrors.Newf(dErrors.CodeFailedPrecondition, "no claimant organization for project %s", projectID)
	}
	return orgID, nil
}
