package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"daofund/internal/dao/budget"
	"daofund/internal/dao/models"
	"daofund/internal/dao/ports"
	"daofund/internal/dao/threshold"
	id "daofund/pkg/domain"
	dErrors "daofund/pkg/domain-errors"
	"daofund/pkg/requestcontext"
)

// Proposal payloads. The actor recorded at propose time becomes the caller
// when the released payload executes, so authorization inside the services
// judges the proposer, not whoever pushed the release button.
type addProjectPayload struct {
	Actor            string `json:"actor"`
	PullRequestURL   string `json:"pull_request_url"`
	CommitID         string `json:"commit_id"`
	Type             string `json:"type"`
	AuditionRequired bool   `json:"audition_required"`
}

type approveBudgetPayload struct {
	Actor     string              `json:"actor"`
	ProjectID string              `json:"project_id"`
	Plans     []models.BudgetPlan `json:"plans"`
}

type takeOverPayload struct {
	Actor     string `json:"actor"`
	ProjectID string `json:"project_id"`
	Indices   []int  `json:"indices"`
}

type auditionPayload struct {
	Actor     string `json:"actor"`
	ProjectID string `json:"project_id"`
	Index     int    `json:"index"`
}

type deliverPayload struct {
	Actor          string `json:"actor"`
	ProjectID      string `json:"project_id"`
	Index          int    `json:"index"`
	CommitID       string `json:"commit_id"`
	PullRequestURL string `json:"pull_request_url"`
}

type removeProjectPayload struct {
	Actor     string `json:"actor"`
	ProjectID string `json:"project_id"`
}

type joinMemberPayload struct {
	Candidate string `json:"candidate"`
}

type expelMemberPayload struct {
	Member string `json:"member"`
}

// Execute routes a released proposal payload to its target operation. It is
// invoked by the voting bodies, never by HTTP handlers directly.
func (d *Dispatcher) Execute(ctx context.Context, target string, payload []byte) error {
	switch target {
	case TargetAddProject:
		return d.executeAddProject(ctx, payload)
	case TargetApproveBudget:
		return d.executeApproveBudget(ctx, payload)
	case TargetTakeOver:
		return d.executeTakeOver(ctx, payload)
	case TargetAudition:
		return d.executeAudition(ctx, payload)
	case TargetDeliver:
		return d.executeDeliver(ctx, payload)
	case TargetRemoveProject:
		return d.executeRemoveProject(ctx, payload)
	case TargetJoinMember:
		return d.executeJoinMember(ctx, payload)
	case TargetExpelMember:
		return d.executeExpelMember(ctx, payload)
	default:
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown proposal target %q", target)
	}
}

func (d *Dispatcher) executeAddProject(ctx context.Context, payload []byte) error {
	var p addProjectPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode payload")
	}
	ctx = requestcontext.WithCaller(ctx, id.Address(p.Actor))
	proj, err := d.projects.AddProject(ctx, p.PullRequestURL, p.CommitID, models.ProjectType(p.Type), p.AuditionRequired)
	if err != nil {
		return err
	}
	if err := d.proposals.RemovePreview(ctx, proj.ID); err != nil {
		d.logger.Warn("remove preview proposal id",
			slog.String("project_id", proj.ID.String()),
			slog.String("error", err.Error()))
	}
	return nil
}

func (d *Dispatcher) executeApproveBudget(ctx context.Context, payload []byte) error {
	var p approveBudgetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode payload")
	}
	ctx = requestcontext.WithCaller(ctx, id.Address(p.Actor))
	proj, err := d.projects.ApproveWithBudget(ctx, id.ProjectID(p.ProjectID), p.Plans)
	if err != nil {
		return err
	}
	// Grant claimants are fixed at approval; give them a voting organization
	// immediately. Bounty plans carry no claimants yet.
	return d.syncClaimantOrg(ctx, proj)
}

func (d *Dispatcher) executeTakeOver(ctx context.Context, payload []byte) error {
	var p takeOverPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode payload")
	}
	ctx = requestcontext.WithCaller(ctx, id.Address(p.Actor))
	proj, err := d.projects.TakeOver(ctx, id.ProjectID(p.ProjectID), p.Indices, id.Address(p.Actor))
	if err != nil {
		return err
	}
	return d.syncClaimantOrg(ctx, proj)
}

func (d *Dispatcher) executeAudition(ctx context.Context, payload []byte) error {
	var p auditionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode payload")
	}
	ctx = requestcontext.WithCaller(ctx, id.Address(p.Actor))
	return d.projects.ApproveAudition(ctx, id.ProjectID(p.ProjectID), p.Index)
}

func (d *Dispatcher) executeDeliver(ctx context.Context, payload []byte) error {
	var p deliverPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode payload")
	}
	ctx = requestcontext.WithCaller(ctx, id.Address(p.Actor))
	_, err := d.projects.Deliver(ctx, id.ProjectID(p.ProjectID), p.Index, p.CommitID, p.PullRequestURL)
	return err
}

func (d *Dispatcher) executeRemoveProject(ctx context.Context, payload []byte) error {
	var p removeProjectPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode payload")
	}
	ctx = requestcontext.WithCaller(ctx, id.Address(p.Actor))
	return d.projects.RemoveProject(ctx, id.ProjectID(p.ProjectID))
}

func (d *Dispatcher) executeJoinMember(ctx context.Context, payload []byte) error {
	var p joinMemberPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode payload")
	}
	ctx, err := d.asDefaultExecutor(ctx)
	if err != nil {
		return err
	}
	return d.membership.Join(ctx, id.Address(p.Candidate))
}

func (d *Dispatcher) executeExpelMember(ctx context.Context, payload []byte) error {
	var p expelMemberPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode payload")
	}
	ctx, err := d.asDefaultExecutor(ctx)
	if err != nil {
		return err
	}
	return d.membership.Expel(ctx, id.Address(p.Member))
}

// asDefaultExecutor swaps the caller for the validator body's own authority.
// Member admission and expulsion execute under it.
func (d *Dispatcher) asDefaultExecutor(ctx context.Context) (context.Context, error) {
	defaultExec, err := d.validators.DefaultExecutorAddress(ctx)
	if err != nil {
		return ctx, dErrors.Wrap(err, dErrors.CodeInternal, "resolve default executor")
	}
	return requestcontext.WithCaller(ctx, defaultExec), nil
}

// syncClaimantOrg creates or updates the claimant sub-organization so peer
// votes track the current claimant set. Its internal quorum mirrors the
// claimant threshold.
func (d *Dispatcher) syncClaimantOrg(ctx context.Context, proj *models.Project) error {
	claimants := budget.Claimants(proj)
	if len(claimants) == 0 {
		return nil
	}
	th := threshold.RecomputeForClaimants(len(claimants))

	if orgID, err := d.proposals.ClaimantOrg(ctx, proj.ID); err == nil {
		if err := d.assoc.ChangeOrganizationMembers(ctx, orgID, claimants); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "sync claimant organization")
		}
		return nil
	}

	orgID, err := d.assoc.CreateOrganization(ctx, ports.CreateOrganizationInput{
		Members:      claimants,
		MinApprovals: th.MinApprovals,
		MinVotes:     th.MinVotes,
		Proposers:    claimants,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "create claimant organization")
	}
	if err := d.proposals.SetClaimantOrg(ctx, proj.ID, orgID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store claimant organization")
	}
	return nil
}
