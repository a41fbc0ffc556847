// Package store holds the keyed mutable state of the system: projects with
// their budget plans, the organization member list, per-project pending
// release markers, and per-project proposal bookkeeping.
//
// Stores are interface-driven so the in-memory, Postgres, and Redis
// implementations can be swapped without rewiring business code. Every
// mutation takes the aggregate identity as an explicit parameter.
package store

import (
	"context"

	"daofund/internal/dao/models"
	id "daofund/pkg/domain"
)

// ProjectStore persists project aggregates keyed by project identity.
type ProjectStore interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, projectID id.ProjectID) (*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, projectID id.ProjectID) error
	// Execute atomically validates and mutates a project under the store's
	// lock. The mutation sees a private copy; nothing is persisted unless
	// both callbacks succeed, so no partial mutation is ever observable.
	Execute(ctx context.Context, projectID id.ProjectID, validate func(*models.Project) error, mutate func(*models.Project) error) (*models.Project, error)
}

// MemberStore persists the organization member list and the release
// threshold snapshot derived from it.
type MemberStore interface {
	Members(ctx context.Context) (models.MemberList, error)
	Add(ctx context.Context, addr id.Address) error
	Remove(ctx context.Context, addr id.Address) error
	Contains(ctx context.Context, addr id.Address) (bool, error)
	SetThreshold(ctx context.Context, th models.ReleaseThreshold) error
	Threshold(ctx context.Context) (models.ReleaseThreshold, error)
}

// MarkerStore tracks the per-project pending release marker: set when a vote
// concludes successfully, consumed exactly once by the matching mutation.
type MarkerStore interface {
	Set(ctx context.Context, projectID id.ProjectID) error
	// Consume clears the marker, failing with sentinel.ErrNothingPending if
	// it was not set. A mutation reaching state without a consumed marker is
	// a protocol violation.
	Consume(ctx context.Context, projectID id.ProjectID) error
}

// ProposalStore keeps per-project proposal bookkeeping: the preview proposal
// id minted at propose time and the claimant sub-organization, if any.
type ProposalStore interface {
	SetPreview(ctx context.Context, projectID id.ProjectID, proposalID id.ProposalID) error
	Preview(ctx context.Context, projectID id.ProjectID) (id.ProposalID, error)
	RemovePreview(ctx context.Context, projectID id.ProjectID) error
	SetClaimantOrg(ctx context.Context, projectID id.ProjectID, orgID id.OrganizationID) error
	ClaimantOrg(ctx context.Context, projectID id.ProjectID) (id.OrganizationID, error)
}
