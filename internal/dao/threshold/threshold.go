// Package threshold derives vote-release thresholds from member set sizes
// and evaluates tallies against them.
//
// This gate is distinct from the voting body's own internal quorum: the body
// decides whether a vote can be released at all, this package decides whether
// the payload should actually execute.
package threshold

import "daofund/internal/dao/models"

// Recompute derives the organization-wide threshold from the current member
// count. Deliberately re-derived on every membership change rather than
// cached indefinitely.
func Recompute(memberCount int) models.ReleaseThreshold {
	half := int64(memberCount) / 2
	return models.ReleaseThreshold{
		MinApprovals:   half,
		MinVotes:       half,
		MaxRejections:  half,
		MaxAbstentions: half,
	}
}

// RecomputeForClaimants derives the claimant sub-organization threshold.
// All but one peer must approve; a lone claimant self-approves.
func RecomputeForClaimants(claimantCount int) models.ReleaseThreshold {
	minApprovals := int64(claimantCount) - 1
	if minApprovals < 1 {
		minApprovals = 1
	}
	half := int64(claimantCount) / 2
	return models.ReleaseThreshold{
		MinApprovals:   minApprovals,
		MinVotes:       minApprovals,
		MaxRejections:  half,
		MaxAbstentions: half,
	}
}

// IsReleasable evaluates a tally against a threshold, failing closed.
// The rejection check strictly precedes the abstention check, which strictly
// precedes the approval/quorum check, so an over-rejected and under-quorum
// proposal reports as rejected.
func IsReleasable(tally models.VoteTally, th models.ReleaseThreshold) bool {
	if tally.Rejections > th.MaxRejections {
		return false
	}
	if tally.Abstentions > th.MaxAbstentions {
		return false
	}
	if tally.Approvals < th.MinApprovals {
		return false
	}
	return tally.Approvals+tally.Rejections+tally.Abstentions >= th.MinVotes
}
