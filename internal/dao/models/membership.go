package models

import (
	id "daofund/pkg/domain"
)

// MemberList is the organization-wide member set. Order is insignificant and
// duplicates are forbidden; the slice form keeps voting-body sync simple.
type MemberList struct {
	Members []id.Address `json:"members"`
}

// Contains reports whether addr is in the list.
func (m *MemberList) Contains(addr id.Address) bool {
	for _, member := range m.Members {
		if member == addr {
			return true
		}
	}
	return false
}

// DepositInfo is the deposit configuration for joining the organization.
type DepositInfo struct {
	Symbol string `json:"symbol"`
	Amount int64  `json:"amount"`
}

// ReleaseThreshold holds the four counters a vote tally must clear before a
// pending governance payload may execute. Recomputed whenever the backing
// member or claimant set changes size.
type ReleaseThreshold struct {
	MinApprovals   int64 `json:"min_approvals"`
	MinVotes       int64 `json:"min_votes"`
	MaxRejections  int64 `json:"max_rejections"`
	MaxAbstentions int64 `json:"max_abstentions"`
}

// VoteTally is the approval/rejection/abstention counts reported by a voting
// body for one proposal.
type VoteTally struct {
	Approvals   int64 `json:"approvals"`
	Rejections  int64 `json:"rejections"`
	Abstentions int64 `json:"abstentions"`
}

// Event is a lifecycle or feedback notification emitted by the services.
type Event struct {
	Type      string            `json:"type"`
	ProjectID id.ProjectID      `json:"project_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}
