// Package domain holds the typed identifiers shared across services.
//
// Identifiers are domain primitives: they validate at parse time so that
// services never have to re-check identity shape downstream.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Address identifies a token-holding account (a member, a claimant, or a
// project's escrow account).
type Address string

// String returns the string representation of the address.
func (a Address) String() string { return string(a) }

// IsNil reports whether the address is empty.
func (a Address) IsNil() bool { return a == "" }

// ProjectID is the deterministic identity of a project: the hex-encoded
// SHA-256 of its commit identifier appended with its pull-request URL.
// Identical inputs always yield the same ProjectID; it is the sole primary key.
type ProjectID string

func (p ProjectID) String() string { return string(p) }

func (p ProjectID) IsNil() bool { return p == "" }

// ComputeProjectID derives the project identity from its reference pair.
func ComputeProjectID(pullRequestURL, commitID string) ProjectID {
	sum := sha256.Sum256([]byte(commitID + pullRequestURL))
	return ProjectID(hex.EncodeToString(sum[:]))
}

// ParseProjectID validates an externally supplied project identity.
func ParseProjectID(s string) (ProjectID, error) {
	if len(s) != sha256.Size*2 {
		return "", fmt.Errorf("project id must be %d hex characters, got %d", sha256.Size*2, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("project id is not hex: %w", err)
	}
	return ProjectID(s), nil
}

// ProposalID identifies a proposal registered with a voting body.
type ProposalID string

func (p ProposalID) String() string { return string(p) }

func (p ProposalID) IsNil() bool { return p == "" }

// ComputeProposalID derives a proposal identity from the target operation,
// its payload, and a recent externally supplied salt. The salt prevents two
// otherwise identical proposals from colliding.
func ComputeProposalID(target string, payload, salt []byte) ProposalID {
	h := sha256.New()
	h.Write([]byte(target))
	h.Write(payload)
	h.Write(salt)
	return ProposalID(hex.EncodeToString(h.Sum(nil)))
}

// SchemeID identifies a profit-sharing scheme held by the profit ledger.
type SchemeID string

func (s SchemeID) String() string { return string(s) }

func (s SchemeID) IsNil() bool { return s == "" }

// OrganizationID identifies an organization within a voting body.
type OrganizationID string

func (o OrganizationID) String() string { return string(o) }

func (o OrganizationID) IsNil() bool { return o == "" }

// EscrowAddress derives the stable escrow account address for a project.
// The derivation is pure so the address can be recomputed from the identity.
func EscrowAddress(projectID ProjectID) Address {
	sum := sha256.Sum256([]byte("escrow:" + projectID.String()))
	return Address("escrow-" + hex.EncodeToString(sum[:20]))
}
