// Package membership manages the funding organization's member set: vote-gated
// admission with a deposit, quitting with a refund, vote-gated expulsion, and
// the release threshold derived from the member count.
package membership

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"daofund/internal/dao/models"
	"daofund/internal/dao/ports"
	"daofund/internal/dao/store"
	"daofund/internal/dao/threshold"
	id "daofund/pkg/domain"
	dErrors "daofund/pkg/domain-errors"
	"daofund/pkg/requestcontext"
)

// Service owns the member list. Every membership change is mirrored to the
// voting body's organization and followed by a threshold recompute, so the
// three views never drift.
type Service struct {
	members store.MemberStore
	body    ports.VotingBody
	// validatorBody answers who the default executor is; admission and
	// expulsion are only reachable through it.
	validatorBody ports.VotingBody
	validators    ports.ValidatorRegistry
	tokens        ports.TokenLedger
	deposit       models.DepositInfo
	treasury      id.Address
	logger        *slog.Logger

	mu             sync.Mutex
	orgID          id.OrganizationID
	validatorOrgID id.OrganizationID
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithValidatorBody routes default-executor lookups to a separate validator
// voting body. Defaults to the organization body.
func WithValidatorBody(body ports.VotingBody) Option {
	return func(s *Service) { s.validatorBody = body }
}

func NewService(
	members store.MemberStore,
	body ports.VotingBody,
	validators ports.ValidatorRegistry,
	tokens ports.TokenLedger,
	deposit models.DepositInfo,
	treasury id.Address,
	opts ...Option,
) *Service {
	s := &Service{
		members:       members,
		body:          body,
		validatorBody: body,
		validators:    validators,
		tokens:        tokens,
		deposit:       deposit,
		treasury:      treasury,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap seeds the organization from the current validator set. Validators
// become founding members without a deposit, and the backing voting-body
// organization is created with a minimal internal quorum so release decisions
// stay with this system's threshold gate.
func (s *Service) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.orgID.IsNil() {
		return dErrors.New(dErrors.CodeConflict, "organization already bootstrapped")
	}

	founders, err := s.validators.CurrentMembers(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "fetch validator set")
	}
	if len(founders) == 0 {
		return dErrors.New(dErrors.CodeFailedPrecondition, "validator set is empty")
	}

	orgID, err := s.body.CreateOrganization(ctx, ports.CreateOrganizationInput{
		Members:      founders,
		MinApprovals: 1,
		MinVotes:     1,
		Proposers:    founders,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "create organization")
	}
	s.orgID = orgID

	// Validators vote on expulsions in their own organization, which tracks
	// the registry rather than the member list.
	validatorOrgID, err := s.validatorBody.CreateOrganization(ctx, ports.CreateOrganizationInput{
		Members:      founders,
		MinApprovals: 1,
		MinVotes:     1,
		Proposers:    founders,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "create validator organization")
	}
	s.validatorOrgID = validatorOrgID

	for _, founder := range founders {
		if err := s.members.Add(ctx, founder); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "seed member list")
		}
	}
	if err := s.recomputeThreshold(ctx, len(founders)); err != nil {
		return err
	}

	s.logger.Info("organization bootstrapped",
		slog.String("org_id", orgID.String()),
		slog.Int("founders", len(founders)))
	return nil
}

// OrganizationID returns the backing voting-body organization. Empty until
// Bootstrap has run.
func (s *Service) OrganizationID() id.OrganizationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orgID
}

// ValidatorOrganizationID returns the validator body's organization used for
// expulsion votes. Empty until Bootstrap has run.
func (s *Service) ValidatorOrganizationID() id.OrganizationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validatorOrgID
}

// Join admits a candidate, escrowing the configured deposit from the
// candidate's balance into the treasury. Like Expel it accepts only the
// validator body's default executor, so admission is reachable solely through
// a released validator vote.
func (s *Service) Join(ctx context.Context, candidate id.Address) error {
	if err := s.requireDefaultExecutor(ctx, "admission"); err != nil {
		return err
	}
	if candidate.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "candidate address required")
	}

	isMember, err := s.members.Contains(ctx, candidate)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check membership")
	}
	if isMember {
		return dErrors.Newf(dErrors.CodeConflict, "%s is already a member", candidate)
	}

	if s.deposit.Amount > 0 {
		if err := s.tokens.TransferFrom(ctx, candidate, s.treasury, s.deposit.Symbol, s.deposit.Amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeFailedPrecondition, "escrow deposit")
		}
	}
	if err := s.members.Add(ctx, candidate); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "add member")
	}
	if err := s.syncAndRecompute(ctx); err != nil {
		return err
	}

	s.logger.Info("member joined", slog.String("member", candidate.String()))
	return nil
}

// Quit removes the caller from the organization and refunds the deposit.
func (s *Service) Quit(ctx context.Context) error {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}

	if err := s.removeMember(ctx, caller); err != nil {
		return err
	}
	if s.deposit.Amount > 0 {
		if err := s.tokens.Transfer(ctx, caller, s.deposit.Symbol, s.deposit.Amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "refund deposit")
		}
	}

	s.logger.Info("member quit", slog.String("member", caller.String()))
	return nil
}

// Expel removes a member without refunding the deposit. Only the validator
// body's default executor may call it, which makes expulsion reachable solely
// through a released validator vote.
func (s *Service) Expel(ctx context.Context, member id.Address) error {
	if err := s.requireDefaultExecutor(ctx, "expulsion"); err != nil {
		return err
	}

	if err := s.removeMember(ctx, member); err != nil {
		return err
	}

	s.logger.Info("member expelled", slog.String("member", member.String()))
	return nil
}

func (s *Service) requireDefaultExecutor(ctx context.Context, action string) error {
	defaultExec, err := s.validatorBody.DefaultExecutorAddress(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "resolve default executor")
	}
	if requestcontext.Caller(ctx) != defaultExec {
		return dErrors.Newf(dErrors.CodeUnauthorized, "%s requires a released validator vote", action)
	}
	return nil
}

func (s *Service) removeMember(ctx context.Context, member id.Address) error {
	isMember, err := s.members.Contains(ctx, member)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check membership")
	}
	if !isMember {
		return dErrors.Newf(dErrors.CodeNotFound, "%s is not a member", member)
	}
	if err := s.members.Remove(ctx, member); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "remove member")
	}
	return s.syncAndRecompute(ctx)
}

// Members returns the current member list.
func (s *Service) Members(ctx context.Context) (models.MemberList, error) {
	list, err := s.members.Members(ctx)
	if err != nil {
		return models.MemberList{}, dErrors.Wrap(err, dErrors.CodeInternal, "list members")
	}
	return list, nil
}

// DepositInfo returns the deposit configuration.
func (s *Service) DepositInfo() models.DepositInfo {
	return s.deposit
}

// Threshold returns the current release threshold snapshot.
func (s *Service) Threshold(ctx context.Context) (models.ReleaseThreshold, error) {
	th, err := s.members.Threshold(ctx)
	if err != nil {
		return models.ReleaseThreshold{}, dErrors.Wrap(err, dErrors.CodeInternal, "load threshold")
	}
	return th, nil
}

func (s *Service) syncAndRecompute(ctx context.Context) error {
	list, err := s.members.Members(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list members")
	}
	s.mu.Lock()
	orgID := s.orgID
	s.mu.Unlock()
	if !orgID.IsNil() {
		if err := s.body.ChangeOrganizationMembers(ctx, orgID, list.Members); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "sync organization members")
		}
	}
	return s.recomputeThreshold(ctx, len(list.Members))
}

func (s *Service) recomputeThreshold(ctx context.Context, memberCount int) error {
	th := threshold.Recompute(memberCount)
	if err := s.members.SetThreshold(ctx, th); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store threshold")
	}
	s.logger.Debug("threshold recomputed",
		slog.Int("members", memberCount),
		slog.String("threshold", fmt.Sprintf("%+v", th)))
	return nil
}
