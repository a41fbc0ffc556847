// Package project implements the funding lifecycle state machine:
// registration, budget approval, investment, bounty take-over, peer
// audition, phase delivery with payout, and removal.
package project

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"daofund/internal/dao/budget"
	"daofund/internal/dao/events"
	"daofund/internal/dao/metrics"
	"daofund/internal/dao/models"
	"daofund/internal/dao/ports"
	"daofund/internal/dao/store"
	id "daofund/pkg/domain"
	dErrors "daofund/pkg/domain-errors"
	"daofund/pkg/platform/sentinel"
	"daofund/pkg/requestcontext"
)

// Service drives project state. State-changing operations that require a
// concluded vote consume the project's pending release marker first; reaching
// them without one is a protocol violation and fails closed.
type Service struct {
	projects  store.ProjectStore
	markers   store.MarkerStore
	tokens    ports.TokenLedger
	profit    ports.ProfitLedger
	publisher ports.EventPublisher
	treasury  id.Address
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the workflow metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	projects store.ProjectStore,
	markers store.MarkerStore,
	tokens ports.TokenLedger,
	profit ports.ProfitLedger,
	publisher ports.EventPublisher,
	treasury id.Address,
	opts ...Option,
) *Service {
	s := &Service{
		projects:  projects,
		markers:   markers,
		tokens:    tokens,
		profit:    profit,
		publisher: publisher,
		treasury:  treasury,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddProject registers a voted-in project in its initial state. The project
// identity is derived from the commit and pull request URL, so proposing the
// same work twice collides deterministically.
func (s *Service) AddProject(ctx context.Context, pullRequestURL, commitID string, projectType models.ProjectType, auditionRequired bool) (*models.Project, error) {
	if pullRequestURL == "" || commitID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "pull request URL and commit id are required")
	}
	project := models.NewProject(pullRequestURL, commitID, projectType, auditionRequired)
	if err := s.consumeMarker(ctx, project.ID); err != nil {
		return nil, err
	}
	if err := s.projects.Create(ctx, project); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "project %s already registered", project.ID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create project")
	}

	s.emitStatus(ctx, project)
	if s.metrics != nil {
		s.metrics.ProjectsProposed.Inc()
	}
	s.logger.Info("project registered",
		slog.String("project_id", project.ID.String()),
		slog.String("type", string(projectType)))
	return project, nil
}

// ApproveWithBudget attaches the approved budget plans to a proposed project,
// provisions its profit scheme, and moves it to approved. Bounty claimants
// are stripped from the plans; they bind later through take-over votes.
func (s *Service) ApproveWithBudget(ctx context.Context, projectID id.ProjectID, plans []models.BudgetPlan) (*models.Project, error) {
	if err := s.consumeMarker(ctx, projectID); err != nil {
		return nil, err
	}
	if err := budget.ValidateSequence(plans); err != nil {
		return nil, err
	}

	schemeID, err := s.profit.CreateScheme(ctx, s.treasury)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create profit scheme")
	}

	project, err := s.projects.Execute(ctx, projectID,
		func(p *models.Project) error {
			if err := p.CanApprove(); err != nil {
				return err
			}
			// Grant claimants are fixed at approval time.
			if p.Type == models.TypeGrant {
				for i := range plans {
					if plans[i].Claimant.IsNil() {
						return dErrors.Newf(dErrors.CodeBadRequest, "grant phase %d requires a claimant", plans[i].Index)
					}
				}
			}
			return nil
		},
		func(p *models.Project) error {
			p.ApplyApproval(plans, schemeID)
			return nil
		})
	if err != nil {
		return nil, s.execErr(err, projectID)
	}

	s.emitStatus(ctx, project)
	if s.metrics != nil {
		s.metrics.ProjectsApproved.Inc()
	}
	s.logger.Info("project approved",
		slog.String("project_id", projectID.String()),
		slog.Int("phases", len(plans)))
	return project, nil
}

// Invest escrows funds toward the project's unfunded phases. The amount is
// transferred in full first and the uncapped remainder refunded, so the
// escrow never holds more than the approved budget. Anyone may invest; no
// vote is required.
func (s *Service) Invest(ctx context.Context, projectID id.ProjectID, symbol string, amount int64) (*models.Project, error) {
	start := time.Now()
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}
	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "investment amount must be positive")
	}

	// Peek at the escrow address before moving funds.
	existing, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, s.notFound(err, projectID)
	}
	escrow := existing.EscrowAddress

	if err := s.tokens.TransferFrom(ctx, caller, escrow, symbol, amount); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeFailedPrecondition, "escrow investment")
	}

	var remainder int64
	var becameReady bool
	project, err := s.projects.Execute(ctx, projectID,
		func(p *models.Project) error { return p.CanInvest() },
		func(p *models.Project) error {
			_, remainder = budget.Fund(p.Plans, symbol, amount)
			if p.Status == models.StatusApproved && budget.IsFullyFunded(p) {
				p.Status = models.StatusReady
				becameReady = true
			}
			return nil
		})
	if err != nil {
		err = s.execErr(err, projectID)
		// Nothing was recorded; hand the funds back.
		if refundErr := s.tokens.TransferFrom(ctx, escrow, caller, symbol, amount); refundErr != nil {
			s.logger.Error("refund after failed investment",
				slog.String("project_id", projectID.String()),
				slog.String("error", refundErr.Error()))
		}
		return nil, err
	}
	if remainder > 0 {
		if err := s.tokens.TransferFrom(ctx, escrow, caller, symbol, remainder); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "refund excess investment")
		}
	}

	if shortfall := budget.Shortfall(project.Plans); shortfall > 0 {
		s.emit(ctx, models.Event{
			Type:      events.TypeInvestmentShortfall,
			ProjectID: projectID,
			Fields:    map[string]string{"shortfall": strconv.FormatInt(shortfall, 10)},
		})
	} else {
		s.emit(ctx, models.Event{Type: events.TypeProjectFullyFunded, ProjectID: projectID})
	}
	if becameReady {
		s.emitStatus(ctx, project)
	}
	if s.metrics != nil {
		s.metrics.Investments.Inc()
		s.metrics.ObserveInvest(start)
	}
	return project, nil
}

// TakeOver binds a claimant to the requested phases of a fully funded bounty
// project. Once every phase is claimed the project moves to taken.
func (s *Service) TakeOver(ctx context.Context, projectID id.ProjectID, indices []int, claimant id.Address) (*models.Project, error) {
	if err := s.consumeMarker(ctx, projectID); err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least one phase index is required")
	}
	if claimant.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "claimant address is required")
	}

	var becameTaken bool
	project, err := s.projects.Execute(ctx, projectID,
		func(p *models.Project) error { return p.CanTakeOver() },
		func(p *models.Project) error {
			allClaimed, err := budget.AssignClaimant(p, indices, claimant)
			if err != nil {
				return err
			}
			if allClaimed {
				p.Status = models.StatusTaken
				becameTaken = true
			}
			return nil
		})
	if err != nil {
		return nil, s.execErr(err, projectID)
	}

	if becameTaken {
		s.emitStatus(ctx, project)
	}
	s.logger.Info("phases taken over",
		slog.String("project_id", projectID.String()),
		slog.String("claimant", claimant.String()),
		slog.Int("phases", len(indices)))
	return project, nil
}

// SubmitPreAudition records evidence ahead of the peer audition vote. Only a
// claimant of the project may submit.
func (s *Service) SubmitPreAudition(ctx context.Context, projectID id.ProjectID, evidenceHash string) error {
	caller := requestcontext.Caller(ctx)
	if evidenceHash == "" {
		return dErrors.New(dErrors.CodeBadRequest, "evidence hash is required")
	}
	_, err := s.projects.Execute(ctx, projectID,
		func(p *models.Project) error {
			if !isClaimant(p, caller) {
				return dErrors.New(dErrors.CodeUnauthorized, "only a claimant may submit audition evidence")
			}
			return nil
		},
		func(p *models.Project) error {
			p.PreAuditionHash = evidenceHash
			return nil
		})
	if err != nil {
		return s.execErr(err, projectID)
	}
	return nil
}

// ApproveAudition marks a phase as peer-approved after a released claimant
// vote.
func (s *Service) ApproveAudition(ctx context.Context, projectID id.ProjectID, index int) error {
	if err := s.consumeMarker(ctx, projectID); err != nil {
		return err
	}
	_, err := s.projects.Execute(ctx, projectID,
		func(p *models.Project) error {
			_, err := p.Plan(index)
			return err
		},
		func(p *models.Project) error {
			plan, err := p.Plan(index)
			if err != nil {
				return err
			}
			plan.AuditionPassed = true
			return nil
		})
	if err != nil {
		return s.execErr(err, projectID)
	}
	return nil
}

// Deliver records delivery evidence for the next undelivered phase and pays
// its budget out through the profit scheme. Phases deliver strictly in index
// order; a phase pays only if fully funded, and bounty phases additionally
// require a passed audition when the project demands one.
func (s *Service) Deliver(ctx context.Context, projectID id.ProjectID, index int, deliverCommitID, deliverPullRequestURL string) (*models.Project, error) {
	if err := s.consumeMarker(ctx, projectID); err != nil {
		return nil, err
	}
	if deliverCommitID == "" || deliverPullRequestURL == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "delivery evidence is required")
	}
	caller := requestcontext.Caller(ctx)

	var paidPlan models.BudgetPlan
	var becameDelivered bool
	project, err := s.projects.Execute(ctx, projectID,
		func(p *models.Project) error {
			if err := p.CanDeliver(); err != nil {
				return err
			}
			plan, err := p.Plan(index)
			if err != nil {
				return err
			}
			if index != p.PhaseCursor {
				return dErrors.Newf(dErrors.CodeBadRequest, "phase %d is not the next to deliver", index)
			}
			if !plan.Claimant.IsNil() && plan.Claimant != caller {
				return dErrors.New(dErrors.CodeUnauthorized, "only the phase claimant may deliver")
			}
			if p.AuditionRequired && !plan.AuditionPassed {
				return dErrors.New(dErrors.CodeFailedPrecondition, "peer approval required before delivery")
			}
			if plan.PaidIn != plan.Amount {
				return dErrors.Newf(dErrors.CodeFailedPrecondition, "phase %d budget is not fully funded", index)
			}
			return nil
		},
		func(p *models.Project) error {
			plan, err := p.Plan(index)
			if err != nil {
				return err
			}
			plan.DeliverCommitID = deliverCommitID
			plan.DeliverPullRequestURL = deliverPullRequestURL
			p.PhaseCursor++
			paidPlan = *plan
			if budget.IsFullyDelivered(p) {
				p.Status = models.StatusDelivered
				becameDelivered = true
			}
			return nil
		})
	if err != nil {
		return nil, s.execErr(err, projectID)
	}

	if err := s.payBudget(ctx, project, &paidPlan); err != nil {
		return nil, err
	}

	if becameDelivered {
		s.emitStatus(ctx, project)
		if s.metrics != nil {
			s.metrics.ProjectsDelivered.Inc()
		}
	}
	s.logger.Info("phase delivered",
		slog.String("project_id", projectID.String()),
		slog.Int("phase", index))
	return project, nil
}

// RemoveProject deletes a non-delivered project after a released vote,
// returning undistributed escrow to the treasury.
func (s *Service) RemoveProject(ctx context.Context, projectID id.ProjectID) error {
	if err := s.consumeMarker(ctx, projectID); err != nil {
		return err
	}
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return s.notFound(err, projectID)
	}
	if err := project.CanRemove(); err != nil {
		return err
	}

	// Escrow still holds the paid-in amounts of undelivered phases.
	refunds := make(map[string]int64)
	for i := range project.Plans {
		plan := &project.Plans[i]
		if plan.Index >= project.PhaseCursor && plan.PaidIn > 0 {
			refunds[plan.Symbol] += plan.PaidIn
		}
	}
	for symbol, amount := range refunds {
		if err := s.tokens.TransferFrom(ctx, project.EscrowAddress, s.treasury, symbol, amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "reclaim escrow")
		}
	}

	if err := s.projects.Delete(ctx, projectID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete project")
	}

	s.emit(ctx, models.Event{
		Type:      events.TypeStatusChanged,
		ProjectID: projectID,
		Fields:    map[string]string{"status": "removed"},
	})
	if s.metrics != nil {
		s.metrics.ProjectsRemoved.Inc()
	}
	s.logger.Info("project removed", slog.String("project_id", projectID.String()))
	return nil
}

// Get returns the project aggregate.
func (s *Service) Get(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, s.notFound(err, projectID)
	}
	return project, nil
}

// PlanAt returns one budget plan of the project.
func (s *Service) PlanAt(ctx context.Context, projectID id.ProjectID, index int) (models.BudgetPlan, error) {
	project, err := s.Get(ctx, projectID)
	if err != nil {
		return models.BudgetPlan{}, err
	}
	plan, err := project.Plan(index)
	if err != nil {
		return models.BudgetPlan{}, err
	}
	return *plan, nil
}

// payBudget routes a delivered phase's escrowed funds through the profit
// scheme: the claimant joins as sole beneficiary for the phase's period, the
// escrow contributes, the period distributes, and the beneficiary rotates out
// so the next phase starts clean.
func (s *Service) payBudget(ctx context.Context, project *models.Project, plan *models.BudgetPlan) error {
	recipient := plan.Claimant
	if recipient.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "delivered phase has no claimant")
	}
	period := int64(plan.Index + 1)

	if err := s.profit.AddBeneficiary(ctx, project.SchemeID, period, recipient, 1); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "register beneficiary")
	}
	if err := s.profit.Contribute(ctx, project.EscrowAddress, project.SchemeID, plan.Symbol, plan.Amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "contribute phase budget")
	}
	if err := s.profit.Distribute(ctx, project.SchemeID, period, map[string]int64{plan.Symbol: plan.Amount}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "distribute phase budget")
	}
	if err := s.profit.RemoveBeneficiary(ctx, project.SchemeID, recipient); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "rotate beneficiary")
	}

	s.emit(ctx, models.Event{
		Type:      events.TypePhasePaid,
		ProjectID: project.ID,
		Fields: map[string]string{
			"phase":    strconv.Itoa(plan.Index),
			"symbol":   plan.Symbol,
			"amount":   strconv.FormatInt(plan.Amount, 10),
			"claimant": recipient.String(),
		},
	})
	return nil
}

func (s *Service) consumeMarker(ctx context.Context, projectID id.ProjectID) error {
	err := s.markers.Consume(ctx, projectID)
	if errors.Is(err, sentinel.ErrNothingPending) {
		return dErrors.Newf(dErrors.CodeConflict, "nothing pending for project %s", projectID)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "consume release marker")
	}
	return nil
}

// execErr translates store-level failures out of an Execute call. Validation
// and mutation errors are already coded and pass through untouched.
func (s *Service) execErr(err error, projectID id.ProjectID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "project %s not found", projectID)
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "execute project mutation")
}

func (s *Service) notFound(err error, projectID id.ProjectID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "project %s not found", projectID)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "load project")
}

func (s *Service) emitStatus(ctx context.Context, project *models.Project) {
	s.emit(ctx, models.Event{
		Type:      events.TypeStatusChanged,
		ProjectID: project.ID,
		Fields:    map[string]string{"status": string(project.Status)},
	})
}

func (s *Service) emit(ctx context.Context, event models.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.Error("emit event",
			slog.String("type", event.Type),
			slog.String("error", err.Error()))
	}
}

func isClaimant(p *models.Project, addr id.Address) bool {
	if addr.IsNil() {
		return false
	}
	for i := range p.Plans {
		if p.Plans[i].Claimant == addr {
			return true
		}
	}
	return false
}
