package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"daofund/internal/dao/events"
	"daofund/internal/dao/models"
	"daofund/internal/dao/simulator"
	"daofund/internal/dao/store"
	id "daofund/pkg/domain"
	dErrors "daofund/pkg/domain-errors"
	"daofund/pkg/requestcontext"
)

const treasury = id.Address("treasury")

type ProjectSuite struct {
	suite.Suite
	projects  *store.MemoryProjectStore
	markers   *store.MemoryMarkerStore
	tokens    *simulator.TokenLedger
	profit    *simulator.ProfitLedger
	publisher *events.MemoryPublisher
	service   *Service
	ctx       context.Context
}

func TestProjectSuite(t *testing.T) {
	suite.Run(t, new(ProjectSuite))
}

func (s *ProjectSuite) SetupTest() {
	s.projects = store.NewMemoryProjectStore()
	s.markers = store.NewMemoryMarkerStore()
	s.tokens = simulator.NewTokenLedger(treasury)
	s.profit = simulator.NewProfitLedger(s.tokens)
	s.publisher = events.NewMemoryPublisher()
	s.service = NewService(s.projects, s.markers, s.tokens, s.profit, s.publisher, treasury)
	s.ctx = context.Background()
}

func (s *ProjectSuite) as(addr id.Address) context.Context {
	return requestcontext.WithCaller(s.ctx, addr)
}

// markPending simulates a concluded vote: the dispatcher sets the marker
// right before asking the voting body to release.
func (s *ProjectSuite) markPending(projectID id.ProjectID) {
	s.Require().NoError(s.markers.Set(s.ctx, projectID))
}

func (s *ProjectSuite) addProject(projectType models.ProjectType, audition bool) *models.Project {
	projectID := id.ComputeProjectID("https://github.com/org/repo/pull/7", "deadbeef")
	s.markPending(projectID)
	project, err := s.service.AddProject(s.ctx, "https://github.com/org/repo/pull/7", "deadbeef", projectType, audition)
	s.Require().NoError(err)
	return project
}

func grantPlans(claimant id.Address) []models.BudgetPlan {
	return []models.BudgetPlan{
		{Index: 0, Phase: 1, Symbol: "ELF", Amount: 1000, Claimant: claimant},
		{Index: 1, Phase: 2, Symbol: "ELF", Amount: 2000, Claimant: claimant},
	}
}

func (s *ProjectSuite) approve(projectID id.ProjectID, plans []models.BudgetPlan) *models.Project {
	s.markPending(projectID)
	project, err := s.service.ApproveWithBudget(s.ctx, projectID, plans)
	s.Require().NoError(err)
	return project
}

func (s *ProjectSuite) fund(projectID id.ProjectID, investor id.Address, amount int64) *models.Project {
	s.tokens.Mint(investor, "ELF", amount)
	project, err := s.service.Invest(s.as(investor), projectID, "ELF", amount)
	s.Require().NoError(err)
	return project
}

func (s *ProjectSuite) TestAddProject() {
	s.Run("registers a proposed project with a derived identity", func() {
		project := s.addProject(models.TypeGrant, false)
		s.Equal(models.StatusProposed, project.Status)
		s.Equal(id.ComputeProjectID("https://github.com/org/repo/pull/7", "deadbeef"), project.ID)
		s.False(project.EscrowAddress.IsNil())
	})

	s.Run("without a pending marker the mutation is refused", func() {
		_, err := s.service.AddProject(s.ctx, "https://github.com/org/repo/pull/8", "cafef00d", models.TypeGrant, false)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("registering the same work twice conflicts", func() {
		projectID := id.ComputeProjectID("https://github.com/org/repo/pull/7", "deadbeef")
		s.markPending(projectID)
		_, err := s.service.AddProject(s.ctx, "https://github.com/org/repo/pull/7", "deadbeef", models.TypeGrant, false)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ProjectSuite) TestApproveWithBudget() {
	project := s.addProject(models.TypeGrant, false)

	s.Run("rejects a broken budget sequence", func() {
		s.markPending(project.ID)
		plans := grantPlans("dev")
		plans[1].Index = 3
		_, err := s.service.ApproveWithBudget(s.ctx, project.ID, plans)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("rejects a grant phase without a claimant", func() {
		s.markPending(project.ID)
		plans := grantPlans("dev")
		plans[1].Claimant = ""
		_, err := s.service.ApproveWithBudget(s.ctx, project.ID, plans)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("attaches plans and provisions a scheme", func() {
		approved := s.approve(project.ID, grantPlans("dev"))
		s.Equal(models.StatusApproved, approved.Status)
		s.Len(approved.Plans, 2)
		s.False(approved.SchemeID == "")
		s.Equal(id.Address("dev"), approved.Plans[0].Claimant, "grant claimants survive approval")
	})

	s.Run("approving twice violates the state machine", func() {
		s.markPending(project.ID)
		_, err := s.service.ApproveWithBudget(s.ctx, project.ID, grantPlans("dev"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *ProjectSuite) TestInvest() {
	project := s.addProject(models.TypeGrant, false)

	s.Run("investing before approval violates the state machine", func() {
		s.tokens.Mint("whale", "ELF", 100)
		_, err := s.service.Invest(s.as("whale"), project.ID, "ELF", 100)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

		balance, _ := s.tokens.GetBalance(s.ctx, "whale", "ELF")
		s.Equal(int64(100), balance, "failed investment is fully refunded")
	})

	s.approve(project.ID, grantPlans("dev"))

	s.Run("partial funding reports a shortfall", func() {
		funded := s.fund(project.ID, "whale", 500)
		s.Equal(models.StatusApproved, funded.Status)

		evts := s.publisher.Events()
		last := evts[len(evts)-1]
		s.Equal(events.TypeInvestmentShortfall, last.Type)
		s.Equal("2500", last.Fields["shortfall"])
	})

	s.Run("full funding flips the project to ready and refunds the excess", func() {
		funded := s.fund(project.ID, "whale2", 3000)
		s.Equal(models.StatusReady, funded.Status)

		balance, _ := s.tokens.GetBalance(s.ctx, "whale2", "ELF")
		s.Equal(int64(500), balance, "only the shortfall is escrowed")

		escrowBalance, _ := s.tokens.GetBalance(s.ctx, funded.EscrowAddress, "ELF")
		s.Equal(int64(3000), escrowBalance)
	})

	s.Run("non-positive amount is a bad request", func() {
		_, err := s.service.Invest(s.as("whale"), project.ID, "ELF", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown project is not found", func() {
		_, err := s.service.Invest(s.as("whale"), "missing", "ELF", 10)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ProjectSuite) TestGrantDeliveryFlow() {
	project := s.addProject(models.TypeGrant, false)
	s.approve(project.ID, grantPlans("dev"))
	s.fund(project.ID, "whale", 3000)

	s.Run("delivering out of order is rejected", func() {
		s.markPending(project.ID)
		_, err := s.service.Deliver(s.as("dev"), project.ID, 1, "c1", "https://github.com/org/repo/pull/9")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("only the claimant may deliver", func() {
		s.markPending(project.ID)
		_, err := s.service.Deliver(s.as("intruder"), project.ID, 0, "c1", "https://github.com/org/repo/pull/9")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("phase zero pays out to the claimant", func() {
		s.markPending(project.ID)
		delivered, err := s.service.Deliver(s.as("dev"), project.ID, 0, "c1", "https://github.com/org/repo/pull/9")
		s.Require().NoError(err)
		s.Equal(1, delivered.PhaseCursor)
		s.Equal(models.StatusReady, delivered.Status, "not terminal until the last phase")

		paid, err := s.profit.Claim(s.ctx, delivered.SchemeID, "dev")
		s.Require().NoError(err)
		s.Equal(int64(1000), paid["ELF"])

		escrowBalance, _ := s.tokens.GetBalance(s.ctx, delivered.EscrowAddress, "ELF")
		s.Equal(int64(2000), escrowBalance)
	})

	s.Run("redelivering the same phase without a new vote is refused", func() {
		_, err := s.service.Deliver(s.as("dev"), project.ID, 0, "c1", "https://github.com/org/repo/pull/9")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("final phase completes the project", func() {
		s.markPending(project.ID)
		delivered, err := s.service.Deliver(s.as("dev"), project.ID, 1, "c2", "https://github.com/org/repo/pull/10")
		s.Require().NoError(err)
		s.Equal(models.StatusDelivered, delivered.Status)

		paid, err := s.profit.Claim(s.ctx, delivered.SchemeID, "dev")
		s.Require().NoError(err)
		s.Equal(int64(2000), paid["ELF"])
	})

	s.Run("delivered project refuses further mutation", func() {
		s.markPending(project.ID)
		_, err := s.service.Deliver(s.as("dev"), project.ID, 1, "c3", "https://github.com/org/repo/pull/11")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		s.markPending(project.ID)
		err = s.service.RemoveProject(s.ctx, project.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ProjectSuite) TestBountyFlow() {
	project := s.addProject(models.TypeBounty, true)

	s.markPending(project.ID)
	approved, err := s.service.ApproveWithBudget(s.ctx, project.ID, grantPlans("ignored"))
	s.Require().NoError(err)
	s.True(approved.Plans[0].Claimant.IsNil(), "bounty claimants are stripped at approval")

	s.Run("take-over before full funding violates the state machine", func() {
		s.markPending(project.ID)
		_, err := s.service.TakeOver(s.ctx, project.ID, []int{0}, "hunter")
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.fund(project.ID, "whale", 3000)

	s.Run("claiming all phases moves the project to taken", func() {
		s.markPending(project.ID)
		taken, err := s.service.TakeOver(s.ctx, project.ID, []int{0}, "hunter")
		s.Require().NoError(err)
		s.Equal(models.StatusReady, taken.Status)

		s.markPending(project.ID)
		taken, err = s.service.TakeOver(s.ctx, project.ID, []int{1}, "hunter2")
		s.Require().NoError(err)
		s.Equal(models.StatusTaken, taken.Status)
	})

	s.Run("claimed phase cannot be taken again", func() {
		s.markPending(project.ID)
		_, err := s.service.TakeOver(s.ctx, project.ID, []int{0}, "latecomer")
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("delivery without a passed audition is gated", func() {
		s.markPending(project.ID)
		_, err := s.service.Deliver(s.as("hunter"), project.ID, 0, "c1", "https://github.com/org/repo/pull/9")
		s.True(dErrors.HasCode(err, dErrors.CodeFailedPrecondition))
	})

	s.Run("audition evidence and approval unblock delivery", func() {
		s.Require().NoError(s.service.SubmitPreAudition(s.as("hunter"), project.ID, "sha256:evidence"))

		s.markPending(project.ID)
		s.Require().NoError(s.service.ApproveAudition(s.ctx, project.ID, 0))

		s.markPending(project.ID)
		delivered, err := s.service.Deliver(s.as("hunter"), project.ID, 0, "c1", "https://github.com/org/repo/pull/9")
		s.Require().NoError(err)
		s.Equal(1, delivered.PhaseCursor)

		paid, err := s.profit.Claim(s.ctx, delivered.SchemeID, "hunter")
		s.Require().NoError(err)
		s.Equal(int64(1000), paid["ELF"])
	})

	s.Run("second claimant delivers the final phase", func() {
		s.markPending(project.ID)
		s.Require().NoError(s.service.ApproveAudition(s.ctx, project.ID, 1))

		s.markPending(project.ID)
		delivered, err := s.service.Deliver(s.as("hunter2"), project.ID, 1, "c2", "https://github.com/org/repo/pull/10")
		s.Require().NoError(err)
		s.Equal(models.StatusDelivered, delivered.Status)

		paid, err := s.profit.Claim(s.ctx, delivered.SchemeID, "hunter2")
		s.Require().NoError(err)
		s.Equal(int64(2000), paid["ELF"])
	})
}

func (s *ProjectSuite) TestDeliverUnfundedPhase() {
	project := s.addProject(models.TypeGrant, false)
	s.approve(project.ID, grantPlans("dev"))
	s.fund(project.ID, "whale", 400)

	s.markPending(project.ID)
	_, err := s.service.Deliver(s.as("dev"), project.ID, 0, "c1", "https://github.com/org/repo/pull/9")
	s.True(dErrors.HasCode(err, dErrors.CodeFailedPrecondition))
}

func (s *ProjectSuite) TestTakeOverGrantRejected() {
	project := s.addProject(models.TypeGrant, false)
	s.approve(project.ID, grantPlans("dev"))
	s.fund(project.ID, "whale", 3000)

	s.markPending(project.ID)
	_, err := s.service.TakeOver(s.ctx, project.ID, []int{0}, "hunter")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *ProjectSuite) TestRemoveProject() {
	project := s.addProject(models.TypeGrant, false)
	s.approve(project.ID, grantPlans("dev"))
	s.fund(project.ID, "whale", 1200)

	s.Run("returns undistributed escrow to the treasury", func() {
		s.markPending(project.ID)
		s.Require().NoError(s.service.RemoveProject(s.ctx, project.ID))

		treasuryBalance, _ := s.tokens.GetBalance(s.ctx, treasury, "ELF")
		s.Equal(int64(1200), treasuryBalance)

		_, err := s.service.Get(s.ctx, project.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("removing an unknown project is not found", func() {
		s.markPending("missing")
		err := s.service.RemoveProject(s.ctx, "missing")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
