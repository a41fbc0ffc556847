package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"daofund/internal/dao/dispatch"
	"daofund/internal/dao/events"
	"daofund/internal/dao/membership"
	"daofund/internal/dao/models"
	"daofund/internal/dao/project"
	"daofund/internal/dao/simulator"
	"daofund/internal/dao/store"
	id "daofund/pkg/domain"
	"daofund/pkg/requestcontext"
	"daofund/pkg/testutil"
)

const treasury = id.Address("treasury")

type HandlerSuite struct {
	suite.Suite
	router        chi.Router
	assoc         *simulator.VotingBody
	validatorBody *simulator.VotingBody
	tokens        *simulator.TokenLedger
	membership    *membership.Service
	projects      *project.Service
	dispatcher    *dispatch.Dispatcher
	ctx           context.Context
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	s.assoc = simulator.NewVotingBody()
	s.validatorBody = simulator.NewVotingBody(simulator.WithDefaultExecutor("validator-exec"))
	validatorBody := s.validatorBody
	s.tokens = simulator.NewTokenLedger(treasury)
	profit := simulator.NewProfitLedger(s.tokens)
	markers := store.NewMemoryMarkerStore()
	memberStore := store.NewMemoryMemberStore()
	registry := simulator.NewValidatorRegistry("val1", "val2")

	s.membership = membership.NewService(
		memberStore, s.assoc, registry, s.tokens,
		models.DepositInfo{Symbol: "ELF", Amount: 50},
		treasury,
		membership.WithValidatorBody(validatorBody),
	)
	s.Require().NoError(s.membership.Bootstrap(s.ctx))

	s.projects = project.NewService(
		store.NewMemoryProjectStore(), markers, s.tokens, profit,
		events.NewMemoryPublisher(), treasury,
	)
	s.dispatcher = dispatch.NewDispatcher(
		s.assoc, validatorBody, registry,
		memberStore, markers, store.NewMemoryProposalStore(),
		s.membership, s.projects, dispatch.FixedEntropy("salt"),
	)
	s.assoc.SetExecutor(s.dispatcher)
	validatorBody.SetExecutor(s.dispatcher)

	s.router = chi.NewRouter()
	New(s.membership, s.projects, s.dispatcher).Register(s.router)
}

// requestCtx mirrors what the auth middleware injects for direct calls to
// the simulated voting body.
func requestCtx(ctx context.Context, caller id.Address) context.Context {
	return requestcontext.WithCaller(ctx, caller)
}

func (s *HandlerSuite) TestMembershipEndpoints() {
	s.Run("members lists the founders", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/membership/members")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		list := testutil.UnmarshalResponse[models.MemberList](s.T(), rr)
		s.Len(list.Members, 2)
	})

	s.Run("deposit info is public", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/membership/deposit")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "symbol", "ELF")
	})

	s.Run("join is admitted through a validator vote", func() {
		s.tokens.Mint("alice", "ELF", 50)
		req := testutil.NewRequest(s.T(), http.MethodPost, "/membership/join/proposals")
		rr := testutil.DoRequest(s.router, testutil.WithCaller(req, "alice"))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[map[string]string](s.T(), rr)
		joinID := (*resp)["proposal_id"]

		s.Require().NoError(s.validatorBody.Approve(requestCtx(s.ctx, "val1"), id.ProposalID(joinID)))
		releaseReq := testutil.NewRequest(s.T(), http.MethodPost, "/proposals/"+joinID+"/release")
		releaseRR := testutil.DoRequest(s.router, testutil.WithCaller(releaseReq, "val1"))
		testutil.AssertStatus(s.T(), releaseRR, http.StatusNoContent)

		balance, _ := s.tokens.GetBalance(s.ctx, "alice", "ELF")
		s.Equal(int64(0), balance, "deposit escrowed on admission")
	})

	s.Run("proposing to join twice maps to conflict", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, "/membership/join/proposals")
		rr := testutil.DoRequest(s.router, testutil.WithCaller(req, "alice"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})

	s.Run("anonymous join proposal is unauthorized", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, "/membership/join/proposals")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("quit refunds", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, "/membership/quit")
		rr := testutil.DoRequest(s.router, testutil.WithCaller(req, "alice"))
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

		balance, _ := s.tokens.GetBalance(s.ctx, "alice", "ELF")
		s.Equal(int64(50), balance)
	})

	s.Run("threshold is exposed", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/membership/threshold")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONHasKey(s.T(), rr, "min_approvals")
	})
}

func (s *HandlerSuite) TestProjectFlow() {
	var proposalID string
	var projectID string

	s.Run("calculate project id", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet,
			"/projects/id?pull_request_url=https%3A%2F%2Fgithub.com%2Forg%2Frepo%2Fpull%2F1&commit_id=c0ffee")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[map[string]string](s.T(), rr)
		projectID = (*resp)["project_id"]
		s.Equal(id.ComputeProjectID("https://github.com/org/repo/pull/1", "c0ffee").String(), projectID)
	})

	s.Run("propose a project", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/projects/proposals", map[string]any{
			"pull_request_url": "https://github.com/org/repo/pull/1",
			"commit_id":        "c0ffee",
			"type":             "grant",
		})
		rr := testutil.DoRequest(s.router, testutil.WithCaller(req, "val1"))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[map[string]string](s.T(), rr)
		proposalID = (*resp)["proposal_id"]
		s.NotEmpty(proposalID)
	})

	s.Run("preview proposal id matches", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/projects/"+projectID+"/proposals/preview")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "proposal_id", proposalID)
	})

	s.Run("release below threshold is unprocessable", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, "/proposals/"+proposalID+"/release")
		rr := testutil.DoRequest(s.router, testutil.WithCaller(req, "val1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "failed_precondition")
	})

	s.Run("release after votes registers the project", func() {
		s.Require().NoError(s.assoc.Approve(requestCtx(s.ctx, "val1"), id.ProposalID(proposalID)))

		req := testutil.NewRequest(s.T(), http.MethodPost, "/proposals/"+proposalID+"/release")
		rr := testutil.DoRequest(s.router, testutil.WithCaller(req, "val1"))
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

		getReq := testutil.NewRequest(s.T(), http.MethodGet, "/projects/"+projectID+"/")
		getRR := testutil.DoRequest(s.router, getReq)
		testutil.AssertStatusOK(s.T(), getRR)
		proj := testutil.UnmarshalResponse[models.Project](s.T(), getRR)
		s.Equal(models.StatusProposed, proj.Status)
	})

	s.Run("unknown project maps to not found", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/projects/missing/")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("invalid body maps to bad request", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/projects/"+projectID+"/investments", "{broken")
		rr := testutil.DoRequest(s.router, testutil.WithCaller(req, "whale"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("budget plan lookup after approval", func() {
		approveReq := testutil.NewJSONRequest(s.T(), http.MethodPost, "/projects/"+projectID+"/budget/proposals", map[string]any{
			"plans": []map[string]any{
				{"index": 0, "phase": 1, "symbol": "ELF", "amount": 100, "claimant": "dev"},
			},
		})
		rr := testutil.DoRequest(s.router, testutil.WithCaller(approveReq, "val1"))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[map[string]string](s.T(), rr)
		approveID := (*resp)["proposal_id"]

		s.Require().NoError(s.assoc.Approve(requestCtx(s.ctx, "val1"), id.ProposalID(approveID)))
		releaseReq := testutil.NewRequest(s.T(), http.MethodPost, "/proposals/"+approveID+"/release")
		releaseRR := testutil.DoRequest(s.router, testutil.WithCaller(releaseReq, "val1"))
		testutil.AssertStatus(s.T(), releaseRR, http.StatusNoContent)

		planReq := testutil.NewRequest(s.T(), http.MethodGet, "/projects/"+projectID+"/plans/0")
		planRR := testutil.DoRequest(s.router, planReq)
		testutil.AssertStatusOK(s.T(), planRR)
		plan := testutil.UnmarshalResponse[models.BudgetPlan](s.T(), planRR)
		s.Equal(int64(100), plan.Amount)
	})

	s.Run("invest through the API", func() {
		s.tokens.Mint("whale", "ELF", 100)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/projects/"+projectID+"/investments", map[string]any{
			"symbol": "ELF",
			"amount": 100,
		})
		rr := testutil.DoRequest(s.router, testutil.WithCaller(req, "whale"))
		testutil.AssertStatusOK(s.T(), rr)
		proj := testutil.UnmarshalResponse[models.Project](s.T(), rr)
		s.Equal(models.StatusReady, proj.Status)
	})
}
