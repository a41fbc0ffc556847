// Package handler exposes the funding workflow over HTTP. Handlers stay
// thin: decode, call a service, translate the domain error.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"daofund/internal/dao/dispatch"
	"daofund/internal/dao/membership"
	"daofund/internal/dao/models"
	"daofund/internal/dao/project"
	id "daofund/pkg/domain"
	dErrors "daofund/pkg/domain-errors"
	"daofund/pkg/platform/httputil"
)

type Handler struct {
	membership *membership.Service
	projects   *project.Service
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

func New(membershipSvc *membership.Service, projectSvc *project.Service, dispatcher *dispatch.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		membership: membershipSvc,
		projects:   projectSvc,
		dispatcher: dispatcher,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the funding workflow routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Get("/id", h.calculateProjectID)
		r.Post("/proposals", h.proposeAddProject)
		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", h.getProject)
			r.Get("/plans/{index}", h.getPlan)
			r.Get("/proposals/preview", h.previewProposalID)
			r.Post("/budget/proposals", h.proposeApproveBudget)
			r.Post("/investments", h.invest)
			r.Post("/takeover/proposals", h.proposeTakeOver)
			r.Post("/audition/evidence", h.submitPreAudition)
			r.Post("/audition/proposals", h.proposeAudition)
			r.Post("/delivery/proposals", h.proposeDeliver)
			r.Post("/removal/proposals", h.proposeRemoveProject)
		})
	})
	r.Post("/proposals/{proposalID}/release", h.release)
	r.Route("/membership", func(r chi.Router) {
		r.Get("/members", h.listMembers)
		r.Get("/deposit", h.depositInfo)
		r.Get("/threshold", h.getThreshold)
		r.Post("/join/proposals", h.proposeJoin)
		r.Post("/quit", h.quit)
		r.Post("/members/{address}/expulsion/proposals", h.proposeExpel)
	})
}

type proposalResponse struct {
	ProposalID id.ProposalID `json:"proposal_id"`
}

func (h *Handler) proposeAddProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PullRequestURL   string `json:"pull_request_url"`
		CommitID         string `json:"commit_id"`
		Type             string `json:"type"`
		AuditionRequired bool   `json:"audition_required"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	proposalID, err := h.dispatcher.ProposeAddProject(r.Context(), req.PullRequestURL, req.CommitID, models.ProjectType(req.Type), req.AuditionRequired)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, proposalResponse{ProposalID: proposalID})
}

func (h *Handler) proposeApproveBudget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plans []models.BudgetPlan `json:"plans"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	proposalID, err := h.dispatcher.ProposeApproveBudget(r.Context(), projectIDParam(r), req.Plans)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, proposalResponse{ProposalID: proposalID})
}

func (h *Handler) proposeTakeOver(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Indices []int `json:"indices"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	proposalID, err := h.dispatcher.ProposeTakeOver(r.Context(), projectIDParam(r), req.Indices)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, proposalResponse{ProposalID: proposalID})
}

func (h *Handler) proposeAudition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index int `json:"index"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	proposalID, err := h.dispatcher.ProposeAudition(r.Context(), projectIDParam(r), req.Index)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, proposalResponse{ProposalID: proposalID})
}

func (h *Handler) proposeDeliver(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index          int    `json:"index"`
		CommitID       string `json:"commit_id"`
		PullRequestURL string `json:"pull_request_url"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	proposalID, err := h.dispatcher.ProposeDeliver(r.Context(), projectIDParam(r), req.Index, req.CommitID, req.PullRequestURL)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, proposalResponse{ProposalID: proposalID})
}

func (h *Handler) proposeRemoveProject(w http.ResponseWriter, r *http.Request) {
	proposalID, err := h.dispatcher.ProposeRemoveProject(r.Context(), projectIDParam(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, proposalResponse{ProposalID: proposalID})
}

func (h *Handler) proposeExpel(w http.ResponseWriter, r *http.Request) {
	member := id.Address(chi.URLParam(r, "address"))
	proposalID, err := h.dispatcher.ProposeExpelMember(r.Context(), member)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, proposalResponse{ProposalID: proposalID})
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	proposalID := id.ProposalID(chi.URLParam(r, "proposalID"))
	if err := h.dispatcher.Release(r.Context(), proposalID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
		Amount int64  `json:"amount"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	proj, err := h.projects.Invest(r.Context(), projectIDParam(r), req.Symbol, req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, proj)
}

func (h *Handler) submitPreAudition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hash string `json:"hash"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.projects.SubmitPreAudition(r.Context(), projectIDParam(r), req.Hash); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	proj, err := h.projects.Get(r.Context(), projectIDParam(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, proj)
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "phase index must be an integer"))
		return
	}
	plan, err := h.projects.PlanAt(r.Context(), projectIDParam(r), index)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, plan)
}

func (h *Handler) previewProposalID(w http.ResponseWriter, r *http.Request) {
	proposalID, err := h.dispatcher.PreviewProposalID(r.Context(), projectIDParam(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, proposalResponse{ProposalID: proposalID})
}

// calculateProjectID derives the project identity from the work reference
// without touching state.
func (h *Handler) calculateProjectID(w http.ResponseWriter, r *http.Request) {
	pullRequestURL := r.URL.Query().Get("pull_request_url")
	commitID := r.URL.Query().Get("commit_id")
	if pullRequestURL == "" || commitID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "pull_request_url and commit_id are required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"project_id": id.ComputeProjectID(pullRequestURL, commitID).String(),
	})
}

func (h *Handler) proposeJoin(w http.ResponseWriter, r *http.Request) {
	proposalID, err := h.dispatcher.ProposeJoin(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, proposalResponse{ProposalID: proposalID})
}

func (h *Handler) quit(w http.ResponseWriter, r *http.Request) {
	if err := h.membership.Quit(r.Context()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.membership.Members(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) depositInfo(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.membership.DepositInfo())
}

func (h *Handler) getThreshold(w http.ResponseWriter, r *http.Request) {
	th, err := h.membership.Threshold(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, th)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return false
	}
	return true
}

func projectIDParam(r *http.Request) id.ProjectID {
	return id.ProjectID(chi.URLParam(r, "projectID"))
}
