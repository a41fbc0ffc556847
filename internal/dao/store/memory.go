package store

import (
	"context"
	"sync"

	"daofund/internal/dao/models"
	id "daofund/pkg/domain"
	"daofund/pkg/platform/sentinel"
)

// In-memory stores keep the default wiring lightweight and testable. They
// intentionally favor clarity over performance.

// MemoryProjectStore is a mutex-guarded map of project aggregates.
type MemoryProjectStore struct {
	mu       sync.RWMutex
	projects map[id.ProjectID]*models.Project
}

func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{projects: make(map[id.ProjectID]*models.Project)}
}

func cloneProject(p *models.Project) *models.Project {
	clone := *p
	clone.Plans = append([]models.BudgetPlan(nil), p.Plans...)
	return &clone
}

func (s *MemoryProjectStore) Create(_ context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[project.ID]; ok {
		return sentinel.ErrConflict
	}
	s.projects[project.ID] = cloneProject(project)
	return nil
}

func (s *MemoryProjectStore) FindByID(_ context.Context, projectID id.ProjectID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if project, ok := s.projects[projectID]; ok {
		return cloneProject(project), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryProjectStore) Update(_ context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[project.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.projects[project.ID] = cloneProject(project)
	return nil
}

func (s *MemoryProjectStore) Delete(_ context.Context, projectID id.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.projects, projectID)
	return nil
}

func (s *MemoryProjectStore) Execute(_ context.Context, projectID id.ProjectID, validate func(*models.Project) error, mutate func(*models.Project) error) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.projects[projectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	candidate := cloneProject(current)
	if validate != nil {
		if err := validate(candidate); err != nil {
			return nil, err
		}
	}
	if err := mutate(candidate); err != nil {
		return nil, err
	}
	s.projects[projectID] = candidate
	return cloneProject(candidate), nil
}

// MemoryMemberStore holds the organization member list and its threshold.
type MemoryMemberStore struct {
	mu        sync.RWMutex
	members   []id.Address
	threshold models.ReleaseThreshold
}

func NewMemoryMemberStore() *MemoryMemberStore {
	return &MemoryMemberStore{}
}

func (s *MemoryMemberStore) Members(_ context.Context) (models.MemberList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.MemberList{Members: append([]id.Address(nil), s.members...)}, nil
}

func (s *MemoryMemberStore) Add(_ context.Context, addr id.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, member := range s.members {
		if member == addr {
			return sentinel.ErrConflict
		}
	}
	s.members = append(s.members, addr)
	return nil
}

func (s *MemoryMemberStore) Remove(_ context.Context, addr id.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, member := range s.members {
		if member == addr {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *MemoryMemberStore) Contains(_ context.Context, addr id.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, member := range s.members {
		if member == addr {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryMemberStore) SetThreshold(_ context.Context, th models.ReleaseThreshold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = th
	return nil
}

func (s *MemoryMemberStore) Threshold(_ context.Context) (models.ReleaseThreshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold, nil
}

// MemoryMarkerStore tracks pending release markers.
type MemoryMarkerStore struct {
	mu      sync.Mutex
	pending map[id.ProjectID]bool
}

func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{pending: make(map[id.ProjectID]bool)}
}

func (s *MemoryMarkerStore) Set(_ context.Context, projectID id.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[projectID] = true
	return nil
}

func (s *MemoryMarkerStore) Consume(_ context.Context, projectID id.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending[projectID] {
		return sentinel.ErrNothingPending
	}
	delete(s.pending, projectID)
	return nil
}

// MemoryProposalStore keeps preview proposal ids and claimant organizations.
type MemoryProposalStore struct {
	mu           sync.RWMutex
	previews     map[id.ProjectID]id.ProposalID
	claimantOrgs map[id.ProjectID]id.OrganizationID
}

func NewMemoryProposalStore() *MemoryProposalStore {
	return &MemoryProposalStore{
		previews:     make(map[id.ProjectID]id.ProposalID),
		claimantOrgs: make(map[id.ProjectID]id.OrganizationID),
	}
}

func (s *MemoryProposalStore) SetPreview(_ context.Context, projectID id.ProjectID, proposalID id.ProposalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews[projectID] = proposalID
	return nil
}

func (s *MemoryProposalStore) Preview(_ context.Context, projectID id.ProjectID) (id.ProposalID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if proposalID, ok := s.previews[projectID]; ok {
		return proposalID, nil
	}
	return "", sentinel.ErrNotFound
}

func (s *MemoryProposalStore) RemovePreview(_ context.Context, projectID id.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.previews, projectID)
	return nil
}

func (s *MemoryProposalStore) SetClaimantOrg(_ context.Context, projectID id.ProjectID, orgID id.OrganizationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimantOrgs[projectID] = orgID
	return nil
}

func (s *MemoryProposalStore) ClaimantOrg(_ context.Context, projectID id.ProjectID) (id.OrganizationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if orgID, ok := s.claimantOrgs[projectID]; ok {
		return orgID, nil
	}
	return "", sentinel.ErrNotFound
}
