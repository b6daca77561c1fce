// Package history lists recorded statements and keeps the state of
// unfinished ones current.
package history

import (
	"context"

	"hue-gateway/internal/domain"
)

// Service reads the query history of users.
type Service struct {
	repo domain.QueryHistoryRepository
}

// NewService creates a Service.
func NewService(repo domain.QueryHistoryRepository) *Service {
	return &Service{repo: repo}
}

// List returns owner's history, newest first.
func (s *Service) List(ctx context.Context, owner string, filter domain.QueryHistoryFilter) ([]domain.QueryHistory, error) {
	filter.Owner = &owner
	for _, st := range filter.States {
		if !validState(st) {
			return nil, domain.ErrValidation("unknown query state %q", st)
		}
	}
	return s.repo.List(ctx, filter)
}

// Get returns one of owner's history records.
func (s *Service) Get(ctx context.Context, owner, id string) (*domain.QueryHistory, error) {
	h, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.Owner != owner {
		return nil, domain.ErrNotFound("query %q not found", id)
	}
	return h, nil
}

func validState(s domain.QueryState) bool {
	switch s {
	case domain.QueryStateSubmitted, domain.QueryStateRunning, domain.QueryStateAvailable,
		domain.QueryStateFailed, domain.QueryStateExpired:
		return true
	}
	return false
}
