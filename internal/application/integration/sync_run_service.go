package integration

import (
	"context"

	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/integration"
)

// SyncRunService exposes the run log to operators
type SyncRunService struct {
	runs integration.SyncRunRepository
}

// NewSyncRunService creates a sync run service
func NewSyncRunService(runs integration.SyncRunRepository) *SyncRunService {
	return &SyncRunService{runs: runs}
}

// List returns runs matching filter, newest first
func (s *SyncRunService) List(ctx context.Context, filter integration.SyncRunFilter) ([]integration.SyncRun, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return s.runs.List(ctx, filter)
}

// Get returns one run
func (s *SyncRunService) Get(ctx context.Context, id uuid.UUID) (*integration.SyncRun, error) {
	return s.runs.FindByID(ctx, id)
}
