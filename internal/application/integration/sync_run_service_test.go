package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
)

// MockSyncRunRepository is a mock implementation of SyncRunRepository
type MockSyncRunRepository struct {
	mock.Mock
}

func (m *MockSyncRunRepository) Create(ctx context.Context, run *integration.SyncRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockSyncRunRepository) Update(ctx context.Context, run *integration.SyncRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockSyncRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncRun), args.Error(1)
}

func (m *MockSyncRunRepository) List(ctx context.Context, filter integration.SyncRunFilter) ([]integration.SyncRun, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]integration.SyncRun), args.Get(1).(int64), args.Error(2)
}

func TestSyncRunService_ListNormalizesPaging(t *testing.T) {
	repo := new(MockSyncRunRepository)
	svc := NewSyncRunService(repo)

	want := integration.SyncRunFilter{Marketplace: testMarketplace, Page: 1, PageSize: 20}
	repo.On("List", mock.Anything, want).Return([]integration.SyncRun{{ID: uuid.New()}}, int64(1), nil)

	runs, total, err := svc.List(context.Background(), integration.SyncRunFilter{Marketplace: testMarketplace, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, int64(1), total)
	repo.AssertExpectations(t)
}

func TestSyncRunService_Get(t *testing.T) {
	repo := new(MockSyncRunRepository)
	svc := NewSyncRunService(repo)

	id := uuid.New()
	repo.On("FindByID", mock.Anything, id).Return(nil, integration.ErrRunNotFound)

	_, err := svc.Get(context.Background(), id)
	assert.ErrorIs(t, err, integration.ErrRunNotFound)
}
