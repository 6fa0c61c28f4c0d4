package app

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/civic-complaints/platform/internal/agency"
	"github.com/civic-complaints/platform/internal/complaint/domain"
	"github.com/civic-complaints/platform/internal/shared/events"
	"github.com/civic-complaints/platform/internal/shared/types"
)

// MockRepository is a testify mock of domain.Repository. Create and Update
// mark history committed the way real repositories do.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, c *domain.Complaint) error {
	args := m.Called(ctx, c)
	if args.Error(0) == nil {
		c.MarkCommitted()
	}
	return args.Error(0)
}

func (m *MockRepository) Update(ctx context.Context, c *domain.Complaint) error {
	args := m.Called(ctx, c)
	if args.Error(0) == nil {
		c.Version++
		c.MarkCommitted()
	}
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id types.ID) (*domain.Complaint, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Complaint), args.Error(1)
}

func (m *MockRepository) GetByTrackingCode(ctx context.Context, code types.TrackingCode) (*domain.Complaint, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Complaint), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Complaint, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.Complaint), args.Int(1), args.Error(2)
}

func (m *MockRepository) History(ctx context.Context, complaintID types.ID) ([]domain.HistoryEntry, error) {
	args := m.Called(ctx, complaintID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.HistoryEntry), args.Error(1)
}

func (m *MockRepository) StatSamples(ctx context.Context, filter domain.ListFilter) ([]domain.StatSample, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StatSample), args.Error(1)
}

// MockDirectory is a testify mock of agency.Store
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ListAgencies(ctx context.Context, activeOnly bool) ([]agency.Agency, error) {
	args := m.Called(ctx, activeOnly)
	return args.Get(0).([]agency.Agency), args.Error(1)
}

func (m *MockDirectory) GetAgency(ctx context.Context, id types.ID) (*agency.Agency, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agency.Agency), args.Error(1)
}

func (m *MockDirectory) AgenciesByIDs(ctx context.Context, ids []types.ID) ([]agency.Agency, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]agency.Agency), args.Error(1)
}

func (m *MockDirectory) ListCategories(ctx context.Context, activeOnly bool) ([]agency.Category, error) {
	args := m.Called(ctx, activeOnly)
	return args.Get(0).([]agency.Category), args.Error(1)
}

func (m *MockDirectory) GetStaff(ctx context.Context, id types.ID) (*agency.Staff, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agency.Staff), args.Error(1)
}

func (m *MockDirectory) StaffByIDs(ctx context.Context, ids []types.ID) ([]agency.Staff, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]agency.Staff), args.Error(1)
}

func (m *MockDirectory) ListStaff(ctx context.Context, filter agency.ListStaffFilter) ([]agency.Staff, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]agency.Staff), args.Int(1), args.Error(2)
}

// MockClassifier is a testify mock of Classifier
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, description string, categories []domain.CategoryOption) (domain.Classification, error) {
	args := m.Called(ctx, description, categories)
	return args.Get(0).(domain.Classification), args.Error(1)
}

// recordingBus keeps published events in memory
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, pattern, consumerName string, handler events.Handler) error {
	return nil
}

func (b *recordingBus) Close()        {}
func (b *recordingBus) Health() error { return nil }

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}
