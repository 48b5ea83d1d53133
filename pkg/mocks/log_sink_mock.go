package mocks

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockLogSink is a mock implementation of the engine log sink.
type MockLogSink struct {
	mock.Mock
}

func (m *MockLogSink) InsertLogEntry(ctx context.Context, entry *models.AutomationLogEntry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}
