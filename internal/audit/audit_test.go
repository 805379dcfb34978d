package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Record(ctx context.Context, event domain.AuditEvent) error {
	return m.Called(ctx, event).Error(0)
}

func TestLogSink_Record(t *testing.T) {
	var buf bytes.Buffer
	sink := audit.NewLogSink(&buf, "exam-sso")

	err := sink.Record(context.Background(), domain.AuditEvent{
		ID:        "evt-1",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Category:  domain.AuditCategorySecurity,
		Severity:  domain.AuditSeverityHigh,
		Action:    "refresh_token.reuse_detected",
		Actor:     "42",
		Details:   map[string]any{"chain_id": "c-1"},
	})
	require.NoError(t, err)

	var line struct {
		Level   string            `json:"level"`
		Service string            `json:"service"`
		Event   domain.AuditEvent `json:"audit_event"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line.Level)
	assert.Equal(t, "exam-sso", line.Service)
	assert.Equal(t, "refresh_token.reuse_detected", line.Event.Action)
	assert.Equal(t, "c-1", line.Event.Details["chain_id"])
}

func TestFanout_DeliversToAll(t *testing.T) {
	failing := new(MockSink)
	healthy := new(MockSink)
	event := domain.AuditEvent{Action: "login.failed"}

	failing.On("Record", mock.Anything, event).Return(errors.New("mongo down")).Once()
	healthy.On("Record", mock.Anything, event).Return(nil).Once()

	err := audit.Fanout{failing, healthy}.Record(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo down")

	failing.AssertExpectations(t)
	healthy.AssertExpectations(t)
}

func TestFanout_Empty(t *testing.T) {
	assert.NoError(t, audit.Fanout{}.Record(context.Background(), domain.AuditEvent{Action: "x"}))
}
