//go:build !integration

package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/price-audit/internal/model"
	"github.com/sells-group/price-audit/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, tasks int) (*model.Run, error) {
	args := m.Called(ctx, tasks)
	run, _ := args.Get(0).(*model.Run)
	return run, args.Error(1)
}

func (m *mockStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary model.RunSummary) error {
	return m.Called(ctx, runID, status, summary).Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	run, _ := args.Get(0).(*model.Run)
	return run, args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	runs, _ := args.Get(0).([]model.Run)
	return runs, args.Error(1)
}

func (m *mockStore) SaveRecord(ctx context.Context, runID string, rec model.AuditRecord) error {
	return m.Called(ctx, runID, rec).Error(0)
}

func (m *mockStore) ListRecords(ctx context.Context, runID string, filter store.RecordFilter) ([]model.AuditRecord, error) {
	args := m.Called(ctx, runID, filter)
	recs, _ := args.Get(0).([]model.AuditRecord)
	return recs, args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStore) Close() error                      { return m.Called().Error(0) }

func blockedAuditor() auditFunc {
	return func(_ context.Context, task model.Task) model.AuditRecord {
		return model.AuditRecord{
			ProductID: task.ProductID, VendorDomain: task.VendorDomain, SearchQuery: task.SearchQuery,
			Timestamp: time.Now(), Status: model.StatusBlocked, Attempts: 1,
		}
	}
}

func TestExecuteAudit_SaveFailureDoesNotAbortRun(t *testing.T) {
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, 3).Return(&model.Run{ID: "run-1", Status: model.RunStatusRunning}, nil)
	st.On("SaveRecord", mock.Anything, "run-1", mock.Anything).Return(errors.New("disk full"))
	st.On("FinishRun", mock.Anything, "run-1", model.RunStatusComplete,
		mock.MatchedBy(func(s model.RunSummary) bool { return s.Total == 3 })).Return(nil)

	out, err := executeAudit(context.Background(), blockedAuditor(), st, sampleTasks(), 2)
	require.NoError(t, err)
	assert.Len(t, out.Report.Rows, 3, "records are still reported")
	st.AssertNumberOfCalls(t, "SaveRecord", 3)
	st.AssertExpectations(t)
}

func TestExecuteAudit_CreateRunFails(t *testing.T) {
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, 3).Return(nil, errors.New("db down"))

	_, err := executeAudit(context.Background(), blockedAuditor(), st, sampleTasks(), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create run")
	st.AssertNotCalled(t, "SaveRecord", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteAudit_FinishRunFails(t *testing.T) {
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, 3).Return(&model.Run{ID: "run-1"}, nil)
	st.On("SaveRecord", mock.Anything, "run-1", mock.Anything).Return(nil)
	st.On("FinishRun", mock.Anything, "run-1", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := executeAudit(context.Background(), blockedAuditor(), st, sampleTasks(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finish run")
}

func TestRouter_StoreError(t *testing.T) {
	st := &mockStore{}
	st.On("ListRuns", mock.Anything, store.RunFilter{}).Return(nil, errors.New("boom"))

	rec := get(t, newRouter(st), "/runs")
	assert.Equal(t, 500, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
