package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jgivc/harvester/internal/common"
	"github.com/jgivc/harvester/internal/entity"
	"github.com/jgivc/harvester/internal/service/verify"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type fakeRunService struct {
	report *entity.RunReport
	runErr error
	last   *entity.RunReport
}

func (f *fakeRunService) Run(context.Context) (*entity.RunReport, error) {
	return f.report, f.runErr
}

func (f *fakeRunService) LastReport() (*entity.RunReport, error) {
	if f.last == nil {
		return nil, common.ErrNoReportYet
	}

	return f.last, nil
}

type fakeVerifyService struct {
	res *verify.Result
	err error
}

func (f *fakeVerifyService) Verify(context.Context) (*verify.Result, error) {
	return f.res, f.err
}

func TestRunHandler(t *testing.T) {
	report := entity.NewRunReport()
	report.Candidates = 2
	report.Succeeded = 2

	handler := NewRunHandler(&fakeRunService{report: report}, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/run", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got entity.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, report.ID, got.ID)
	require.Equal(t, 2, got.Succeeded)
}

func TestRunHandlerConflict(t *testing.T) {
	handler := NewRunHandler(&fakeRunService{runErr: common.ErrRunHasAlreadyStarted}, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/run", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunHandlerAborted(t *testing.T) {
	report := entity.NewRunReport()
	report.Aborted = true

	handler := NewRunHandler(&fakeRunService{report: report, runErr: common.ErrPersistenceFailure}, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/run", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var got entity.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.Aborted)
}

func TestReportHandler(t *testing.T) {
	report := entity.NewRunReport()

	handler := NewReportHandler(&fakeRunService{last: report}, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/report", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestReportHandlerNotFound(t *testing.T) {
	handler := NewReportHandler(&fakeRunService{}, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/report", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeHistoryRepository struct {
	last    map[string]string
	ids     []string
	lastErr error
	idsErr  error
}

func (f *fakeHistoryRepository) LastRun(context.Context) (map[string]string, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}

	return f.last, nil
}

func (f *fakeHistoryRepository) History(context.Context) ([]string, error) {
	if f.idsErr != nil {
		return nil, f.idsErr
	}

	return f.ids, nil
}

func TestHistoryHandler(t *testing.T) {
	repo := &fakeHistoryRepository{
		last: map[string]string{"id": "run-2", "class": "clean_success"},
		ids:  []string{"run-2", "run-1"},
	}

	handler := NewHistoryHandler(repo, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, repo.last, got.LastRun)
	require.Equal(t, repo.ids, got.History)
}

func TestHistoryHandlerNotFound(t *testing.T) {
	handler := NewHistoryHandler(&fakeHistoryRepository{lastErr: common.ErrNoReportYet}, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryHandlerRepositoryError(t *testing.T) {
	handler := NewHistoryHandler(&fakeHistoryRepository{idsErr: errors.New("connection refused")}, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestVerifyHandler(t *testing.T) {
	res := &verify.Result{Missing: []string{"/data/h1b/gone.csv"}}

	handler := NewVerifyHandler(&fakeVerifyService{res: res}, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/verify", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got verify.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, res.Missing, got.Missing)
}
