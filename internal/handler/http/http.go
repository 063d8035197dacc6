package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jgivc/harvester/internal/common"
	"github.com/jgivc/harvester/internal/entity"
	"github.com/jgivc/harvester/internal/service/verify"
)

type RunService interface {
	Run(ctx context.Context) (*entity.RunReport, error)
	LastReport() (*entity.RunReport, error)
}

type VerifyService interface {
	Verify(ctx context.Context) (*verify.Result, error)
}

type HistoryRepository interface {
	LastRun(ctx context.Context) (map[string]string, error)
	History(ctx context.Context) ([]string, error)
}

type historyResponse struct {
	LastRun map[string]string `json:"last_run"`
	History []string          `json:"history"`
}

// NewRunHandler triggers a full run. The run uses a background context so a
// dropped client connection cannot abort it mid-flight; the external
// scheduler is expected to POST here.
func NewRunHandler(srv RunService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "RunHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		report, err := srv.Run(context.Background())
		if err != nil {
			switch {
			case errors.Is(err, common.ErrRunHasAlreadyStarted):
				http.Error(w, "Run has already started", http.StatusConflict)

				return
			case report == nil:
				log.Error("Run failed", slog.Any("error", err))
				http.Error(w, "Cannot run", http.StatusInternalServerError)

				return
			}

			// Aborted run: the report still carries the outcomes that were
			// determined, hand it out with an error status.
			log.Error("Run aborted", slog.Any("error", err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(report)

			return
		}

		writeJSON(w, report, log)
	}
}

func NewReportHandler(srv RunService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ReportHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		report, err := srv.LastReport()
		if err != nil {
			switch {
			case errors.Is(err, common.ErrNoReportYet):
				http.Error(w, "No run report yet", http.StatusNotFound)
			default:
				http.Error(w, "Cannot get report", http.StatusInternalServerError)
			}

			return
		}

		writeJSON(w, report, log)
	}
}

// NewHistoryHandler serves the published run summaries: the last run's
// fields plus the capped list of run IDs, newest first.
func NewHistoryHandler(repo HistoryRepository, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "HistoryHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		last, err := repo.LastRun(r.Context())
		if err != nil {
			switch {
			case errors.Is(err, common.ErrNoReportYet):
				http.Error(w, "No published runs yet", http.StatusNotFound)
			default:
				log.Error("Cannot get last run", slog.Any("error", err))
				http.Error(w, "Cannot get history", http.StatusInternalServerError)
			}

			return
		}

		ids, err := repo.History(r.Context())
		if err != nil {
			log.Error("Cannot get history", slog.Any("error", err))
			http.Error(w, "Cannot get history", http.StatusInternalServerError)

			return
		}

		writeJSON(w, historyResponse{LastRun: last, History: ids}, log)
	}
}

func NewVerifyHandler(srv VerifyService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "VerifyHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		res, err := srv.Verify(r.Context())
		if err != nil {
			log.Error("Verify failed", slog.Any("error", err))
			http.Error(w, "Cannot verify", http.StatusInternalServerError)

			return
		}

		writeJSON(w, res, log)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Cannot encode response", slog.Any("error", err))
	}
}
