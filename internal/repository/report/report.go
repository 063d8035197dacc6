package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jgivc/harvester/internal/common"
	"github.com/jgivc/harvester/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	KeyRun        = "run" // HASH. run:<run_id> summary fields
	KeyLastRun    = "lr"  // HASH. Summary of the most recent run
	KeyHistory    = "rh"  // LIST. Run IDs, newest first, capped
	KeyClassStats = "cs"  // HASH. run class -> count, incremented per run

	KeySeparator = ":"
)

// reportRepository mirrors finished run summaries into redis so external
// dashboards can watch the harvester without touching its data dir.
type reportRepository struct {
	cl          *redis.Client
	historySize int64
	log         *slog.Logger
}

func NewReportRepository(cl *redis.Client, historySize int64, log *slog.Logger) *reportRepository {
	return &reportRepository{
		cl:          cl,
		historySize: historySize,
		log:         log.With(slog.String("item", "ReportRepository")),
	}
}

func (r *reportRepository) Publish(ctx context.Context, report *entity.RunReport) error {
	fields := map[string]interface{}{
		"id":          report.ID,
		"started_at":  report.StartedAt.Format(time.RFC3339),
		"finished_at": report.FinishedAt.Format(time.RFC3339),
		"candidates":  report.Candidates,
		"succeeded":   report.Succeeded,
		"skipped":     report.Skipped,
		"failed":      len(report.Failed),
		"class":       report.Class().String(),
	}

	pipe := r.cl.Pipeline()
	pipe.HSet(ctx, getKey(KeyRun, report.ID), fields)
	pipe.HSet(ctx, KeyLastRun, fields)
	pipe.LPush(ctx, KeyHistory, report.ID)
	pipe.LTrim(ctx, KeyHistory, 0, r.historySize-1)
	pipe.HIncrBy(ctx, KeyClassStats, report.Class().String(), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot publish run %s: %w", report.ID, err)
	}

	r.log.Info("Run published", slog.String("run_id", report.ID))

	return nil
}

// LastRun returns the summary fields of the most recent published run.
func (r *reportRepository) LastRun(ctx context.Context) (map[string]string, error) {
	fields, err := r.cl.HGetAll(ctx, KeyLastRun).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get last run: %w", err)
	}

	if len(fields) < 1 {
		return nil, common.ErrNoReportYet
	}

	return fields, nil
}

// History returns published run IDs, newest first.
func (r *reportRepository) History(ctx context.Context) ([]string, error) {
	ids, err := r.cl.LRange(ctx, KeyHistory, 0, r.historySize-1).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get run history: %w", err)
	}

	return ids, nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
