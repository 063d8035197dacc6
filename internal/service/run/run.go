package run

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jgivc/harvester/internal/common"
	"github.com/jgivc/harvester/internal/config"
	"github.com/jgivc/harvester/internal/entity"
)

const (
	serviceName = "run"
)

type Discovery interface {
	Candidates(catalogPath string) ([]entity.CandidateFile, error)
}

type FingerprintStore interface {
	Lookup(id string) (entity.ContentFingerprint, bool)
	Record(fp entity.ContentFingerprint) error
	Delete(id string) error
}

type Ledger interface {
	Upsert(entry entity.LedgerEntry) error
	Delete(id string) error
	All() []entity.LedgerEntry
}

type Fetcher interface {
	Fetch(ctx context.Context, candidate entity.CandidateFile) (*entity.DownloadOutcome, error)
}

type ReportStorage interface {
	WriteReport(report *entity.RunReport, entries []entity.LedgerEntry) error
	WriteFailureMarker(report *entity.RunReport) error
	ClearFailureMarker() error
}

// ReportRepository publishes finished run summaries, e.g. to redis. May be
// nil when no repository is configured.
type ReportRepository interface {
	Publish(ctx context.Context, report *entity.RunReport) error
}

// runService drives one run: discovery -> fingerprint lookup -> fetch ->
// store updates -> aggregation. At most one run is in flight per process;
// distinct runs never overlap the stores.
type runService struct {
	running atomic.Bool

	discovery Discovery
	store     FingerprintStore
	ledger    Ledger
	fetcher   Fetcher
	reports   ReportStorage
	repo      ReportRepository

	catalogPath string
	workers     int

	mu   sync.RWMutex
	last *entity.RunReport

	log *slog.Logger
}

func NewRunService(discovery Discovery, store FingerprintStore, ledger Ledger, fetcher Fetcher,
	reports ReportStorage, repo ReportRepository, catalogPath string, cfg *config.OrchestratorConfig, log *slog.Logger) *runService {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	return &runService{
		discovery:   discovery,
		store:       store,
		ledger:      ledger,
		fetcher:     fetcher,
		reports:     reports,
		repo:        repo,
		catalogPath: catalogPath,
		workers:     workers,
		log:         log.With(slog.String("service", serviceName)),
	}
}

// Run executes one full run over the current catalog and returns the
// finalized report. A second Run while one is in flight fails with
// ErrRunHasAlreadyStarted. A store write failure aborts the run early;
// the report still carries every outcome determined before the abort.
func (s *runService) Run(ctx context.Context) (*entity.RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, common.ErrRunHasAlreadyStarted
	}
	defer s.running.Store(false)

	report := entity.NewRunReport()
	log := s.log.With(slog.String("run_id", report.ID))
	log.Info("Run started")

	candidates, err := s.discovery.Candidates(s.catalogPath)
	if err != nil {
		return nil, fmt.Errorf("cannot discover candidates: %w", err)
	}

	report.Candidates = len(candidates)

	outcomes, runErr := s.process(ctx, log, candidates)

	for _, outcome := range outcomes {
		switch outcome.Status {
		case entity.OutcomeSucceeded:
			report.Succeeded++
		case entity.OutcomeSkipped:
			report.Skipped++
		case entity.OutcomeFailed:
			report.Failed = append(report.Failed, entity.FailedCandidate{
				LogicalID: outcome.LogicalID,
				Kind:      outcome.LastError.Kind,
				KindName:  outcome.LastError.Kind.String(),
				Attempts:  outcome.Attempts,
			})
		}
	}

	// Keep the failed sequence in candidate order regardless of which worker
	// finished first.
	order := make(map[string]int, len(candidates))
	for i, candidate := range candidates {
		order[candidate.LogicalID] = i
	}
	sort.Slice(report.Failed, func(i, j int) bool {
		return order[report.Failed[i].LogicalID] < order[report.Failed[j].LogicalID]
	})

	report.FinishedAt = time.Now()
	report.Aborted = runErr != nil

	s.finalize(ctx, log, report)

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	log.Info("Run finished",
		slog.Int("succeeded", report.Succeeded),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", len(report.Failed)),
		slog.String("class", report.Class().String()))

	return report, runErr
}

// LastReport returns the report of the most recently finished run.
func (s *runService) LastReport() (*entity.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return nil, common.ErrNoReportYet
	}

	return s.last, nil
}

// process fans candidates out to the worker pool. Work is partitioned by a
// hash of the logical ID so the same ID can never be in flight on two
// workers at once.
func (s *runService) process(ctx context.Context, log *slog.Logger, candidates []entity.CandidateFile) ([]*entity.DownloadOutcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queues := make([]chan entity.CandidateFile, s.workers)
	for n := range queues {
		queues[n] = make(chan entity.CandidateFile, len(candidates))
	}

	for _, candidate := range candidates {
		queues[partition(candidate.LogicalID, s.workers)] <- candidate
	}
	for _, queue := range queues {
		close(queue)
	}

	out := make(chan *entity.DownloadOutcome, len(candidates))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		abortErr error
	)

	abort := func(err error) {
		errOnce.Do(func() {
			abortErr = err
			cancel()
		})
	}

	wg.Add(s.workers)
	for n, queue := range queues {
		go s.worker(ctx, log.With(slog.Int("worker_id", n)), queue, out, &wg, abort)
	}

	wg.Wait()
	close(out)

	outcomes := make([]*entity.DownloadOutcome, 0, len(candidates))
	for outcome := range out {
		outcomes = append(outcomes, outcome)
	}

	if abortErr == nil && ctx.Err() != nil {
		abortErr = ctx.Err()
	}

	return outcomes, abortErr
}

func (s *runService) worker(ctx context.Context, log *slog.Logger, in chan entity.CandidateFile,
	out chan *entity.DownloadOutcome, wg *sync.WaitGroup, abort func(error)) {
	defer wg.Done()

	for candidate := range in {
		select {
		case <-ctx.Done():
			log.Info("Interrupted")

			return
		default:
		}

		outcome, err := s.processCandidate(ctx, candidate)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("Aborting run", slog.String("id", candidate.LogicalID), slog.Any("error", err))
				abort(err)
			}

			return
		}

		out <- outcome
	}
}

// processCandidate is the per-candidate state machine. The remote exposes no
// usable pre-fetch hash, so "unchanged" detection is post-hoc: the bytes are
// fetched and the fresh hash is compared against the stored fingerprint,
// skipping only the ledger write when they match. The one shortcut is a
// candidate whose catalog entry carries a known hash already on record.
func (s *runService) processCandidate(ctx context.Context, candidate entity.CandidateFile) (*entity.DownloadOutcome, error) {
	if candidate.ExpectedHash != "" {
		if fp, ok := s.store.Lookup(candidate.LogicalID); ok && fp.Hash == candidate.ExpectedHash {
			return &entity.DownloadOutcome{
				LogicalID: candidate.LogicalID,
				Status:    entity.OutcomeSkipped,
			}, nil
		}
	}

	outcome, err := s.fetcher.Fetch(ctx, candidate)
	if err != nil {
		return nil, err
	}

	if outcome.Status == entity.OutcomeFailed {
		return outcome, nil
	}

	prev, had := s.store.Lookup(candidate.LogicalID)

	if err := s.store.Record(*outcome.Fingerprint); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistenceFailure, err)
	}

	if had && prev.Hash == outcome.Fingerprint.Hash {
		return &entity.DownloadOutcome{
			LogicalID: candidate.LogicalID,
			Status:    entity.OutcomeSkipped,
		}, nil
	}

	if err := s.ledger.Upsert(*outcome.Entry); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistenceFailure, err)
	}

	return outcome, nil
}

// finalize hands the finished report to the reporting side effects. These
// are best effort: a report artifact failure is logged, never escalated.
func (s *runService) finalize(ctx context.Context, log *slog.Logger, report *entity.RunReport) {
	switch {
	case report.Class() == entity.RunTotalFailure:
		if err := s.reports.WriteFailureMarker(report); err != nil {
			log.Error("Cannot write failure marker", slog.Any("error", err))
		}
	case !report.Aborted:
		if err := s.reports.ClearFailureMarker(); err != nil {
			log.Error("Cannot clear failure marker", slog.Any("error", err))
		}
	}

	if err := s.reports.WriteReport(report, s.ledger.All()); err != nil {
		log.Error("Cannot write report", slog.Any("error", err))
	}

	if s.repo != nil {
		if err := s.repo.Publish(ctx, report); err != nil {
			log.Error("Cannot publish report", slog.Any("error", err))
		}
	}
}

func partition(id string, workers int) int {
	h := fnv.New32a()
	h.Write([]byte(id))

	return int(h.Sum32() % uint32(workers))
}
