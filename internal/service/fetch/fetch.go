package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jgivc/harvester/internal/adapter/httpadapter"
	"github.com/jgivc/harvester/internal/config"
	"github.com/jgivc/harvester/internal/entity"
	"github.com/spf13/afero"
)

const (
	serviceName = "fetch"

	tmpSuffix = ".part"
)

// Adapter performs a single download attempt into tmpPath.
type Adapter interface {
	Fetch(ctx context.Context, url, tmpPath string) (*httpadapter.Result, error)
}

// fetchService owns the whole retry budget for one candidate. Every failure
// kind is treated as transient and consumes one attempt; after the last
// attempt the candidate is reported failed and the destination is untouched.
type fetchService struct {
	adapter     Adapter
	fs          afero.Fs
	cfg         *config.FetcherConfig
	maxAttempts int
	log         *slog.Logger
}

func NewFetchService(adapter Adapter, fs afero.Fs, cfg *config.FetcherConfig, log *slog.Logger) *fetchService {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &fetchService{
		adapter:     adapter,
		fs:          fs,
		cfg:         cfg,
		maxAttempts: maxAttempts,
		log:         log.With(slog.String("service", serviceName)),
	}
}

// Fetch drives one candidate through up to MaxAttempts download attempts.
// The returned error is non-nil only when ctx was cancelled; everything else
// ends in a Succeeded or Failed outcome.
func (s *fetchService) Fetch(ctx context.Context, candidate entity.CandidateFile) (*entity.DownloadOutcome, error) {
	log := s.log.With(slog.String("id", candidate.LogicalID), slog.String("url", candidate.SourceURL))
	tmpPath := candidate.DestinationPath + tmpSuffix

	var lastErr *entity.FetchError

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := s.backoffDelay(attempt)
			log.Warn("Retrying", slog.Int("attempt", attempt), slog.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		res, ferr := s.attempt(ctx, candidate, tmpPath)
		if ferr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			lastErr = ferr
			log.Warn("Attempt failed", slog.Int("attempt", attempt), slog.String("kind", ferr.Kind.String()), slog.Any("error", ferr.Err))

			continue
		}

		now := time.Now()

		return &entity.DownloadOutcome{
			LogicalID: candidate.LogicalID,
			Status:    entity.OutcomeSucceeded,
			Fingerprint: &entity.ContentFingerprint{
				LogicalID:  candidate.LogicalID,
				Hash:       res.Hash,
				SizeBytes:  res.SizeBytes,
				ObservedAt: now,
			},
			Entry: &entity.LedgerEntry{
				LogicalID:       candidate.LogicalID,
				Filename:        filepath.Base(candidate.DestinationPath),
				DestinationPath: candidate.DestinationPath,
				SizeBytes:       res.SizeBytes,
				DownloadedAt:    now,
				Category:        candidate.Category,
			},
		}, nil
	}

	log.Error("All attempts exhausted", slog.Int("attempts", s.maxAttempts), slog.String("kind", lastErr.Kind.String()))

	return &entity.DownloadOutcome{
		LogicalID: candidate.LogicalID,
		Status:    entity.OutcomeFailed,
		Attempts:  s.maxAttempts,
		LastError: lastErr,
	}, nil
}

// attempt runs one download attempt end to end: transfer to temp, verify the
// pre-known hash when the candidate carries one, then atomically rename the
// temp file over the destination. The temp file never survives a failure.
func (s *fetchService) attempt(ctx context.Context, candidate entity.CandidateFile, tmpPath string) (*httpadapter.Result, *entity.FetchError) {
	if err := s.fs.MkdirAll(filepath.Dir(candidate.DestinationPath), 0o755); err != nil {
		return nil, &entity.FetchError{Kind: entity.ErrKindStorageWrite, Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout.Value())
	defer cancel()

	res, err := s.adapter.Fetch(attemptCtx, candidate.SourceURL, tmpPath)
	if err != nil {
		var ferr *entity.FetchError
		if !errors.As(err, &ferr) {
			ferr = &entity.FetchError{Kind: entity.ErrKindNetworkUnreachable, Err: err}
		}

		return nil, ferr
	}

	if candidate.ExpectedHash != "" && res.Hash != candidate.ExpectedHash {
		s.fs.Remove(tmpPath)

		return nil, &entity.FetchError{
			Kind: entity.ErrKindHashMismatch,
			Err:  fmt.Errorf("expected %s, got %s", candidate.ExpectedHash, res.Hash),
		}
	}

	if err := s.fs.Rename(tmpPath, candidate.DestinationPath); err != nil {
		s.fs.Remove(tmpPath)

		return nil, &entity.FetchError{Kind: entity.ErrKindStorageWrite, Err: err}
	}

	return res, nil
}

// backoffDelay is the wait before the given attempt: base, 2*base, 4*base...
// capped at MaxDelay. No jitter, delays are deterministic.
func (s *fetchService) backoffDelay(attempt int) time.Duration {
	delay := s.cfg.BaseDelay.Value() * time.Duration(1<<uint(attempt-2))
	if max := s.cfg.MaxDelay.Value(); delay > max {
		delay = max
	}

	return delay
}
