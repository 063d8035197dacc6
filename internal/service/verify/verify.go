package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jgivc/harvester/internal/common"
	"github.com/jgivc/harvester/internal/entity"
	"github.com/spf13/afero"
)

const (
	serviceName = "verify"

	tmpSuffix = ".part"
)

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

// Result lists the inconsistencies one verification pass found and repaired.
type Result struct {
	Missing    []string `json:"missing"`    // ledger entries whose file is gone, pruned from both stores
	Mismatched []string `json:"mismatched"` // files whose content drifted from the recorded fingerprint, re-recorded
	Orphans    []string `json:"orphans"`    // files on disk nothing tracks
}

// verifyService cross-checks the ledger against the files actually on disk.
// Dead entries are pruned so the next run re-downloads them; drifted files
// get their fingerprint refreshed from the bytes present.
type verifyService struct {
	fs      afero.Fs
	store   FingerprintStore
	ledger  Ledger
	dataDir string
	log     *slog.Logger
}

func NewVerifyService(fs afero.Fs, store FingerprintStore, ledger Ledger, dataDir string, log *slog.Logger) *verifyService {
	return &verifyService{
		fs:      fs,
		store:   store,
		ledger:  ledger,
		dataDir: dataDir,
		log:     log.With(slog.String("service", serviceName)),
	}
}

func (s *verifyService) Verify(ctx context.Context) (*Result, error) {
	res := &Result{}

	for _, entry := range s.ledger.All() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		info, err := s.fs.Stat(entry.DestinationPath)
		if err != nil {
			s.log.Warn("Missing file", slog.String("id", entry.LogicalID), slog.String("path", entry.DestinationPath))

			if err := s.ledger.Delete(entry.LogicalID); err != nil {
				return nil, fmt.Errorf("%w: %v", common.ErrPersistenceFailure, err)
			}
			if err := s.store.Delete(entry.LogicalID); err != nil {
				return nil, fmt.Errorf("%w: %v", common.ErrPersistenceFailure, err)
			}

			res.Missing = append(res.Missing, entry.DestinationPath)

			continue
		}

		hash, err := s.hashFile(entry.DestinationPath)
		if err != nil {
			return nil, fmt.Errorf("cannot hash %s: %w", entry.DestinationPath, err)
		}

		fp, ok := s.store.Lookup(entry.LogicalID)
		if ok && fp.Hash == hash && entry.SizeBytes == info.Size() {
			continue
		}

		s.log.Warn("Fingerprint drift", slog.String("id", entry.LogicalID), slog.String("path", entry.DestinationPath))

		entry.SizeBytes = info.Size()
		if err := s.ledger.Upsert(entry); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrPersistenceFailure, err)
		}

		if err := s.store.Record(entity.ContentFingerprint{
			LogicalID:  entry.LogicalID,
			Hash:       hash,
			SizeBytes:  info.Size(),
			ObservedAt: time.Now(),
		}); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrPersistenceFailure, err)
		}

		res.Mismatched = append(res.Mismatched, entry.DestinationPath)
	}

	orphans, err := s.findOrphans()
	if err != nil {
		return nil, err
	}
	res.Orphans = orphans

	s.log.Info("Verify finished",
		slog.Int("missing", len(res.Missing)),
		slog.Int("mismatched", len(res.Mismatched)),
		slog.Int("orphans", len(res.Orphans)))

	return res, nil
}

func (s *verifyService) findOrphans() ([]string, error) {
	tracked := make(map[string]struct{})
	for _, entry := range s.ledger.All() {
		tracked[entry.DestinationPath] = struct{}{}
	}

	var orphans []string
	for cat := entity.CategoryH1B; cat <= entity.CategoryEB; cat++ {
		dir := filepath.Join(s.dataDir, cat.Subdir())

		entries, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			continue // category dir not created yet
		}

		for _, info := range entries {
			if info.IsDir() || strings.HasSuffix(info.Name(), tmpSuffix) {
				continue
			}

			path := filepath.Join(dir, info.Name())
			if _, ok := tracked[path]; !ok {
				s.log.Warn("Orphaned file", slog.String("path", path))
				orphans = append(orphans, path)
			}
		}
	}

	return orphans, nil
}

func (s *verifyService) hashFile(path string) (string, error) {
	file, err := s.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
