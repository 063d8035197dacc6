package fingerprint

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jgivc/harvester/internal/entity"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

const (
	tmpSuffix = ".tmp"
)

// fingerprintStore is the durable logical_id -> ContentFingerprint map.
// The whole map lives in memory and every Record rewrites the backing file
// through a temp-then-rename so a crash mid-write never corrupts it.
type fingerprintStore struct {
	fs    afero.Fs
	path  string
	mu    sync.RWMutex
	items map[string]entity.ContentFingerprint
	log   *slog.Logger
}

func NewStore(path string, log *slog.Logger) (*fingerprintStore, error) {
	return NewStoreWithFS(afero.NewOsFs(), path, log)
}

func NewStoreWithFS(fs afero.Fs, path string, log *slog.Logger) (*fingerprintStore, error) {
	s := &fingerprintStore{
		fs:    fs,
		path:  path,
		items: make(map[string]entity.ContentFingerprint),
		log:   log.With(slog.String("item", "FingerprintStore")),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("cannot load fingerprint store: %w", err)
	}

	return s, nil
}

func (s *fingerprintStore) load() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	if err := yaml.Unmarshal(data, &s.items); err != nil {
		return fmt.Errorf("cannot parse %s: %w", s.path, err)
	}

	s.log.Info("Loaded fingerprints", slog.Int("count", len(s.items)))

	return nil
}

// Lookup returns the stored fingerprint for a logical ID, if any.
func (s *fingerprintStore) Lookup(id string) (entity.ContentFingerprint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fp, ok := s.items[id]

	return fp, ok
}

// Record overwrites any prior fingerprint for the same logical ID and
// persists the store before returning.
func (s *fingerprintStore) Record(fp entity.ContentFingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.items[fp.LogicalID]
	s.items[fp.LogicalID] = fp

	if err := s.persist(); err != nil {
		if had {
			s.items[fp.LogicalID] = prev
		} else {
			delete(s.items, fp.LogicalID)
		}

		return fmt.Errorf("cannot persist fingerprint store: %w", err)
	}

	return nil
}

// Delete removes a fingerprint, used when the destination file is gone.
func (s *fingerprintStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.items[id]
	if !had {
		return nil
	}

	delete(s.items, id)

	if err := s.persist(); err != nil {
		s.items[id] = prev

		return fmt.Errorf("cannot persist fingerprint store: %w", err)
	}

	return nil
}

func (s *fingerprintStore) persist() error {
	data, err := yaml.Marshal(s.items)
	if err != nil {
		return err
	}

	tmp := s.path + tmpSuffix
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}

	if err := s.fs.Rename(tmp, s.path); err != nil {
		s.fs.Remove(tmp)

		return err
	}

	return nil
}
