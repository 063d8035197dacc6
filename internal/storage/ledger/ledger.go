package ledger

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/jgivc/harvester/internal/entity"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

const (
	tmpSuffix = ".tmp"
)

// ledgerStore holds one LedgerEntry per logical ID, persisted the same way
// as the fingerprint store: whole-file YAML behind a temp-then-rename.
// An entry is only ever written after the bytes it describes exist at the
// destination with the recorded size.
type ledgerStore struct {
	fs    afero.Fs
	path  string
	mu    sync.RWMutex
	items map[string]entity.LedgerEntry
	log   *slog.Logger
}

func NewStore(path string, log *slog.Logger) (*ledgerStore, error) {
	return NewStoreWithFS(afero.NewOsFs(), path, log)
}

func NewStoreWithFS(fs afero.Fs, path string, log *slog.Logger) (*ledgerStore, error) {
	s := &ledgerStore{
		fs:    fs,
		path:  path,
		items: make(map[string]entity.LedgerEntry),
		log:   log.With(slog.String("item", "Ledger")),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("cannot load ledger: %w", err)
	}

	return s, nil
}

func (s *ledgerStore) load() error {
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

	s.log.Info("Loaded ledger entries", slog.Int("count", len(s.items)))

	return nil
}

// Upsert replaces any prior entry sharing the logical ID.
func (s *ledgerStore) Upsert(entry entity.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.items[entry.LogicalID]
	s.items[entry.LogicalID] = entry

	if err := s.persist(); err != nil {
		if had {
			s.items[entry.LogicalID] = prev
		} else {
			delete(s.items, entry.LogicalID)
		}

		return fmt.Errorf("cannot persist ledger: %w", err)
	}

	return nil
}

func (s *ledgerStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.items[id]
	if !had {
		return nil
	}

	delete(s.items, id)

	if err := s.persist(); err != nil {
		s.items[id] = prev

		return fmt.Errorf("cannot persist ledger: %w", err)
	}

	return nil
}

// All returns every entry ordered by logical ID.
func (s *ledgerStore) All() []entity.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]entity.LedgerEntry, 0, len(s.items))
	for _, entry := range s.items {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LogicalID < entries[j].LogicalID
	})

	return entries
}

func (s *ledgerStore) persist() error {
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
