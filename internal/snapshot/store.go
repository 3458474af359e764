package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bencmd88/venicegate/internal/apispec"
	"github.com/bencmd88/venicegate/internal/fsutil"
)

// DefaultMaxChanges bounds the change log.
const DefaultMaxChanges = 100

// Store manages the last-known specification and the change log on disk.
type Store struct {
	dir        string
	maxChanges int
}

// NewStore creates a Store rooted at dir (usually the repository's docs/).
func NewStore(dir string, maxChanges int) *Store {
	if maxChanges <= 0 {
		maxChanges = DefaultMaxChanges
	}
	return &Store{dir: dir, maxChanges: maxChanges}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// SpecPath returns the path of the snapshot file.
func (s *Store) SpecPath() string {
	return filepath.Join(s.dir, "swagger.yaml")
}

// ChangesPath returns the path of the change log.
func (s *Store) ChangesPath() string {
	return filepath.Join(s.dir, "api_changes.json")
}

// Load returns the stored snapshot. A missing snapshot is the empty
// document, not an error.
func (s *Store) Load() (*apispec.Document, error) {
	raw, err := os.ReadFile(s.SpecPath())
	if errors.Is(err, fs.ErrNotExist) {
		return apispec.Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	doc, err := apispec.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", s.SpecPath(), err)
	}
	return doc, nil
}

// Save overwrites the snapshot with raw.
func (s *Store) Save(raw []byte) error {
	if err := fsutil.WriteAtomic(s.SpecPath(), raw); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Changes returns the logged change sets, oldest first.
func (s *Store) Changes() ([]ChangeSet, error) {
	var changes []ChangeSet
	if _, err := fsutil.ReadJSONIfExists(s.ChangesPath(), &changes); err != nil {
		return nil, fmt.Errorf("read change log: %w", err)
	}
	return changes, nil
}

// Latest returns the most recently logged change set, or nil when the log is empty.
func (s *Store) Latest() (*ChangeSet, error) {
	changes, err := s.Changes()
	if err != nil || len(changes) == 0 {
		return nil, err
	}
	return &changes[len(changes)-1], nil
}

// AppendChange adds cs to the change log, evicting the oldest entries
// beyond the configured bound.
func (s *Store) AppendChange(cs *ChangeSet) error {
	changes, err := s.Changes()
	if err != nil {
		return err
	}
	changes = append(changes, *cs)
	if len(changes) > s.maxChanges {
		changes = changes[len(changes)-s.maxChanges:]
	}
	if err := fsutil.WriteJSON(s.ChangesPath(), changes); err != nil {
		return fmt.Errorf("write change log: %w", err)
	}
	return nil
}
