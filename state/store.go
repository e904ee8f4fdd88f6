// ABOUTME: Persisted per-source sync state for dedup tracking
// ABOUTME: JSON set of delivered external ids with atomic temp-then-rename saves
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/adrg/xdg"

	"github.com/harperreed/commsync/models"
)

// Store holds the set of external ids already confirmed delivered for one
// source, plus a high-water timestamp bounding the next lookback window.
// It is the local retry-avoidance cache; the remote service remains the
// authority on what is truly new.
type Store struct {
	path      string
	source    models.Source
	ids       map[string]struct{}
	highWater time.Time
}

// fileFormat is the on-disk envelope. Earlier agents persisted a bare JSON
// array of ids; Open still reads that shape.
type fileFormat struct {
	Source    models.Source `json:"source"`
	SyncedIDs []string      `json:"syncedIds"`
	HighWater *time.Time    `json:"highWater,omitempty"`
	SavedAt   time.Time     `json:"savedAt"`
}

// DefaultDir returns the XDG state directory for sync state files.
func DefaultDir() string {
	return filepath.Join(xdg.StateHome, "commsync")
}

// Path returns the state file path for a source within dir.
func Path(dir string, source models.Source) string {
	return filepath.Join(dir, fmt.Sprintf("%s-synced.json", source))
}

// Open loads the persisted state for a source. A missing or corrupt file
// degrades to an empty set: prior dedup history is forfeited, but a run is
// never aborted over it. The error return covers only unexpected I/O
// failures (e.g. permission denied on an existing file).
func Open(dir string, source models.Source) (*Store, error) {
	s := &Store{
		path:   Path(dir, source),
		source: source,
		ids:    make(map[string]struct{}),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var envelope fileFormat
	if jsonErr := json.Unmarshal(data, &envelope); jsonErr == nil && envelope.SyncedIDs != nil {
		for _, id := range envelope.SyncedIDs {
			s.ids[id] = struct{}{}
		}
		if envelope.HighWater != nil {
			s.highWater = *envelope.HighWater
		}
		return s, nil
	}

	// Legacy shape: a bare array of ids.
	var legacy []string
	if jsonErr := json.Unmarshal(data, &legacy); jsonErr == nil {
		for _, id := range legacy {
			s.ids[id] = struct{}{}
		}
		return s, nil
	}

	fmt.Printf("  ⚠ State file for %s is unreadable, starting with empty dedup set\n", source)
	return s, nil
}

// Contains reports whether an external id was already delivered.
func (s *Store) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add marks an external id as delivered. Call only after the remote
// service confirms a terminal per-item outcome.
func (s *Store) Add(id string) {
	s.ids[id] = struct{}{}
}

// Len returns the number of tracked ids.
func (s *Store) Len() int {
	return len(s.ids)
}

// HighWater returns the newest delivered-item timestamp, or the zero time
// when none has been recorded.
func (s *Store) HighWater() time.Time {
	return s.highWater
}

// SetHighWater advances the high-water mark; older values are ignored.
func (s *Store) SetHighWater(t time.Time) {
	if t.After(s.highWater) {
		s.highWater = t
	}
}

// Clear forgets all tracked ids and the high-water mark. Used by full
// resync, which relies on the remote service's own dedup instead.
func (s *Store) Clear() {
	s.ids = make(map[string]struct{})
	s.highWater = time.Time{}
}

// Save persists the whole set atomically: write to a temp file in the same
// directory, then rename over the previous file. A crash mid-write leaves
// the prior valid state untouched.
func (s *Store) Save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	envelope := fileFormat{
		Source:    s.source,
		SyncedIDs: ids,
		SavedAt:   time.Now().UTC(),
	}
	if !s.highWater.IsZero() {
		hw := s.highWater
		envelope.HighWater = &hw
	}

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%s-synced-*.json", s.source))
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set state file mode: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}
