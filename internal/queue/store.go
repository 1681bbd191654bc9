package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/tunepull/internal/domain"
)

// Store is the durable, ordered queue of pending tracks, persisted as a
// human-editable text file with one track key per line. Lines starting with
// '#' are comments. All mutations rewrite the file atomically (temp file plus
// rename) so a crash between operations never duplicates nor loses a track.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	items   []domain.Track
	claimed map[string]bool // in-flight track keys, reset on Load
}

// NewStore creates a queue store backed by the given file path
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{
		path:    path,
		logger:  logger,
		claimed: make(map[string]bool),
	}
}

// Path returns the queue file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the queue file, skipping blank lines, comments, and malformed
// entries with a warning. A missing file loads an empty queue. Load clears
// any in-flight claims from a previous run.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.claimed = make(map[string]bool)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read queue file: %w", err)
	}

	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		track, err := domain.ParseTrack(trimmed)
		if err != nil {
			s.logger.Warn("Skipping malformed queue line",
				zap.Int("line", i+1),
				zap.Error(err))
			continue
		}
		s.items = append(s.items, track)
	}

	return nil
}

// Add appends tracks not already queued and persists the result. Returns the
// number of tracks actually added.
func (s *Store) Add(tracks []domain.Track) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool, len(s.items))
	for _, item := range s.items {
		existing[item.Key()] = true
	}

	added := 0
	for _, track := range tracks {
		if track.IsZero() || existing[track.Key()] {
			continue
		}
		s.items = append(s.items, track)
		existing[track.Key()] = true
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return added, nil
}

// Claim returns the next track not yet claimed by a worker and marks it
// in-flight. Claims are in-memory only; an interrupted claim leaves the
// track in the persisted queue for the next run.
func (s *Store) Claim() (domain.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if !s.claimed[item.Key()] {
			s.claimed[item.Key()] = true
			return item, true
		}
	}
	return domain.Track{}, false
}

// Release drops the in-flight claim on a track without removing it
func (s *Store) Release(track domain.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, track.Key())
}

// Remove deletes the first entry matching the track and persists the new
// state. Removing a track that is not queued is a no-op.
func (s *Store) Remove(track domain.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, item := range s.items {
		if item.Equal(track) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.logger.Warn("Track not found in queue on remove", zap.String("track", track.Key()))
		delete(s.claimed, track.Key())
		return nil
	}

	s.items = append(s.items[:idx], s.items[idx+1:]...)
	delete(s.claimed, track.Key())
	return s.persistLocked()
}

// Clear removes all queued tracks and persists the empty queue
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.claimed = make(map[string]bool)
	return s.persistLocked()
}

// Snapshot returns a copy of the queued tracks in dispatch order
func (s *Store) Snapshot() []domain.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Track, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of queued tracks
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// IsEmpty checks if the queue has no pending tracks
func (s *Store) IsEmpty() bool {
	return s.Len() == 0
}

// persistLocked rewrites the queue file atomically. Callers must hold mu.
func (s *Store) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("create queue temp file: %w", err)
	}

	var sb strings.Builder
	for _, item := range s.items {
		sb.WriteString(item.Key())
		sb.WriteString("\n")
	}

	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write queue temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync queue temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close queue temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}
