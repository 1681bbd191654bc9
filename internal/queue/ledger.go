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

const ledgerReasonPrefix = "  Error: "

// LedgerEntry is one permanently failed track with its final failure reason
type LedgerEntry struct {
	Track  domain.Track `json:"track"`
	Reason string       `json:"reason,omitempty"`
}

// Ledger is the durable, append-only log of permanently failed tracks. Each
// entry is a human-readable block: the track key on its own line, an
// indented "  Error: <reason>" line when a reason exists, then a blank line.
// Prior entries are never rewritten; Reset exists only for the explicit
// requeue flow.
type Ledger struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewLedger creates a failure ledger backed by the given file path
func NewLedger(path string, logger *zap.Logger) *Ledger {
	return &Ledger{
		path:   path,
		logger: logger,
	}
}

// Path returns the ledger file path
func (l *Ledger) Path() string {
	return l.path
}

// Append durably records one failed track with its reason. Appends from
// concurrent workers serialize; each call is persisted exactly once.
func (l *Ledger) Append(track domain.Track, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open failure ledger: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	sb.WriteString(track.Key())
	sb.WriteString("\n")
	if reason != "" {
		sb.WriteString(ledgerReasonPrefix)
		sb.WriteString(strings.ReplaceAll(reason, "\n", " "))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("append failure ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync failure ledger: %w", err)
	}
	return nil
}

// Load parses the ledger back into entries for display and requeueing.
// Malformed track lines are skipped with a warning. A missing file loads an
// empty ledger.
func (l *Ledger) Load() ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read failure ledger: %w", err)
	}

	var entries []LedgerEntry
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, ledgerReasonPrefix) {
			if len(entries) > 0 {
				entries[len(entries)-1].Reason = strings.TrimSpace(strings.TrimPrefix(line, ledgerReasonPrefix))
			}
			continue
		}
		track, err := domain.ParseTrack(line)
		if err != nil {
			l.logger.Warn("Skipping malformed ledger line",
				zap.Int("line", i+1),
				zap.Error(err))
			continue
		}
		entries = append(entries, LedgerEntry{Track: track})
	}
	return entries, nil
}

// Reset truncates the ledger. Used only after failed tracks have been moved
// back into the queue.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close ledger temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace failure ledger: %w", err)
	}
	return nil
}
