package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordOutcome represents the terminal outcome of a processed track
type RecordOutcome string

const (
	RecordSucceeded RecordOutcome = "succeeded"
	RecordFailed    RecordOutcome = "failed"
)

// DownloadRecord is one row of download history: the terminal outcome of a
// single track within a run. History is observational only; the queue and
// ledger files remain the durable source of truth.
type DownloadRecord struct {
	ID         string        `json:"id" gorm:"primaryKey"`
	RunID      string        `json:"run_id" gorm:"index"`
	TrackKey   string        `json:"track_key" gorm:"not null;index"`
	Outcome    RecordOutcome `json:"outcome" gorm:"not null;index"`
	Variant    int           `json:"variant"` // 1-based index of the variant that concluded the track
	Reason     string        `json:"reason,omitempty"`
	FilePath   string        `json:"file_path,omitempty"`
	DurationMS int64         `json:"duration_ms"`
	CreatedAt  time.Time     `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for GORM
func (DownloadRecord) TableName() string {
	return "download_records"
}

// NewDownloadRecord creates a history record for a terminal track outcome
func NewDownloadRecord(runID string, track Track, outcome RecordOutcome, variant int, duration time.Duration) *DownloadRecord {
	return &DownloadRecord{
		ID:         uuid.New().String(),
		RunID:      runID,
		TrackKey:   track.Key(),
		Outcome:    outcome,
		Variant:    variant,
		DurationMS: duration.Milliseconds(),
		CreatedAt:  time.Now(),
	}
}

// HistoryRepository defines the interface for download history persistence
type HistoryRepository interface {
	// Create persists a new history record
	Create(record *DownloadRecord) error

	// FindRecent returns the most recent records, newest first
	FindRecent(limit int) ([]*DownloadRecord, error)

	// FindByRun returns all records for one run, oldest first
	FindByRun(runID string) ([]*DownloadRecord, error)

	// CountByOutcome returns the number of records with the given outcome
	CountByOutcome(outcome RecordOutcome) (int64, error)

	// GetStats returns aggregate history statistics
	GetStats() (*HistoryStats, error)
}

// HistoryStats represents aggregate download history statistics
type HistoryStats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Runs      int64 `json:"runs"`
}
