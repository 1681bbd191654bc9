package infrastructure

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/tunepull/internal/domain"
)

// SQLiteHistoryRepository implements HistoryRepository using SQLite. History
// is purely observational: the queue and ledger text files remain the
// durable run state, so a lost history row never affects a run.
type SQLiteHistoryRepository struct {
	db *gorm.DB
}

// NewSQLiteHistoryRepository creates a new SQLite history repository
func NewSQLiteHistoryRepository(dbPath string) (*SQLiteHistoryRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if err := db.AutoMigrate(&domain.DownloadRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history database: %w", err)
	}

	return &SQLiteHistoryRepository{db: db}, nil
}

// Create persists a new history record
func (r *SQLiteHistoryRepository) Create(record *domain.DownloadRecord) error {
	return r.db.Create(record).Error
}

// FindRecent returns the most recent records, newest first
func (r *SQLiteHistoryRepository) FindRecent(limit int) ([]*domain.DownloadRecord, error) {
	var records []*domain.DownloadRecord
	query := r.db.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

// FindByRun returns all records for one run, oldest first
func (r *SQLiteHistoryRepository) FindByRun(runID string) ([]*domain.DownloadRecord, error) {
	var records []*domain.DownloadRecord
	err := r.db.Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

// CountByOutcome returns the number of records with the given outcome
func (r *SQLiteHistoryRepository) CountByOutcome(outcome domain.RecordOutcome) (int64, error) {
	var count int64
	err := r.db.Model(&domain.DownloadRecord{}).
		Where("outcome = ?", outcome).
		Count(&count).Error
	return count, err
}

// GetStats returns aggregate history statistics
func (r *SQLiteHistoryRepository) GetStats() (*domain.HistoryStats, error) {
	stats := &domain.HistoryStats{}

	if err := r.db.Model(&domain.DownloadRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	outcomeCounts := []struct {
		Outcome domain.RecordOutcome
		Count   int64
	}{}
	if err := r.db.Model(&domain.DownloadRecord{}).
		Select("outcome, count(*) as count").
		Group("outcome").
		Scan(&outcomeCounts).Error; err != nil {
		return nil, err
	}
	for _, oc := range outcomeCounts {
		switch oc.Outcome {
		case domain.RecordSucceeded:
			stats.Succeeded = oc.Count
		case domain.RecordFailed:
			stats.Failed = oc.Count
		}
	}

	if err := r.db.Model(&domain.DownloadRecord{}).
		Distinct("run_id").
		Count(&stats.Runs).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteHistoryRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
