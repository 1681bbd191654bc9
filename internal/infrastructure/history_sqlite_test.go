package infrastructure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/tunepull/internal/domain"
)

func newTestHistory(t *testing.T) *SQLiteHistoryRepository {
	t.Helper()
	repo, err := NewSQLiteHistoryRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func record(runID, key string, outcome domain.RecordOutcome, variant int) *domain.DownloadRecord {
	track, _ := domain.ParseTrack(key)
	return domain.NewDownloadRecord(runID, track, outcome, variant, 1500*time.Millisecond)
}

func TestSQLiteHistoryRepository_CreateAndFindRecent(t *testing.T) {
	repo := newTestHistory(t)

	require.NoError(t, repo.Create(record("run-1", "Take Five - Dave Brubeck", domain.RecordSucceeded, 1)))
	require.NoError(t, repo.Create(record("run-1", "So What - Miles Davis", domain.RecordFailed, 5)))

	records, err := repo.FindRecent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, "run-1", r.RunID)
		assert.Equal(t, int64(1500), r.DurationMS)
	}
}

func TestSQLiteHistoryRepository_FindRecentHonorsLimit(t *testing.T) {
	repo := newTestHistory(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(record("run-1", "Track - Artist", domain.RecordSucceeded, 1)))
	}

	records, err := repo.FindRecent(3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestSQLiteHistoryRepository_FindByRun(t *testing.T) {
	repo := newTestHistory(t)
	require.NoError(t, repo.Create(record("run-1", "A - X", domain.RecordSucceeded, 1)))
	require.NoError(t, repo.Create(record("run-2", "B - Y", domain.RecordFailed, 5)))

	records, err := repo.FindByRun("run-2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "B - Y", records[0].TrackKey)
}

func TestSQLiteHistoryRepository_CountByOutcome(t *testing.T) {
	repo := newTestHistory(t)
	require.NoError(t, repo.Create(record("run-1", "A - X", domain.RecordSucceeded, 1)))
	require.NoError(t, repo.Create(record("run-1", "B - Y", domain.RecordSucceeded, 2)))
	require.NoError(t, repo.Create(record("run-1", "C - Z", domain.RecordFailed, 5)))

	succeeded, err := repo.CountByOutcome(domain.RecordSucceeded)
	require.NoError(t, err)
	failed, err := repo.CountByOutcome(domain.RecordFailed)
	require.NoError(t, err)

	assert.Equal(t, int64(2), succeeded)
	assert.Equal(t, int64(1), failed)
}

func TestSQLiteHistoryRepository_GetStats(t *testing.T) {
	repo := newTestHistory(t)
	require.NoError(t, repo.Create(record("run-1", "A - X", domain.RecordSucceeded, 1)))
	require.NoError(t, repo.Create(record("run-1", "B - Y", domain.RecordFailed, 5)))
	require.NoError(t, repo.Create(record("run-2", "C - Z", domain.RecordSucceeded, 3)))

	stats, err := repo.GetStats()
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(2), stats.Runs)
}
