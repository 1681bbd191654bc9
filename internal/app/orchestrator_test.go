package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/tunepull/internal/domain"
	"github.com/yourusername/tunepull/internal/queue"
)

// scriptedAttempter stands in for the backend runner. Outcomes are decided
// per track and per attempt number; it also records concurrency so tests can
// assert the at-most-one-attempt-per-track guarantee.
type scriptedAttempter struct {
	outcome func(track domain.Track, nthAttempt int) domain.AttemptResult

	mu          sync.Mutex
	calls       map[string]int
	inFlight    map[string]int
	overlapped  bool // two workers held the same track at once
	maxInFlight int  // peak concurrent attempts across all tracks

	hold    time.Duration // simulated attempt duration
	release chan struct{} // when set, attempts block until closed or ctx ends
}

func newScriptedAttempter(outcome func(track domain.Track, nthAttempt int) domain.AttemptResult) *scriptedAttempter {
	return &scriptedAttempter{
		outcome:  outcome,
		calls:    make(map[string]int),
		inFlight: make(map[string]int),
	}
}

func (a *scriptedAttempter) Attempt(ctx context.Context, track domain.Track, variant domain.Variant, timeout time.Duration) domain.AttemptResult {
	a.mu.Lock()
	a.calls[track.Key()]++
	nth := a.calls[track.Key()]
	a.inFlight[track.Key()]++
	if a.inFlight[track.Key()] > 1 {
		a.overlapped = true
	}
	total := 0
	for _, n := range a.inFlight {
		total += n
	}
	if total > a.maxInFlight {
		a.maxInFlight = total
	}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inFlight[track.Key()]--
		a.mu.Unlock()
	}()

	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return domain.AttemptResult{Outcome: domain.OutcomeFailure, Reason: "attempt canceled"}
		}
	}
	if a.hold > 0 {
		select {
		case <-time.After(a.hold):
		case <-ctx.Done():
			return domain.AttemptResult{Outcome: domain.OutcomeFailure, Reason: "attempt canceled"}
		}
	}
	return a.outcome(track, nth)
}

func (a *scriptedAttempter) callCount(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[key]
}

func alwaysFail(track domain.Track, nth int) domain.AttemptResult {
	return domain.AttemptResult{
		Outcome: domain.OutcomeFailure,
		Reason:  fmt.Sprintf("variant %d: no results", nth),
	}
}

func alwaysSucceed(track domain.Track, nth int) domain.AttemptResult {
	return domain.AttemptResult{Outcome: domain.OutcomeSuccess, FilePath: "/music/" + track.Key() + ".flac"}
}

func testVariants(n int) []domain.Variant {
	variants := make([]domain.Variant, n)
	for i := range variants {
		variants[i] = domain.Variant{
			Name: fmt.Sprintf("variant-%d", i+1),
			Args: []string{fmt.Sprintf("shape-%d", i+1), "{query}", "-o", "{dir}"},
		}
	}
	return variants
}

func testConfig(dir string) *domain.DownloadConfig {
	return &domain.DownloadConfig{
		MusicDir:     filepath.Join(dir, "music"),
		QueueFile:    filepath.Join(dir, "track_list.txt"),
		FailedFile:   filepath.Join(dir, "failed_tracks.txt"),
		Workers:      3,
		TrackTimeout: time.Second,
	}
}

func newTestOrchestrator(t *testing.T, attempter domain.Attempter, keys ...string) (*Orchestrator, *queue.Store, *queue.Ledger) {
	t.Helper()
	cfg := testConfig(t.TempDir())
	store := queue.NewStore(cfg.QueueFile, zap.NewNop())
	ledger := queue.NewLedger(cfg.FailedFile, zap.NewNop())

	tracks := make([]domain.Track, 0, len(keys))
	for _, key := range keys {
		track, err := domain.ParseTrack(key)
		require.NoError(t, err)
		tracks = append(tracks, track)
	}
	if len(tracks) > 0 {
		_, err := store.Add(tracks)
		require.NoError(t, err)
	}

	orch := NewOrchestrator(store, ledger, attempter, testVariants(5), cfg, nil, zap.NewNop())
	return orch, store, ledger
}

func TestOrchestrator_SuccessRemovesFromQueueWithoutLedgerTrace(t *testing.T) {
	attempter := newScriptedAttempter(alwaysSucceed)
	orch, store, ledger := newTestOrchestrator(t, attempter,
		"Take Five - Dave Brubeck",
		"So What - Miles Davis")

	summary, err := orch.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Succeeded: 2, Failed: 0, Remaining: 0}, summary)
	assert.True(t, store.IsEmpty())

	entries, err := ledger.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// First variant succeeded, so exactly one attempt per track
	assert.Equal(t, 1, attempter.callCount("Take Five - Dave Brubeck"))
}

func TestOrchestrator_FallbackExhaustionKeepsLastReason(t *testing.T) {
	attempter := newScriptedAttempter(alwaysFail)
	orch, store, ledger := newTestOrchestrator(t, attempter, "Nonexistent Track - Nobody")

	summary, err := orch.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Succeeded: 0, Failed: 1, Remaining: 0}, summary)
	assert.Equal(t, 5, attempter.callCount("Nonexistent Track - Nobody"))
	assert.True(t, store.IsEmpty())

	entries, err := ledger.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Nonexistent Track - Nobody", entries[0].Track.Key())
	assert.Equal(t, "variant 5: no results", entries[0].Reason)
}

func TestOrchestrator_SucceedsOnLaterVariant(t *testing.T) {
	attempter := newScriptedAttempter(func(track domain.Track, nth int) domain.AttemptResult {
		if nth < 3 {
			return domain.AttemptResult{Outcome: domain.OutcomeTimeout, Reason: "timeout after 1s"}
		}
		return domain.AttemptResult{Outcome: domain.OutcomeSuccess}
	})
	orch, store, ledger := newTestOrchestrator(t, attempter, "Blue in Green - Bill Evans")

	summary, err := orch.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 3, attempter.callCount("Blue in Green - Bill Evans"))
	assert.True(t, store.IsEmpty())

	entries, err := ledger.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOrchestrator_IdempotentResumption(t *testing.T) {
	attempter := newScriptedAttempter(alwaysFail)
	orch, store, ledger := newTestOrchestrator(t, attempter,
		"First - Artist",
		"Second - Artist")

	_, err := orch.RunOnce(context.Background())
	require.NoError(t, err)

	// The queue drained on the first run, so the second run must not
	// produce duplicate ledger entries
	summary, err := orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)

	entries, err := ledger.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.True(t, store.IsEmpty())
}

func TestOrchestrator_AtMostOneAttemptPerTrack(t *testing.T) {
	attempter := newScriptedAttempter(alwaysSucceed)
	attempter.hold = 10 * time.Millisecond

	keys := make([]string, 12)
	for i := range keys {
		keys[i] = fmt.Sprintf("Track %02d - Artist", i+1)
	}
	orch, _, _ := newTestOrchestrator(t, attempter, keys...)

	summary, err := orch.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, summary.Succeeded)
	assert.False(t, attempter.overlapped, "two workers attempted the same track concurrently")
	assert.LessOrEqual(t, attempter.maxInFlight, 3, "worker pool bound exceeded")
}

func TestOrchestrator_CancelStopsDispatchAndResumesCleanly(t *testing.T) {
	attempter := newScriptedAttempter(alwaysSucceed)
	attempter.release = make(chan struct{})

	keys := make([]string, 10)
	for i := range keys {
		keys[i] = fmt.Sprintf("Track %02d - Artist", i+1)
	}
	orch, store, ledger := newTestOrchestrator(t, attempter, keys...)

	done := make(chan Summary, 1)
	go func() {
		summary, err := orch.RunOnce(context.Background())
		assert.NoError(t, err)
		done <- summary
	}()

	// Wait until the three workers are each holding a track
	require.Eventually(t, func() bool {
		return len(orch.Status().Current) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, orch.IsRunning())

	orch.RequestCancel()
	close(attempter.release)

	var summary Summary
	select {
	case summary = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	assert.False(t, orch.IsRunning())
	// In-flight attempts completed; nothing new was dispatched after cancel
	assert.LessOrEqual(t, summary.Succeeded, 3)

	// The persisted queue holds exactly the tracks that did not succeed
	require.NoError(t, store.Load())
	assert.Equal(t, len(keys)-summary.Succeeded, store.Len())

	entries, err := ledger.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOrchestrator_CrashResumptionQueueMatchesUnfinishedSet(t *testing.T) {
	succeedKeys := map[string]bool{
		"Track 01 - Artist": true,
		"Track 02 - Artist": true,
	}
	attempter := newScriptedAttempter(func(track domain.Track, nth int) domain.AttemptResult {
		if succeedKeys[track.Key()] {
			return domain.AttemptResult{Outcome: domain.OutcomeSuccess}
		}
		return domain.AttemptResult{Outcome: domain.OutcomeFailure, Reason: "no results"}
	})

	orch, store, _ := newTestOrchestrator(t, attempter,
		"Track 01 - Artist", "Track 02 - Artist", "Track 03 - Artist", "Track 04 - Artist")

	// Abort the run as soon as the successes are through, simulating an
	// interruption before the remaining tracks reach a terminal state
	ctx, cancel := context.WithCancel(context.Background())
	attempter.hold = 5 * time.Millisecond
	go func() {
		for {
			status := orch.Status()
			if status.Succeeded == 2 {
				cancel()
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	_, err := orch.RunOnce(ctx)
	require.NoError(t, err)

	// Reloading the queue from disk yields exactly the unfinished tracks
	reloaded := queue.NewStore(store.Path(), zap.NewNop())
	require.NoError(t, reloaded.Load())
	for _, track := range reloaded.Snapshot() {
		assert.False(t, succeedKeys[track.Key()], "succeeded track %q still queued", track.Key())
	}
}

func TestOrchestrator_RunOnceIsMutuallyExclusive(t *testing.T) {
	attempter := newScriptedAttempter(alwaysSucceed)
	attempter.release = make(chan struct{})
	orch, _, _ := newTestOrchestrator(t, attempter, "Track 01 - Artist")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := orch.RunOnce(context.Background())
		assert.NoError(t, err)
	}()

	require.Eventually(t, orch.IsRunning, 2*time.Second, 5*time.Millisecond)

	_, err := orch.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")

	close(attempter.release)
	<-done
}

func TestOrchestrator_UnreadableQueueAbortsRun(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	cfg := testConfig(dir)
	cfg.QueueFile = filepath.Join(blocker, "track_list.txt") // parent is a file
	store := queue.NewStore(cfg.QueueFile, zap.NewNop())
	ledger := queue.NewLedger(cfg.FailedFile, zap.NewNop())
	orch := NewOrchestrator(store, ledger, newScriptedAttempter(alwaysSucceed), testVariants(5), cfg, nil, zap.NewNop())

	_, err := orch.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load queue")
}

func TestOrchestrator_EnqueueDeduplicates(t *testing.T) {
	orch, store, _ := newTestOrchestrator(t, newScriptedAttempter(alwaysSucceed))

	track, err := domain.ParseTrack("Take Five - Dave Brubeck")
	require.NoError(t, err)

	added, err := orch.Enqueue([]domain.Track{track})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = orch.Enqueue([]domain.Track{track})
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Equal(t, 1, store.Len())
}

func TestOrchestrator_RecordsHistoryPerTerminalOutcome(t *testing.T) {
	attempter := newScriptedAttempter(func(track domain.Track, nth int) domain.AttemptResult {
		if track.Title == "Good" {
			return domain.AttemptResult{Outcome: domain.OutcomeSuccess, FilePath: "/music/good.flac"}
		}
		return domain.AttemptResult{Outcome: domain.OutcomeFailure, Reason: "no results"}
	})
	orch, _, _ := newTestOrchestrator(t, attempter, "Good - Artist", "Bad - Artist")

	history := &recordingHistory{}
	orch.SetHistory(history)

	_, err := orch.RunOnce(context.Background())
	require.NoError(t, err)

	records := history.snapshot()
	require.Len(t, records, 2)
	byKey := make(map[string]*domain.DownloadRecord, 2)
	for _, record := range records {
		byKey[record.TrackKey] = record
	}
	require.Contains(t, byKey, "Good - Artist")
	require.Contains(t, byKey, "Bad - Artist")
	assert.Equal(t, domain.RecordSucceeded, byKey["Good - Artist"].Outcome)
	assert.Equal(t, 1, byKey["Good - Artist"].Variant)
	assert.Equal(t, domain.RecordFailed, byKey["Bad - Artist"].Outcome)
	assert.Equal(t, 5, byKey["Bad - Artist"].Variant)
	assert.Equal(t, "no results", byKey["Bad - Artist"].Reason)
}

func TestOrchestrator_RequeueFailedAll(t *testing.T) {
	attempter := newScriptedAttempter(alwaysFail)
	orch, store, ledger := newTestOrchestrator(t, attempter, "A - X", "B - Y")

	_, err := orch.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, store.IsEmpty())

	requeued, err := orch.RequeueFailed(nil)
	require.NoError(t, err)

	assert.Equal(t, 2, requeued)
	assert.Equal(t, 2, store.Len())
	entries, err := ledger.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOrchestrator_RequeueFailedNamed(t *testing.T) {
	attempter := newScriptedAttempter(alwaysFail)
	orch, store, ledger := newTestOrchestrator(t, attempter, "A - X", "B - Y")

	_, err := orch.RunOnce(context.Background())
	require.NoError(t, err)

	requeued, err := orch.RequeueFailed([]string{"B - Y"})
	require.NoError(t, err)

	assert.Equal(t, 1, requeued)
	require.Equal(t, 1, store.Len())
	assert.Equal(t, "B - Y", store.Snapshot()[0].Key())

	entries, err := ledger.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A - X", entries[0].Track.Key())
	assert.Equal(t, "variant 5: no results", entries[0].Reason)
}

func TestOrchestrator_RequeueFailedRefusedWhileRunning(t *testing.T) {
	attempter := newScriptedAttempter(alwaysSucceed)
	attempter.release = make(chan struct{})
	orch, _, _ := newTestOrchestrator(t, attempter, "A - X")

	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.RunOnce(context.Background())
	}()
	require.Eventually(t, orch.IsRunning, 2*time.Second, 5*time.Millisecond)

	_, err := orch.RequeueFailed(nil)
	require.Error(t, err)

	close(attempter.release)
	<-done
}

// recordingHistory implements domain.HistoryRepository in memory
type recordingHistory struct {
	mu      sync.Mutex
	records []*domain.DownloadRecord
}

func (h *recordingHistory) Create(record *domain.DownloadRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return nil
}

func (h *recordingHistory) snapshot() []*domain.DownloadRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*domain.DownloadRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *recordingHistory) FindRecent(limit int) ([]*domain.DownloadRecord, error) {
	return h.snapshot(), nil
}

func (h *recordingHistory) FindByRun(runID string) ([]*domain.DownloadRecord, error) {
	return h.snapshot(), nil
}

func (h *recordingHistory) CountByOutcome(outcome domain.RecordOutcome) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var n int64
	for _, record := range h.records {
		if record.Outcome == outcome {
			n++
		}
	}
	return n, nil
}

func (h *recordingHistory) GetStats() (*domain.HistoryStats, error) {
	return &domain.HistoryStats{}, nil
}
