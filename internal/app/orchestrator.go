package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/tunepull/internal/domain"
	"github.com/yourusername/tunepull/internal/library"
	"github.com/yourusername/tunepull/internal/queue"
	"github.com/yourusername/tunepull/pkg/logger"
)

// Summary is the outcome of one orchestrator run
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// RunStatus is a point-in-time snapshot of the current run, readable while
// workers are dispatching
type RunStatus struct {
	Running   bool      `json:"running"`
	RunID     string    `json:"run_id,omitempty"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Current   []string  `json:"current,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Orchestrator drives queued tracks through the backend attempt loop with a
// fixed pool of workers. Each worker claims one track, tries the fallback
// variants in order until one succeeds or all are exhausted, then updates the
// queue and the failure ledger. Per-track failures are local; queue or ledger
// write failures abort the whole run.
type Orchestrator struct {
	store     *queue.Store
	ledger    *queue.Ledger
	attempter domain.Attempter
	variants  []domain.Variant
	config    *domain.DownloadConfig

	history  domain.HistoryRepository
	notifier Notifier
	resolver *library.Resolver
	sink     domain.ProgressSink

	multiLogger *logger.MultiLogger
	log         *zap.Logger

	mu        sync.Mutex
	running   bool
	starting  bool // reserved by StartRun until its RunOnce takes over
	cancelRun context.CancelFunc

	statusMu sync.Mutex
	status   RunStatus
	current  map[string]bool
}

// Notifier receives end-of-run notifications. Implementations must tolerate
// being called from the run goroutine.
type Notifier interface {
	NotifyRunCompleted(succeeded, failed, remaining int)
}

// NewOrchestrator creates an orchestrator over the given durable state and
// backend attempter. Optional collaborators are attached via setters.
func NewOrchestrator(
	store *queue.Store,
	ledger *queue.Ledger,
	attempter domain.Attempter,
	variants []domain.Variant,
	config *domain.DownloadConfig,
	multiLogger *logger.MultiLogger,
	log *zap.Logger,
) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		ledger:      ledger,
		attempter:   attempter,
		variants:    variants,
		config:      config,
		multiLogger: multiLogger,
		log:         log,
		current:     make(map[string]bool),
	}
	o.sink = &loggingSink{o: o}
	return o
}

// SetHistory attaches the download history repository. History writes are
// observational; errors are logged and never fail a run.
func (o *Orchestrator) SetHistory(history domain.HistoryRepository) {
	o.history = history
}

// SetNotifier attaches the end-of-run notifier
func (o *Orchestrator) SetNotifier(notifier Notifier) {
	o.notifier = notifier
}

// SetResolver attaches the duplicate resolver run after successful runs when
// dedupe_after_run is enabled
func (o *Orchestrator) SetResolver(resolver *library.Resolver) {
	o.resolver = resolver
}

// SetProgressSink replaces the default logging progress sink
func (o *Orchestrator) SetProgressSink(sink domain.ProgressSink) {
	o.sink = sink
}

// Enqueue adds tracks to the queue, skipping those already queued. Returns
// the number actually added.
func (o *Orchestrator) Enqueue(tracks []domain.Track) (int, error) {
	added, err := o.store.Add(tracks)
	if err != nil {
		return 0, fmt.Errorf("enqueue tracks: %w", err)
	}
	if added > 0 {
		o.logQueueEvent("tracks_enqueued", zap.Int("added", added), zap.Int("queued", o.store.Len()))
	}
	return added, nil
}

// RequeueFailed moves failed tracks from the ledger back into the queue.
// With no keys every ledger entry is requeued; otherwise only the named
// tracks move and the rest stay ledgered. Refused while a run is in
// progress, since the ledger is append-only during runs.
func (o *Orchestrator) RequeueFailed(keys []string) (int, error) {
	if o.IsRunning() {
		return 0, fmt.Errorf("cannot requeue failed tracks while a run is in progress")
	}

	entries, err := o.ledger.Load()
	if err != nil {
		return 0, fmt.Errorf("load failure ledger: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	wanted := make(map[string]bool, len(keys))
	for _, key := range keys {
		wanted[key] = true
	}

	var selected []domain.Track
	var remaining []queue.LedgerEntry
	for _, entry := range entries {
		if len(keys) == 0 || wanted[entry.Track.Key()] {
			selected = append(selected, entry.Track)
		} else {
			remaining = append(remaining, entry)
		}
	}
	if len(selected) == 0 {
		return 0, nil
	}

	if err := o.store.Load(); err != nil {
		return 0, fmt.Errorf("load queue: %w", err)
	}
	added, err := o.store.Add(selected)
	if err != nil {
		return 0, fmt.Errorf("requeue failed tracks: %w", err)
	}

	if err := o.ledger.Reset(); err != nil {
		return added, fmt.Errorf("reset failure ledger: %w", err)
	}
	for _, entry := range remaining {
		if err := o.ledger.Append(entry.Track, entry.Reason); err != nil {
			return added, fmt.Errorf("rewrite failure ledger: %w", err)
		}
	}

	o.logQueueEvent("failed_tracks_requeued",
		zap.Int("requeued", added),
		zap.Int("still_failed", len(remaining)))
	return added, nil
}

// IsRunning reports whether a run is in progress
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running || o.starting
}

// RequestCancel stops dispatch of new tracks. In-flight attempts run to
// their own timeout or natural completion.
func (o *Orchestrator) RequestCancel() {
	o.mu.Lock()
	cancel := o.cancelRun
	o.mu.Unlock()
	if cancel != nil {
		o.logQueueEvent("run_cancel_requested")
		cancel()
	}
}

// Status returns a snapshot of the current (or last) run
func (o *Orchestrator) Status() RunStatus {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()

	status := o.status
	status.Current = make([]string, 0, len(o.current))
	for key := range o.current {
		status.Current = append(status.Current, key)
	}
	sort.Strings(status.Current)
	return status
}

// StartRun launches a run on a background goroutine. Errors surfacing from
// the run itself are logged; StartRun only fails when a run is already in
// progress.
func (o *Orchestrator) StartRun() error {
	o.mu.Lock()
	if o.running || o.starting {
		o.mu.Unlock()
		return fmt.Errorf("a run is already in progress")
	}
	o.starting = true
	o.mu.Unlock()

	go func() {
		if _, err := o.RunOnce(context.Background()); err != nil {
			o.log.Error("Run aborted", zap.Error(err))
		}
	}()
	return nil
}

// RunOnce drains the queue once: every pending track is driven to a terminal
// state unless the run is canceled first. A second concurrent call fails.
func (o *Orchestrator) RunOnce(ctx context.Context) (Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return Summary{}, fmt.Errorf("a run is already in progress")
	}
	o.running = true
	o.starting = false
	o.cancelRun = cancel
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.cancelRun = nil
		o.mu.Unlock()

		o.statusMu.Lock()
		o.status.Running = false
		o.current = make(map[string]bool)
		o.statusMu.Unlock()
	}()

	if err := o.store.Load(); err != nil {
		return Summary{}, fmt.Errorf("load queue: %w", err)
	}

	runID := uuid.New().String()
	total := o.store.Len()

	o.statusMu.Lock()
	o.status = RunStatus{
		Running:   true,
		RunID:     runID,
		Total:     total,
		StartedAt: time.Now(),
	}
	o.current = make(map[string]bool)
	o.statusMu.Unlock()

	if total == 0 {
		o.logQueueEvent("run_skipped_empty_queue", zap.String("run_id", runID))
		return Summary{}, nil
	}

	workers := o.config.Workers
	if workers < 1 {
		workers = 1
	}

	o.logQueueEvent("run_started",
		zap.String("run_id", runID),
		zap.Int("tracks", total),
		zap.Int("workers", workers))

	var fatal runFailure
	var wg sync.WaitGroup
	for slot := 0; slot < workers; slot++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.workerLoop(runCtx, runID, cancel, &fatal)
		}()
	}
	wg.Wait()

	status := o.Status()
	summary := Summary{
		Succeeded: status.Succeeded,
		Failed:    status.Failed,
		Remaining: o.store.Len(),
	}

	if err := fatal.get(); err != nil {
		o.logQueueEvent("run_aborted",
			zap.String("run_id", runID),
			zap.Error(err))
		return summary, err
	}

	if ctx.Err() != nil || runCtx.Err() != nil {
		o.logQueueEvent("run_canceled",
			zap.String("run_id", runID),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Int("remaining", summary.Remaining))
		return summary, nil
	}

	o.logQueueEvent("run_completed",
		zap.String("run_id", runID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("remaining", summary.Remaining))

	if o.config.DedupeAfterRun && o.resolver != nil {
		o.dedupe()
	}

	if o.notifier != nil {
		o.notifier.NotifyRunCompleted(summary.Succeeded, summary.Failed, summary.Remaining)
	}
	return summary, nil
}

// workerLoop claims tracks until the queue drains, the run is canceled, or a
// storage failure aborts the run
func (o *Orchestrator) workerLoop(ctx context.Context, runID string, abort context.CancelFunc, fatal *runFailure) {
	for {
		if ctx.Err() != nil {
			return
		}

		track, ok := o.store.Claim()
		if !ok {
			return
		}

		if err := o.processTrack(ctx, runID, track); err != nil {
			fatal.set(err)
			abort()
			return
		}

		if o.config.ItemDelay > 0 {
			select {
			case <-time.After(o.config.ItemDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// processTrack drives one track through the variant fallback sequence to a
// terminal state. The returned error is non-nil only for queue or ledger
// write failures, which are fatal to the run.
func (o *Orchestrator) processTrack(ctx context.Context, runID string, track domain.Track) error {
	o.setCurrent(track, true)
	defer o.setCurrent(track, false)

	o.sink.TrackStarted(track)
	start := time.Now()

	lastReason := "no variants configured"
	for i, variant := range o.variants {
		if ctx.Err() != nil {
			// Interrupted mid-track: leave it in the persisted queue so
			// the next run restarts it from variant 1
			o.store.Release(track)
			return nil
		}

		o.sink.VariantAttempted(track, i+1, variant)
		result := o.attempter.Attempt(ctx, track, variant, o.config.TrackTimeout)

		if result.Succeeded() {
			if err := o.store.Remove(track); err != nil {
				return fmt.Errorf("remove succeeded track %q: %w", track.Key(), err)
			}
			o.bumpCounters(true)
			o.sink.TrackSucceeded(track, result.FilePath)
			o.recordHistory(runID, track, domain.RecordSucceeded, i+1, "", result.FilePath, time.Since(start))
			return nil
		}

		if ctx.Err() != nil {
			// The attempt lost to cancellation, not to the backend; the
			// track is released, not ledgered
			o.store.Release(track)
			return nil
		}

		lastReason = result.Reason
		if result.Outcome == domain.OutcomeTimeout {
			o.log.Warn("Attempt timed out",
				zap.String("track", track.Key()),
				zap.Int("variant", i+1),
				zap.String("reason", result.Reason))
		} else {
			o.log.Warn("Attempt failed",
				zap.String("track", track.Key()),
				zap.Int("variant", i+1),
				zap.String("reason", result.Reason))
		}
	}

	// All variants exhausted: the most recent failure is the most
	// informative, so it becomes the ledger reason
	if err := o.ledger.Append(track, lastReason); err != nil {
		return fmt.Errorf("record failed track %q: %w", track.Key(), err)
	}
	if err := o.store.Remove(track); err != nil {
		return fmt.Errorf("remove failed track %q: %w", track.Key(), err)
	}
	o.bumpCounters(false)
	o.sink.TrackFailed(track, lastReason)
	o.recordHistory(runID, track, domain.RecordFailed, len(o.variants), lastReason, "", time.Since(start))
	return nil
}

// dedupe runs the duplicate-resolution pass over the music directory. It
// only runs after the download phase has fully stopped; the two phases never
// interleave.
func (o *Orchestrator) dedupe() {
	report, err := o.resolver.Resolve(o.config.MusicDir)
	if err != nil {
		o.log.Error("Duplicate resolution failed", zap.Error(err))
		return
	}
	o.logQueueEvent("dedupe_completed",
		zap.Int("scanned", report.Scanned),
		zap.Int("deleted", report.Deleted),
		zap.Strings("deleted_files", report.DeletedFiles))
}

func (o *Orchestrator) recordHistory(runID string, track domain.Track, outcome domain.RecordOutcome, variant int, reason, filePath string, duration time.Duration) {
	if o.history == nil {
		return
	}
	record := domain.NewDownloadRecord(runID, track, outcome, variant, duration)
	record.Reason = reason
	record.FilePath = filePath
	if err := o.history.Create(record); err != nil {
		o.log.Warn("Failed to write history record",
			zap.String("track", track.Key()),
			zap.Error(err))
	}
}

func (o *Orchestrator) setCurrent(track domain.Track, active bool) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	if active {
		o.current[track.Key()] = true
	} else {
		delete(o.current, track.Key())
	}
}

func (o *Orchestrator) bumpCounters(succeeded bool) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	o.status.Completed++
	if succeeded {
		o.status.Succeeded++
	} else {
		o.status.Failed++
	}
}

func (o *Orchestrator) logQueueEvent(event string, fields ...zap.Field) {
	if o.multiLogger != nil {
		o.multiLogger.LogQueueEvent(event, fields...)
		return
	}
	o.log.Info(event, fields...)
}

// runFailure holds the first fatal storage error of a run
type runFailure struct {
	mu  sync.Mutex
	err error
}

func (f *runFailure) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *runFailure) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// loggingSink is the default progress sink, emitting structured queue events
type loggingSink struct {
	o *Orchestrator
}

func (s *loggingSink) TrackStarted(track domain.Track) {
	s.o.logQueueEvent("track_started", zap.String("track", track.Key()))
}

func (s *loggingSink) VariantAttempted(track domain.Track, variantIndex int, variant domain.Variant) {
	s.o.logQueueEvent("variant_attempt",
		zap.String("track", track.Key()),
		zap.Int("variant", variantIndex),
		zap.String("name", variant.Name))
}

func (s *loggingSink) TrackSucceeded(track domain.Track, filePath string) {
	s.o.logQueueEvent("track_succeeded",
		zap.String("track", track.Key()),
		zap.String("file", filePath))
}

func (s *loggingSink) TrackFailed(track domain.Track, reason string) {
	s.o.logQueueEvent("track_failed",
		zap.String("track", track.Key()),
		zap.String("reason", reason))
}
