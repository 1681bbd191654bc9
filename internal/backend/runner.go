package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/tunepull/internal/domain"
	"github.com/yourusername/tunepull/pkg/logger"
)

var successIndicators = []string{"success", "downloaded", "complete", "saved"}
var errorIndicators = []string{"error", "failed", "not found", "no results"}

const probeTimeout = 5 * time.Second

// pipeDrainGrace bounds how long Wait may keep draining output pipes after
// the backend has been signaled.
const pipeDrainGrace = 2 * time.Second

// Runner invokes the external download backend, exactly one process per
// Attempt call. The timeout is a hard wall-clock bound: when it elapses the
// process is killed and the attempt reports a timeout.
type Runner struct {
	config      *domain.BackendConfig
	musicDir    string
	multiLogger *logger.MultiLogger // raw transcript; may be nil
}

// NewRunner creates a backend runner writing into musicDir
func NewRunner(config *domain.BackendConfig, musicDir string, multiLogger *logger.MultiLogger) *Runner {
	return &Runner{
		config:      config,
		musicDir:    musicDir,
		multiLogger: multiLogger,
	}
}

// Probe checks that the backend binary is present and runnable
func (r *Runner) Probe() error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.config.Binary, "--help")
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	// Some releases exit nonzero on --help but still identify themselves
	if strings.Contains(strings.ToLower(string(output)), strings.ToLower(r.config.Binary)) {
		return nil
	}
	return fmt.Errorf("backend binary %q is not runnable: %w", r.config.Binary, err)
}

// Attempt runs one backend invocation for the track using the given variant
func (r *Runner) Attempt(ctx context.Context, track domain.Track, variant domain.Variant, timeout time.Duration) domain.AttemptResult {
	if err := os.MkdirAll(r.musicDir, 0755); err != nil {
		return domain.AttemptResult{
			Outcome: domain.OutcomeFailure,
			Reason:  fmt.Sprintf("create music directory: %v", err),
		}
	}

	before, err := r.listAudioFiles()
	if err != nil {
		return domain.AttemptResult{
			Outcome: domain.OutcomeFailure,
			Reason:  fmt.Sprintf("scan music directory: %v", err),
		}
	}

	args := variant.Expand(track.Key(), r.musicDir)
	if extra := strings.Fields(r.config.ExtraArgs); len(extra) > 0 {
		args = append(args, extra...)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// exec.Command passes args directly to the process, no shell quoting
	// needed; the escaped form is for the transcript only.
	cmd := exec.CommandContext(attemptCtx, r.config.Binary, args...)

	// Backends wrap the actual downloader in scripts, so a plain child kill
	// leaves grandchildren holding the output pipes past the deadline. The
	// whole process group is killed instead, and WaitDelay caps how long
	// Wait may block on pipes held by anything that escaped the group.
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessTree(cmd) }
	cmd.WaitDelay = pipeDrainGrace

	stdout := &lineWriter{emit: func(line string) {
		if r.multiLogger != nil {
			r.multiLogger.WriteRawDownloadLine(line)
		}
	}}
	stderr := &lineWriter{emit: func(line string) {
		if r.multiLogger != nil {
			r.multiLogger.WriteRawErrorLine(track.Key(), line)
		}
	}}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if r.multiLogger != nil {
		r.multiLogger.WriteDownloadHeader(track.Key(), ShellEscapeCommand(r.config.Binary, args...))
	}

	if err := cmd.Start(); err != nil {
		reason := fmt.Sprintf("start backend: %v", err)
		if r.multiLogger != nil {
			r.multiLogger.WriteDownloadFooter(false, reason)
		}
		return domain.AttemptResult{Outcome: domain.OutcomeFailure, Reason: reason}
	}

	waitErr := cmd.Wait()
	stdout.finish()
	stderr.finish()

	// ErrWaitDelay means the backend exited cleanly but something it
	// spawned kept the pipes open past the grace period; the exit status
	// is what counts.
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		waitErr = nil
	}

	if attemptCtx.Err() == context.DeadlineExceeded {
		reason := fmt.Sprintf("timeout after %s", timeout)
		if r.multiLogger != nil {
			r.multiLogger.WriteDownloadFooter(false, reason)
		}
		return domain.AttemptResult{Outcome: domain.OutcomeTimeout, Reason: reason}
	}
	if ctx.Err() != nil {
		reason := "attempt canceled"
		if r.multiLogger != nil {
			r.multiLogger.WriteDownloadFooter(false, reason)
		}
		return domain.AttemptResult{Outcome: domain.OutcomeFailure, Reason: reason}
	}

	result := r.classify(waitErr, stdout.String(), stderr.String(), before)

	if r.multiLogger != nil {
		if result.Succeeded() {
			msg := "Downloaded: " + track.Key()
			if result.FilePath != "" {
				msg = "Downloaded: " + result.FilePath
			}
			r.multiLogger.WriteDownloadFooter(true, msg)
		} else {
			r.multiLogger.WriteDownloadFooter(false, result.Reason)
		}
	}
	return result
}

// lineWriter accumulates process output and emits each completed line to the
// transcript as it arrives. Unlike a scanner over a pipe it accepts lines of
// any length and never blocks the process on a full pipe buffer.
type lineWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	out  strings.Builder
	emit func(line string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line: keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emitLine(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// finish flushes a trailing line with no newline terminator
func (w *lineWriter) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emitLine(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.String()
}

func (w *lineWriter) emitLine(line string) {
	w.out.WriteString(line)
	w.out.WriteString("\n")
	if w.emit != nil {
		w.emit(line)
	}
}

// classify normalizes process exit state and captured output into an
// attempt result, using the backend's textual success and error markers.
func (r *Runner) classify(waitErr error, stdout, stderr string, before map[string]bool) domain.AttemptResult {
	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return domain.AttemptResult{
				Outcome: domain.OutcomeFailure,
				Reason:  fmt.Sprintf("backend did not run: %v", waitErr),
			}
		}
	}

	stdoutLower := strings.ToLower(stdout)
	stderrLower := strings.ToLower(stderr)

	if exitCode == 0 || containsAny(stdoutLower, successIndicators) {
		if path := r.newestNewAudioFile(before); path != "" {
			return domain.AttemptResult{Outcome: domain.OutcomeSuccess, FilePath: path}
		}
		if exitCode == 0 {
			return domain.AttemptResult{Outcome: domain.OutcomeSuccess}
		}
	}

	if containsAny(stdoutLower, errorIndicators) || containsAny(stderrLower, errorIndicators) {
		reason := strings.TrimSpace(stderr)
		if reason == "" {
			reason = strings.TrimSpace(stdout)
		}
		return domain.AttemptResult{Outcome: domain.OutcomeFailure, Reason: reason}
	}

	return domain.AttemptResult{
		Outcome: domain.OutcomeFailure,
		Reason:  fmt.Sprintf("unclear result (exit code %d)", exitCode),
	}
}

// newestNewAudioFile returns the path of an audio file present now but not
// in the pre-attempt snapshot, preferring the most recently modified.
func (r *Runner) newestNewAudioFile(before map[string]bool) string {
	after, err := r.listAudioFiles()
	if err != nil {
		return ""
	}

	var added []string
	for name := range after {
		if !before[name] {
			added = append(added, name)
		}
	}
	if len(added) == 0 {
		return ""
	}

	sort.Slice(added, func(i, j int) bool {
		iInfo, iErr := os.Stat(r.musicDir + string(os.PathSeparator) + added[i])
		jInfo, jErr := os.Stat(r.musicDir + string(os.PathSeparator) + added[j])
		if iErr != nil || jErr != nil {
			return added[i] < added[j]
		}
		if iInfo.ModTime().Equal(jInfo.ModTime()) {
			return added[i] < added[j]
		}
		return iInfo.ModTime().After(jInfo.ModTime())
	})
	return r.musicDir + string(os.PathSeparator) + added[0]
}

// listAudioFiles snapshots the audio file names in the music directory
func (r *Runner) listAudioFiles() (map[string]bool, error) {
	entries, err := os.ReadDir(r.musicDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, err
	}

	files := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !domain.IsAudioFile(entry.Name()) {
			continue
		}
		files[entry.Name()] = true
	}
	return files, nil
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
