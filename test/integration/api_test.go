//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/tunepull/api"
	"github.com/yourusername/tunepull/internal/app"
	"github.com/yourusername/tunepull/internal/backend"
	"github.com/yourusername/tunepull/internal/domain"
	"github.com/yourusername/tunepull/internal/infrastructure"
	"github.com/yourusername/tunepull/internal/library"
	"github.com/yourusername/tunepull/internal/queue"
	"github.com/yourusername/tunepull/pkg/logger"
)

// stubAttempter resolves every attempt from a fixed outcome table; tracks
// missing from the table succeed.
type stubAttempter struct {
	mu       sync.Mutex
	failures map[string]string // track key -> failure reason
	dir      string
	delay    time.Duration
}

func (s *stubAttempter) Attempt(ctx context.Context, track domain.Track, variant domain.Variant, timeout time.Duration) domain.AttemptResult {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.AttemptResult{Outcome: domain.OutcomeFailure, Reason: "canceled"}
		case <-time.After(s.delay):
		}
	}
	s.mu.Lock()
	reason, failed := s.failures[track.Key()]
	s.mu.Unlock()
	if failed {
		return domain.AttemptResult{Outcome: domain.OutcomeFailure, Reason: reason}
	}
	path := filepath.Join(s.dir, track.Title+".flac")
	os.WriteFile(path, []byte(track.Key()), 0644)
	return domain.AttemptResult{Outcome: domain.OutcomeSuccess, FilePath: path}
}

type testEnv struct {
	server    *httptest.Server
	orch      *app.Orchestrator
	store     *queue.Store
	attempter *stubAttempter
	music     string
}

func setupTestServer(t *testing.T, failures map[string]string) *testEnv {
	tmpDir := t.TempDir()
	musicDir := filepath.Join(tmpDir, "music")
	require.NoError(t, os.MkdirAll(musicDir, 0755))

	log := zap.NewNop()
	store := queue.NewStore(filepath.Join(tmpDir, "track_list.txt"), log)
	ledger := queue.NewLedger(filepath.Join(tmpDir, "failed_tracks.txt"), log)

	config := domain.DefaultConfig()
	config.Download.MusicDir = musicDir
	config.Download.QueueFile = store.Path()
	config.Download.Workers = 2
	config.Download.ItemDelay = 0
	config.Download.DedupeAfterRun = false

	attempter := &stubAttempter{failures: failures, dir: musicDir}
	orch := app.NewOrchestrator(store, ledger, attempter, backend.DefaultVariants(), &config.Download, nil, log)

	history, err := infrastructure.NewSQLiteHistoryRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })
	orch.SetHistory(history)
	orch.SetResolver(library.NewResolver(log))

	router := api.SetupRouter(api.Deps{
		Orchestrator: orch,
		Store:        store,
		Ledger:       ledger,
		History:      history,
		Resolver:     library.NewResolver(log),
		Config:       config,
		LogAdapter:   logger.NewSingleLoggerAdapter(log),
		LogsDir:      tmpDir,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, orch: orch, store: store, attempter: attempter, music: musicDir}
}

func postJSON(t *testing.T, url string, payload interface{}) (*http.Response, map[string]interface{}) {
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return resp, result
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]interface{}) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return resp, result
}

func waitForIdle(t *testing.T, orch *app.Orchestrator) {
	deadline := time.Now().Add(10 * time.Second)
	for orch.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("run did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAPI_AddTracks(t *testing.T) {
	env := setupTestServer(t, nil)

	resp, result := postJSON(t, env.server.URL+"/api/v1/tracks", map[string]interface{}{
		"tracks": []string{"Take Five - Dave Brubeck", "So What - Miles Davis", "   "},
	})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(2), result["added"])
	assert.Equal(t, float64(0), result["skipped"])
	invalid, ok := result["invalid"].([]interface{})
	require.True(t, ok)
	assert.Len(t, invalid, 1)

	// Re-adding the same tracks only skips
	resp, result = postJSON(t, env.server.URL+"/api/v1/tracks", map[string]interface{}{
		"tracks": []string{"Take Five - Dave Brubeck"},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(0), result["added"])
	assert.Equal(t, float64(1), result["skipped"])
}

func TestAPI_AddTracks_EmptyBody(t *testing.T) {
	env := setupTestServer(t, nil)

	resp, _ := postJSON(t, env.server.URL+"/api/v1/tracks", map[string]interface{}{
		"tracks": []string{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_QueueListAndClear(t *testing.T) {
	env := setupTestServer(t, nil)

	postJSON(t, env.server.URL+"/api/v1/tracks", map[string]interface{}{
		"tracks": []string{"Take Five - Dave Brubeck", "So What - Miles Davis"},
	})

	resp, result := getJSON(t, env.server.URL+"/api/v1/queue")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), result["count"])

	req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/api/v1/queue", nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	_, result = getJSON(t, env.server.URL+"/api/v1/queue")
	assert.Equal(t, float64(0), result["count"])
}

func TestAPI_RunLifecycle(t *testing.T) {
	env := setupTestServer(t, nil)

	postJSON(t, env.server.URL+"/api/v1/tracks", map[string]interface{}{
		"tracks": []string{"Take Five - Dave Brubeck", "So What - Miles Davis"},
	})

	resp, _ := postJSON(t, env.server.URL+"/api/v1/runs", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitForIdle(t, env.orch)

	_, result := getJSON(t, env.server.URL+"/api/v1/queue")
	assert.Equal(t, float64(0), result["count"], "queue should drain after a successful run")

	// Starting a run over an empty queue is still accepted; starting one
	// while another is running is not, which TestAPI_RunConflict covers.
	_, stats := getJSON(t, env.server.URL+"/api/v1/history/stats")
	assert.Equal(t, float64(2), stats["succeeded"])
}

func TestAPI_RunConflict(t *testing.T) {
	env := setupTestServer(t, nil)
	env.attempter.delay = 500 * time.Millisecond

	postJSON(t, env.server.URL+"/api/v1/tracks", map[string]interface{}{
		"tracks": []string{"Take Five - Dave Brubeck", "So What - Miles Davis"},
	})

	resp, _ := postJSON(t, env.server.URL+"/api/v1/runs", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = postJSON(t, env.server.URL+"/api/v1/runs", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Cancel is accepted while the run is live
	req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/api/v1/runs/current", nil)
	cancelResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	cancelResp.Body.Close()
	assert.Equal(t, http.StatusAccepted, cancelResp.StatusCode)

	waitForIdle(t, env.orch)
}

func TestAPI_FailedAndRetry(t *testing.T) {
	env := setupTestServer(t, map[string]string{
		"Take Five - Dave Brubeck": "no results",
	})

	postJSON(t, env.server.URL+"/api/v1/tracks", map[string]interface{}{
		"tracks": []string{"Take Five - Dave Brubeck", "So What - Miles Davis"},
	})
	postJSON(t, env.server.URL+"/api/v1/runs", nil)
	waitForIdle(t, env.orch)

	resp, result := getJSON(t, env.server.URL+"/api/v1/failed")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), result["count"])

	failed := result["failed"].([]interface{})
	entry := failed[0].(map[string]interface{})
	assert.Equal(t, "Take Five - Dave Brubeck", entry["track"])
	assert.Contains(t, entry["reason"], "no results")

	resp, result = postJSON(t, env.server.URL+"/api/v1/failed/retry", map[string]interface{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), result["requeued"])

	_, result = getJSON(t, env.server.URL+"/api/v1/queue")
	assert.Equal(t, float64(1), result["count"])

	_, result = getJSON(t, env.server.URL+"/api/v1/failed")
	assert.Equal(t, float64(0), result["count"])
}

func TestAPI_Library(t *testing.T) {
	env := setupTestServer(t, nil)

	require.NoError(t, os.WriteFile(filepath.Join(env.music, "a.flac"), []byte("same"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.music, "b.flac"), []byte("same"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.music, "c.flac"), []byte("other"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.music, "notes.txt"), []byte("x"), 0644))

	resp, result := getJSON(t, env.server.URL+"/api/v1/library")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), result["count"], "non-audio files are not listed")

	resp, result = postJSON(t, env.server.URL+"/api/v1/library/dedupe", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), result["deleted"])

	_, err := os.Stat(filepath.Join(env.music, "a.flac"))
	assert.NoError(t, err, "lexicographically first duplicate is kept")
	_, err = os.Stat(filepath.Join(env.music, "b.flac"))
	assert.True(t, os.IsNotExist(err))
}

func TestAPI_Health(t *testing.T) {
	env := setupTestServer(t, nil)

	resp, result := getJSON(t, env.server.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", result["status"])
}

func TestAPI_History(t *testing.T) {
	env := setupTestServer(t, map[string]string{
		"Take Five - Dave Brubeck": "no results",
	})

	postJSON(t, env.server.URL+"/api/v1/tracks", map[string]interface{}{
		"tracks": []string{"Take Five - Dave Brubeck", "So What - Miles Davis"},
	})
	postJSON(t, env.server.URL+"/api/v1/runs", nil)
	waitForIdle(t, env.orch)

	resp, result := getJSON(t, env.server.URL+"/api/v1/history")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), result["count"])

	_, stats := getJSON(t, env.server.URL+"/api/v1/history/stats")
	assert.Equal(t, float64(1), stats["succeeded"])
	assert.Equal(t, float64(1), stats["failed"])
	assert.Equal(t, float64(1), stats["runs"])
}
