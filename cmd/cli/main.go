package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "tunepull",
		Short: "Tunepull CLI - Bulk track download manager",
		Long:  `A command-line interface for queueing tracks and driving bulk download runs.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(failedCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(dedupeCmd)
	rootCmd.AddCommand(logsCmd)

	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStopCmd)
	serverCmd.AddCommand(serverStatusCmd)
	rootCmd.AddCommand(serverCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// apiGet fetches a JSON document from the server and decodes it into out
func apiGet(path string, out interface{}) {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		fatalf("Error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fatalf("Error: %s", string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		fatalf("Error: invalid response: %v", err)
	}
}

// apiSend issues a JSON request (POST/DELETE) and returns the decoded body
func apiSend(method, path string, payload interface{}) map[string]interface{} {
	var reqBody io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, serverURL+path, reqBody)
	if err != nil {
		fatalf("Error: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("Error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		fatalf("Error: %s", string(body))
	}

	result := map[string]interface{}{}
	json.Unmarshal(body, &result)
	return result
}

var addCmd = &cobra.Command{
	Use:   "add [track...]",
	Short: "Add tracks to the queue (each as \"Title - Artist\")",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		result := apiSend("POST", "/api/v1/tracks", map[string]interface{}{
			"tracks": args,
		})
		fmt.Printf("Added: %v, skipped (already queued): %v\n", result["added"], result["skipped"])
		if invalid, ok := result["invalid"].([]interface{}); ok && len(invalid) > 0 {
			fmt.Printf("Invalid entries ignored: %d\n", len(invalid))
			for _, entry := range invalid {
				fmt.Printf("  %v\n", entry)
			}
		}
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file.csv]",
	Short: "Import tracks from a CSV export",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		file, err := os.Open(args[0])
		if err != nil {
			fatalf("Error: %v", err)
		}
		defer file.Close()

		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("file", filepath.Base(args[0]))
		if err != nil {
			fatalf("Error: %v", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			fatalf("Error: %v", err)
		}
		writer.Close()

		resp, err := http.Post(serverURL+"/api/v1/tracks/import", writer.FormDataContentType(), &buf)
		if err != nil {
			fatalf("Error: %v", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			fatalf("Error: %s", string(body))
		}

		var result map[string]interface{}
		json.Unmarshal(body, &result)
		fmt.Printf("Imported: %v, skipped (already queued): %v\n", result["added"], result["skipped"])
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List pending tracks",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var data struct {
			Count  int      `json:"count"`
			Tracks []string `json:"tracks"`
		}
		apiGet("/api/v1/queue", &data)

		if data.Count == 0 {
			fmt.Println("Queue is empty")
			return
		}
		fmt.Printf("%d track(s) pending:\n", data.Count)
		for _, t := range data.Tracks {
			fmt.Printf("  %s\n", t)
		}
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all pending tracks from the queue",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		apiSend("DELETE", "/api/v1/queue", nil)
		fmt.Println("Queue cleared")
	},
}

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List tracks that failed all attempts",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var data struct {
			Count  int `json:"count"`
			Failed []struct {
				Track  string `json:"track"`
				Reason string `json:"reason"`
			} `json:"failed"`
		}
		apiGet("/api/v1/failed", &data)

		if data.Count == 0 {
			fmt.Println("No failed tracks")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TRACK\tREASON")
		for _, f := range data.Failed {
			fmt.Fprintf(w, "%s\t%s\n", f.Track, truncate(f.Reason, 60))
		}
		w.Flush()
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [track...]",
	Short: "Requeue failed tracks (all by default)",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		result := apiSend("POST", "/api/v1/failed/retry", map[string]interface{}{
			"tracks": args,
		})
		fmt.Printf("Requeued %v track(s)\n", result["requeued"])
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a download run over the pending queue",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		apiSend("POST", "/api/v1/runs", nil)
		fmt.Println("Run started")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current run status",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var data struct {
			Running   bool     `json:"running"`
			RunID     string   `json:"run_id"`
			Total     int      `json:"total"`
			Completed int      `json:"completed"`
			Succeeded int      `json:"succeeded"`
			Failed    int      `json:"failed"`
			Current   []string `json:"current"`
		}
		apiGet("/api/v1/runs/current", &data)

		if !data.Running {
			fmt.Println("No run in progress")
			return
		}
		fmt.Printf("Run %s in progress\n", truncate(data.RunID, 8))
		fmt.Printf("  Completed: %d/%d\n", data.Completed, data.Total)
		fmt.Printf("  Succeeded: %d\n", data.Succeeded)
		fmt.Printf("  Failed:    %d\n", data.Failed)
		for _, t := range data.Current {
			fmt.Printf("  Working:   %s\n", t)
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the current run",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		apiSend("DELETE", "/api/v1/runs/current", nil)
		fmt.Println("Cancellation requested; in-flight tracks will stop at the next safe point")
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent download attempts",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		limit, _ := cmd.Flags().GetInt("limit")
		runID, _ := cmd.Flags().GetString("run")

		path := fmt.Sprintf("/api/v1/history?limit=%d", limit)
		if runID != "" {
			path = "/api/v1/history?run_id=" + runID
		}

		var data struct {
			Count   int `json:"count"`
			Records []struct {
				RunID    string `json:"run_id"`
				TrackKey string `json:"track_key"`
				Outcome  string `json:"outcome"`
				Variant  int    `json:"variant"`
				Reason   string `json:"reason"`
			} `json:"records"`
		}
		apiGet(path, &data)

		if data.Count == 0 {
			fmt.Println("No history")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tTRACK\tOUTCOME\tVARIANT\tREASON")
		for _, r := range data.Records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				truncate(r.RunID, 8),
				truncate(r.TrackKey, 40),
				r.Outcome,
				r.Variant,
				truncate(r.Reason, 40))
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show download history statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var stats struct {
			Total     int64 `json:"total"`
			Succeeded int64 `json:"succeeded"`
			Failed    int64 `json:"failed"`
			Runs      int64 `json:"runs"`
		}
		apiGet("/api/v1/history/stats", &stats)

		fmt.Println("Download Statistics:")
		fmt.Printf("  Runs:      %d\n", stats.Runs)
		fmt.Printf("  Total:     %d\n", stats.Total)
		fmt.Printf("  Succeeded: %d\n", stats.Succeeded)
		fmt.Printf("  Failed:    %d\n", stats.Failed)
	},
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List downloaded audio files",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var data struct {
			Count int `json:"count"`
			Files []struct {
				Name string `json:"name"`
				Size int64  `json:"size"`
			} `json:"files"`
		}
		apiGet("/api/v1/library", &data)

		if data.Count == 0 {
			fmt.Println("Library is empty")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tSIZE")
		for _, f := range data.Files {
			fmt.Fprintf(w, "%s\t%s\n", f.Name, formatSize(f.Size))
		}
		w.Flush()
	},
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Delete duplicate audio files from the library",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		result := apiSend("POST", "/api/v1/library/dedupe", nil)
		fmt.Printf("Scanned %v file(s), deleted %v duplicate(s)\n", result["scanned"], result["deleted"])
		if files, ok := result["deleted_files"].([]interface{}); ok {
			for _, f := range files {
				fmt.Printf("  removed %v\n", f)
			}
		}
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "View server logs (download, queue, error, web-access)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		limit, _ := cmd.Flags().GetInt("limit")

		var data struct {
			Count   int `json:"count"`
			Entries []struct {
				Timestamp string `json:"timestamp"`
				Level     string `json:"level"`
				Message   string `json:"message"`
			} `json:"entries"`
		}
		apiGet(fmt.Sprintf("/api/v1/logs/%s?limit=%d", args[0], limit), &data)

		for _, e := range data.Entries {
			fmt.Printf("%s [%s] %s\n", e.Timestamp, e.Level, e.Message)
		}
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the background server",
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the background server",
	Run: func(cmd *cobra.Command, args []string) {
		if isServerRunning() {
			fmt.Println("Server is already running")
			return
		}
		if err := startServerBackground(); err != nil {
			fatalf("Error: %v", err)
		}
		if err := waitForServerReady(); err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Println("Server started")
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	Run: func(cmd *cobra.Command, args []string) {
		if !isServerRunning() {
			fmt.Println("Server is not running")
			return
		}
		apiSend("POST", "/api/v1/server/stop", nil)
		fmt.Println("Server stopping")
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the background server is running",
	Run: func(cmd *cobra.Command, args []string) {
		if isServerRunning() {
			fmt.Println("Server is running at", serverURL)
		} else {
			fmt.Println("Server is not running")
		}
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of records")
	historyCmd.Flags().StringP("run", "r", "", "Show records for a specific run ID")
	logsCmd.Flags().IntP("limit", "n", 100, "Maximum number of log lines")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
