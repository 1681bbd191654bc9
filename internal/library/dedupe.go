package library

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// Digest computes the SHA-256 content digest of a file, streamed over the
// full byte content. Filesystem metadata does not participate.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Report summarizes one duplicate-resolution pass
type Report struct {
	Scanned      int      `json:"scanned"`
	Kept         int      `json:"kept"`
	Deleted      int      `json:"deleted"`
	DeletedFiles []string `json:"deleted_files,omitempty"`
	Skipped      int      `json:"skipped"` // files that could not be hashed or deleted
}

// Resolver removes byte-identical duplicate files from a directory. Content
// equality is the sole criterion: two files with the same digest are
// duplicates even when their names declare different tracks. Within each
// duplicate group the lexicographically-first name is kept.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a duplicate resolver
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve groups the regular files of dir by content digest and deletes all
// but one file per group. Per-file hash or delete errors are logged and
// skipped; only an unreadable directory fails the pass.
func (r *Resolver) Resolve(dir string) (Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Report{}, nil
		}
		return Report{}, fmt.Errorf("read directory: %w", err)
	}

	var report Report
	groups := make(map[string][]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		report.Scanned++

		path := filepath.Join(dir, entry.Name())
		digest, err := Digest(path)
		if err != nil {
			r.logger.Warn("Skipping unhashable file",
				zap.String("file", entry.Name()),
				zap.Error(err))
			report.Skipped++
			continue
		}
		groups[digest] = append(groups[digest], entry.Name())
	}

	for _, names := range groups {
		if len(names) < 2 {
			report.Kept += len(names)
			continue
		}

		sort.Strings(names)
		report.Kept++
		for _, name := range names[1:] {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				r.logger.Warn("Failed to delete duplicate",
					zap.String("file", name),
					zap.Error(err))
				report.Skipped++
				continue
			}
			r.logger.Info("Deleted duplicate",
				zap.String("file", name),
				zap.String("kept", names[0]))
			report.Deleted++
			report.DeletedFiles = append(report.DeletedFiles, name)
		}
	}

	sort.Strings(report.DeletedFiles)
	return report, nil
}
