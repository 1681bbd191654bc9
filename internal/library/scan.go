package library

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yourusername/tunepull/internal/domain"
)

// Entry describes one audio file in the music directory
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// List returns the audio files of dir sorted case-insensitively by name. A
// missing directory lists as empty.
func List(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read music directory: %w", err)
	}

	var entries []Entry
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() || !domain.IsAudioFile(dirEntry.Name()) {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    dirEntry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// Resolve maps a requested file name to its path inside dir. Only base names
// are accepted, so a request can never escape the music directory.
func Resolve(dir, name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == ".." || base != name {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if !domain.IsAudioFile(base) {
		return "", fmt.Errorf("not an audio file: %q", name)
	}

	path := filepath.Join(dir, base)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %q: %w", base, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("not a file: %q", name)
	}
	return path, nil
}

// Delete removes one audio file from dir by base name
func Delete(dir, name string) error {
	path, err := Resolve(dir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	return nil
}
