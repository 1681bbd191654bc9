package app

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/yourusername/tunepull/internal/domain"
)

// ImportCSV parses a playlist CSV export into tracks. The header row is
// sniffed for the track and artist columns; each data row becomes
// "Title - FirstArtist", where the first artist is taken before any ';' or
// ',' separator. Rows missing either value are skipped. The result is
// deduplicated and sorted.
func ImportCSV(r io.Reader) ([]domain.Track, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty CSV file")
		}
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	titleCol, artistCol := sniffColumns(header)
	if titleCol < 0 {
		return nil, fmt.Errorf("no track name column found in CSV header")
	}
	if artistCol < 0 {
		return nil, fmt.Errorf("no artist name column found in CSV header")
	}

	seen := make(map[string]bool)
	var tracks []domain.Track
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}
		if titleCol >= len(row) || artistCol >= len(row) {
			continue
		}

		title := strings.TrimSpace(row[titleCol])
		artist := firstArtist(row[artistCol])
		if title == "" || artist == "" {
			continue
		}

		track := domain.NewTrack(title, artist)
		if seen[track.Key()] {
			continue
		}
		seen[track.Key()] = true
		tracks = append(tracks, track)
	}

	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].Key() < tracks[j].Key()
	})
	return tracks, nil
}

// ImportCSVFile parses a playlist CSV export from a local file
func ImportCSVFile(path string) ([]domain.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer f.Close()
	return ImportCSV(f)
}

// sniffColumns finds the track and artist columns by header name. Playlist
// exports title them "Track Name" and "Artist Name(s)" in various casings.
func sniffColumns(header []string) (titleCol, artistCol int) {
	titleCol, artistCol = -1, -1
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case titleCol < 0 && strings.Contains(name, "track") && strings.Contains(name, "name"):
			titleCol = i
		case artistCol < 0 && strings.Contains(name, "artist") && strings.Contains(name, "name"):
			artistCol = i
		}
	}
	return titleCol, artistCol
}

// firstArtist returns the first entry of a multi-artist cell
func firstArtist(cell string) string {
	cell = strings.TrimSpace(cell)
	if idx := strings.IndexAny(cell, ";,"); idx >= 0 {
		cell = cell[:idx]
	}
	return strings.TrimSpace(cell)
}
