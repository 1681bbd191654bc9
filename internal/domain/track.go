package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Track identifies one unit of download work by its "Title - Artist" display
// key. Tracks are immutable values; equality is by normalized key.
type Track struct {
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
}

// NewTrack creates a track from a title and artist
func NewTrack(title, artist string) Track {
	return Track{
		Title:  strings.TrimSpace(title),
		Artist: strings.TrimSpace(artist),
	}
}

// ParseTrack parses a queue file line into a track. The artist is taken
// after the last " - " separator; a line without a separator is a track
// with no artist (the whole line is the title and the query).
func ParseTrack(line string) (Track, error) {
	key := strings.TrimSpace(line)
	if key == "" {
		return Track{}, fmt.Errorf("empty track line")
	}
	if !utf8.ValidString(key) {
		return Track{}, fmt.Errorf("track line is not valid UTF-8")
	}

	if idx := strings.LastIndex(key, " - "); idx > 0 {
		return Track{
			Title:  strings.TrimSpace(key[:idx]),
			Artist: strings.TrimSpace(key[idx+3:]),
		}, nil
	}
	return Track{Title: key}, nil
}

// Key returns the display key used for queue lines, matching, and logging
func (t Track) Key() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Title + " - " + t.Artist
}

// Equal reports whether two tracks share the same normalized key
func (t Track) Equal(other Track) bool {
	return t.Key() == other.Key()
}

// IsZero reports whether the track is empty
func (t Track) IsZero() bool {
	return t.Title == "" && t.Artist == ""
}
