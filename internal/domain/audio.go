package domain

import (
	"path/filepath"
	"strings"
)

// AudioExtensions lists the file extensions treated as audio output
var AudioExtensions = map[string]bool{
	".flac": true,
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
}

// IsAudioFile checks whether a file name has a recognized audio extension
func IsAudioFile(name string) bool {
	return AudioExtensions[strings.ToLower(filepath.Ext(name))]
}
