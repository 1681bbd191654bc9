package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellEscape(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain query",
			input:    "TakeFive",
			expected: "TakeFive",
		},
		{
			name:     "query with spaces",
			input:    "Take Five - Dave Brubeck",
			expected: "'Take Five - Dave Brubeck'",
		},
		{
			name:     "query with single quote",
			input:    "Don't Stop Me Now",
			expected: "'Don'\"'\"'t Stop Me Now'",
		},
		{
			name:     "query with double quote",
			input:    `The "Best" Take`,
			expected: `'The "Best" Take'`,
		},
		{
			name:     "query with dollar sign",
			input:    "Mo$ney",
			expected: "'Mo$ney'",
		},
		{
			name:     "query with parentheses",
			input:    "Song (Live)",
			expected: "'Song (Live)'",
		},
		{
			name:     "query with ampersand",
			input:    "Me & You",
			expected: "'Me & You'",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "''",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShellEscape(tt.input))
		})
	}
}

func TestShellEscapeCommand(t *testing.T) {
	result := ShellEscapeCommand("hifi", "download", "Take Five - Dave Brubeck", "--format", "flac")
	assert.Equal(t, "hifi download 'Take Five - Dave Brubeck' --format flac", result)
}

func TestShellEscapeCommand_NoArgs(t *testing.T) {
	assert.Equal(t, "hifi", ShellEscapeCommand("hifi"))
}
