package backend

import (
	"fmt"

	"github.com/yourusername/tunepull/internal/domain"
)

// MaxVariants caps how many invocation variants a track may be tried with
const MaxVariants = 5

// DefaultVariants returns the built-in ordered list of backend invocation
// shapes. Each is tried in order until one succeeds; the shapes cover the
// argument conventions observed across backend releases.
func DefaultVariants() []domain.Variant {
	return []domain.Variant{
		{
			Name: "download-lossless",
			Args: []string{"download", "{query}", "--format", "flac", "--quality", "lossless", "--output-dir", "{dir}"},
		},
		{
			Name: "output-format",
			Args: []string{"{query}", "-o", "{dir}", "--format", "flac"},
		},
		{
			Name: "search-download",
			Args: []string{"search", "{query}", "--download", "--format", "flac", "--path", "{dir}"},
		},
		{
			Name: "download-flac",
			Args: []string{"download", "{query}", "--flac", "-o", "{dir}"},
		},
		{
			Name: "minimal",
			Args: []string{"{query}", "-o", "{dir}"},
		},
	}
}

// ResolveVariants returns the configured variant list, or the built-in list
// when none is configured. Configured lists are validated: at most
// MaxVariants entries, no empty argument templates, and each variant must
// differ from its predecessor in at least one argument.
func ResolveVariants(configured []domain.Variant) ([]domain.Variant, error) {
	if len(configured) == 0 {
		return DefaultVariants(), nil
	}
	if len(configured) > MaxVariants {
		return nil, fmt.Errorf("too many backend variants: %d (max %d)", len(configured), MaxVariants)
	}
	for i, variant := range configured {
		if len(variant.Args) == 0 {
			return nil, fmt.Errorf("backend variant %d (%s) has no arguments", i+1, variant.Name)
		}
		if i > 0 && variant.SameArgs(configured[i-1]) {
			return nil, fmt.Errorf("backend variant %d (%s) repeats its predecessor", i+1, variant.Name)
		}
	}
	return configured, nil
}
