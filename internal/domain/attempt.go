package domain

import (
	"context"
	"strings"
	"time"
)

// AttemptOutcome classifies the result of one backend invocation
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
	OutcomeTimeout AttemptOutcome = "timeout"
)

// AttemptResult is the normalized outcome of a single backend invocation
type AttemptResult struct {
	Outcome  AttemptOutcome `json:"outcome"`
	FilePath string         `json:"file_path,omitempty"` // produced audio file, when detected
	Reason   string         `json:"reason,omitempty"`    // set on failure and timeout
}

// Succeeded reports whether the attempt produced a terminal success
func (r AttemptResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Variant is one parameterization of a backend invocation. Args may contain
// the placeholders {query} and {dir}, expanded per attempt.
type Variant struct {
	Name string   `json:"name" mapstructure:"name"`
	Args []string `json:"args" mapstructure:"args"`
}

// Expand substitutes the query and output directory into the variant's args
func (v Variant) Expand(query, dir string) []string {
	args := make([]string, len(v.Args))
	for i, arg := range v.Args {
		arg = strings.ReplaceAll(arg, "{query}", query)
		arg = strings.ReplaceAll(arg, "{dir}", dir)
		args[i] = arg
	}
	return args
}

// SameArgs reports whether two variants have identical argument templates
func (v Variant) SameArgs(other Variant) bool {
	if len(v.Args) != len(other.Args) {
		return false
	}
	for i := range v.Args {
		if v.Args[i] != other.Args[i] {
			return false
		}
	}
	return true
}

// Attempter runs exactly one backend invocation for a track under a hard
// wall-clock timeout. Implementations must terminate the underlying
// operation before returning a timeout result.
type Attempter interface {
	Attempt(ctx context.Context, track Track, variant Variant, timeout time.Duration) AttemptResult
}

// ProgressSink receives orchestration progress events. Events are purely
// observational; implementations must not block dispatch.
type ProgressSink interface {
	TrackStarted(track Track)
	VariantAttempted(track Track, variantIndex int, variant Variant)
	TrackSucceeded(track Track, filePath string)
	TrackFailed(track Track, reason string)
}
