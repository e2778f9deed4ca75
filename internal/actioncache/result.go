package actioncache

import "github.com/cuenv/cuenv/internal/digest"

// ActionResult is the outcome of one task execution, as stored under its
// ActionDigest (§3 "ActionResult").
type ActionResult struct {
	ExitCode     int                       `json:"exit_code"`
	StdoutDigest digest.Digest             `json:"stdout_digest,omitempty"`
	StderrDigest digest.Digest             `json:"stderr_digest,omitempty"`
	OutputFiles  map[string]digest.Digest  `json:"output_files"`
	ExecutedAt   int64                     `json:"executed_at"`
	DurationMs   int64                     `json:"duration_ms"`
}

// Produced is what a caller's produce closure returns: the raw outcome of
// running the child process, with output files still sitting on disk
// rather than hashed into the CAS. ExecuteAction performs that hashing and
// storage itself so that a caller that fails before producing outputs
// never has partially-cached state.
type Produced struct {
	ExitCode   int
	DurationMs int64
	// StdoutPath/StderrPath name files on disk holding captured output, or
	// are empty if output was not captured for this task.
	StdoutPath string
	StderrPath string
	// OutputFiles maps each declared output's relative path to its
	// absolute location on disk after the task ran.
	OutputFiles map[string]string
}
