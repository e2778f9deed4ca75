// Package actioncache implements the Action Cache (§4.4): digest
// computation over a task's identity and inputs, at-most-one-build
// coordination via a process-wide singleflight, signed-entry persistence
// on top of the Signer and CAS, and LRU eviction with CAS reference
// counting. It is grounded on the teacher's cache package (cache.go,
// cache_fs.go, cache_signature_authentication.go) generalized from a
// tar-bundle-per-task model to the design's per-output-file CAS blob
// model, and its at-most-once coordination is new: the codebase this was
// adapted from has no equivalent, so it is built directly on
// golang.org/x/sync/singleflight, the same module the teacher uses for
// errgroup-based fan-out.
package actioncache

import (
	"sort"

	"github.com/cuenv/cuenv/internal/digest"
)

// ComputeDigest hashes, in the fixed order the design mandates, the task's
// name, its execution content (command or script text), its canonicalised
// working directory, its allow-listed environment variables (sorted by
// name), the digests of its input files (sorted by path), and a salt
// derived from the task-graph config revision. Changing this order or any
// canonicalisation rule invalidates every existing cache entry.
func ComputeDigest(taskName, executionContent, workingDir string, envAllowlist map[string]string, inputFiles map[string]digest.Digest, salt string) digest.Digest {
	b := digest.NewBuilder()
	b.WriteString(taskName)
	b.WriteString(executionContent)
	b.WriteString(workingDir)

	envNames := make([]string, 0, len(envAllowlist))
	for name := range envAllowlist {
		envNames = append(envNames, name)
	}
	sort.Strings(envNames)
	for _, name := range envNames {
		b.WriteString(name)
		b.WriteString(envAllowlist[name])
	}

	inputPaths := make([]string, 0, len(inputFiles))
	for path := range inputFiles {
		inputPaths = append(inputPaths, path)
	}
	sort.Strings(inputPaths)
	for _, path := range inputPaths {
		b.WriteString(path)
		b.WriteString(inputFiles[path].String())
	}

	b.WriteString(salt)
	return b.Digest()
}
