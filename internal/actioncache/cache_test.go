package actioncache

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/cas"
	"github.com/cuenv/cuenv/internal/digest"
	"github.com/cuenv/cuenv/internal/fspath"
	"github.com/cuenv/cuenv/internal/signer"
)

func newTestCache(t *testing.T, thr EvictionThresholds) (*Cache, fspath.AbsoluteSystemPath) {
	t.Helper()
	root := fspath.AbsoluteSystemPath(t.TempDir())
	blobs, err := cas.New(root.Join("objects"), cas.Opts{})
	assert.NilError(t, err)
	sig, err := signer.LoadOrCreate(root.Join(".signing_key"), signer.Opts{})
	assert.NilError(t, err)
	c, err := New(Opts{EntriesRoot: root.Join("actions"), Blobs: blobs, Signer: sig, Thresholds: thr})
	assert.NilError(t, err)
	return c, root
}

func writeOutput(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	assert.NilError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestExecuteActionCachesAndRestores(t *testing.T) {
	c, root := newTestCache(t, EvictionThresholds{})
	workDir := root.Join("work")
	assert.NilError(t, workDir.MkdirAll(0775))
	outPath := writeOutput(t, workDir.ToString(), "out.txt", "built")

	d := digest.Bytes([]byte("task:hello"))
	var calls int32
	produce := func() (*Produced, error) {
		atomic.AddInt32(&calls, 1)
		return &Produced{ExitCode: 0, OutputFiles: map[string]string{"out.txt": outPath}}, nil
	}

	result, err := c.ExecuteAction(d, workDir, produce)
	assert.NilError(t, err)
	assert.Equal(t, result.ExitCode, 0)
	assert.Equal(t, calls, int32(1))

	assert.NilError(t, os.Remove(outPath))

	result2, err := c.ExecuteAction(d, workDir, produce)
	assert.NilError(t, err)
	assert.Equal(t, result2.OutputFiles["out.txt"], result.OutputFiles["out.txt"])
	assert.Equal(t, calls, int32(1), "second call should be served from cache without invoking produce")

	restored, err := os.ReadFile(outPath)
	assert.NilError(t, err)
	assert.Equal(t, string(restored), "built")
}

func TestExecuteActionAtMostOnceUnderConcurrency(t *testing.T) {
	c, root := newTestCache(t, EvictionThresholds{})
	workDir := root.Join("work")
	assert.NilError(t, workDir.MkdirAll(0775))
	outPath := writeOutput(t, workDir.ToString(), "out.txt", "built")

	d := digest.Bytes([]byte("task:concurrent"))
	var calls int32
	release := make(chan struct{})
	produce := func() (*Produced, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &Produced{ExitCode: 0, OutputFiles: map[string]string{"out.txt": outPath}}, nil
	}

	const n = 8
	results := make([]*ActionResult, n)
	errsOut := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errsOut[i] = c.ExecuteAction(d, workDir, produce)
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, calls, int32(1))
	for i := 0; i < n; i++ {
		assert.NilError(t, errsOut[i])
		assert.Equal(t, results[i].OutputFiles["out.txt"], results[0].OutputFiles["out.txt"])
	}
}

func TestExecuteActionDoesNotCacheNonZeroExit(t *testing.T) {
	c, root := newTestCache(t, EvictionThresholds{})
	workDir := root.Join("work")
	assert.NilError(t, workDir.MkdirAll(0775))

	d := digest.Bytes([]byte("task:failing"))
	var calls int32
	produce := func() (*Produced, error) {
		atomic.AddInt32(&calls, 1)
		return &Produced{ExitCode: 1}, nil
	}

	result, err := c.ExecuteAction(d, workDir, produce)
	assert.NilError(t, err)
	assert.Equal(t, result.ExitCode, 1)

	_, err = c.ExecuteAction(d, workDir, produce)
	assert.NilError(t, err)
	assert.Equal(t, calls, int32(2), "a non-zero exit must not be cached")
}

func TestEvictionReclaimsUnreferencedBlobs(t *testing.T) {
	c, root := newTestCache(t, EvictionThresholds{MaxEntries: 1})
	workDir := root.Join("work")
	assert.NilError(t, workDir.MkdirAll(0775))

	makeProduce := func(content string) func() (*Produced, error) {
		p := writeOutput(t, workDir.ToString(), "out.txt", content)
		return func() (*Produced, error) {
			return &Produced{ExitCode: 0, OutputFiles: map[string]string{"out.txt": p}}, nil
		}
	}

	d1 := digest.Bytes([]byte("task:one"))
	r1, err := c.ExecuteAction(d1, workDir, makeProduce("first"))
	assert.NilError(t, err)

	d2 := digest.Bytes([]byte("task:two"))
	_, err = c.ExecuteAction(d2, workDir, makeProduce("second"))
	assert.NilError(t, err)

	_, hit, err := c.GetCachedResult(d1)
	assert.NilError(t, err)
	assert.Assert(t, !hit, "oldest entry should have been evicted once MaxEntries was exceeded")

	assert.Assert(t, !c.blobs.Exists(r1.OutputFiles["out.txt"]), "evicted entry's uniquely-referenced blob should be reclaimed")
}
