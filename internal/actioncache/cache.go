package actioncache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cuenv/cuenv/internal/cas"
	"github.com/cuenv/cuenv/internal/digest"
	"github.com/cuenv/cuenv/internal/errs"
	"github.com/cuenv/cuenv/internal/fspath"
	"github.com/cuenv/cuenv/internal/hashengine"
	"github.com/cuenv/cuenv/internal/signer"
)

// EvictionThresholds bounds the signed-entry store: once either is
// exceeded, the least-recently-used entries (and their uniquely
// referenced CAS blobs) are evicted until both are satisfied again.
type EvictionThresholds struct {
	MaxEntries int
	MaxBytes   int64
}

// DefaultEvictionThresholds mirrors a small local developer cache; callers
// running at scale should configure their own.
var DefaultEvictionThresholds = EvictionThresholds{MaxEntries: 10_000, MaxBytes: 2 << 30}

// Cache is the Action Cache described in §4.4.
type Cache struct {
	entries *entryStore
	blobs   *cas.Store
	signer  *signer.Signer
	sf      singleflight.Group
	thr     EvictionThresholds

	mu       sync.RWMutex
	index    map[digest.Digest]*indexEntry
	refcount map[digest.Digest]int
}

type indexEntry struct {
	lastAccess time.Time
	size       int64
}

// Opts configures a Cache.
type Opts struct {
	EntriesRoot fspath.AbsoluteSystemPath
	Blobs       *cas.Store
	Signer      *signer.Signer
	Thresholds  EvictionThresholds
}

// New opens (or creates) an Action Cache. Its LRU index and CAS reference
// counts are advisory, in-memory-only state (§4.4 "Eviction") and start
// empty: New does not scan existing entries, so an entry written by an
// earlier process enters the index only once GetCachedResult reads it,
// and the blobs it references carry no reference count.
func New(opts Opts) (*Cache, error) {
	entries, err := newEntryStore(opts.EntriesRoot)
	if err != nil {
		return nil, err
	}
	thr := opts.Thresholds
	if thr.MaxEntries == 0 && thr.MaxBytes == 0 {
		thr = DefaultEvictionThresholds
	}
	c := &Cache{
		entries:  entries,
		blobs:    opts.Blobs,
		signer:   opts.Signer,
		thr:      thr,
		index:    make(map[digest.Digest]*indexEntry),
		refcount: make(map[digest.Digest]int),
	}
	return c, nil
}

// GetCachedResult looks up digest and returns the verified ActionResult, if
// any valid signed entry exists. A present-but-invalid entry (failed MAC,
// expired freshness window, undecodable payload) is evicted and treated as
// a miss rather than returned.
func (c *Cache) GetCachedResult(d digest.Digest) (*ActionResult, bool, error) {
	e, found, err := c.entries.get(d)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if !c.signer.Verify(e) {
		_ = c.evict(d)
		return nil, false, nil
	}

	var result ActionResult
	if err := json.Unmarshal(e.Payload, &result); err != nil {
		_ = c.evict(d)
		return nil, false, nil
	}

	c.touch(d, int64(len(e.Payload)))
	return &result, true, nil
}

// RestoreOutputs writes every output file of result into workingDir,
// fetching each from the CAS. It fails closed: any missing or corrupt
// blob aborts before partially restoring the set, so the caller can evict
// and fall back to re-execution cleanly.
func (c *Cache) RestoreOutputs(result *ActionResult, workingDir fspath.AbsoluteSystemPath) error {
	restored := make(map[string][]byte, len(result.OutputFiles))
	for rel, d := range result.OutputFiles {
		body, err := c.blobs.Get(d)
		if err != nil {
			return err
		}
		if body == nil {
			return errs.Corruptionf("actioncache.RestoreOutputs", rel, fmt.Errorf("referenced output blob %s missing from CAS", d))
		}
		restored[rel] = body
	}
	for rel, body := range restored {
		dest := workingDir.Join(rel)
		if err := dest.EnsureDir(); err != nil {
			return errs.IOf("actioncache.RestoreOutputs", dest.ToString(), err)
		}
		if err := dest.WriteFile(body, 0644); err != nil {
			return errs.IOf("actioncache.RestoreOutputs", dest.ToString(), err)
		}
	}
	return nil
}

// ExecuteAction implements the digest-keyed at-most-once coordination of
// §4.4: a cache hit whose outputs restore cleanly short-circuits produce
// entirely; otherwise exactly one concurrent caller per digest invokes
// produce, and all callers for that digest observe its result.
func (c *Cache) ExecuteAction(d digest.Digest, workingDir fspath.AbsoluteSystemPath, produce func() (*Produced, error)) (*ActionResult, error) {
	if result, hit, err := c.GetCachedResult(d); err != nil {
		return nil, err
	} else if hit {
		if restoreErr := c.RestoreOutputs(result, workingDir); restoreErr == nil {
			return result, nil
		}
		_ = c.evict(d)
	}

	v, err, _ := c.sf.Do(d.String(), func() (interface{}, error) {
		produced, err := produce()
		if err != nil {
			return nil, err
		}
		if produced.ExitCode != 0 {
			return &ActionResult{
				ExitCode:   produced.ExitCode,
				DurationMs: produced.DurationMs,
				ExecutedAt: c.nowUnix(),
			}, nil
		}
		return c.commit(d, produced)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ActionResult), nil
}

func (c *Cache) nowUnix() int64 { return time.Now().Unix() }

// commit reads every promised output and inserts it into the CAS (which
// addresses it by its digest), signs the resulting ActionResult, and stores it. It is
// only reached for a zero-exit-code produce() result.
func (c *Cache) commit(d digest.Digest, produced *Produced) (*ActionResult, error) {
	outputDigests := make(map[string]digest.Digest, len(produced.OutputFiles))
	for rel, abs := range produced.OutputFiles {
		body, err := fspath.AbsoluteSystemPath(abs).ReadFile()
		if err != nil {
			return nil, errs.IOf("actioncache.commit", abs, err)
		}
		blobDigest, err := c.blobs.Put(body)
		if err != nil {
			return nil, err
		}
		outputDigests[rel] = blobDigest
	}

	result := &ActionResult{
		ExitCode:    produced.ExitCode,
		OutputFiles: outputDigests,
		ExecutedAt:  c.nowUnix(),
		DurationMs:  produced.DurationMs,
	}
	if produced.StdoutPath != "" {
		if stdoutDigest, err := hashengine.HashFile(fspath.AbsoluteSystemPath(produced.StdoutPath)); err == nil {
			result.StdoutDigest = stdoutDigest
		}
	}
	if produced.StderrPath != "" {
		if stderrDigest, err := hashengine.HashFile(fspath.AbsoluteSystemPath(produced.StderrPath)); err == nil {
			result.StderrDigest = stderrDigest
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, errs.IOf("actioncache.commit", d.String(), err)
	}
	entry, err := c.signer.Sign(payload)
	if err != nil {
		return nil, err
	}
	if err := c.entries.put(d, entry); err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, blobDigest := range outputDigests {
		c.refcount[blobDigest]++
	}
	c.index[d] = &indexEntry{lastAccess: time.Now(), size: int64(len(payload))}
	c.mu.Unlock()

	c.maybeEvict()
	return result, nil
}

func (c *Cache) touch(d digest.Digest, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.index[d]
	if !ok {
		e = &indexEntry{}
		c.index[d] = e
	}
	e.lastAccess = time.Now()
	e.size = size
}

// evict removes the entry for d, releasing its blob references and
// dropping it from the LRU index. Safe to call with c.mu unheld.
func (c *Cache) evict(d digest.Digest) error {
	e, found, err := c.entries.get(d)
	if err == nil && found {
		var result ActionResult
		if json.Unmarshal(e.Payload, &result) == nil {
			c.mu.Lock()
			c.releaseRefsLocked(result.OutputFiles)
			delete(c.index, d)
			c.mu.Unlock()
		}
	}
	return c.entries.remove(d)
}

// releaseRefsLocked decrements the refcount for each blob digest, removing
// unreferenced blobs from the CAS. c.mu must be held by the caller.
func (c *Cache) releaseRefsLocked(outputs map[string]digest.Digest) {
	for _, blobDigest := range outputs {
		c.refcount[blobDigest]--
		if c.refcount[blobDigest] <= 0 {
			delete(c.refcount, blobDigest)
			_ = c.blobs.Remove(blobDigest)
		}
	}
}

// maybeEvict runs LRU eviction while either threshold is exceeded.
func (c *Cache) maybeEvict() {
	for {
		c.mu.RLock()
		over := (c.thr.MaxEntries > 0 && len(c.index) > c.thr.MaxEntries) ||
			(c.thr.MaxBytes > 0 && c.entries.size() > c.thr.MaxBytes)
		c.mu.RUnlock()
		if !over {
			return
		}

		oldest, ok := c.oldestEntry()
		if !ok {
			return
		}
		_ = c.evict(oldest)
	}
}

func (c *Cache) oldestEntry() (digest.Digest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var oldest digest.Digest
	var oldestTime time.Time
	found := false
	for d, e := range c.index {
		if !found || e.lastAccess.Before(oldestTime) {
			oldest = d
			oldestTime = e.lastAccess
			found = true
		}
	}
	return oldest, found
}
