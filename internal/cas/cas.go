// Package cas implements the content-addressed blob store described in
// §4.1 of the design: blobs are addressed by digest, fanned out under
// <first2>/<next2>/<digest> to bound per-directory entry counts, written
// atomically (temp file + rename), and carry a small header so corruption
// and version drift are detectable without trusting metadata. The atomic
// write-then-rename discipline and the quota-tracking shape are adapted
// from the teacher's filesystem cache (internal/cache/cache_fs.go).
package cas

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/cuenv/cuenv/internal/digest"
	"github.com/cuenv/cuenv/internal/errs"
	"github.com/cuenv/cuenv/internal/fspath"
)

// magic identifies a cuenv CAS blob file so stray files and format drift
// are caught before the body is trusted.
var magic = [4]byte{'c', 'c', 'a', 's'}

const blobVersion uint32 = 1

// headerSize is magic(4) + version(4) + size(8) + flags(4).
const headerSize = 4 + 4 + 8 + 4

// Store is a content-addressed blob store rooted at a directory.
type Store struct {
	root     fspath.AbsoluteSystemPath
	logger   hclog.Logger
	maxBytes int64
	used     int64 // atomic
	mu       sync.Mutex
}

// Opts configures a Store.
type Opts struct {
	// MaxBytes is the advisory quota; 0 means unlimited.
	MaxBytes int64
	Logger   hclog.Logger
}

// New creates or opens a CAS rooted at root. It does not scan existing
// blobs; callers that need an authoritative quota should call Rescan.
func New(root fspath.AbsoluteSystemPath, opts Opts) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if err := root.MkdirAll(0775); err != nil {
		return nil, errs.IOf("cas.New", root.ToString(), err)
	}
	return &Store{
		root:     root,
		logger:   opts.Logger.Named("cas"),
		maxBytes: opts.MaxBytes,
	}, nil
}

func (s *Store) pathFor(d digest.Digest) fspath.AbsoluteSystemPath {
	a, b, name := d.FanoutPath()
	return s.root.Join(a, b, name)
}

// Exists reports whether a blob file for d is present. It does not read
// the file, so neither the header nor the digest is validated (see Get).
func (s *Store) Exists(d digest.Digest) bool {
	return s.pathFor(d).FileExists()
}

// Size returns the advisory running total of bytes stored.
func (s *Store) Size() int64 {
	return atomic.LoadInt64(&s.used)
}

// ErrCapacityExceeded is returned by Put when the quota would be exceeded.
var ErrCapacityExceeded = fmt.Errorf("cas: capacity exceeded")

// Put stores body, addressed by its digest, and returns that digest. If a
// blob already exists at that digest, Put is a no-op (write-once). The
// write path is: write to a temp file in the same fan-out directory, then
// atomically rename into place, so a concurrent reader never observes a
// partial blob.
func (s *Store) Put(body []byte) (digest.Digest, error) {
	d := digest.Bytes(body)
	dest := s.pathFor(d)
	if dest.FileExists() {
		return d, nil
	}

	if s.maxBytes > 0 {
		incoming := int64(len(body) + headerSize)
		if atomic.LoadInt64(&s.used)+incoming > s.maxBytes {
			return digest.Empty, ErrCapacityExceeded
		}
	}

	if err := dest.EnsureDir(); err != nil {
		return digest.Empty, errs.IOf("cas.Put", dest.ToString(), err)
	}

	tmpName := fmt.Sprintf(".tmp-%s", uuid.NewString())
	tmpPath := dest.Dir().Join(tmpName)

	payload := encodeBlob(body)
	if err := ioutil.WriteFile(tmpPath.ToString(), payload, 0644); err != nil {
		return digest.Empty, errs.IOf("cas.Put", tmpPath.ToString(), err)
	}
	if err := tmpPath.Rename(dest); err != nil {
		_ = tmpPath.Remove()
		return digest.Empty, errs.IOf("cas.Put", dest.ToString(), err)
	}

	atomic.AddInt64(&s.used, int64(len(payload)))
	return d, nil
}

// Get reads and validates the blob for d. It returns (nil, nil) on a
// clean miss, distinct from a validation failure, which returns an error.
func (s *Store) Get(d digest.Digest) ([]byte, error) {
	path := s.pathFor(d)
	if linfo, lerr := path.Lstat(); lerr == nil && linfo.Mode()&os.ModeSymlink != 0 {
		return nil, errs.Corruptionf("cas.Get", path.ToString(), fmt.Errorf("refusing to follow symlink blob"))
	}
	f, err := path.OpenFile(os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IOf("cas.Get", path.ToString(), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errs.IOf("cas.Get", path.ToString(), err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, errs.Corruptionf("cas.Get", path.ToString(), fmt.Errorf("refusing to follow symlink blob"))
	}

	raw, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, errs.IOf("cas.Get", path.ToString(), err)
	}

	body, err := decodeBlob(raw)
	if err != nil {
		s.logger.Warn("corrupt blob, evicting", "digest", d, "error", err)
		_ = path.Remove()
		return nil, errs.Corruptionf("cas.Get", path.ToString(), err)
	}

	if digest.Bytes(body) != d {
		s.logger.Warn("blob content does not match digest, evicting", "digest", d)
		_ = path.Remove()
		return nil, errs.Corruptionf("cas.Get", path.ToString(), fmt.Errorf("content digest mismatch"))
	}

	return body, nil
}

// Remove deletes the blob for d, if present. Safe to call on a miss.
func (s *Store) Remove(d digest.Digest) error {
	path := s.pathFor(d)
	info, err := path.Lstat()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.IOf("cas.Remove", path.ToString(), err)
	}
	if err := path.Remove(); err != nil {
		return errs.IOf("cas.Remove", path.ToString(), err)
	}
	atomic.AddInt64(&s.used, -info.Size())
	return nil
}

// RecordDiskUsage adjusts the advisory usage counter by delta, for
// callers (eviction, startup rescans) that bypass Put/Remove.
func (s *Store) RecordDiskUsage(delta int64) {
	atomic.AddInt64(&s.used, delta)
}

// Rescan walks the store and recomputes the advisory usage counter from
// disk. Quota state is advisory, not authoritative; call this at startup
// or after externally modifying the store.
func (s *Store) Rescan() error {
	var total int64
	err := filepath.Walk(s.root.ToString(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return errs.IOf("cas.Rescan", s.root.ToString(), err)
	}
	atomic.StoreInt64(&s.used, total)
	return nil
}

func encodeBlob(body []byte) []byte {
	buf := make([]byte, headerSize, headerSize+len(body))
	copy(buf[0:4], magic[:])
	binary.BigEndian.PutUint32(buf[4:8], blobVersion)
	binary.BigEndian.PutUint64(buf[8:16], uint64(len(body)))
	binary.BigEndian.PutUint32(buf[16:20], 0) // flags, reserved
	return append(buf, body...)
}

func decodeBlob(raw []byte) ([]byte, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("blob too short for header: %d bytes", len(raw))
	}
	if !bytes.Equal(raw[0:4], magic[:]) {
		return nil, fmt.Errorf("bad magic")
	}
	version := binary.BigEndian.Uint32(raw[4:8])
	if version != blobVersion {
		return nil, fmt.Errorf("unsupported blob version %d", version)
	}
	size := binary.BigEndian.Uint64(raw[8:16])
	body := raw[headerSize:]
	if uint64(len(body)) != size {
		return nil, fmt.Errorf("declared size %d does not match body length %d", size, len(body))
	}
	return body, nil
}
