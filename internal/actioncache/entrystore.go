package actioncache

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cuenv/cuenv/internal/digest"
	"github.com/cuenv/cuenv/internal/errs"
	"github.com/cuenv/cuenv/internal/fspath"
	"github.com/cuenv/cuenv/internal/signer"
)

// entryStore persists signer.Entry values on disk, fanned out by their
// key exactly like the CAS, but keyed by ActionDigest directly rather than
// by a hash of their own content: an ActionResult's digest is its task
// identity, not its serialized bytes, so re-signing the same key must
// overwrite rather than be a content-addressed no-op (§3 "Lifecycle":
// cached ActionResults live until evicted).
type entryStore struct {
	root fspath.AbsoluteSystemPath
	used int64 // atomic, advisory
}

func newEntryStore(root fspath.AbsoluteSystemPath) (*entryStore, error) {
	if err := root.MkdirAll(0775); err != nil {
		return nil, errs.IOf("actioncache.newEntryStore", root.ToString(), err)
	}
	return &entryStore{root: root}, nil
}

func (s *entryStore) pathFor(key digest.Digest) fspath.AbsoluteSystemPath {
	a, b, name := key.FanoutPath()
	return s.root.Join(a, b, name)
}

// wireEntry is the on-disk serialization of a signer.Entry: §6 "Wire
// format of signed entries".
type wireEntry struct {
	Payload   []byte `json:"payload_bytes"`
	Nonce     []byte `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	MAC       []byte `json:"mac"`
}

func toWire(e signer.Entry) wireEntry {
	return wireEntry{
		Payload:   e.Payload,
		Nonce:     append([]byte(nil), e.Nonce[:]...),
		Timestamp: e.Timestamp,
		MAC:       append([]byte(nil), e.MAC[:]...),
	}
}

func fromWire(w wireEntry) (signer.Entry, error) {
	var e signer.Entry
	if len(w.Nonce) != len(e.Nonce) {
		return e, fmt.Errorf("wire entry has nonce of length %d", len(w.Nonce))
	}
	if len(w.MAC) != len(e.MAC) {
		return e, fmt.Errorf("wire entry has mac of length %d", len(w.MAC))
	}
	copy(e.Nonce[:], w.Nonce)
	copy(e.MAC[:], w.MAC)
	e.Payload = w.Payload
	e.Timestamp = w.Timestamp
	return e, nil
}

// put writes e under key, atomically (temp file + rename), overwriting
// any existing entry for that key.
func (s *entryStore) put(key digest.Digest, e signer.Entry) error {
	dest := s.pathFor(key)
	if err := dest.EnsureDir(); err != nil {
		return errs.IOf("actioncache.entryStore.put", dest.ToString(), err)
	}

	raw, err := json.Marshal(toWire(e))
	if err != nil {
		return errs.IOf("actioncache.entryStore.put", dest.ToString(), err)
	}

	tmp := dest.Dir().Join(fmt.Sprintf(".tmp-%s", uuid.NewString()))
	if err := ioutil.WriteFile(tmp.ToString(), raw, 0644); err != nil {
		return errs.IOf("actioncache.entryStore.put", tmp.ToString(), err)
	}

	var priorSize int64
	if info, statErr := dest.Lstat(); statErr == nil {
		priorSize = info.Size()
	}

	if err := tmp.Rename(dest); err != nil {
		_ = tmp.Remove()
		return errs.IOf("actioncache.entryStore.put", dest.ToString(), err)
	}
	atomic.AddInt64(&s.used, int64(len(raw))-priorSize)
	return nil
}

// get reads the entry for key. It returns (zero, false, nil) on a clean
// miss and (zero, false, err) on a read or decode failure.
func (s *entryStore) get(key digest.Digest) (signer.Entry, bool, error) {
	path := s.pathFor(key)
	raw, err := path.ReadFile()
	if err != nil {
		if os.IsNotExist(err) {
			return signer.Entry{}, false, nil
		}
		return signer.Entry{}, false, errs.IOf("actioncache.entryStore.get", path.ToString(), err)
	}

	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return signer.Entry{}, false, errs.Corruptionf("actioncache.entryStore.get", path.ToString(), err)
	}
	e, err := fromWire(w)
	if err != nil {
		return signer.Entry{}, false, errs.Corruptionf("actioncache.entryStore.get", path.ToString(), err)
	}
	return e, true, nil
}

// remove deletes the entry for key, if present.
func (s *entryStore) remove(key digest.Digest) error {
	path := s.pathFor(key)
	info, err := path.Lstat()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.IOf("actioncache.entryStore.remove", path.ToString(), err)
	}
	if err := path.Remove(); err != nil {
		return errs.IOf("actioncache.entryStore.remove", path.ToString(), err)
	}
	atomic.AddInt64(&s.used, -info.Size())
	return nil
}

func (s *entryStore) size() int64 {
	return atomic.LoadInt64(&s.used)
}
