package cas

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/digest"
	"github.com/cuenv/cuenv/internal/fspath"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := fspath.AbsoluteSystemPath(t.TempDir())
	s, err := New(root, Opts{})
	assert.NilError(t, err, "New")
	return s
}

func TestPutGetRoundtrip(t *testing.T) {
	s := newTestStore(t)
	body := []byte("hello, cuenv")

	d, err := s.Put(body)
	assert.NilError(t, err, "Put")
	assert.Equal(t, d, digest.Bytes(body))

	got, err := s.Get(d)
	assert.NilError(t, err, "Get")
	assert.DeepEqual(t, got, body)
}

func TestPutIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	body := []byte("idempotent")

	d1, err := s.Put(body)
	assert.NilError(t, err)
	d2, err := s.Put(body)
	assert.NilError(t, err)
	assert.Equal(t, d1, d2)
	assert.Equal(t, s.Exists(d1), true)
}

func TestGetMissReturnsNilNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(digest.Bytes([]byte("never stored")))
	assert.NilError(t, err)
	assert.Assert(t, got == nil)
}

func TestGetDetectsCorruption(t *testing.T) {
	s := newTestStore(t)
	body := []byte("tamper me")
	d, err := s.Put(body)
	assert.NilError(t, err)

	path := s.pathFor(d)
	raw, err := path.ReadFile()
	assert.NilError(t, err)
	raw[len(raw)-1] ^= 0xFF
	assert.NilError(t, path.WriteFile(raw, 0644))

	_, err = s.Get(d)
	assert.ErrorContains(t, err, "corruption")
	assert.Equal(t, s.Exists(d), false, "corrupt blob should be evicted")
}

func TestCapacityExceeded(t *testing.T) {
	root := fspath.AbsoluteSystemPath(t.TempDir())
	s, err := New(root, Opts{MaxBytes: 4})
	assert.NilError(t, err)

	_, err = s.Put([]byte("this is far more than four bytes"))
	assert.Equal(t, err, ErrCapacityExceeded)
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	d, err := s.Put([]byte("removable"))
	assert.NilError(t, err)
	assert.NilError(t, s.Remove(d))
	assert.Equal(t, s.Exists(d), false)
	// Removing a missing blob is a no-op, not an error.
	assert.NilError(t, s.Remove(d))
}
