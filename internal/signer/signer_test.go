package signer

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/fspath"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	return newSigner([]byte("0123456789abcdef0123456789abcdef"[:32]), Opts{})
}

func TestSignVerifyRoundtrip(t *testing.T) {
	s := newTestSigner(t)
	e, err := s.Sign([]byte("payload bytes"))
	assert.NilError(t, err)
	assert.Assert(t, s.Verify(e))
}

func TestVerifyRejectsMutatedPayload(t *testing.T) {
	s := newTestSigner(t)
	e, err := s.Sign([]byte("payload bytes"))
	assert.NilError(t, err)

	e.Payload = append([]byte(nil), e.Payload...)
	e.Payload[0] ^= 0xFF
	assert.Assert(t, !s.Verify(e))
}

func TestVerifyRejectsMutatedNonce(t *testing.T) {
	s := newTestSigner(t)
	e, err := s.Sign([]byte("payload bytes"))
	assert.NilError(t, err)

	e.Nonce[0] ^= 0xFF
	assert.Assert(t, !s.Verify(e))
}

func TestVerifyRejectsMutatedMAC(t *testing.T) {
	s := newTestSigner(t)
	e, err := s.Sign([]byte("payload bytes"))
	assert.NilError(t, err)

	e.MAC[0] ^= 0xFF
	assert.Assert(t, !s.Verify(e))
}

func TestVerifyRejectsMutatedTimestamp(t *testing.T) {
	s := newTestSigner(t)
	e, err := s.Sign([]byte("payload bytes"))
	assert.NilError(t, err)

	e.Timestamp += 1
	assert.Assert(t, !s.Verify(e))
}

func TestVerifyRejectsOutsideFreshnessWindow(t *testing.T) {
	start := time.Now()
	current := start
	s := newSigner([]byte("0123456789abcdef0123456789abcdef"[:32]), Opts{
		FreshnessWindow: time.Hour,
		now:             func() time.Time { return current },
	})

	e, err := s.Sign([]byte("payload bytes"))
	assert.NilError(t, err)
	assert.Assert(t, s.Verify(e))

	current = start.Add(2 * time.Hour)
	assert.Assert(t, !s.Verify(e))
}

func TestVerifyRejectsFutureTimestamp(t *testing.T) {
	start := time.Now()
	current := start
	s := newSigner([]byte("0123456789abcdef0123456789abcdef"[:32]), Opts{
		FreshnessWindow: time.Hour,
		now:             func() time.Time { return current },
	})

	e, err := s.Sign([]byte("payload bytes"))
	assert.NilError(t, err)

	current = start.Add(-time.Minute)
	assert.Assert(t, !s.Verify(e))
}

func TestLoadOrCreatePersistsKey(t *testing.T) {
	dir := fspath.AbsoluteSystemPath(t.TempDir())
	keyPath := dir.Join("state", ".signing_key")

	s1, err := LoadOrCreate(keyPath, Opts{})
	assert.NilError(t, err)

	e, err := s1.Sign([]byte("payload bytes"))
	assert.NilError(t, err)

	s2, err := LoadOrCreate(keyPath, Opts{})
	assert.NilError(t, err)
	assert.Assert(t, s2.Verify(e), "second load should derive the same key and verify the first signer's entry")
}
