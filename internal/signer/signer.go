// Package signer implements the HMAC signing and constant-time
// verification of cache entries described in §3 ("Signed Entry") and
// §9 ("Raw byte handling for signatures") of the design. It is adapted
// from the teacher's artifact signature authentication
// (internal/cache/cache_signature_authentication.go), generalized from a
// remote-cache team-scoped tag into a local signing key persisted at
// 0600, and extended with the freshness window the design requires.
package signer

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cuenv/cuenv/internal/errs"
	"github.com/cuenv/cuenv/internal/fspath"
)

const keySize = 32
const nonceSize = 32
const macSize = sha256.Size

// DefaultFreshnessWindow is how long a signed entry remains verifiable
// after it was signed.
const DefaultFreshnessWindow = 7 * 24 * time.Hour

// Entry is the (payload, nonce, mac, timestamp) tuple described in §3 and
// §6 ("Wire format of signed entries"). The MAC covers
// payload || nonce || timestamp_le.
type Entry struct {
	Payload   []byte
	Nonce     [nonceSize]byte
	Timestamp int64 // unix seconds
	MAC       [macSize]byte
}

// Signer signs and verifies Entries using a key persisted on disk.
type Signer struct {
	key             []byte
	freshnessWindow time.Duration
	now             func() time.Time
}

// Opts configures a Signer.
type Opts struct {
	// FreshnessWindow overrides DefaultFreshnessWindow if non-zero.
	FreshnessWindow time.Duration
	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// LoadOrCreate reads the signing key at keyPath, generating and persisting
// a fresh 32-byte key at mode 0600 if none exists yet, matching the
// design's ".signing_key" persisted-state entry.
func LoadOrCreate(keyPath fspath.AbsoluteSystemPath, opts Opts) (*Signer, error) {
	key, err := keyPath.ReadFile()
	if err != nil {
		key = make([]byte, keySize)
		if _, randErr := rand.Read(key); randErr != nil {
			return nil, errs.IOf("signer.LoadOrCreate", keyPath.ToString(), randErr)
		}
		if mkErr := keyPath.EnsureDir(); mkErr != nil {
			return nil, errs.IOf("signer.LoadOrCreate", keyPath.ToString(), mkErr)
		}
		if writeErr := keyPath.WriteFile(key, 0600); writeErr != nil {
			return nil, errs.IOf("signer.LoadOrCreate", keyPath.ToString(), writeErr)
		}
	}
	if len(key) != keySize {
		return nil, errs.Corruptionf("signer.LoadOrCreate", keyPath.ToString(), fmt.Errorf("signing key has wrong length %d", len(key)))
	}
	return newSigner(key, opts), nil
}

func newSigner(key []byte, opts Opts) *Signer {
	window := opts.FreshnessWindow
	if window == 0 {
		window = DefaultFreshnessWindow
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}
	return &Signer{key: key, freshnessWindow: window, now: now}
}

func macInput(payload []byte, nonce [nonceSize]byte, timestamp int64) []byte {
	buf := make([]byte, 0, len(payload)+nonceSize+8)
	buf = append(buf, payload...)
	buf = append(buf, nonce[:]...)
	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, uint64(timestamp))
	buf = append(buf, ts...)
	return buf
}

// Sign produces a signed Entry for payload, stamped with the current time.
func (s *Signer) Sign(payload []byte) (Entry, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Entry{}, errs.IOf("signer.Sign", "nonce", err)
	}
	timestamp := s.now().Unix()

	mac := hmac.New(sha256.New, s.key)
	mac.Write(macInput(payload, nonce, timestamp))
	var sum [macSize]byte
	copy(sum[:], mac.Sum(nil))

	return Entry{Payload: payload, Nonce: nonce, Timestamp: timestamp, MAC: sum}, nil
}

// Verify checks e's MAC in constant time and rejects entries outside the
// freshness window. A mutation of any byte of payload, nonce, mac, or an
// expired timestamp causes this to return false.
func (s *Signer) Verify(e Entry) bool {
	age := s.now().Sub(time.Unix(e.Timestamp, 0))
	if age < 0 || age > s.freshnessWindow {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(macInput(e.Payload, e.Nonce, e.Timestamp))
	expected := mac.Sum(nil)
	return hmac.Equal(expected, e.MAC[:])
}
