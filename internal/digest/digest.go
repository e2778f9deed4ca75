// Package digest implements the single content-hash family used throughout
// cuenv: SHA-256 rendered as 64 lowercase hex characters. Mixing hash
// families is forbidden by the spec, so this package is the only place
// that is allowed to call crypto/sha256 directly; every other package
// hashes through here.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Digest is a 256-bit content hash rendered as 64 lowercase hex characters.
type Digest string

const hexLength = sha256.Size * 2

// Empty is the zero value; Valid() returns false for it.
const Empty Digest = ""

// Valid reports whether d has the shape of a well-formed digest. It does
// not re-hash anything.
func (d Digest) Valid() bool {
	if len(d) != hexLength {
		return false
	}
	for _, r := range d {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (d Digest) String() string { return string(d) }

// FanoutPath returns the "<first2>/<next2>/.../<digest>" fan-out segments
// used to bound per-directory entry counts in the CAS, as two path
// segments followed by the full digest as the file name.
func (d Digest) FanoutPath() (a, b, name string) {
	s := string(d)
	if len(s) < 4 {
		return "00", "00", s
	}
	return s[0:2], s[2:4], s
}

// Bytes hashes b and returns its Digest.
func Bytes(b []byte) Digest {
	sum := sha256.Sum256(b)
	return Digest(hex.EncodeToString(sum[:]))
}

// Reader hashes the entirety of r.
func Reader(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Empty, fmt.Errorf("digest: hashing stream: %w", err)
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}

// Builder incrementally accumulates a digest over several writes, in a
// fixed order chosen by the caller. Used to assemble the ActionDigest,
// which hashes several heterogeneous fields in a specified sequence.
type Builder struct {
	h interface {
		io.Writer
		Sum([]byte) []byte
	}
}

// NewBuilder returns a fresh, empty digest builder.
func NewBuilder() *Builder {
	return &Builder{h: sha256.New()}
}

// WriteString feeds a string followed by a NUL separator into the running
// hash, so that ("ab", "c") and ("a", "bc") never collide.
func (b *Builder) WriteString(s string) *Builder {
	_, _ = b.h.Write([]byte(s))
	_, _ = b.h.Write([]byte{0})
	return b
}

// Digest finalizes and returns the accumulated digest.
func (b *Builder) Digest() Digest {
	return Digest(hex.EncodeToString(b.h.Sum(nil)))
}
