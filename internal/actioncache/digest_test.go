package actioncache

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/digest"
)

func TestComputeDigestIsOrderIndependentOverMapsButSensitiveToValues(t *testing.T) {
	inputs := map[string]digest.Digest{
		"a.txt": digest.Bytes([]byte("a")),
		"b.txt": digest.Bytes([]byte("b")),
	}
	env := map[string]string{"B": "2", "A": "1"}

	d1 := ComputeDigest("build", "go build ./...", "/repo/pkg", env, inputs, "salt")
	d2 := ComputeDigest("build", "go build ./...", "/repo/pkg", env, inputs, "salt")
	assert.Equal(t, d1, d2)

	inputs["a.txt"] = digest.Bytes([]byte("changed"))
	d3 := ComputeDigest("build", "go build ./...", "/repo/pkg", env, inputs, "salt")
	assert.Assert(t, d1 != d3)
}

func TestComputeDigestChangesWithSalt(t *testing.T) {
	env := map[string]string{}
	inputs := map[string]digest.Digest{}
	d1 := ComputeDigest("build", "cmd", "/repo", env, inputs, "rev1")
	d2 := ComputeDigest("build", "cmd", "/repo", env, inputs, "rev2")
	assert.Assert(t, d1 != d2)
}
