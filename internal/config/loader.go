package config

import (
	"encoding/json"
	"os"

	"github.com/cuenv/cuenv/internal/errs"
	"github.com/cuenv/cuenv/internal/fspath"
)

// LoadFile reads one package's config file and decodes it into a
// ParseResult. The actual CUE evaluator that turns env.cue into
// loosely-typed data is the external parser §1 places outside this
// system's scope; this reads the already-evaluated JSON form of that
// same contract, so every downstream component (Task Builder, Task
// Registry, Executor) exercises the real Decode path regardless of which
// front-end ultimately produces the raw map.
func LoadFile(path fspath.AbsoluteSystemPath) (ParseResult, error) {
	data, err := os.ReadFile(path.ToString())
	if err != nil {
		return ParseResult{}, errs.IOf("config.LoadFile", path.ToString(), err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ParseResult{}, errs.Configurationf("config.LoadFile", path.ToString(), err)
	}

	return Decode(raw)
}
