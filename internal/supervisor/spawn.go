package supervisor

import (
	"encoding/json"
	"os"
	"os/exec"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/errs"
)

// SupervisorFlag is the hidden CLI entry point (§6: "supervisor --hooks
// <json>") a spawned background child re-invokes itself with.
const SupervisorFlag = "supervisor"

// SpawnBackgroundChild starts a detached copy of the running binary to
// execute preload hooks asynchronously (§4.8 "Background supervisor").
// The main process does not wait for it, following
// internal/daemon/connector.go's startDaemon: exec.Command + Start, no
// Wait.
func SpawnBackgroundChild(hooks []config.Hook) error {
	encoded, err := json.Marshal(hooks)
	if err != nil {
		return errs.New(errs.Corruption, "marshal preload hooks", "", errs.HintManual, err)
	}

	self, err := os.Executable()
	if err != nil {
		return errs.IOf("locate own executable", "", err)
	}

	cmd := exec.Command(self, SupervisorFlag, "--hooks", string(encoded))
	cmd.Stdin = nil
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err == nil {
		cmd.Stdout = devNull
		cmd.Stderr = devNull
	}
	if err := cmd.Start(); err != nil {
		return errs.New(errs.IO, "spawn background supervisor", self, errs.HintRetryAfter, err)
	}
	return nil
}
