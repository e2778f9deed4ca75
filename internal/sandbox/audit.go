package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// AuditLogger appends AuditEntry records to a file, one JSON object per
// line. Used both as the sole enforcement record in audit mode (§4.6
// "Audit mode": "all filesystem/network attempts are recorded") and
// alongside real enforcement to record admission decisions made before a
// kernel ruleset takes over.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens (creating if necessary) path for append.
func NewAuditLogger(path string) (*AuditLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("sandbox: opening audit log: %w", err)
	}
	return &AuditLogger{file: f}, nil
}

// Record appends one entry. A nil logger is a safe no-op, so callers can
// pass a possibly-absent logger without a nil check at every call site.
func (a *AuditLogger) Record(entry AuditEntry) {
	if a == nil {
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.file.Write(line)
}

// Close flushes and closes the underlying file. A nil logger is a no-op.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	return a.file.Close()
}
