// Package audit writes an append-only trail of pipeline operations: one
// machine-readable JSONL stream plus a human-readable line log, with size
// rotation. Audit failures are logged and swallowed; the trail observes the
// pipeline, it never blocks it.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/netwrench/netwrench/internal/log"
)

const (
	jsonlName = "audit.jsonl"
	textName  = "current.log"
	// rotateSize is the rotation threshold per file.
	rotateSize = 10 * 1024 * 1024
	// outputLimit truncates captured command output in entries.
	outputLimit = 500
)

// Entry is one audit record.
type Entry struct {
	Time         time.Time `json:"time"`
	Op           string    `json:"op"`
	Interface    string    `json:"iface,omitempty"`
	CheckpointID string    `json:"checkpoint_id,omitempty"`
	Step         string    `json:"step,omitempty"`
	OK           bool      `json:"ok"`
	Detail       string    `json:"detail,omitempty"`
}

// Trail is the audit writer. A nil *Trail is a valid no-op trail, so callers
// never need to branch on whether auditing is enabled.
type Trail struct {
	dir string
	mu  sync.Mutex
}

// New opens (creating if needed) an audit trail under dir.
func New(dir string) (*Trail, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory %s: %w", dir, err)
	}
	return &Trail{dir: dir}, nil
}

// Record writes one entry to both streams. Output longer than the limit is
// truncated; errors are logged, never returned.
func (t *Trail) Record(entry Entry) {
	if t == nil {
		return
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	if len(entry.Detail) > outputLimit {
		entry.Detail = entry.Detail[:outputLimit] + "...(truncated)"
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.appendJSONL(entry); err != nil {
		log.Warnf("audit: failed to write jsonl entry: %v", err)
	}
	if err := t.appendText(entry); err != nil {
		log.Warnf("audit: failed to write text entry: %v", err)
	}
}

func (t *Trail) appendJSONL(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return t.appendLine(jsonlName, string(line))
}

func (t *Trail) appendText(entry Entry) error {
	status := "ok"
	if !entry.OK {
		status = "FAIL"
	}
	line := fmt.Sprintf("%s %-8s %-10s %s", entry.Time.Format(time.RFC3339), entry.Op, status, entry.Interface)
	if entry.Step != "" {
		line += " | " + entry.Step
	}
	if entry.Detail != "" {
		line += " | " + entry.Detail
	}
	return t.appendLine(textName, line)
}

func (t *Trail) appendLine(name, line string) error {
	path := filepath.Join(t.dir, name)
	if err := t.rotateIfNeeded(path); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// rotateIfNeeded archives the file under a timestamped name once it crosses
// the size threshold.
func (t *Trail) rotateIfNeeded(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() < rotateSize {
		return nil
	}
	archived := fmt.Sprintf("%s.%s", path, time.Now().UTC().Format("20060102T150405Z"))
	return os.Rename(path, archived)
}
