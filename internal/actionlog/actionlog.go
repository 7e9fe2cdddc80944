// Package actionlog appends a JSONL record of every structural mutation.
//
// The log is an audit trail, not a journal: replaying it is not required for
// correctness, so append failures are surfaced to the caller as warnings
// rather than aborting the mutation that already committed.
package actionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Action is one logged mutation.
type Action struct {
	Op        string          `json:"op"`
	Timestamp time.Time       `json:"ts"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
}

// Log records mutations.
type Log interface {
	Append(op string, before, after any) error
}

// FileLog appends actions to a JSONL file.
type FileLog struct {
	mu   sync.Mutex
	path string
}

// NewFileLog returns a log backed by the file at path.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

// Append writes one action record. before and after may be nil; non-nil
// values are JSON-encoded snapshots.
func (l *FileLog) Append(op string, before, after any) error {
	a := Action{Op: op, Timestamp: time.Now().UTC()}

	var err error
	if before != nil {
		if a.Before, err = json.Marshal(before); err != nil {
			return fmt.Errorf("failed to encode before snapshot: %w", err)
		}
	}
	if after != nil {
		if a.After, err = json.Marshal(after); err != nil {
			return fmt.Errorf("failed to encode after snapshot: %w", err)
		}
	}

	line, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open action log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append action: %w", err)
	}
	return nil
}

// Nop discards all actions. Used in tests and read-only commands.
type Nop struct{}

// Append implements Log.
func (Nop) Append(string, any, any) error { return nil }
