// Package audit implements the append-only, PHI-free audit log of
// spec.md §3/§4.2: every submission, status query, and authentication or
// rate-limit rejection writes one line; the line never carries a full
// observation payload, only a SHA-256 hash of it.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Entry is one audit line, per spec.md §3 Audit entry.
type Entry struct {
	Timestamp        time.Time `json:"timestamp"`
	EventKind        string    `json:"eventKind"`
	IdempotencyKey   string    `json:"idempotencyKey,omitempty"`
	SubjectReference string    `json:"subjectReference,omitempty"`
	BodySHA256       string    `json:"payloadHashSHA256,omitempty"`
	Outcome          string    `json:"outcome"`
	Count            *int      `json:"count,omitempty"`
}

// Log is a single-writer append-only audit log, serialized with one
// mutex per spec.md §5's "audit log is append-only and safe for
// concurrent appenders via file-level locking or a single writer" policy.
// Grounded on internal/filestore's append discipline, trimmed to
// append-only (no index, no rewrite, no deletion) since audit lines are
// never looked up or mutated, only appended and later read in bulk.
type Log struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// Open opens (creating if necessary) the append-only audit log at path.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "opening audit log at %s", path)
	}
	return &Log{file: f, now: time.Now}, nil
}

// Close closes the underlying file.
func (l *Log) Close() error { return l.file.Close() }

// Append writes one audit entry, stamping its timestamp.
func (l *Log) Append(e Entry) error {
	e.Timestamp = l.now()
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshaling audit entry")
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.file.Write(data)
	return err
}

// HashBody returns the hex-encoded SHA-256 of body, never the body itself
// (spec.md's "never contains PHI" invariant).
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
