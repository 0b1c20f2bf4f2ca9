package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendWritesOneJSONLinePerEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	if err := log.Append(Entry{EventKind: "submission", Outcome: "success"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append(Entry{EventKind: "status_query", Outcome: "success"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}

	var first Entry
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decoding first line: %v", err)
	}
	if first.EventKind != "submission" {
		t.Errorf("EventKind = %q, want submission", first.EventKind)
	}
	if first.Timestamp.IsZero() {
		t.Error("Append should stamp a non-zero timestamp")
	}
}

func TestAppendNeverCarriesRawBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	body := []byte(`{"resourceType":"Observation","valueString":"sensitive clinical detail"}`)
	if err := log.Append(Entry{EventKind: "submission", BodySHA256: HashBody(body), Outcome: "success"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if strings.Contains(string(data), "sensitive clinical detail") {
		t.Error("audit log line contains raw PHI content")
	}
}

func TestHashBodyIsDeterministicAndContentAddressed(t *testing.T) {
	a := HashBody([]byte("payload-a"))
	b := HashBody([]byte("payload-a"))
	c := HashBody([]byte("payload-b"))
	if a != b {
		t.Error("HashBody should be deterministic for identical input")
	}
	if a == c {
		t.Error("HashBody should differ for different input")
	}
	if len(a) != 64 {
		t.Errorf("hex-encoded SHA-256 should be 64 characters, got %d", len(a))
	}
}

func TestOpenAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	log1.Append(Entry{EventKind: "submission", Outcome: "success"})
	log1.Close()

	log2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer log2.Close()
	log2.Append(Entry{EventKind: "submission", Outcome: "success"})

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening for read: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("expected log to accumulate across reopen, got %d lines", lines)
	}
}
