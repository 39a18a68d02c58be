package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestInitWritesJSONL(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir})
	defer Shutdown()

	l := Logger()
	if l == nil {
		t.Fatal("expected non-nil logger after Init")
	}
	l.Info("test_message", "key", "value")

	data, err := os.ReadFile(filepath.Join(dir, "search.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")

	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("failed to parse JSONL: %v (line: %s)", err, line)
	}
	if record["msg"] != "test_message" {
		t.Errorf("expected msg=test_message, got %v", record["msg"])
	}
	if record["key"] != "value" {
		t.Errorf("expected key=value, got %v", record["key"])
	}
}

func TestForComponentBeforeInit(t *testing.T) {
	Shutdown()

	// Created before Init: must still pick up the real handler afterwards.
	compLog := ForComponent(CompIndex)

	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir})
	defer Shutdown()

	compLog.Info("component_event")

	data, err := os.ReadFile(filepath.Join(dir, "search.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !bytes.Contains(data, []byte(`"component":"index"`)) {
		t.Errorf("expected component field in output, got: %s", data)
	}
}

func TestAggregatorBatchesEvents(t *testing.T) {
	var buf safeBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	agg := NewAggregator(logger, 1)
	agg.Start()

	for i := 0; i < 5; i++ {
		agg.Record(CompIndex, "batch_drained", slog.Int("processed", i))
	}
	agg.Stop()

	out := buf.String()
	if !strings.Contains(out, `"count":5`) {
		t.Errorf("expected aggregated count of 5, got: %s", out)
	}
	if strings.Count(out, "event_summary") != 1 {
		t.Errorf("expected a single summary line, got: %s", out)
	}
}

func TestRingBufferWrap(t *testing.T) {
	rb := NewRingBuffer(8)
	if _, err := rb.Write([]byte("abcdef")); err != nil {
		t.Fatal(err)
	}
	if _, err := rb.Write([]byte("ghij")); err != nil {
		t.Fatal(err)
	}
	got := string(rb.Bytes())
	if got != "cdefghij" {
		t.Errorf("expected chronological tail cdefghij, got %q", got)
	}
}

func TestRingBufferOversizedWrite(t *testing.T) {
	rb := NewRingBuffer(4)
	if _, err := rb.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	if got := string(rb.Bytes()); got != "6789" {
		t.Errorf("expected last 4 bytes, got %q", got)
	}
}

func TestRingBufferDumpToFile(t *testing.T) {
	rb := NewRingBuffer(64)
	_, _ = rb.Write([]byte("crash context line\n"))

	path := filepath.Join(t.TempDir(), "dump.log")
	if err := rb.DumpToFile(path); err != nil {
		t.Fatalf("DumpToFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "crash context line\n" {
		t.Errorf("unexpected dump contents: %q", data)
	}
}

// safeBuffer is a goroutine-safe bytes.Buffer for handler output.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
