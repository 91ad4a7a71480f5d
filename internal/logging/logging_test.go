package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewRespectsLevel(t *testing.T) {
	logger := New("warn", "json")
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", logger.GetLevel())
	}
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	logger := New("not-a-level", "json")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %v", logger.GetLevel())
	}
}

func TestNewJSONFormatProducesParseableOutput(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe failed: %v", err)
	}
	defer r.Close()

	// New writes to whatever os.Stdout is when it is called.
	stdout := os.Stdout
	os.Stdout = w
	logger := New("info", "json")
	os.Stdout = stdout

	logger.Info().Str("k", "v").Msg("hello")
	w.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected log output")
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if line["k"] != "v" {
		t.Fatalf("expected field k=v, got %v", line["k"])
	}
}
