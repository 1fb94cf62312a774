package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReplaceRestores(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	L().Info("match_start", zap.String("match_id", "m1"))
	restore()
	L().Info("dropped")

	if logs.Len() != 1 {
		t.Fatalf("expected 1 captured entry, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["match_id"]; got != "m1" {
		t.Fatalf("unexpected field: %v", got)
	}
}

func TestInitWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "mill.log")
	restore := Replace(nil)
	defer restore()

	if err := Init(Options{Level: "debug", ToFile: true, File: path, Format: "json"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	L().Debug("tournament_created", zap.String("type", "daily"))
	Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"tournament_created"`) || !strings.Contains(string(raw), `"type":"daily"`) {
		t.Fatalf("log file missing entry: %s", raw)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING") != zapcore.WarnLevel {
		t.Fatalf("warning should map to warn")
	}
	if parseLevel("nonsense") != zapcore.InfoLevel {
		t.Fatalf("unknown levels default to info")
	}
}
