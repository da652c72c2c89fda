package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf, false)
	defer Discard()

	l := Logger("test")
	l.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected log message in buffer, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("expected key=value in buffer, got: %s", output)
	}
	if !strings.Contains(output, "component=test") {
		t.Errorf("expected component=test in buffer, got: %s", output)
	}
}

func TestSetOutput_ExistingLogger(t *testing.T) {
	// 先创建 logger，再切换输出
	l := Logger("test2")

	buf := &bytes.Buffer{}
	SetOutput(buf, false)
	defer Discard()

	l.Info("after switch", "key", "value")
	if !strings.Contains(buf.String(), "after switch") {
		t.Errorf("expected log message in buffer, got: %s", buf.String())
	}
}

func TestSetOutput_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf, true)
	defer Discard()

	Logger("json").Warn("structured", "peer", "abc.onion:9999")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "structured" || rec["peer"] != "abc.onion:9999" || rec["component"] != "json" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestComponentLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf, false)
	defer Discard()
	defer func() {
		mu.Lock()
		delete(componentLevels, "noisy")
		mu.Unlock()
	}()

	SetComponentLevel("noisy", slog.LevelError)
	noisy, other := Logger("noisy"), Logger("other")

	noisy.Warn("hidden")
	other.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("component level not applied: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("other component filtered: %s", buf.String())
	}
	if noisy.Enabled(slog.LevelInfo) {
		t.Error("info should be disabled for noisy")
	}
	if other.Enabled(slog.LevelDebug) {
		t.Error("debug should be disabled at default level")
	}
}

func TestParseLevelSpec(t *testing.T) {
	prev := globalLevel.Level()
	defer func() {
		globalLevel.Set(prev)
		mu.Lock()
		delete(componentLevels, "core/connection")
		mu.Unlock()
	}()

	parseLevelSpec("core/connection=debug, warn, bogus, x=bogus")
	if globalLevel.Level() != slog.LevelWarn {
		t.Errorf("global level = %v, want WARN", globalLevel.Level())
	}
	if got := levelFor("core/connection"); got != slog.LevelDebug {
		t.Errorf("component level = %v, want DEBUG", got)
	}
	if _, ok := componentLevels["x"]; ok {
		t.Error("invalid level should be ignored")
	}
}

func TestTruncateID(t *testing.T) {
	tests := []struct {
		id   string
		max  int
		want string
	}{
		{"", 8, ""},
		{"abc", 8, "abc"},
		{"0123456789", 8, "01234567"},
	}
	for _, tt := range tests {
		if got := TruncateID(tt.id, tt.max); got != tt.want {
			t.Errorf("TruncateID(%q, %d) = %q, want %q", tt.id, tt.max, got, tt.want)
		}
	}
}
