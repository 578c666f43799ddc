package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestZerologLogger_JSONLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	l := Setup("debug", false, buf)

	l.Info("scheduled %s", "PERIOD1_START")
	l.Warning("slot%d script failed", 3)
	l.Error("gps: %v", "port closed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d: %q", len(lines), buf.String())
	}
	want := []struct{ level, msg string }{
		{"info", "scheduled PERIOD1_START"},
		{"warn", "slot3 script failed"},
		{"error", "gps: port closed"},
	}
	for i, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %d not json: %v", i, err)
		}
		if rec["level"] != want[i].level {
			t.Errorf("line %d level = %v, want %s", i, rec["level"], want[i].level)
		}
		if rec["message"] != want[i].msg {
			t.Errorf("line %d message = %v, want %s", i, rec["message"], want[i].msg)
		}
	}
}

func TestZerologLogger_LevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	l := Setup("error", false, buf)

	l.Info("dropped")
	l.Warning("dropped")
	l.Error("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("expected info/warn to be filtered, got: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("expected error line, got: %s", out)
	}
}

func TestZerologLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	l := Setup("chatty", false, buf)

	l.Info("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("expected info line with fallback level, got: %s", buf.String())
	}
}

func TestZerologLogger_Console(t *testing.T) {
	buf := &bytes.Buffer{}
	l := Setup("info", true, buf)

	l.Info("[12:09:50.000] ON_GPS_LOCK")
	if !strings.Contains(buf.String(), "ON_GPS_LOCK") {
		t.Errorf("expected console output to contain message, got: %s", buf.String())
	}
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("expected non-json console output, got: %s", buf.String())
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestMockLogger_Contains(t *testing.T) {
	m := NewMockLogger()
	m.Info("- runScript     : %v", true)
	if !m.Contains("runScript") {
		t.Error("expected Contains to find recorded line")
	}
	if m.Contains("msgSend") {
		t.Error("expected Contains to miss absent line")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()

	// Should not panic
	logger.Info("test")
	logger.Warning("test")
	logger.Error("test")

	err := logger.Close()
	if err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
}

func TestMockLogger_RecordsCalls(t *testing.T) {
	logger := NewMockLogger()

	logger.Info("info %d", 1)
	logger.Info("info %d", 2)
	logger.Warning("warn %s", "test")
	logger.Error("err %v", "fail")

	if len(logger.InfoCalls) != 2 {
		t.Errorf("expected 2 info calls, got %d", len(logger.InfoCalls))
	}
	if logger.InfoCalls[0] != "info 1" {
		t.Errorf("expected 'info 1', got %s", logger.InfoCalls[0])
	}
	if logger.InfoCalls[1] != "info 2" {
		t.Errorf("expected 'info 2', got %s", logger.InfoCalls[1])
	}

	if len(logger.WarningCalls) != 1 {
		t.Errorf("expected 1 warning call, got %d", len(logger.WarningCalls))
	}
	if logger.WarningCalls[0] != "warn test" {
		t.Errorf("expected 'warn test', got %s", logger.WarningCalls[0])
	}

	if len(logger.ErrorCalls) != 1 {
		t.Errorf("expected 1 error call, got %d", len(logger.ErrorCalls))
	}
	if logger.ErrorCalls[0] != "err fail" {
		t.Errorf("expected 'err fail', got %s", logger.ErrorCalls[0])
	}
}

func TestMockLogger_Close(t *testing.T) {
	logger := NewMockLogger()

	if logger.CloseCalled {
		t.Error("CloseCalled should be false initially")
	}

	err := logger.Close()
	if err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}

	if !logger.CloseCalled {
		t.Error("CloseCalled should be true after Close()")
	}
}

func TestMultiLogger_TeesToEveryBackend(t *testing.T) {
	console := NewMockLogger()
	file := NewMockLogger()
	multi := NewMultiLogger(console, nil, file)

	multi.Info("window %d", 3)
	multi.Warning("slot%d script failed", 2)
	multi.Error("gps: %s", "no port")

	for name, m := range map[string]*MockLogger{"console": console, "file": file} {
		if len(m.InfoCalls) != 1 || m.InfoCalls[0] != "window 3" {
			t.Errorf("%s info = %v", name, m.InfoCalls)
		}
		if len(m.WarningCalls) != 1 || m.WarningCalls[0] != "slot2 script failed" {
			t.Errorf("%s warning = %v", name, m.WarningCalls)
		}
		if len(m.ErrorCalls) != 1 || m.ErrorCalls[0] != "gps: no port" {
			t.Errorf("%s error = %v", name, m.ErrorCalls)
		}
	}
}

func TestMultiLogger_Empty(t *testing.T) {
	multi := NewMultiLogger()
	multi.Info("test")
	if err := multi.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

type failingCloseLogger struct {
	NopLogger
	err error
}

func (f *failingCloseLogger) Close() error { return f.err }

func TestMultiLogger_CloseJoinsErrors(t *testing.T) {
	err1 := errors.New("console")
	err2 := errors.New("file")
	mock := NewMockLogger()

	err := NewMultiLogger(&failingCloseLogger{err: err1}, mock, &failingCloseLogger{err: err2}).Close()
	if !errors.Is(err, err1) || !errors.Is(err, err2) {
		t.Errorf("Close = %v, want both errors", err)
	}
	if !mock.CloseCalled {
		t.Error("backend after a failing one was not closed")
	}
}

func TestOpenFile_AppendsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copilot.log")
	for _, msg := range []string{"first", "second"} {
		l, err := OpenFile(path, "info")
		if err != nil {
			t.Fatal(err)
		}
		l.Info("%s run", msg)
		if err := l.Close(); err != nil {
			t.Fatal(err)
		}
		if err := l.Close(); err != nil {
			t.Errorf("second Close: %v", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), b)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["message"] != "second run" || rec["level"] != "info" {
		t.Errorf("record = %v", rec)
	}
}

func TestOpenFile_BadPath(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing", "x.log"), "info"); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
