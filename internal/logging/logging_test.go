package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"DEBUG":     DebugLevel,
		"  debug  ": DebugLevel,
		"info":      InfoLevel,
		"WARNING":   WarnLevel,
		"warn":      WarnLevel,
		"Error":     ErrorLevel,
		"fatal":     FatalLevel,
		"":          InfoLevel,
		"verbose":   InfoLevel,
	}

	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestInit_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, Output: &buf})
	defer Init(DefaultConfig())

	Debug().Msg("debug message")
	Info().Msg("info message")
	Warn().Msg("warn message")
	Error().Err(os.ErrNotExist).Msg("error message")

	out := buf.String()
	for _, hidden := range []string{"debug message", "info message"} {
		if strings.Contains(out, hidden) {
			t.Errorf("%q should be filtered at warn level", hidden)
		}
	}
	for _, shown := range []string{"warn message", "error message", "file does not exist"} {
		if !strings.Contains(out, shown) {
			t.Errorf("expected %q in output, got %s", shown, out)
		}
	}
}

func TestInit_Pretty(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf, Pretty: true})
	defer Init(DefaultConfig())

	Info().Msg("pretty test")

	if out := buf.String(); !strings.Contains(out, "pretty test") || strings.HasPrefix(out, "{") {
		t.Errorf("expected console formatted output, got %s", out)
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf})
	defer Init(DefaultConfig())

	log := Component("wire")
	log.Info().Str("sessionID", "s1").Int("frames", 3).Msg("decoded")

	out := buf.String()
	for _, field := range []string{`"component":"wire"`, `"sessionID":"s1"`, `"frames":3`} {
		if !strings.Contains(out, field) {
			t.Errorf("expected %s in output, got %s", field, out)
		}
	}
}

func TestLogToFile(t *testing.T) {
	dir := t.TempDir()
	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}, LogToFile: true, LogDir: dir})
	defer Init(DefaultConfig())

	Info().Msg("file log test")

	path := LogFilePath()
	if !strings.HasPrefix(path, dir) {
		t.Fatalf("log file %q not in %q", path, dir)
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "chatsync-") || !strings.HasSuffix(name, ".log") {
		t.Errorf("unexpected log file name %s", name)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "file log test") {
		t.Errorf("log file missing message: %s", content)
	}

	Close()
	if LogFilePath() != "" {
		t.Error("expected no log file after Close")
	}
}

func TestReinitReplacesLogFile(t *testing.T) {
	dir := t.TempDir()
	Init(Config{Output: &bytes.Buffer{}, LogToFile: true, LogDir: dir})
	first := LogFilePath()

	time.Sleep(time.Second)

	Init(Config{Output: &bytes.Buffer{}, LogToFile: true, LogDir: dir})
	defer Init(DefaultConfig())
	second := LogFilePath()

	if first == second {
		t.Error("expected a new log file on re-init")
	}
	for _, p := range []string{first, second} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("log file %s: %v", p, err)
		}
	}
}

func TestInit_Defaults(t *testing.T) {
	Init(Config{})
	defer Init(DefaultConfig())

	if LogFilePath() != "" {
		t.Error("expected no log file by default")
	}
	if Logger.GetLevel() != DebugLevel && Logger.GetLevel() != InfoLevel {
		t.Errorf("unexpected level %v", Logger.GetLevel())
	}
}
