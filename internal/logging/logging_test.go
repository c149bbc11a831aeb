package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"error": zapcore.ErrorLevel,
		"warn":  zapcore.WarnLevel,
		"info":  zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"trace": zapcore.DebugLevel,
	}
	for s, want := range cases {
		got, err := ParseLevel(s)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestParseLevelOffDisablesEverything(t *testing.T) {
	off, err := ParseLevel("off")
	if err != nil {
		t.Fatalf("ParseLevel(off): %v", err)
	}
	if off.Enabled(zapcore.FatalLevel) {
		t.Error("off level should not enable even Fatal")
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("bogus"); err == nil {
		t.Error("ParseLevel accepted unknown level")
	}
}

func TestNewBuildsLogger(t *testing.T) {
	logger, err := New(zapcore.InfoLevel)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger == nil {
		t.Fatal("New returned nil logger")
	}
}
