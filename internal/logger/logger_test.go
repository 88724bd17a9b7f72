package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewHonorsLevel(t *testing.T) {
	log := New("debug", "development")
	if !log.Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug enabled")
	}

	log = New("warn", "production")
	if log.Desugar().Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info disabled at warn level")
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	log := New("chatty", "")
	core := log.Desugar().Core()
	if core.Enabled(zapcore.DebugLevel) || !core.Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info level fallback")
	}
}
