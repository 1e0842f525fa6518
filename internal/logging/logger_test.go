package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{" warn ", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("expected nop logger when no level is configured")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	defer SetLogger(nil)

	core := GetLogger().Core()
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
}

func TestLogScanEvent_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogScanEvent("network", "stopped", zap.String("reason", "timeout"))
	LogDeviceEvent("radio", "AA-BB", "connect_requested")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	scan := entries[0].ContextMap()
	if scan["channel"] != "network" || scan["event"] != "stopped" || scan["reason"] != "timeout" {
		t.Errorf("scan event fields = %v", scan)
	}

	dev := entries[1].ContextMap()
	if dev["identity"] != "AA-BB" {
		t.Errorf("device event identity = %v, want AA-BB", dev["identity"])
	}
	if entries[1].Level != zapcore.DebugLevel {
		t.Errorf("device event level = %v, want debug", entries[1].Level)
	}
}

func TestDumps(t *testing.T) {
	data := []byte{0x4c, 0x00, 'h', 'i'}
	if got := hexDump(data); got != "4c006869" {
		t.Errorf("hexDump = %q, want %q", got, "4c006869")
	}
	if got := asciiDump(data); got != "L.hi" {
		t.Errorf("asciiDump = %q, want %q", got, "L.hi")
	}
	if got := hexDump(nil); got != "" {
		t.Errorf("hexDump(nil) = %q, want empty", got)
	}
}
