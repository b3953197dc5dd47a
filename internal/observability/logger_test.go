package observability

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level       string
		wantDebug   bool
		wantWarning bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, true},
		{"error", false, false},
		{"unknown", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := NewLogger(LoggingConfig{Level: tt.level, Format: "json"})
			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("Enabled(Debug) = %v, want %v", got, tt.wantDebug)
			}
			if got := logger.Enabled(context.Background(), slog.LevelWarn); got != tt.wantWarning {
				t.Errorf("Enabled(Warn) = %v, want %v", got, tt.wantWarning)
			}
		})
	}
}

func TestNewLoggerNeverNil(t *testing.T) {
	if NewLogger(LoggingConfig{}) == nil {
		t.Fatal("NewLogger() = nil")
	}
}
