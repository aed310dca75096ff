package cli

import (
	"context"
	"log/slog"
	"testing"

	"steady/internal/config"
	"steady/internal/log"
)

func TestSetupLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	logger := SetupLogger(&config.Config{LogLevel: "warn", LogFormat: "json"}, log.ComponentWorker)
	if logger.Component() != log.ComponentWorker {
		t.Errorf("component = %q, want %q", logger.Component(), log.ComponentWorker)
	}
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be enabled at warn level")
	}
}

func TestSetupLoggerNilConfig(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	logger := SetupLogger(nil, "")
	if logger.Component() != log.ComponentApp {
		t.Errorf("component = %q, want default", logger.Component())
	}
}
