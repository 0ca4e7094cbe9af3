package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoggersUsableBeforeInit(t *testing.T) {
	AppLogger.Info("no-op before init")
	LogDuration(context.Background(), "before_init")()
}

func TestInitLoggerCreatesFiles(t *testing.T) {
	dir := t.TempDir()
	InitLoggerIn(dir)
	defer func() {
		Sync()
	}()

	ctx := WithTraceID(context.Background(), "req-1")
	LogDuration(ctx, "timed")()
	Sync()

	if _, err := os.Stat(filepath.Join(dir, "timer.log")); err != nil {
		t.Errorf("expected timer.log to exist: %v", err)
	}
}
