package telemetry

import (
	"log/slog"
	"os"
	"sync"
	"testing"
)

// InitSlog installs a text handler on stderr as the default logger.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

var setupTesting sync.Once

// SetupForTesting turns on debug logging for tests, telemetry exporters are
// never started in tests so spans and metrics go to the no-op providers.
func SetupForTesting(t testing.TB) {
	t.Helper()
	setupTesting.Do(func() {
		InitSlog(testing.Verbose())
	})
}
