package chrono

import (
	"fmt"
	"log/slog"
	"seatwatch-backend/lib/timezone"

	"github.com/robfig/cron/v3"
)

// NewSerialCron returns a stopped cron whose jobs never overlap with
// themselves, an invocation that comes due while the previous one is still
// running waits for it to finish.
func NewSerialCron() *cron.Cron {
	logger := cronLogger{}
	return cron.New(
		cron.WithLogger(logger),
		cron.WithLocation(timezone.Location),
		cron.WithChain(
			cron.Recover(logger),
			cron.DelayIfStillRunning(logger),
		),
	)
}

type cronLogger struct{}

func (cronLogger) formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprint(keysAndValues[i]), keysAndValues[i+1])
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug(fmt.Sprintf("cron: %s", msg), l.formatParams(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	params := append([]any{"err", err}, l.formatParams(keysAndValues)...)
	slog.Error(fmt.Sprintf("cron: %s", msg), params...)
}
