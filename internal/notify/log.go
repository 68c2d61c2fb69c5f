package notify

import (
	"context"
	"log/slog"
)

// Log writes notifications to the structured log.
type Log struct{}

func (Log) Notify(ctx context.Context, n Notification) error {
	slog.InfoContext(
		ctx, "seats available",
		"id", n.ID,
		"tenant", n.Tenant,
		"destination", n.Destination,
		"section", n.Section,
		"course", n.Course.String(),
		"seats", n.Seats,
		"subscribers", len(n.Subscribers),
	)
	return nil
}
