// Package notify delivers seat availability notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"seatwatch-backend/internal/registry"
	"time"
)

var ErrUnknownDestination = errors.New("unknown destination")

// Notification announces that a section went from zero open seats to some.
type Notification struct {
	ID          string          `json:"id"`
	Tenant      int64           `json:"tenant"`
	Destination string          `json:"destination"`
	Subscribers []string        `json:"subscribers"`
	Course      registry.Course `json:"course"`
	Section     string          `json:"section"`
	Seats       int             `json:"seats"`
	Time        time.Time       `json:"time"`
}

func (n Notification) Title() string {
	return fmt.Sprintf("%s %s (CRN: %s)", n.Course.Subject, n.Course.CourseNumber, n.Section)
}

func (n Notification) TermLabel() string {
	return fmt.Sprintf("%s %d", n.Course.Term, n.Course.Year)
}

func (n Notification) Summary() string {
	return fmt.Sprintf("%s has %d seat(s) available for %s", n.Title(), n.Seats, n.TermLabel())
}

// Dispatcher is a best-effort sink for notifications.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

type DispatcherFunc func(ctx context.Context, n Notification) error

func (f DispatcherFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Multi delivers every notification to all of its dispatchers and joins
// their errors.
type Multi []Dispatcher

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		err := d.Notify(ctx, n)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
