// Package poller periodically checks every watched section and notifies
// subscribers when seats open up.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"seatwatch-backend/internal/banner"
	"seatwatch-backend/internal/chrono"
	"seatwatch-backend/internal/notify"
	"seatwatch-backend/internal/registry"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("internal/poller")

var (
	meter                = otel.Meter("internal/poller")
	tickCount, _         = meter.Int64Counter("seatwatch.poll.ticks")
	queryCount, _        = meter.Int64Counter("seatwatch.poll.queries")
	notificationCount, _ = meter.Int64Counter("seatwatch.poll.notifications")
)

type SeatQuerier interface {
	QuerySeats(ctx context.Context, q banner.Query) (banner.SeatResult, error)
}

// Persister saves the current state after every pass.
type Persister interface {
	Persist(ctx context.Context) error
}

type Options struct {
	Registry   *registry.Registry
	Seats      SeatQuerier
	Dispatcher notify.Dispatcher
	Persister  Persister
	Interval   time.Duration
	Time       chrono.TimeAPI
}

type Poller struct {
	registry   *registry.Registry
	seats      SeatQuerier
	dispatcher notify.Dispatcher
	persister  Persister
	interval   time.Duration
	time       chrono.TimeAPI

	// passes never overlap, whether scheduled or triggered by an operator
	tickLock sync.Mutex
}

func New(opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 20 * time.Second
	}
	if opts.Time == nil {
		opts.Time = chrono.StandardTime{}
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = notify.Log{}
	}
	return &Poller{
		registry:   opts.Registry,
		seats:      opts.Seats,
		dispatcher: opts.Dispatcher,
		persister:  opts.Persister,
		interval:   opts.Interval,
		time:       opts.Time,
	}
}

// ShouldNotify reports whether going from prev to current seats is worth a
// notification. The first observation of a section never is.
func ShouldNotify(prev *int, current int) bool {
	return prev != nil && *prev == 0 && current > 0
}

// TickReport summarizes one pass.
type TickReport struct {
	Checked       int   `json:"checked"`
	Found         int   `json:"found"`
	NotFound      int   `json:"not_found"`
	Failed        int   `json:"failed"`
	Notified      int   `json:"notified"`
	NotifyFailed  int   `json:"notify_failed"`
	PersistFailed bool  `json:"persist_failed"`
	Duration      int64 `json:"duration_ms"`
}

// Tick checks every watch of every tenant with a destination once, in
// order. Failures of a single watch are logged and do not stop the pass.
// The state is persisted at the end of every pass.
func (p *Poller) Tick(ctx context.Context) TickReport {
	p.tickLock.Lock()
	defer p.tickLock.Unlock()

	ctx, span := tracer.Start(ctx, "Poller.Tick")
	defer span.End()

	start := time.Now()
	var report TickReport
	for _, target := range p.registry.Targets() {
		report.Checked++
		p.check(ctx, target, &report)
	}

	if p.persister != nil {
		err := p.persister.Persist(ctx)
		if err != nil {
			report.PersistFailed = true
			span.RecordError(err)
			slog.ErrorContext(ctx, "persist after poll", "err", err)
		}
	}

	report.Duration = time.Since(start).Milliseconds()
	tickCount.Add(ctx, 1)
	span.SetAttributes(
		attribute.Int("poll.checked", report.Checked),
		attribute.Int("poll.notified", report.Notified),
	)
	slog.DebugContext(
		ctx, "poll finished",
		"checked", report.Checked,
		"found", report.Found,
		"not_found", report.NotFound,
		"failed", report.Failed,
		"notified", report.Notified,
		"duration_ms", report.Duration,
	)
	return report
}

func (p *Poller) check(ctx context.Context, target registry.Target, report *TickReport) {
	entry := target.Entry
	logger := slog.With(
		"tenant", target.Tenant,
		"section", entry.Section,
		"course", entry.Course.String(),
	)

	defer func() {
		r := recover()
		if r != nil {
			report.Failed++
			logger.ErrorContext(ctx, "panic while checking watch", "err", fmt.Sprint(r))
		}
	}()

	result, err := p.seats.QuerySeats(ctx, entry.Course.Query(entry.Section))
	if err != nil {
		report.Failed++
		logger.WarnContext(ctx, "invalid watch", "err", err)
		return
	}
	queryCount.Add(ctx, 1, metric.WithAttributes(attribute.String("status", result.Status.String())))

	switch result.Status {
	case banner.SeatsNotFound:
		report.NotFound++
		logger.WarnContext(ctx, "section not found in search results")
		return
	case banner.SeatsRequestFailed:
		report.Failed++
		logger.WarnContext(ctx, "seat query failed", "err", result.Err)
		return
	}
	report.Found++

	prev, current, ok := p.registry.RecordSeats(target.Tenant, entry.Section, result.Seats)
	if !ok {
		// removed while the query was in flight
		return
	}
	if !ShouldNotify(prev, result.Seats) {
		return
	}
	if len(current.Subscribers) == 0 {
		logger.InfoContext(ctx, "seats opened but nobody is subscribed", "seats", result.Seats)
		return
	}

	n := notify.Notification{
		ID:          uuid.NewString(),
		Tenant:      target.Tenant,
		Destination: target.Destination,
		Subscribers: current.Subscribers,
		Course:      current.Course,
		Section:     current.Section,
		Seats:       result.Seats,
		Time:        p.time.Now(),
	}
	err = p.dispatcher.Notify(ctx, n)
	if err != nil {
		report.NotifyFailed++
		notificationCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", false)))
		logger.ErrorContext(ctx, "deliver notification", "id", n.ID, "err", err)
		return
	}
	report.Notified++
	notificationCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", true)))
	logger.InfoContext(ctx, "notified subscribers", "id", n.ID, "seats", result.Seats, "subscribers", len(n.Subscribers))
}

// Run polls immediately and then every interval until ctx is cancelled.
// A pass in progress when ctx is cancelled runs to completion before Run
// returns.
func (p *Poller) Run(ctx context.Context) {
	tickCtx := context.WithoutCancel(ctx)

	p.Tick(tickCtx)
	if ctx.Err() != nil {
		return
	}

	c := chrono.NewSerialCron()
	c.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
		p.Tick(tickCtx)
	}))
	c.Start()
	slog.InfoContext(ctx, "poller started", "interval", p.interval.String())

	<-ctx.Done()
	<-c.Stop().Done()
	slog.InfoContext(tickCtx, "poller stopped")
}
