// Package seatwatch implements the operator and tenant commands on top of
// the registry, the portal session and the poller.
package seatwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"seatwatch-backend/internal/banner"
	"seatwatch-backend/internal/chrono"
	"seatwatch-backend/internal/poller"
	"seatwatch-backend/internal/registry"
	"seatwatch-backend/internal/store"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/seatwatch")

var ErrPermissionDenied = errors.New("permission denied")

// Actor is whoever issued a command. Owner and Admin refer to the tenant
// the command targets.
type Actor struct {
	ID    string
	Owner bool
	Admin bool
}

type Options struct {
	Registry  *registry.Registry
	Seats     *banner.Client
	Poller    *poller.Poller
	Store     store.Store
	Operators []string
	Time      chrono.TimeAPI
}

type Service struct {
	registry  *registry.Registry
	seats     *banner.Client
	session   *banner.Session
	poller    *poller.Poller
	store     store.Store
	operators []string
	time      chrono.TimeAPI

	persistLock sync.Mutex
}

func NewService(opts Options) *Service {
	if opts.Time == nil {
		opts.Time = chrono.StandardTime{}
	}
	return &Service{
		registry:  opts.Registry,
		seats:     opts.Seats,
		session:   opts.Seats.Session(),
		poller:    opts.Poller,
		store:     opts.Store,
		operators: opts.Operators,
		time:      opts.Time,
	}
}

// SetPoller attaches the poller after construction, the poller itself
// persists through the service.
func (s *Service) SetPoller(p *poller.Poller) {
	s.poller = p
}

func (s *Service) IsOperator(actor Actor) bool {
	return actor.ID != "" && slices.Contains(s.operators, actor.ID)
}

func (s *Service) canConfigure(actor Actor) bool {
	return actor.Owner || actor.Admin || s.IsOperator(actor)
}

func denied(actor Actor, command string) error {
	return fmt.Errorf("%w: %s may not %s", ErrPermissionDenied, actor.ID, command)
}

// Restore loads persisted state into the registry and the session. Seed
// cookies are only used when no cookies were persisted.
func (s *Service) Restore(ctx context.Context, seedCookies map[string]string) error {
	ctx, span := tracer.Start(ctx, "Service.Restore")
	defer span.End()

	state, err := s.store.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load state")
		return fmt.Errorf("load state: %w", err)
	}
	s.registry.Restore(state.Tenants)

	cookies := state.Cookies
	if len(cookies) == 0 {
		cookies = seedCookies
	}
	s.session.Initialize(cookies)

	slog.InfoContext(ctx, "restored state", "tenants", len(state.Tenants), "cookies", len(cookies))
	return nil
}

// Persist saves the registry and the deduplicated session cookies.
func (s *Service) Persist(ctx context.Context) error {
	s.persistLock.Lock()
	defer s.persistLock.Unlock()

	state := store.State{
		Tenants:     s.registry.Snapshot(),
		Cookies:     s.session.Cookies(),
		LastUpdated: s.time.Now(),
	}
	return s.store.Save(ctx, state)
}

func (s *Service) persistAfter(ctx context.Context, command string) {
	err := s.Persist(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "persist after command", "command", command, "err", err)
	}
}

func (s *Service) SetDestination(ctx context.Context, actor Actor, tenant int64, destination string) error {
	if !s.canConfigure(actor) {
		return denied(actor, "set the destination")
	}
	s.registry.SetDestination(tenant, destination)
	s.persistAfter(ctx, "set-destination")
	return nil
}

// AddWatch subscribes the actor to a section.
func (s *Service) AddWatch(ctx context.Context, actor Actor, tenant int64, section string, course registry.Course) (registry.WatchEntry, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return registry.WatchEntry{}, fmt.Errorf("%w: the subscriber is unknown", registry.ErrInvalidWatch)
	}
	entry, err := s.registry.AddWatch(tenant, section, course, actor.ID)
	if err != nil {
		return registry.WatchEntry{}, err
	}
	s.persistAfter(ctx, "add-watch")
	return entry, nil
}

func (s *Service) RemoveWatch(ctx context.Context, actor Actor, tenant int64, section string) (registry.WatchEntry, error) {
	entry, err := s.registry.RemoveWatch(tenant, section)
	if err != nil {
		return registry.WatchEntry{}, err
	}
	s.persistAfter(ctx, "remove-watch")
	return entry, nil
}

// Unsubscribe removes a subscriber from a watch. Actors may always remove
// themselves, removing someone else needs configure rights.
func (s *Service) Unsubscribe(ctx context.Context, actor Actor, tenant int64, section, subscriber string) (registry.WatchEntry, error) {
	if subscriber != actor.ID && !s.canConfigure(actor) {
		return registry.WatchEntry{}, denied(actor, "unsubscribe others")
	}
	entry, err := s.registry.Unsubscribe(tenant, section, subscriber)
	if err != nil {
		return registry.WatchEntry{}, err
	}
	s.persistAfter(ctx, "unsubscribe")
	return entry, nil
}

type TenantStatus struct {
	Tenant      int64                 `json:"tenant"`
	Destination string                `json:"destination,omitempty"`
	Watches     []registry.WatchEntry `json:"watches"`
}

func (s *Service) ListStatus(tenant int64) TenantStatus {
	destination, _ := s.registry.Destination(tenant)
	return TenantStatus{
		Tenant:      tenant,
		Destination: destination,
		Watches:     s.registry.ListWatches(tenant),
	}
}

func (s *Service) SessionStatus(actor Actor) (banner.SessionStatus, error) {
	if !s.IsOperator(actor) {
		return banner.SessionStatus{}, denied(actor, "view the session")
	}
	return s.session.Status(), nil
}

// ForceRefresh re-authenticates the portal session and persists the new
// cookies.
func (s *Service) ForceRefresh(ctx context.Context, actor Actor) (bool, error) {
	if !s.IsOperator(actor) {
		return false, denied(actor, "refresh the session")
	}
	ok := s.session.Refresh(ctx)
	s.persistAfter(ctx, "force-refresh")
	return ok, nil
}

// PollNow runs one poll pass right away.
func (s *Service) PollNow(ctx context.Context, actor Actor) (poller.TickReport, error) {
	if !s.IsOperator(actor) {
		return poller.TickReport{}, denied(actor, "trigger a poll")
	}
	if s.poller == nil {
		return poller.TickReport{}, fmt.Errorf("poller is not running")
	}
	// the operator wants the portal's current numbers, not the last pass's
	s.seats.PurgeCache()
	return s.poller.Tick(ctx), nil
}

// Query looks up the seats of a single section without watching it.
func (s *Service) Query(ctx context.Context, q banner.Query) (banner.SeatResult, error) {
	ctx, span := tracer.Start(ctx, "Service.Query")
	defer span.End()
	span.SetAttributes(attribute.String("section", q.Section))

	return s.seats.QuerySeatsFresh(ctx, q)
}

// Sections lists every section of a course in a term.
func (s *Service) Sections(ctx context.Context, subject, courseNumber string, year int, term banner.Term) ([]banner.SearchRecord, error) {
	termCode, err := banner.TermCode(year, term)
	if err != nil {
		return nil, err
	}
	return s.seats.SearchFresh(ctx, subject, courseNumber, termCode)
}
