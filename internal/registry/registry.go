// Package registry holds the per-tenant watch lists and notification
// destinations.
package registry

import (
	"errors"
	"fmt"
	"seatwatch-backend/internal/banner"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotFound     = errors.New("watch not found")
	ErrInvalidWatch = errors.New("invalid watch")
)

type Course struct {
	Subject      string      `json:"subject"`
	CourseNumber string      `json:"course_number"`
	Year         int         `json:"year"`
	Term         banner.Term `json:"term"`
}

func (c Course) String() string {
	return fmt.Sprintf("%s %s (%s %d)", c.Subject, c.CourseNumber, c.Term, c.Year)
}

// Query returns the seat query for a section of this course.
func (c Course) Query(section string) banner.Query {
	return banner.Query{
		Subject:      c.Subject,
		CourseNumber: c.CourseNumber,
		Year:         c.Year,
		Term:         c.Term,
		Section:      section,
	}
}

type WatchEntry struct {
	Section     string   `json:"section"`
	Course      Course   `json:"course"`
	Subscribers []string `json:"subscribers"`
	// LastSeats is nil until the section has been observed once.
	LastSeats *int `json:"last_seats"`
	// Seq orders entries by insertion.
	Seq uint64 `json:"seq"`
}

func (e WatchEntry) clone() WatchEntry {
	out := e
	out.Subscribers = append([]string(nil), e.Subscribers...)
	if e.LastSeats != nil {
		seats := *e.LastSeats
		out.LastSeats = &seats
	}
	return out
}

func (e *WatchEntry) hasSubscriber(subscriber string) bool {
	for _, s := range e.Subscribers {
		if s == subscriber {
			return true
		}
	}
	return false
}

type TenantState struct {
	Destination string                 `json:"destination,omitempty"`
	Watches     map[string]*WatchEntry `json:"watches"`
}

func (t *TenantState) clone() *TenantState {
	out := &TenantState{
		Destination: t.Destination,
		Watches:     make(map[string]*WatchEntry, len(t.Watches)),
	}
	for section, entry := range t.Watches {
		copied := entry.clone()
		out.Watches[section] = &copied
	}
	return out
}

func (t *TenantState) sortedWatches() []WatchEntry {
	out := make([]WatchEntry, 0, len(t.Watches))
	for _, entry := range t.Watches {
		out = append(out, entry.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Target is a watch the poll loop should check, along with where to send
// notifications for it.
type Target struct {
	Tenant      int64
	Destination string
	Entry       WatchEntry
}

// Registry is safe for concurrent use. Values it returns are copies and
// never alias its internal state.
type Registry struct {
	mu      sync.Mutex
	tenants map[int64]*TenantState
	seq     uint64
}

func New() *Registry {
	return &Registry{tenants: map[int64]*TenantState{}}
}

func (r *Registry) tenantLocked(tenant int64) *TenantState {
	state, ok := r.tenants[tenant]
	if !ok {
		state = &TenantState{Watches: map[string]*WatchEntry{}}
		r.tenants[tenant] = state
	}
	return state
}

// AddWatch subscribes subscriber to a section, creating the tenant and the
// watch if needed. Adding the same subscriber twice is a no-op. The course
// metadata of an existing watch is left as it is.
func (r *Registry) AddWatch(tenant int64, section string, course Course, subscriber string) (WatchEntry, error) {
	section = strings.TrimSpace(section)
	if section == "" {
		return WatchEntry{}, fmt.Errorf("%w: section id is empty", ErrInvalidWatch)
	}
	term, err := banner.ParseTerm(string(course.Term))
	if err != nil {
		return WatchEntry{}, err
	}
	_, err = banner.TermCode(course.Year, term)
	if err != nil {
		return WatchEntry{}, err
	}
	course.Term = term
	course.Subject = strings.ToUpper(strings.TrimSpace(course.Subject))
	course.CourseNumber = strings.TrimSpace(course.CourseNumber)
	if course.Subject == "" || course.CourseNumber == "" {
		return WatchEntry{}, fmt.Errorf("%w: subject and course number are required", ErrInvalidWatch)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.tenantLocked(tenant)
	entry, ok := state.Watches[section]
	if !ok {
		r.seq++
		entry = &WatchEntry{
			Section:     section,
			Course:      course,
			Subscribers: []string{},
			Seq:         r.seq,
		}
		state.Watches[section] = entry
	}
	if subscriber != "" && !entry.hasSubscriber(subscriber) {
		entry.Subscribers = append(entry.Subscribers, subscriber)
	}
	return entry.clone(), nil
}

func (r *Registry) RemoveWatch(tenant int64, section string) (WatchEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.tenants[tenant]
	if !ok {
		return WatchEntry{}, fmt.Errorf("%w: section %s", ErrNotFound, section)
	}
	entry, ok := state.Watches[section]
	if !ok {
		return WatchEntry{}, fmt.Errorf("%w: section %s", ErrNotFound, section)
	}
	delete(state.Watches, section)
	return entry.clone(), nil
}

// Unsubscribe removes one subscriber from a watch, the watch itself is kept
// even if nobody is left.
func (r *Registry) Unsubscribe(tenant int64, section, subscriber string) (WatchEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.tenants[tenant]
	if !ok {
		return WatchEntry{}, fmt.Errorf("%w: section %s", ErrNotFound, section)
	}
	entry, ok := state.Watches[section]
	if !ok || !entry.hasSubscriber(subscriber) {
		return WatchEntry{}, fmt.Errorf("%w: subscriber %s on section %s", ErrNotFound, subscriber, section)
	}

	kept := make([]string, 0, len(entry.Subscribers))
	for _, s := range entry.Subscribers {
		if s != subscriber {
			kept = append(kept, s)
		}
	}
	entry.Subscribers = kept
	return entry.clone(), nil
}

func (r *Registry) SetDestination(tenant int64, destination string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenantLocked(tenant).Destination = strings.TrimSpace(destination)
}

func (r *Registry) Destination(tenant int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.tenants[tenant]
	if !ok || state.Destination == "" {
		return "", false
	}
	return state.Destination, true
}

// ListWatches returns a tenant's watches in the order they were added.
func (r *Registry) ListWatches(tenant int64) []WatchEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.tenants[tenant]
	if !ok {
		return []WatchEntry{}
	}
	return state.sortedWatches()
}

// Targets returns every watch of every tenant that has a destination,
// ordered by tenant then insertion.
func (r *Registry) Targets() []Target {
	r.mu.Lock()
	defer r.mu.Unlock()

	tenants := make([]int64, 0, len(r.tenants))
	for id, state := range r.tenants {
		if state.Destination != "" {
			tenants = append(tenants, id)
		}
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i] < tenants[j] })

	var out []Target
	for _, id := range tenants {
		state := r.tenants[id]
		for _, entry := range state.sortedWatches() {
			out = append(out, Target{
				Tenant:      id,
				Destination: state.Destination,
				Entry:       entry,
			})
		}
	}
	return out
}

// RecordSeats stores a successful observation and returns the previous one.
// ok is false if the watch was removed in the meantime.
func (r *Registry) RecordSeats(tenant int64, section string, seats int) (prev *int, entry WatchEntry, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, found := r.tenants[tenant]
	if !found {
		return nil, WatchEntry{}, false
	}
	current, found := state.Watches[section]
	if !found {
		return nil, WatchEntry{}, false
	}

	prev = current.LastSeats
	current.LastSeats = &seats
	return prev, current.clone(), true
}

// Snapshot returns a deep copy of every tenant.
func (r *Registry) Snapshot() map[int64]*TenantState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int64]*TenantState, len(r.tenants))
	for id, state := range r.tenants {
		out[id] = state.clone()
	}
	return out
}

// Restore replaces the registry contents with a copy of tenants.
func (r *Registry) Restore(tenants map[int64]*TenantState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tenants = make(map[int64]*TenantState, len(tenants))
	r.seq = 0
	for id, state := range tenants {
		if state == nil {
			continue
		}
		copied := state.clone()
		for section, entry := range copied.Watches {
			if entry.Section == "" {
				entry.Section = section
			}
			if entry.Subscribers == nil {
				entry.Subscribers = []string{}
			}
			r.seq = max(r.seq, entry.Seq)
		}
		r.tenants[id] = copied
	}
}
