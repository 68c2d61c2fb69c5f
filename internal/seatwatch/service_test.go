package seatwatch

import (
	"context"
	"path/filepath"
	"seatwatch-backend/internal/banner"
	"seatwatch-backend/internal/chrono"
	"seatwatch-backend/internal/notify"
	"seatwatch-backend/internal/poller"
	"seatwatch-backend/internal/registry"
	"seatwatch-backend/internal/store"
	"seatwatch-backend/lib/testutil"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	operator = Actor{ID: "op"}
	owner    = Actor{ID: "owner", Owner: true}
	admin    = Actor{ID: "admin", Admin: true}
	alice    = Actor{ID: "alice"}
	bob      = Actor{ID: "bob"}
)

var cmpt145 = registry.Course{Subject: "cmpt", CourseNumber: "145", Year: 2024, Term: "fall"}

type fixture struct {
	portal  *testutil.FakePortal
	store   store.Store
	service *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	portal := testutil.NewFakePortal(t)
	clock := chrono.NewManualTime(time.Date(2024, time.September, 3, 9, 0, 0, 0, time.UTC))

	session, err := banner.NewSession(banner.SessionOptions{
		BaseUrl:           portal.URL(),
		RequestsPerSecond: 1000,
		Time:              clock,
	})
	require.NoError(t, err)

	s, err := store.Open(context.Background(), "file://"+filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := registry.New()
	service := NewService(Options{
		Registry:  reg,
		Seats:     banner.NewClient(session, banner.ClientOptions{}),
		Store:     s,
		Operators: []string{"op"},
		Time:      clock,
	})
	service.SetPoller(poller.New(poller.Options{
		Registry:   reg,
		Seats:      banner.NewClient(session, banner.ClientOptions{}),
		Dispatcher: notify.Log{},
		Persister:  service,
		Time:       clock,
	}))
	require.NoError(t, service.Restore(context.Background(), map[string]string{"JSESSIONID": "seed"}))

	return fixture{portal: portal, store: s, service: service}
}

func (f fixture) saved(t *testing.T) store.State {
	t.Helper()
	state, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return state
}

func TestSetDestinationPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.service.SetDestination(ctx, alice, 1, "channel-1")
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Empty(t, f.service.ListStatus(1).Destination)
	require.Empty(t, f.saved(t).Tenants)

	for _, actor := range []Actor{owner, admin, operator} {
		require.NoError(t, f.service.SetDestination(ctx, actor, 1, "channel-"+actor.ID))
		require.Equal(t, "channel-"+actor.ID, f.service.ListStatus(1).Destination)
	}
	require.Equal(t, "channel-op", f.saved(t).Tenants[1].Destination)
}

func TestAddWatchPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.service.AddWatch(ctx, alice, 1, "12345", cmpt145)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, entry.Subscribers)

	_, err = f.service.AddWatch(ctx, alice, 1, "12345", cmpt145)
	require.NoError(t, err)
	_, err = f.service.AddWatch(ctx, bob, 1, "12345", cmpt145)
	require.NoError(t, err)

	saved := f.saved(t)
	require.Equal(t, []string{"alice", "bob"}, saved.Tenants[1].Watches["12345"].Subscribers)
	require.Equal(t, map[string]string{"JSESSIONID": "seed"}, saved.Cookies)

	bad := cmpt145
	bad.Term = "AUTUMN"
	_, err = f.service.AddWatch(ctx, alice, 1, "99999", bad)
	require.ErrorIs(t, err, banner.ErrInvalidTerm)
}

func TestAddWatchRequiresSubscriber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, actor := range []Actor{{}, {ID: "  "}, {ID: "", Admin: true}} {
		_, err := f.service.AddWatch(ctx, actor, 1, "12345", cmpt145)
		require.ErrorIs(t, err, registry.ErrInvalidWatch)
	}
	require.Empty(t, f.service.ListStatus(1).Watches)
}

func TestRemoveAndUnsubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddWatch(ctx, alice, 1, "12345", cmpt145)
	require.NoError(t, err)
	_, err = f.service.AddWatch(ctx, bob, 1, "12345", cmpt145)
	require.NoError(t, err)

	_, err = f.service.Unsubscribe(ctx, alice, 1, "12345", "bob")
	require.ErrorIs(t, err, ErrPermissionDenied)

	entry, err := f.service.Unsubscribe(ctx, alice, 1, "12345", "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, entry.Subscribers)

	_, err = f.service.Unsubscribe(ctx, admin, 1, "12345", "bob")
	require.NoError(t, err)

	_, err = f.service.RemoveWatch(ctx, alice, 1, "12345")
	require.NoError(t, err)
	_, err = f.service.RemoveWatch(ctx, alice, 1, "12345")
	require.ErrorIs(t, err, registry.ErrNotFound)
	require.Empty(t, f.saved(t).Tenants[1].Watches)
}

func TestOperatorCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.SessionStatus(owner)
	require.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.service.ForceRefresh(ctx, admin)
	require.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.service.PollNow(ctx, alice)
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Empty(t, f.portal.Paths())

	ok, err := f.service.ForceRefresh(ctx, operator)
	require.NoError(t, err)
	require.True(t, ok)

	status, err := f.service.SessionStatus(operator)
	require.NoError(t, err)
	require.EqualValues(t, 1, status.Refreshes)
	require.True(t, status.LastRefreshOk)

	cookies := f.saved(t).Cookies
	require.NotEqual(t, "seed", cookies["JSESSIONID"])
	require.Equal(t, "pool-1", cookies["BIGipServer"])
}

func TestPollNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddWatch(ctx, alice, 1, "12345", cmpt145)
	require.NoError(t, err)
	require.NoError(t, f.service.SetDestination(ctx, owner, 1, "channel-1"))
	f.portal.SetSeats("12345", 0)

	report, err := f.service.PollNow(ctx, operator)
	require.NoError(t, err)
	require.Equal(t, 1, report.Found)

	saved := f.saved(t)
	require.Equal(t, 0, *saved.Tenants[1].Watches["12345"].LastSeats)
}

func TestQuery(t *testing.T) {
	f := newFixture(t)
	f.portal.SetSections(
		testutil.Section{Crn: "1", Seats: "4"},
		testutil.Section{Crn: "2", Seats: 0},
	)

	result, err := f.service.Query(context.Background(), cmpt145.Query("1"))
	require.NoError(t, err)
	require.Equal(t, banner.Found(4), result)

	sections, err := f.service.Sections(context.Background(), "cmpt", "145", 2024, banner.Fall)
	require.NoError(t, err)
	require.Len(t, sections, 2)

	_, err = f.service.Sections(context.Background(), "cmpt", "145", 2024, "AUTUMN")
	require.ErrorIs(t, err, banner.ErrInvalidTerm)
}

func TestRestorePrefersPersistedCookies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Save(ctx, store.State{
		Cookies: map[string]string{"JSESSIONID": "persisted"},
	}))
	require.NoError(t, f.service.Restore(ctx, map[string]string{"JSESSIONID": "seed"}))
	require.Equal(t, map[string]string{"JSESSIONID": "persisted"}, f.service.session.Cookies())
}
