package banner

import (
	"context"
	"net/http"
	"seatwatch-backend/lib/testutil"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionInitialize(t *testing.T) {
	portal := testutil.NewFakePortal(t)
	clock := testClock()
	client := newTestClient(t, portal, clock, ClientOptions{})
	session := client.Session()

	require.False(t, session.IsStale())
	require.Equal(t, clock.Now(), session.LastRefresh())
	require.Equal(t, map[string]string{"JSESSIONID": "seed"}, session.Cookies())
	require.Empty(t, portal.Paths())

	clock.Advance(5 * time.Minute)
	require.False(t, session.IsStale())
	clock.Advance(time.Second)
	require.True(t, session.IsStale())
}

func TestSessionRefresh(t *testing.T) {
	portal := testutil.NewFakePortal(t)
	clock := testClock()
	client := newTestClient(t, portal, clock, ClientOptions{})
	session := client.Session()

	clock.Advance(time.Hour)
	require.True(t, session.Refresh(context.Background()))
	require.False(t, session.IsStale())
	require.Equal(t, clock.Now(), session.LastRefresh())

	require.Equal(t, []string{
		testutil.RegistrationPath,
		testutil.ApplicationPath,
		testutil.RegistrationPagePath,
		testutil.TermSearchPath,
		testutil.RegistrationPath,
	}, portal.Paths())
	require.Equal(t, "202409", portal.LastTerm())

	cookies := session.Cookies()
	require.Len(t, cookies, 2)
	require.Equal(t, "session-5", cookies["JSESSIONID"])
	require.Equal(t, "pool-1", cookies["BIGipServer"])

	status := session.Status()
	require.True(t, status.HasSynchronizerToken)
	require.True(t, status.LastRefreshOk)
	require.Equal(t, 2, status.Cookies)
	require.Equal(t, testutil.SynchronizerToken, portal.LastToken())
}

func TestSessionRefreshFailure(t *testing.T) {
	portal := testutil.NewFakePortal(t)
	client := newTestClient(t, portal, testClock(), ClientOptions{})
	session := client.Session()

	portal.SetVerifyStatus(http.StatusServiceUnavailable)
	require.False(t, session.Refresh(context.Background()))

	portal.Server.Close()
	require.False(t, session.Refresh(context.Background()))
	require.EqualValues(t, 2, session.Status().FailedRefreshes)
}

func TestStaleSessionRefreshesBeforeRequest(t *testing.T) {
	portal := testutil.NewFakePortal(t)
	portal.SetSections(testutil.Section{Crn: "12345", Seats: 1})
	clock := testClock()
	client := newTestClient(t, portal, clock, ClientOptions{})

	clock.Advance(6 * time.Minute)
	result, err := client.QuerySeats(context.Background(), fallQuery("12345"))
	require.NoError(t, err)
	require.Equal(t, Found(1), result)

	require.EqualValues(t, 1, client.Session().Status().Refreshes)
	require.Equal(t, testutil.RegistrationPath, portal.Paths()[0])
	require.Equal(t, testutil.SearchResultsPath, portal.Paths()[len(portal.Paths())-1])
	require.Equal(t, testutil.SynchronizerToken, portal.LastToken())
}

func TestNewSessionRejectsBadUrl(t *testing.T) {
	_, err := NewSession(SessionOptions{BaseUrl: "not a url"})
	require.Error(t, err)
}
