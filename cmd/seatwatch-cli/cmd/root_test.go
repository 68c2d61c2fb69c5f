package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"seatwatch-backend/internal/registry"
	"seatwatch-backend/internal/seatwatch"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type lastRequest struct {
	mu     sync.Mutex
	path   string
	header http.Header
}

func (l *lastRequest) get() (string, http.Header) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path, l.header
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *lastRequest) {
	t.Helper()
	last := &lastRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last.mu.Lock()
		last.path = r.URL.Path
		last.header = r.Header.Clone()
		last.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, last
}

func TestCallDecodesData(t *testing.T) {
	server, last := newTestServer(t, http.StatusOK, `{
		"data": {"tenant": 7, "destination": "alerts", "watches": [
			{"section": "12345", "course": {"subject": "CMPT", "course_number": "145", "year": 2024, "term": "FALL"}, "subscribers": ["u1"], "last_seats": 0, "seq": 1}
		]},
		"metadata": {"request_id": "abc", "timestamp": "2024-09-03T00:00:00Z"}
	}`)
	c := newClient(server.URL+"/", "secret")

	var status seatwatch.TenantStatus
	err := call(context.Background(), c, request{method: http.MethodGet, path: tenantPath("7", "watches")}, &status)
	require.NoError(t, err)
	path, header := last.get()
	require.Equal(t, "/v1/tenants/7/watches", path)
	require.Equal(t, "Bearer secret", header.Get("Authorization"))
	require.Equal(t, int64(7), status.Tenant)
	require.Len(t, status.Watches, 1)
	require.NotNil(t, status.Watches[0].LastSeats)
	require.Equal(t, 0, *status.Watches[0].LastSeats)

	var out bytes.Buffer
	renderStatus(&out, status)
	require.Contains(t, out.String(), "tenant 7, destination alerts")
	require.Contains(t, out.String(), "CMPT 145")
	require.Contains(t, out.String(), "FALL 2024")
}

func TestCallReturnsApiError(t *testing.T) {
	server, _ := newTestServer(t, http.StatusForbidden, `{
		"data": null,
		"error": {"code": "PERMISSION_DENIED", "message": "permission denied: u2 may not set the destination"}
	}`)
	c := newClient(server.URL, "")

	err := call(context.Background(), c, request{
		method: http.MethodPut,
		path:   tenantPath("7", "destination"),
		body:   map[string]string{"destination": "alerts"},
	}, nil)
	require.EqualError(t, err, "PERMISSION_DENIED: permission denied: u2 may not set the destination")
}

func TestCallRejectsNonEnvelope(t *testing.T) {
	server, _ := newTestServer(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	c := newClient(server.URL, "")

	err := call(context.Background(), c, request{method: http.MethodPost, path: "/v1/poll"}, nil)
	require.ErrorContains(t, err, "unexpected response")
}

func TestRenderWatchesWithoutSeats(t *testing.T) {
	var out bytes.Buffer
	renderWatches(&out, []registry.WatchEntry{{
		Section:     "55555",
		Course:      registry.Course{Subject: "MATH", CourseNumber: "110", Year: 2025, Term: "WINTER"},
		Subscribers: []string{"a", "b"},
	}})
	require.Contains(t, out.String(), "55555")
	require.Contains(t, out.String(), "a, b")
	require.Contains(t, out.String(), " - ")
}
