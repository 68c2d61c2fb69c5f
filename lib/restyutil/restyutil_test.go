package restyutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type memoryOutput struct {
	mu       sync.Mutex
	ids      []string
	messages map[string]string
}

func (o *memoryOutput) Write(id string, contents string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.messages == nil {
		o.messages = map[string]string{}
	}
	o.ids = append(o.ids, id)
	o.messages[id] = contents
}

func TestDumpExchanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "very-secret"})
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	output := &memoryOutput{}
	client := resty.New().SetBaseURL(server.URL)
	DumpExchanges(client, output)

	_, err := client.R().
		SetHeader("Cookie", "JSESSIONID=old-secret; BIGipServer=pool").
		Get("/StudentRegistrationSsb/ssb/registration")
	require.NoError(t, err)
	_, err = client.R().
		SetFormData(map[string]string{"term": "202409"}).
		Post("/StudentRegistrationSsb/ssb/term/search")
	require.NoError(t, err)

	require.Equal(t, []string{"0001-GET-registration", "0002-POST-search"}, output.ids)

	get := output.messages["0001-GET-registration"]
	require.Contains(t, get, "Cookie: JSESSIONID=<redacted>; BIGipServer=<redacted>")
	require.Contains(t, get, "Set-Cookie: JSESSIONID=<redacted>")
	require.NotContains(t, get, "secret")
	require.Contains(t, get, `{"success": true}`)

	require.Contains(t, output.messages["0002-POST-search"], "term=202409")
}

func TestDumpExchangesNilOutput(t *testing.T) {
	client := resty.New()
	DumpExchanges(client, nil)
}

func TestFilesystemOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dump")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale"), []byte("old"), 0600))

	output, err := NewFilesystemOutput(dir)
	require.NoError(t, err)
	output.Write("0001-GET-root", "contents")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "0001-GET-root", entries[0].Name())
}
