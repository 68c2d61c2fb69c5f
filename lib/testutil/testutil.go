// Package testutil holds in-process fakes of the services seatwatch talks
// to, for use from tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"seatwatch-backend/lib/telemetry"
	"sync"
	"testing"
	"time"
)

const (
	RegistrationPath     = "/StudentRegistrationSsb/ssb/registration"
	ApplicationPath      = "/StudentRegistrationSsb/"
	RegistrationPagePath = "/StudentRegistrationSsb/ssb/registration/registration"
	TermSearchPath       = "/StudentRegistrationSsb/ssb/term/search"
	ResetFormPath        = "/StudentRegistrationSsb/ssb/classSearch/resetDataForm"
	SearchResultsPath    = "/StudentRegistrationSsb/ssb/searchResults/searchResults"

	SynchronizerToken = "fake-synchronizer-token"
)

const registrationPage = `<!DOCTYPE html>
<html>
<head>
<meta name="synchronizerToken" content="%s">
<title>Registration</title>
</head>
<body></body>
</html>`

// Section is one row in the fake portal's class search results. Seats is
// encoded as-is, so it may be an int, a string or nil.
type Section struct {
	Crn   string
	Seats any
}

// FakePortal is an in-process registration portal. Every response sets a
// new session cookie so that clients accumulate duplicates the way they do
// against the real portal.
type FakePortal struct {
	Server *httptest.Server

	mu            sync.Mutex
	sections      []Section
	searchStatus  []int
	verifyStatus  int
	hits          map[string]int
	paths         []string
	cookieSeq     int
	lastToken     string
	lastQuery     map[string]string
	lastTermField string
	resetDelay    time.Duration
}

func NewFakePortal(t testing.TB) *FakePortal {
	t.Helper()
	telemetry.SetupForTesting(t)

	p := &FakePortal{
		verifyStatus: http.StatusOK,
		hits:         map[string]int{},
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Server.Close)
	return p
}

func (p *FakePortal) URL() string {
	return p.Server.URL
}

// SetSections replaces the class search results.
func (p *FakePortal) SetSections(sections ...Section) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sections = sections
}

// SetSeats updates or inserts a single section.
func (p *FakePortal) SetSeats(crn string, seats any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.sections {
		if p.sections[i].Crn == crn {
			p.sections[i].Seats = seats
			return
		}
	}
	p.sections = append(p.sections, Section{Crn: crn, Seats: seats})
}

// QueueSearchStatus makes the next class searches answer with the given
// statuses, one per request, before returning to 200.
func (p *FakePortal) QueueSearchStatus(statuses ...int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searchStatus = append(p.searchStatus, statuses...)
}

// SetVerifyStatus sets the status of the registration landing page, which
// clients use to verify a refreshed session.
func (p *FakePortal) SetVerifyStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifyStatus = status
}

func (p *FakePortal) Hits(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

// Paths returns every request path in the order received.
func (p *FakePortal) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

func (p *FakePortal) ResetHits() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits = map[string]int{}
	p.paths = nil
}

// LastToken returns the synchronizer token header of the last request.
func (p *FakePortal) LastToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastToken
}

// LastQuery returns the query parameters of the last class search.
func (p *FakePortal) LastQuery() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastQuery
}

// LastTerm returns the term code of the last term selection.
func (p *FakePortal) LastTerm() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTermField
}

// SetResetDelay makes the search form reset slow, which widens the window
// between selecting a term and fetching results.
func (p *FakePortal) SetResetDelay(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetDelay = delay
}

func (p *FakePortal) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == ResetFormPath {
		p.mu.Lock()
		delay := p.resetDelay
		p.mu.Unlock()
		time.Sleep(delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.hits[r.URL.Path]++
	p.paths = append(p.paths, r.URL.Path)
	p.lastToken = r.Header.Get("X-Synchronizer-Token")

	p.cookieSeq++
	http.SetCookie(w, &http.Cookie{
		Name:  "JSESSIONID",
		Value: fmt.Sprintf("session-%d", p.cookieSeq),
		Path:  "/",
	})

	switch {
	case r.Method == http.MethodGet && r.URL.Path == RegistrationPath:
		w.Header().Set("Content-Type", "text/html;charset=UTF-8")
		w.WriteHeader(p.verifyStatus)
		fmt.Fprintf(w, registrationPage, SynchronizerToken)
	case r.Method == http.MethodGet && r.URL.Path == ApplicationPath:
		http.SetCookie(w, &http.Cookie{Name: "BIGipServer", Value: "pool-1", Path: "/"})
		w.Header().Set("Content-Type", "text/html;charset=UTF-8")
		io.WriteString(w, "<html></html>")
	case r.Method == http.MethodGet && r.URL.Path == RegistrationPagePath:
		w.Header().Set("Content-Type", "text/html;charset=UTF-8")
		fmt.Fprintf(w, registrationPage, SynchronizerToken)
	case r.Method == http.MethodPost && r.URL.Path == TermSearchPath:
		err := r.ParseForm()
		if err == nil {
			p.lastTermField = r.PostForm.Get("term")
		}
		writeJson(w, http.StatusOK, map[string]any{"fwdURL": "/StudentRegistrationSsb/ssb/classSearch/classSearch"})
	case r.Method == http.MethodPost && r.URL.Path == ResetFormPath:
		writeJson(w, http.StatusOK, true)
	case r.Method == http.MethodGet && r.URL.Path == SearchResultsPath:
		p.serveSearch(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (p *FakePortal) serveSearch(w http.ResponseWriter, r *http.Request) {
	query := map[string]string{}
	for key := range r.URL.Query() {
		query[key] = r.URL.Query().Get(key)
	}
	p.lastQuery = query

	if len(p.searchStatus) > 0 {
		status := p.searchStatus[0]
		p.searchStatus = p.searchStatus[1:]
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
	}

	// like the real portal, results are for the term selected on the
	// session, not the one in the query
	term := p.lastTermField
	if term == "" {
		term = query["txt_term"]
	}
	data := make([]map[string]any, 0, len(p.sections))
	for _, s := range p.sections {
		data = append(data, map[string]any{
			"courseReferenceNumber": s.Crn,
			"term":                  term,
			"subject":               query["txt_subject"],
			"courseNumber":          query["txt_courseNumber"],
			"seatsAvailable":        s.Seats,
		})
	}
	writeJson(w, http.StatusOK, map[string]any{
		"success":    true,
		"totalCount": len(data),
		"data":       data,
	})
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WebhookSink is an in-process chat webhook that records every message
// posted to it.
type WebhookSink struct {
	Server *httptest.Server

	mu       sync.Mutex
	messages []WebhookMessage
	status   int
}

type WebhookMessage struct {
	Path     string `json:"-"`
	Content  string `json:"content"`
	Username string `json:"username"`
}

func NewWebhookSink(t testing.TB) *WebhookSink {
	t.Helper()
	s := &WebhookSink{status: http.StatusNoContent}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

// URL returns the webhook url for a destination path such as "/channel-1".
func (s *WebhookSink) URL(path string) string {
	return s.Server.URL + path
}

func (s *WebhookSink) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *WebhookSink) Messages() []WebhookMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]WebhookMessage(nil), s.messages...)
}

func (s *WebhookSink) serve(w http.ResponseWriter, r *http.Request) {
	var msg WebhookMessage
	err := json.NewDecoder(r.Body).Decode(&msg)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	msg.Path = r.URL.Path

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status < 300 {
		s.messages = append(s.messages, msg)
	}
	w.WriteHeader(s.status)
}
