package banner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"seatwatch-backend/internal/chrono"
	"seatwatch-backend/lib/restyutil"
	"seatwatch-backend/lib/telemetry"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("internal/banner")

var (
	meter           = otel.Meter("internal/banner")
	refreshCount, _ = meter.Int64Counter(
		"seatwatch.session.refreshes",
		metric.WithDescription("Session refresh attempts, labelled by outcome."),
	)
)

const (
	registrationPath     = "/StudentRegistrationSsb/ssb/registration"
	applicationPath      = "/StudentRegistrationSsb/"
	registrationPagePath = "/StudentRegistrationSsb/ssb/registration/registration"
	termSearchPath       = "/StudentRegistrationSsb/ssb/term/search"
	resetFormPath        = "/StudentRegistrationSsb/ssb/classSearch/resetDataForm"
	searchResultsPath    = "/StudentRegistrationSsb/ssb/searchResults/searchResults"

	synchronizerTokenHeader = "X-Synchronizer-Token"
)

var defaultHeaders = map[string]string{
	"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Accept":           "application/json, text/javascript, */*; q=0.01",
	"Accept-Language":  "en-US,en;q=0.9",
	"X-Requested-With": "XMLHttpRequest",
}

type SessionOptions struct {
	BaseUrl           string
	RefreshInterval   time.Duration
	Timeout           time.Duration
	RequestsPerSecond float64
	CloudflareBypass  bool
	Time              chrono.TimeAPI
	// Dump receives every portal exchange, nil disables dumping.
	Dump              restyutil.Output
}

// Session owns the portal cookies. It keeps them fresh by replaying the
// portal's bootstrap sequence and re-authenticates once when a request is
// rejected.
type Session struct {
	baseUrl         *url.URL
	http            *resty.Client
	jar             *cookieJar
	time            chrono.TimeAPI
	refreshInterval time.Duration

	// serializes Refresh
	refreshLock sync.Mutex

	mu                sync.Mutex
	lastRefresh       time.Time
	lastRefreshOk     bool
	refreshes         int64
	failedRefreshes   int64
	synchronizerToken string
	// odd while a refresh is in flight, bumped at its start and end
	generation        uint64
}

func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Time == nil {
		opts.Time = chrono.StandardTime{}
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if baseUrl.Hostname() == "" {
		return nil, fmt.Errorf("portal base url %q has no host", opts.BaseUrl)
	}

	s := &Session{
		baseUrl:         baseUrl,
		jar:             newCookieJar(baseUrl.Hostname(), opts.Time.Now),
		time:            opts.Time,
		refreshInterval: opts.RefreshInterval,
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(opts.BaseUrl, "/"))
	client.SetCookieJar(s.jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeaders(defaultHeaders)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(opts.Timeout)

	// burst >= rate so that no requests are dropped
	limiter := rate.NewLimiter(
		rate.Limit(opts.RequestsPerSecond),
		int(math.Max(1, math.Ceil(opts.RequestsPerSecond))),
	)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		token := s.token()
		if token != "" && req.Header.Get(synchronizerTokenHeader) == "" {
			req.SetHeader(synchronizerTokenHeader, token)
		}
		return nil
	})

	telemetry.InstrumentResty(client, "internal/banner/http")
	restyutil.DumpExchanges(client, opts.Dump)

	s.http = client
	return s, nil
}

func (s *Session) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synchronizerToken
}

// Initialize installs seed cookies and marks the session as freshly
// refreshed, it makes no network calls.
func (s *Session) Initialize(seed map[string]string) {
	s.jar.Replace(seed)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRefresh = s.time.Now()
}

// IsStale reports whether more than the refresh interval has elapsed since
// the last refresh.
func (s *Session) IsStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.time.Now().Sub(s.lastRefresh) > s.refreshInterval
}

func (s *Session) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}

// Refresh replays the portal bootstrap sequence to obtain fresh cookies and
// reports whether the session ended up verified. It never returns an error,
// failures are logged and reported as false.
func (s *Session) Refresh(ctx context.Context) bool {
	s.refreshLock.Lock()
	defer s.refreshLock.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshIfStale(ctx context.Context) {
	s.refreshLock.Lock()
	defer s.refreshLock.Unlock()
	// another caller may have refreshed while we were waiting
	if !s.IsStale() {
		return
	}
	s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "Session.Refresh")
	defer span.End()

	s.mu.Lock()
	s.generation++
	s.mu.Unlock()

	err := s.bootstrap(ctx)

	s.mu.Lock()
	s.generation++
	s.refreshes++
	s.lastRefreshOk = err == nil
	if err != nil {
		s.failedRefreshes++
	}
	s.mu.Unlock()

	if err != nil {
		refreshCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", false)))
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		slog.WarnContext(ctx, "portal session refresh failed", "err", err)
		return false
	}

	refreshCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", true)))
	slog.InfoContext(ctx, "portal session refreshed", "cookies", s.jar.Len())
	return true
}

// Generation changes whenever a refresh starts or finishes, and is odd while
// one is in flight. A refresh selects a term on the portal, so a multi-step
// exchange that depends on the selected term is only valid if the generation
// is even and unchanged across it.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// awaitRefresh blocks until no refresh is in flight.
func (s *Session) awaitRefresh() {
	s.refreshLock.Lock()
	s.refreshLock.Unlock()
}

func termSearchForm(termCode string) map[string]string {
	return map[string]string{
		"term":            termCode,
		"studyPath":       "",
		"studyPathText":   "",
		"startDatepicker": "",
		"endDatepicker":   "",
	}
}

func (s *Session) bootstrap(ctx context.Context) error {
	year, term := CurrentTerm(s.time.Now())
	termCode, err := TermCode(year, term)
	if err != nil {
		return err
	}

	res, err := s.http.R().SetContext(ctx).Get(registrationPath)
	if err != nil {
		return fmt.Errorf("registration landing: %w", err)
	}
	s.captureSynchronizerToken(ctx, res)

	_, err = s.http.R().SetContext(ctx).Get(applicationPath)
	if err != nil {
		return fmt.Errorf("application root: %w", err)
	}

	res, err = s.http.R().SetContext(ctx).Get(registrationPagePath)
	if err != nil {
		return fmt.Errorf("registration page: %w", err)
	}
	s.captureSynchronizerToken(ctx, res)

	_, err = s.http.R().
		SetContext(ctx).
		SetQueryParam("mode", "registration").
		SetFormData(termSearchForm(termCode)).
		Post(termSearchPath)
	if err != nil {
		return fmt.Errorf("term selection: %w", err)
	}

	removed := s.jar.Dedup()
	if removed > 0 {
		slog.DebugContext(ctx, "collapsed duplicate cookies", "removed", removed)
	}

	s.mu.Lock()
	s.lastRefresh = s.time.Now()
	s.mu.Unlock()

	res, err = s.http.R().SetContext(ctx).Get(registrationPath)
	if err != nil {
		return fmt.Errorf("verify session: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return fmt.Errorf("verify session: unexpected status %s", res.Status())
	}
	return nil
}

// captureSynchronizerToken remembers the anti-CSRF token the portal embeds in
// its HTML pages, later requests echo it back as a header.
func (s *Session) captureSynchronizerToken(ctx context.Context, res *resty.Response) {
	if !strings.Contains(res.Header().Get("Content-Type"), "html") {
		return
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		slog.DebugContext(ctx, "parse portal page", "err", err)
		return
	}
	token, ok := doc.Find(`meta[name="synchronizerToken"]`).Attr("content")
	if !ok || token == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.synchronizerToken = token
}

// RequestBuilder fills in a request before it is sent. It is called again
// with a fresh request when the request is retried.
type RequestBuilder func(req *resty.Request)

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// Do performs a request against the portal. A stale session is refreshed
// first. If the portal answers 401 or 403 the session is refreshed once and,
// only if that succeeded, the request is retried once. Transport errors are
// returned, HTTP error statuses are not.
func (s *Session) Do(ctx context.Context, method, endpoint string, build RequestBuilder) (*resty.Response, error) {
	if s.IsStale() {
		s.refreshIfStale(ctx)
	}

	res, err := s.execute(ctx, method, endpoint, build)
	if err != nil {
		return nil, err
	}
	if !isAuthFailure(res.StatusCode()) {
		return res, nil
	}

	slog.InfoContext(
		ctx, "portal rejected session, re-authenticating",
		"status", res.StatusCode(),
		"endpoint", endpoint,
	)
	if !s.Refresh(ctx) {
		return res, nil
	}
	return s.execute(ctx, method, endpoint, build)
}

func (s *Session) execute(ctx context.Context, method, endpoint string, build RequestBuilder) (*resty.Response, error) {
	req := s.http.R().SetContext(ctx)
	if build != nil {
		build(req)
	}
	return req.Execute(method, endpoint)
}

// Cookies collapses duplicate cookies and returns the current set.
func (s *Session) Cookies() map[string]string {
	s.jar.Dedup()
	return s.jar.Values()
}

type SessionStatus struct {
	LastRefresh          time.Time `json:"last_refresh"`
	Stale                bool      `json:"stale"`
	LastRefreshOk        bool      `json:"last_refresh_ok"`
	Refreshes            int64     `json:"refreshes"`
	FailedRefreshes      int64     `json:"failed_refreshes"`
	Cookies              int       `json:"cookies"`
	HasSynchronizerToken bool      `json:"has_synchronizer_token"`
}

func (s *Session) Status() SessionStatus {
	stale := s.IsStale()
	cookies := len(s.jar.Values())

	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStatus{
		LastRefresh:          s.lastRefresh,
		Stale:                stale,
		LastRefreshOk:        s.lastRefreshOk,
		Refreshes:            s.refreshes,
		FailedRefreshes:      s.failedRefreshes,
		Cookies:              cookies,
		HasSynchronizerToken: s.synchronizerToken != "",
	}
}
