package banner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type SeatStatus int

const (
	SeatsFound SeatStatus = iota
	SeatsNotFound
	SeatsRequestFailed
)

func (s SeatStatus) String() string {
	switch s {
	case SeatsFound:
		return "found"
	case SeatsNotFound:
		return "not_found"
	case SeatsRequestFailed:
		return "request_failed"
	}
	return fmt.Sprintf("SeatStatus(%d)", int(s))
}

// SeatResult is the outcome of a seat query. Seats is only meaningful when
// Status is SeatsFound, Err is only set when Status is SeatsRequestFailed.
type SeatResult struct {
	Status SeatStatus
	Seats  int
	Err    error
}

func Found(seats int) SeatResult {
	return SeatResult{Status: SeatsFound, Seats: seats}
}

func NotFound() SeatResult {
	return SeatResult{Status: SeatsNotFound}
}

func RequestFailed(err error) SeatResult {
	return SeatResult{Status: SeatsRequestFailed, Err: err}
}

// Query identifies one section in one term.
type Query struct {
	Subject      string
	CourseNumber string
	Year         int
	Term         Term
	// Section is the course reference number (CRN).
	Section string
}

// FlexInt decodes integers the portal sometimes sends as strings.
type FlexInt struct {
	Value int
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = FlexInt{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	n, err := parseFlexInt(string(data))
	if err != nil {
		return err
	}
	*f = FlexInt{Value: n, Valid: true}
	return nil
}

func parseFlexInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err == nil {
		return n, nil
	}
	// some deployments send counts as "3.0"
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) ||
		f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("not an integer: %s", s)
	}
	return int(f), nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(f.Value)), nil
}

// SearchRecord is one section in a class search response.
type SearchRecord struct {
	CourseReferenceNumber string  `json:"courseReferenceNumber"`
	Term                  string  `json:"term"`
	Subject               string  `json:"subject"`
	CourseNumber          string  `json:"courseNumber"`
	SequenceNumber        string  `json:"sequenceNumber"`
	CourseTitle           string  `json:"courseTitle"`
	MaximumEnrollment     FlexInt `json:"maximumEnrollment"`
	Enrollment            FlexInt `json:"enrollment"`
	SeatsAvailable        FlexInt `json:"seatsAvailable"`
	WaitCapacity          FlexInt `json:"waitCapacity"`
	WaitAvailable         FlexInt `json:"waitAvailable"`
}

type searchResponse struct {
	Success    bool           `json:"success"`
	TotalCount int            `json:"totalCount"`
	Data       []SearchRecord `json:"data"`
}

type ClientOptions struct {
	// PageSize is the number of sections requested per search.
	PageSize int
	// CacheTTL keeps search responses around so that several watches on
	// the same course within one poll share a single search. Zero disables
	// the cache.
	CacheTTL time.Duration
}

// Client answers seat queries through a Session.
type Client struct {
	session  *Session
	pageSize int
	cache    *expirable.LRU[string, []SearchRecord]

	// The portal keeps the selected term per session, so the select, reset
	// and fetch steps of one search must not interleave with another's.
	searchLock sync.Mutex
}

func NewClient(session *Session, opts ClientOptions) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	c := &Client{
		session:  session,
		pageSize: opts.PageSize,
	}
	if opts.CacheTTL > 0 {
		c.cache = expirable.NewLRU[string, []SearchRecord](256, nil, opts.CacheTTL)
	}
	return c
}

func (c *Client) Session() *Session {
	return c.session
}

func searchKey(subject, courseNumber, termCode string) string {
	return fmt.Sprintf("%s|%s|%s", subject, courseNumber, termCode)
}

// Search runs the portal's class search for a course in a term. Results
// may come from the cache.
func (c *Client) Search(ctx context.Context, subject, courseNumber, termCode string) ([]SearchRecord, error) {
	return c.searchCached(ctx, subject, courseNumber, termCode, true)
}

// SearchFresh is Search without the cache.
func (c *Client) SearchFresh(ctx context.Context, subject, courseNumber, termCode string) ([]SearchRecord, error) {
	return c.searchCached(ctx, subject, courseNumber, termCode, false)
}

// PurgeCache drops every cached search result.
func (c *Client) PurgeCache() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

func (c *Client) searchCached(ctx context.Context, subject, courseNumber, termCode string, useCache bool) ([]SearchRecord, error) {
	ctx, span := tracer.Start(ctx, "Client.Search")
	defer span.End()

	subject = strings.ToUpper(strings.TrimSpace(subject))
	courseNumber = strings.TrimSpace(courseNumber)
	span.SetAttributes(
		attribute.String("subject", subject),
		attribute.String("course_number", courseNumber),
		attribute.String("term", termCode),
	)

	c.searchLock.Lock()
	defer c.searchLock.Unlock()

	key := searchKey(subject, courseNumber, termCode)
	if useCache && c.cache != nil {
		cached, ok := c.cache.Get(key)
		if ok {
			span.SetAttributes(attribute.Bool("cached", true))
			return cached, nil
		}
	}

	records, err := c.search(ctx, subject, courseNumber, termCode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}
	if c.cache != nil {
		c.cache.Add(key, records)
	}
	return records, nil
}

// search runs the search sequence, once more if the session was refreshed
// while it ran since a refresh selects a different term.
func (c *Client) search(ctx context.Context, subject, courseNumber, termCode string) ([]SearchRecord, error) {
	for attempt := 1; ; attempt++ {
		records, valid, err := c.searchOnce(ctx, subject, courseNumber, termCode)
		if err != nil {
			return nil, err
		}
		if valid {
			return records, nil
		}
		if attempt == 2 {
			return nil, errors.New("session was refreshed during the search")
		}
		slog.DebugContext(ctx, "session refreshed during search, starting over", "term", termCode)
		c.session.awaitRefresh()
	}
}

func (c *Client) searchOnce(ctx context.Context, subject, courseNumber, termCode string) ([]SearchRecord, bool, error) {
	_, err := c.session.Do(ctx, http.MethodPost, termSearchPath, func(req *resty.Request) {
		req.SetQueryParam("mode", "registration")
		req.SetFormData(termSearchForm(termCode))
	})
	if err != nil {
		return nil, false, fmt.Errorf("select term: %w", err)
	}
	// a refresh inside the call above happens before the term is selected
	generation := c.session.Generation()

	_, err = c.session.Do(ctx, http.MethodPost, resetFormPath, nil)
	if err != nil {
		return nil, false, fmt.Errorf("reset search form: %w", err)
	}

	res, err := c.session.Do(ctx, http.MethodGet, searchResultsPath, func(req *resty.Request) {
		req.SetQueryParams(map[string]string{
			"txt_subject":      subject,
			"txt_courseNumber": courseNumber,
			"txt_term":         termCode,
			"startDatepicker":  "",
			"endDatepicker":    "",
			"pageOffset":       "0",
			"pageMaxSize":      strconv.Itoa(c.pageSize),
			"sortColumn":       "subjectDescription",
			"sortDirection":    "asc",
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("search results: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, false, fmt.Errorf("search results: unexpected status %s", res.Status())
	}
	if generation%2 == 1 || c.session.Generation() != generation {
		return nil, false, nil
	}

	var parsed searchResponse
	err = json.Unmarshal(res.Body(), &parsed)
	if err != nil {
		return nil, false, fmt.Errorf("decode search results: %w", err)
	}
	for _, r := range parsed.Data {
		if r.Term != "" && r.Term != termCode {
			return nil, false, fmt.Errorf("search results are for term %s, expected %s", r.Term, termCode)
		}
	}
	return parsed.Data, true, nil
}

// QuerySeats returns the number of open seats in a section. Portal and
// decoding failures are reported in the result; only an invalid term
// produces an error, before any request is made. Results may come from the
// cache.
func (c *Client) QuerySeats(ctx context.Context, q Query) (SeatResult, error) {
	return c.querySeats(ctx, q, true)
}

// QuerySeatsFresh is QuerySeats without the cache.
func (c *Client) QuerySeatsFresh(ctx context.Context, q Query) (SeatResult, error) {
	return c.querySeats(ctx, q, false)
}

func (c *Client) querySeats(ctx context.Context, q Query, useCache bool) (SeatResult, error) {
	termCode, err := TermCode(q.Year, q.Term)
	if err != nil {
		return SeatResult{}, err
	}

	ctx, span := tracer.Start(ctx, "Client.QuerySeats")
	defer span.End()
	span.SetAttributes(attribute.String("section", q.Section))

	records, err := c.searchCached(ctx, q.Subject, q.CourseNumber, termCode, useCache)
	if err != nil {
		slog.WarnContext(ctx, "seat query failed", "section", q.Section, "err", err)
		return RequestFailed(err), nil
	}

	result := seatsForSection(records, q.Section, termCode)
	recordResult(span, result)
	return result, nil
}

func seatsForSection(records []SearchRecord, section, termCode string) SeatResult {
	section = strings.TrimSpace(section)
	for _, r := range records {
		if r.CourseReferenceNumber != section {
			continue
		}
		if r.Term != "" && r.Term != termCode {
			return RequestFailed(fmt.Errorf("section %s was returned for term %s, expected %s", section, r.Term, termCode))
		}
		if !r.SeatsAvailable.Valid {
			return RequestFailed(fmt.Errorf("section %s has no seatsAvailable field", section))
		}
		// the portal reports over-enrolled sections as negative
		return Found(max(0, r.SeatsAvailable.Value))
	}
	return NotFound()
}

func recordResult(span trace.Span, result SeatResult) {
	span.SetAttributes(attribute.String("status", result.Status.String()))
	if result.Status == SeatsFound {
		span.SetAttributes(attribute.Int("seats", result.Seats))
	}
}
