package banner

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// cookieJar is an http.CookieJar for a single portal host. It stores cookies
// the way a naive client does, one entry per Set-Cookie, so a name can appear
// many times until Dedup collapses it. Cookies never hands duplicates to the
// transport.
type cookieJar struct {
	host string
	now  func() time.Time

	mu      sync.Mutex
	entries []*http.Cookie
}

func newCookieJar(host string, now func() time.Time) *cookieJar {
	return &cookieJar{host: host, now: now}
}

func (j *cookieJar) owns(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Hostname(), j.host)
}

func (j *cookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if !j.owns(u) {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			j.deleteLocked(c.Name)
			continue
		}
		j.entries = append(j.entries, &http.Cookie{Name: c.Name, Value: c.Value})
	}
}

func (j *cookieJar) Cookies(u *url.URL) []*http.Cookie {
	if !j.owns(u) {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return DedupCookies(j.entries)
}

func (j *cookieJar) deleteLocked(name string) {
	kept := j.entries[:0]
	for _, c := range j.entries {
		if c.Name != name {
			kept = append(kept, c)
		}
	}
	j.entries = kept
}

// Dedup collapses stored cookies so every name appears once, keeping the
// most recently set value. It returns the number of entries removed.
func (j *cookieJar) Dedup() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	before := len(j.entries)
	j.entries = DedupCookies(j.entries)
	return before - len(j.entries)
}

// Replace discards every stored cookie and stores values instead.
func (j *cookieJar) Replace(values map[string]string) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		entries = append(entries, &http.Cookie{Name: name, Value: values[name]})
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = entries
}

// Values returns the deduplicated cookie set as name -> value.
func (j *cookieJar) Values() map[string]string {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make(map[string]string, len(j.entries))
	for _, c := range j.entries {
		out[c.Name] = c.Value
	}
	return out
}

// Len returns the number of stored entries, duplicates included.
func (j *cookieJar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// DedupCookies collapses cookies sharing a name into one, keeping the value
// that appears last. Each name keeps the position of its first appearance.
// The input is not modified.
func DedupCookies(cookies []*http.Cookie) []*http.Cookie {
	index := make(map[string]int, len(cookies))
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		copied := &http.Cookie{Name: c.Name, Value: c.Value}
		if i, seen := index[c.Name]; seen {
			out[i] = copied
			continue
		}
		index[c.Name] = len(out)
		out = append(out, copied)
	}
	return out
}
