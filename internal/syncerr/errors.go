// Package syncerr classifies failures from HTTP responses and platform
// exceptions into a small taxonomy the sync engine can act on: retry,
// back off, surface to the UI for re-login, or give up on a single file.
// Sentinel kinds wrap an HTTP-status classifier and a bounded ring buffer
// of recent errors.
package syncerr

import (
	"errors"
	"fmt"
	stdsync "sync"
	"time"
)

// Kind is the taxonomy of classified sync errors.
type Kind string

// The ten error kinds spec'd for the sync subsystem.
const (
	KindNetwork     Kind = "NETWORK_ERROR"
	KindConflict    Kind = "CONFLICT_ERROR"
	KindQuota       Kind = "QUOTA_EXCEEDED"
	KindEncryption  Kind = "ENCRYPTION_ERROR"
	KindDatabase    Kind = "DATABASE_ERROR"
	KindStorage     Kind = "STORAGE_ERROR"
	KindServer      Kind = "SERVER_ERROR"
	KindAuth        Kind = "AUTH_ERROR"
	KindRateLimit   Kind = "RATE_LIMIT_ERROR"
	KindUnknown     Kind = "UNKNOWN_ERROR"
	defaultRetryAft      = 60 * time.Second
	defaultServerDelay   = 5 * time.Second
)

// defaultRecoverable reports whether a kind is recoverable absent any
// status-specific override. NETWORK, SERVER, and RATE_LIMIT are recoverable
// by default; everything else is not.
func defaultRecoverable(k Kind) bool {
	switch k {
	case KindNetwork, KindServer, KindRateLimit:
		return true
	default:
		return false
	}
}

// Error is a classified sync failure.
type Error struct {
	Kind        Kind
	Message     string
	Recoverable bool
	RetryAfter  time.Duration // zero if not applicable
	StatusCode  int           // zero if not an HTTP error
	Metadata    map[string]any
	Timestamp   time.Time
	cause       error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a classified Error with the default recoverability for kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:        kind,
		Message:     message,
		Recoverable: defaultRecoverable(kind),
		Timestamp:   time.Now(),
		cause:       cause,
	}
}

// FromHTTPStatus classifies an HTTP response status code per the sync
// protocol's error mapping: 401/403→AUTH, 409/412→CONFLICT, 429→RATE_LIMIT
// (honoring Retry-After), 500/502/503/504→SERVER (default 5s retry delay),
// else UNKNOWN (including other 5xx codes).
func FromHTTPStatus(status int, retryAfter time.Duration, body string) *Error {
	switch {
	case status == 401 || status == 403:
		e := New(KindAuth, body, nil)
		e.StatusCode = status

		return e
	case status == 409 || status == 412:
		e := New(KindConflict, body, nil)
		e.StatusCode = status

		return e
	case status == 429:
		e := New(KindRateLimit, body, nil)
		e.StatusCode = status

		if retryAfter > 0 {
			e.RetryAfter = retryAfter
		} else {
			e.RetryAfter = defaultRetryAft
		}

		return e
	case status == 500 || status == 502 || status == 503 || status == 504:
		e := New(KindServer, body, nil)
		e.StatusCode = status
		e.RetryAfter = defaultServerDelay

		return e
	default:
		e := New(KindUnknown, body, nil)
		e.StatusCode = status

		return e
	}
}

// Sentinel markers used by FromException to recognize platform-level
// failures that don't arrive as HTTP responses (store I/O, quota limits).
var (
	ErrQuotaExceeded = errors.New("syncerr: storage quota exceeded")
	ErrNetwork       = errors.New("syncerr: network unreachable")
)

// FromException classifies a Go error raised outside the HTTP path: quota
// errors become QUOTA_EXCEEDED, network errors become NETWORK_ERROR,
// anything else is UNKNOWN but still recorded.
func FromException(err error) *Error {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return New(KindQuota, err.Error(), err)
	case errors.Is(err, ErrNetwork):
		return New(KindNetwork, err.Error(), err)
	default:
		return New(KindUnknown, err.Error(), err)
	}
}

// ringCap bounds the in-memory error history so a long-running agent or
// server process doesn't leak memory on sustained failure.
const ringCap = 100

// Subscriber receives every classified error handled through a Registry.
type Subscriber func(*Error)

// Registry is a bounded ring buffer of recent classified errors plus a
// fan-out to subscribers (log shippers, UI status bars, test assertions).
// Safe for concurrent use.
type Registry struct {
	mu          stdsync.Mutex
	ring        []*Error
	subscribers []Subscriber
}

// NewRegistry creates an empty error registry.
func NewRegistry() *Registry {
	return &Registry{ring: make([]*Error, 0, ringCap)}
}

// Subscribe registers cb to be called on every Handle. Returns no handle —
// the conflict callback in the sync manager is the only single-slot
// subscription in this system; error subscribers are cumulative and live
// for the registry's lifetime.
func (r *Registry) Subscribe(cb Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscribers = append(r.subscribers, cb)
}

// Handle records err in the ring buffer (evicting the oldest entry past
// capacity) and fans it out to subscribers.
func (r *Registry) Handle(err *Error) {
	r.mu.Lock()

	if len(r.ring) >= ringCap {
		r.ring = r.ring[1:]
	}

	r.ring = append(r.ring, err)
	subs := append([]Subscriber(nil), r.subscribers...)

	r.mu.Unlock()

	for _, cb := range subs {
		cb(err)
	}
}

// Recent returns a copy of the most recently handled errors, oldest first.
func (r *Registry) Recent() []*Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Error, len(r.ring))
	copy(out, r.ring)

	return out
}
