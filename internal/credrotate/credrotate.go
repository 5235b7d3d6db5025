// Package credrotate multiplexes a bounded pool of upstream API secrets
// across requests, using a shared cluster-visible counter and TTL-based
// cooldown so that multiple server processes can rotate the same pool
// without coordinating directly.
package credrotate

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// DefaultRequestsPerKey bounds how many confirmed uses a key gets before
// the rotator advances to the next one in the pool.
const DefaultRequestsPerKey = 20

// DefaultTTL is how long an exhausted counter is retained before it
// expires out of the shared store.
const DefaultTTL = time.Hour

// SharedStore is the atomic-counter-with-TTL primitive the rotator needs
// from whatever backs it across processes: GET, SET, INCR, EXPIRE.
type SharedStore interface {
	GetInt(ctx context.Context, key string) (int64, bool, error)
	SetInt(ctx context.Context, key string, value int64) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Issued is a credential handed to a caller for one request attempt.
type Issued struct {
	Key   string
	Index int
}

// Status reports the rotator's current position for observability.
type Status struct {
	CurrentIndex int
	UsageCount   int64
	PoolSize     int
}

const (
	indexKey       = "credrotate:currentIndex"
	usageKeyPrefix = "credrotate:usage:"
)

// Rotator implements the external contract over a pool of N upstream
// secrets and a SharedStore.
type Rotator struct {
	keys           []string
	store          SharedStore
	requestsPerKey int64
	ttl            time.Duration
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithRequestsPerKey overrides the default per-key usage limit.
func WithRequestsPerKey(n int64) Option {
	return func(r *Rotator) { r.requestsPerKey = n }
}

// WithTTL overrides the default cooldown TTL applied to an exhausted counter.
func WithTTL(d time.Duration) Option {
	return func(r *Rotator) { r.ttl = d }
}

// New builds a Rotator over the given key pool. keys must be non-empty.
func New(keys []string, store SharedStore, opts ...Option) *Rotator {
	if len(keys) == 0 {
		panic("credrotate: empty key pool")
	}

	r := &Rotator{
		keys:           append([]string(nil), keys...),
		store:          store,
		requestsPerKey: DefaultRequestsPerKey,
		ttl:            DefaultTTL,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Rotator) usageKey(index int) string {
	return fmt.Sprintf("%s%d", usageKeyPrefix, index)
}

// GetApiKeyForRequest reads the current index and its usage count. If the
// count has reached the limit, it attaches TTL to the old counter and
// advances to the next key with a fresh zeroed counter before returning.
// It never increments usage itself.
func (r *Rotator) GetApiKeyForRequest(ctx context.Context) (Issued, error) {
	idx, err := r.currentIndex(ctx)
	if err != nil {
		return Issued{}, err
	}

	usage, _, err := r.store.GetInt(ctx, r.usageKey(idx))
	if err != nil {
		return Issued{}, err
	}

	if usage >= r.requestsPerKey {
		if err := r.store.Expire(ctx, r.usageKey(idx), r.ttl); err != nil {
			return Issued{}, err
		}

		idx = (idx + 1) % len(r.keys)
		if err := r.store.SetInt(ctx, indexKey, int64(idx)); err != nil {
			return Issued{}, err
		}

		if err := r.store.SetInt(ctx, r.usageKey(idx), 0); err != nil {
			return Issued{}, err
		}
	}

	return Issued{Key: r.keys[idx], Index: idx}, nil
}

// ConfirmApiKeyUsage atomically increments the counter for index. If the
// new count reaches the limit, TTL is attached immediately so the counter
// does not outlive its usefulness even before the next rotation.
func (r *Rotator) ConfirmApiKeyUsage(ctx context.Context, index int) error {
	count, err := r.store.Incr(ctx, r.usageKey(index))
	if err != nil {
		return err
	}

	if count == r.requestsPerKey {
		return r.store.Expire(ctx, r.usageKey(index), r.ttl)
	}

	return nil
}

// ForceKeyRotationAndGetKey advances the active index unconditionally and
// zeroes the new counter. It does not set TTL on the abandoned counter —
// an exhausted-by-force key can remain hot in the store until the next
// limit-driven rotation reaches it, matching the upstream contract.
func (r *Rotator) ForceKeyRotationAndGetKey(ctx context.Context) (Issued, error) {
	idx, err := r.currentIndex(ctx)
	if err != nil {
		return Issued{}, err
	}

	idx = (idx + 1) % len(r.keys)

	if err := r.store.SetInt(ctx, indexKey, int64(idx)); err != nil {
		return Issued{}, err
	}

	if err := r.store.SetInt(ctx, r.usageKey(idx), 0); err != nil {
		return Issued{}, err
	}

	return Issued{Key: r.keys[idx], Index: idx}, nil
}

// GetRotationStatus reports the pool's current position, for diagnostics.
func (r *Rotator) GetRotationStatus(ctx context.Context) (Status, error) {
	idx, err := r.currentIndex(ctx)
	if err != nil {
		return Status{}, err
	}

	usage, _, err := r.store.GetInt(ctx, r.usageKey(idx))
	if err != nil {
		return Status{}, err
	}

	return Status{CurrentIndex: idx, UsageCount: usage, PoolSize: len(r.keys)}, nil
}

func (r *Rotator) currentIndex(ctx context.Context) (int, error) {
	v, ok, err := r.store.GetInt(ctx, indexKey)
	if err != nil {
		return 0, err
	}

	if !ok {
		return 0, nil
	}

	return int(v) % len(r.keys), nil
}

// rotatableCodes is the set of upstream status codes that warrant forced
// rotation rather than a bare retry against the same key.
var rotatableCodes = map[int]bool{
	400: true, 401: true, 403: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
}

// ShouldRotateOnError reports whether a classified upstream error code
// should trigger forced rotation.
func ShouldRotateOnError(code int) bool {
	return rotatableCodes[code]
}

var threeDigitRun = regexp.MustCompile(`\d{3}`)

// ExtractErrorCode scans the string form of an error for the first
// three-digit run, returning 0 if none is found.
func ExtractErrorCode(err error) int {
	if err == nil {
		return 0
	}

	match := threeDigitRun.FindString(err.Error())
	if match == "" {
		return 0
	}

	var code int
	_, scanErr := fmt.Sscanf(match, "%d", &code)
	if scanErr != nil {
		return 0
	}

	return code
}
