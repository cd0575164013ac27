// CLAUDE:SUMMARY Persistent fixed-window rate limiter: atomic SQL windows, in-memory degradation, sampled decision logs.
package shield

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Rule defines the quota for one rate-limited function.
type Rule struct {
	FunctionName string
	MaxRequests  int
	Window       time.Duration
}

// Result is the limiter's decision for one request.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Count     int
}

// WindowStore persists fixed-window counters shared across instances.
// Implementations must make Hit atomic: two concurrent hits on the same
// window must never observe the same count (no lost updates).
type WindowStore interface {
	// Hit opens or increments the window starting at start for
	// (ip, fn). It increments only while the counter is below max.
	// ok=false means the window is full; count and storedEnd then
	// describe the stored window so the caller can compute retry
	// timing from persisted state.
	Hit(ctx context.Context, ip, fn string, max int, start, end time.Time) (count int, storedEnd time.Time, ok bool, err error)

	// Block records a rejected attempt on the full window. The main
	// counter is left untouched.
	Block(ctx context.Context, ip, fn string, start time.Time) error

	// PurgeExpired removes windows whose end has passed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Limiter enforces per-(client IP, function) fixed-window quotas backed
// by a WindowStore. On any storage failure it degrades to a
// process-local in-memory window map running the same algorithm —
// weaker guarantees (instance-local, lost on restart), so every
// degraded decision is logged distinctly from normal allow/block logs.
type Limiter struct {
	store WindowStore

	// SampleEvery controls allowed-decision log sampling (every Nth
	// request). Blocked and approaching-limit decisions always log.
	SampleEvery int

	// CleanupChance is the per-request probability of purging expired
	// windows. Keeps the table bounded without a dedicated scheduler.
	CleanupChance float64

	now  func() time.Time
	rand func() float64

	mu  sync.Mutex
	mem map[string]*memWindow
}

type memWindow struct {
	count   int
	blocked int
	end     time.Time
}

// NewLimiter creates a Limiter over the given store.
func NewLimiter(store WindowStore) *Limiter {
	return &Limiter{
		store:         store,
		SampleEvery:   10,
		CleanupChance: 0.01,
		now:           time.Now,
		rand:          rand.Float64,
		mem:           make(map[string]*memWindow),
	}
}

// Check applies rule to one request from ip. It is side-effecting:
// every call writes or updates a counter record.
func (l *Limiter) Check(ctx context.Context, ip string, rule Rule) Result {
	now := l.now()
	// Epoch-aligned window start: concurrent first requests compute the
	// same start, so the store's uniqueness constraint guarantees at
	// most one active window per (ip, function).
	start := now.Truncate(rule.Window)
	end := start.Add(rule.Window)

	count, storedEnd, ok, err := l.store.Hit(ctx, ip, rule.FunctionName, rule.MaxRequests, start, end)
	if err != nil {
		return l.checkFallback(ip, rule, now, err)
	}

	var res Result
	if ok {
		res = Result{
			Allowed:   true,
			Count:     count,
			Remaining: rule.MaxRequests - count,
			ResetIn:   storedEnd.Sub(now),
		}
	} else {
		if blockErr := l.store.Block(ctx, ip, rule.FunctionName, start); blockErr != nil {
			slog.Warn("ratelimit: blocked-count update failed",
				"function", rule.FunctionName, "ip", ip, "error", blockErr)
		}
		res = Result{
			Allowed:   false,
			Count:     count,
			Remaining: 0,
			ResetIn:   storedEnd.Sub(now),
		}
	}
	l.logDecision(ip, rule, res)
	l.maybeCleanup(ctx, now)
	return res
}

// checkFallback runs the same fixed-window algorithm on the in-memory
// map. Reached only when the persistence path fails.
func (l *Limiter) checkFallback(ip string, rule Rule, now time.Time, cause error) Result {
	key := ip + "|" + rule.FunctionName
	start := now.Truncate(rule.Window)
	end := start.Add(rule.Window)

	l.mu.Lock()
	w, exists := l.mem[key]
	if !exists || !w.end.After(now) {
		w = &memWindow{end: end}
		l.mem[key] = w
	}
	var res Result
	if w.count < rule.MaxRequests {
		w.count++
		res = Result{Allowed: true, Count: w.count, Remaining: rule.MaxRequests - w.count, ResetIn: w.end.Sub(now)}
	} else {
		w.blocked++
		res = Result{Allowed: false, Count: w.count, Remaining: 0, ResetIn: w.end.Sub(now)}
	}
	// Opportunistic GC of expired fallback windows.
	for k, win := range l.mem {
		if !win.end.After(now) {
			delete(l.mem, k)
		}
	}
	l.mu.Unlock()

	slog.Warn("ratelimit: degraded to in-memory fallback",
		"degraded", true,
		"function", rule.FunctionName,
		"ip", ip,
		"allowed", res.Allowed,
		"count", res.Count,
		"remaining", res.Remaining,
		"reset_in_ms", res.ResetIn.Milliseconds(),
		"cause", cause)
	return res
}

func (l *Limiter) logDecision(ip string, rule Rule, res Result) {
	attrs := []any{
		"function", rule.FunctionName,
		"ip", ip,
		"count", res.Count,
		"remaining", res.Remaining,
		"reset_in_ms", res.ResetIn.Milliseconds(),
	}
	switch {
	case !res.Allowed:
		slog.Warn("ratelimit: request blocked", attrs...)
	case res.Count*5 >= rule.MaxRequests*4:
		// At or past 80% of quota.
		slog.Warn("ratelimit: approaching limit", attrs...)
	case l.SampleEvery <= 1 || res.Count%l.SampleEvery == 0:
		slog.Info("ratelimit: request allowed", attrs...)
	}
}

func (l *Limiter) maybeCleanup(ctx context.Context, now time.Time) {
	if l.rand() >= l.CleanupChance {
		return
	}
	l.purge(ctx, now)
}

func (l *Limiter) purge(ctx context.Context, now time.Time) {
	n, err := l.store.PurgeExpired(ctx, now)
	if err != nil {
		slog.Warn("ratelimit: purge failed", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("ratelimit: purged expired windows", "count", n)
	}
}

// StartCleanup purges expired windows on a coarse ticker until ctx is
// done. The probabilistic per-request purge keeps the table bounded
// under traffic; this covers idle periods.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				l.purge(ctx, l.now())
			}
		}
	}()
}

// Limit returns middleware enforcing rule on every request. Quota
// headers are set on all responses; a denied request gets a 429 JSON
// body with machine-readable retry timing.
func (l *Limiter) Limit(rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Check(r.Context(), ClientIP(r), rule)
			retryAfter := int(res.ResetIn.Round(time.Second).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(retryAfter))
			if res.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":      "rate limit exceeded",
				"retryAfter": retryAfter,
			})
		})
	}
}

// ClientIP derives the client address for rate-limit bucketing behind
// proxies. Precedence is fixed and must stay consistent across
// deployments: x-forwarded-for (first entry) → x-real-ip →
// cf-connecting-ip → "unknown".
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if i := strings.IndexByte(xff, ','); i >= 0 {
			first = xff[:i]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return "unknown"
}
