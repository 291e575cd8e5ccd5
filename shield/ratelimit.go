package shield

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RateLimitConfig defines the rate limit for a single endpoint.
type RateLimitConfig struct {
	MaxRequests   int
	WindowSeconds int
	Enabled       bool
}

// bucket is one fixed window for an ip:endpoint pair. The zero value is a
// window that expired in the past, so the first take starts a fresh one.
type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// take consumes one slot. It reports whether the request fits and, when it
// does not, the seconds until the window reopens.
func (b *bucket) take(now time.Time, cfg RateLimitConfig) (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(time.Duration(cfg.WindowSeconds) * time.Second)
	}
	b.count++
	if b.count <= cfg.MaxRequests {
		return true, 0
	}
	return false, int(time.Until(b.resetAt).Seconds()) + 1
}

// RateLimiter enforces per-IP, per-endpoint limits configured in the
// rate_limits table (see Schema), keyed by "METHOD /path". Rules live in
// the database so an operator can tune them at runtime with plain SQL;
// the limiter re-reads them periodically and garbage-collects expired
// windows.
type RateLimiter struct {
	db      *sql.DB
	rules   atomic.Value // map[string]RateLimitConfig
	buckets sync.Map     // "ip:endpoint" -> *bucket
	skip    []string     // path prefixes that bypass limiting
}

// NewRateLimiter loads the current rules from db. Requests whose path
// starts with one of excludePrefixes are never limited. Call StartReloader
// to keep the rules fresh.
func NewRateLimiter(db *sql.DB, excludePrefixes ...string) *RateLimiter {
	rl := &RateLimiter{db: db, skip: excludePrefixes}
	rl.rules.Store(map[string]RateLimitConfig{})
	rl.reload()
	return rl
}

// StartReloader refreshes rules every minute and sweeps dead buckets every
// five, until done is closed.
func (rl *RateLimiter) StartReloader(done <-chan struct{}) {
	go func() {
		reload := time.NewTicker(60 * time.Second)
		defer reload.Stop()
		sweep := time.NewTicker(5 * time.Minute)
		defer sweep.Stop()
		for {
			select {
			case <-done:
				return
			case <-reload.C:
				rl.reload()
			case <-sweep.C:
				rl.gc()
			}
		}
	}()
}

// reload swaps in a fresh rule map. On error the previous rules stay in
// effect, so a transient query failure never opens the gates.
func (rl *RateLimiter) reload() {
	rules, err := loadRules(rl.db)
	if err != nil {
		slog.Warn("ratelimit: reload rules", "error", err)
		return
	}
	rl.rules.Store(rules)
	slog.Debug("ratelimit: rules reloaded", "count", len(rules))
}

func loadRules(db *sql.DB) (map[string]RateLimitConfig, error) {
	rows, err := db.Query(`SELECT endpoint, max_requests, window_seconds, enabled FROM rate_limits`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make(map[string]RateLimitConfig)
	for rows.Next() {
		var (
			endpoint string
			cfg      RateLimitConfig
			enabled  int
		)
		if err := rows.Scan(&endpoint, &cfg.MaxRequests, &cfg.WindowSeconds, &enabled); err != nil {
			return nil, err
		}
		cfg.Enabled = enabled == 1
		rules[endpoint] = cfg
	}
	return rules, rows.Err()
}

func (rl *RateLimiter) rule(endpoint string) (RateLimitConfig, bool) {
	rules, _ := rl.rules.Load().(map[string]RateLimitConfig)
	cfg, ok := rules[endpoint]
	return cfg, ok
}

func (rl *RateLimiter) gc() {
	now := time.Now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		dead := now.After(b.resetAt)
		b.mu.Unlock()
		if dead {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) allow(ip, endpoint string) (bool, int) {
	cfg, ok := rl.rule(endpoint)
	if !ok || !cfg.Enabled {
		return true, 0
	}
	val, _ := rl.buckets.LoadOrStore(ip+":"+endpoint, &bucket{})
	return val.(*bucket).take(time.Now(), cfg)
}

func (rl *RateLimiter) skipped(path string) bool {
	for _, prefix := range rl.skip {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware enforces the configured limits. Blocked requests get a 429
// JSON body and a Retry-After header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		endpoint := r.Method + " " + r.URL.Path
		ip := ExtractIP(r)
		ok, retryAfter := rl.allow(ip, endpoint)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("ratelimit: request blocked", "ip", ip, "endpoint", endpoint)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the client IP: the first X-Forwarded-For entry when
// present, otherwise the host part of RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
