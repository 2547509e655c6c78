package ratelimit

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"real-estate-catalog/internal/config"
)

// RateLimiter enforces sliding-window limits on the write routes of the
// catalog API, so a misbehaving client cannot flood the backend with creates.
type RateLimiter struct {
	requestsPerMinute int
	requestsPerHour   int
	requestsPerDay    int
	enabled           bool
	now               func() time.Time

	minuteWindow []time.Time
	hourWindow   []time.Time
	dayWindow    []time.Time
	rejected     int
	mu           sync.Mutex
}

// NewRateLimiter creates a limiter. A zero limit disables that window.
func NewRateLimiter(requestsPerMinute, requestsPerHour, requestsPerDay int, enabled bool) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		requestsPerDay:    requestsPerDay,
		enabled:           enabled,
		now:               time.Now,
	}
}

// NewFromConfig creates a limiter from the rate_limit section.
func NewFromConfig(cfg config.RateLimitConfig) *RateLimiter {
	return NewRateLimiter(cfg.RequestsPerMinute, cfg.RequestsPerHour, cfg.RequestsPerDay, cfg.Enabled)
}

// AllowRequest records a request and reports whether it fits every window.
func (rl *RateLimiter) AllowRequest() bool {
	if !rl.enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)

	if exceeded(rl.minuteWindow, rl.requestsPerMinute) ||
		exceeded(rl.hourWindow, rl.requestsPerHour) ||
		exceeded(rl.dayWindow, rl.requestsPerDay) {
		rl.rejected++
		return false
	}

	rl.minuteWindow = append(rl.minuteWindow, now)
	rl.hourWindow = append(rl.hourWindow, now)
	rl.dayWindow = append(rl.dayWindow, now)
	return true
}

func exceeded(window []time.Time, limit int) bool {
	return limit > 0 && len(window) >= limit
}

// cleanup removes expired entries from the time windows
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.minuteWindow = filterTimes(rl.minuteWindow, now.Add(-time.Minute))
	rl.hourWindow = filterTimes(rl.hourWindow, now.Add(-time.Hour))
	rl.dayWindow = filterTimes(rl.dayWindow, now.Add(-24*time.Hour))
}

// filterTimes keeps only times after the cutoff. Windows are appended in
// time order, so the kept entries are a suffix.
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	for i, t := range times {
		if t.After(cutoff) {
			return times[i:]
		}
	}
	return times[:0]
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.AllowRequest() {
			logger.Warn("write rate limit exceeded", "path", c.FullPath(), "client_ip", c.ClientIP())
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	if !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanup(rl.now())

	return Stats{
		Enabled:             true,
		RequestsLastMinute:  len(rl.minuteWindow),
		RequestsLastHour:    len(rl.hourWindow),
		RequestsLastDay:     len(rl.dayWindow),
		LimitPerMinute:      rl.requestsPerMinute,
		LimitPerHour:        rl.requestsPerHour,
		LimitPerDay:         rl.requestsPerDay,
		RemainingThisMinute: remaining(rl.requestsPerMinute, rl.minuteWindow),
		RemainingThisHour:   remaining(rl.requestsPerHour, rl.hourWindow),
		RemainingThisDay:    remaining(rl.requestsPerDay, rl.dayWindow),
		Rejected:            rl.rejected,
	}
}

// remaining is -1 for an unlimited window.
func remaining(limit int, window []time.Time) int {
	if limit <= 0 {
		return -1
	}
	return max(0, limit-len(window))
}

// Stats contains rate limiter statistics
type Stats struct {
	Enabled             bool `json:"enabled"`
	RequestsLastMinute  int  `json:"requests_last_minute"`
	RequestsLastHour    int  `json:"requests_last_hour"`
	RequestsLastDay     int  `json:"requests_last_day"`
	LimitPerMinute      int  `json:"limit_per_minute"`
	LimitPerHour        int  `json:"limit_per_hour"`
	LimitPerDay         int  `json:"limit_per_day"`
	RemainingThisMinute int  `json:"remaining_this_minute"`
	RemainingThisHour   int  `json:"remaining_this_hour"`
	RemainingThisDay    int  `json:"remaining_this_day"`
	Rejected            int  `json:"rejected"`
}

// Reset clears all tracked requests
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.minuteWindow = nil
	rl.hourWindow = nil
	rl.dayWindow = nil
	rl.rejected = 0
}
