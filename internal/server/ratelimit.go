package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig holds per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// RateLimiter tracks request counts and upload volume per client.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64

	clients map[string]*ClientUsage
	now     func() time.Time
}

// ClientUsage is the usage of one client IP.
type ClientUsage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64

	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
	lastSeen    time.Time
}

// NewRateLimiter creates a limiter; returns nil when cfg is disabled.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if !cfg.Enabled {
		return nil
	}
	return &RateLimiter{
		requestsPerMinute: cfg.RequestsPerMinute,
		requestsPerHour:   cfg.RequestsPerHour,
		maxRequestsPerDay: cfg.MaxRequestsPerDay,
		maxDataPerDay:     cfg.MaxDataPerDay,
		clients:           make(map[string]*ClientUsage),
		now:               time.Now,
	}
}

// Allow records a request of dataSize bytes from clientID, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.clients[clientID]
	if u == nil {
		u = &ClientUsage{minuteStart: now, hourStart: now, dayStart: startOfDay(now)}
		rl.clients[clientID] = u
	}
	rollWindows(u, now)

	if rl.requestsPerMinute > 0 && u.RequestsLastMinute >= rl.requestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: rl.requestsPerMinute, RetryAfter: u.minuteStart.Add(time.Minute).Sub(now)}
	}
	if rl.requestsPerHour > 0 && u.RequestsLastHour >= rl.requestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.requestsPerHour, RetryAfter: u.hourStart.Add(time.Hour).Sub(now)}
	}
	resets := u.dayStart.AddDate(0, 0, 1)
	if rl.maxRequestsPerDay > 0 && u.RequestsToday >= rl.maxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.maxRequestsPerDay), Used: int64(u.RequestsToday), Resets: resets}
	}
	if rl.maxDataPerDay > 0 && u.DataToday+dataSize > rl.maxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.maxDataPerDay, Used: u.DataToday, Resets: resets}
	}

	u.RequestsLastMinute++
	u.RequestsLastHour++
	u.RequestsToday++
	u.DataToday += dataSize
	u.lastSeen = now
	return nil
}

// rollWindows starts new fixed windows once the current ones have elapsed.
func rollWindows(u *ClientUsage, now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.RequestsLastMinute = 0
		u.minuteStart = now
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.RequestsLastHour = 0
		u.hourStart = now
	}
	if day := startOfDay(now); day.After(u.dayStart) {
		u.RequestsToday = 0
		u.DataToday = 0
		u.dayStart = day
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Usage returns a copy of the usage for clientID.
func (rl *RateLimiter) Usage(clientID string) ClientUsage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if u, ok := rl.clients[clientID]; ok {
		return *u
	}
	return ClientUsage{}
}

// Prune forgets clients idle for longer than a day.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	n := 0
	for id, u := range rl.clients {
		if now.Sub(u.lastSeen) > 24*time.Hour {
			delete(rl.clients, id)
			n++
		}
	}
	return n
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
