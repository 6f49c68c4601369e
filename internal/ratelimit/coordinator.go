// Package ratelimit provides the process-wide coordinator that gates new
// loop-record admission whenever the upstream model API starts returning
// 429s, so every record backs off together instead of hammering a
// recovering API independently.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// maxConsecutiveHitsForBackoff caps the exponent in the exponential
// backoff so a long run of failures doesn't overflow into a multi-hour
// delay: 2^6 = 64 seconds is the ceiling.
const maxConsecutiveHitsForBackoff = 6

// Config tunes the coordinator. Defaults mirror the original
// implementation's RateLimitConfig.
type Config struct {
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	RecoveryPeriod      time.Duration
	MaxConcurrentCalls  int
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		InitialBackoff:     5 * time.Second,
		MaxBackoff:         120 * time.Second,
		RecoveryPeriod:     30 * time.Second,
		MaxConcurrentCalls: 10,
	}
}

// Coordinator holds the process-wide shared backoff state. All admission
// decisions for new record iterations consult the same Coordinator
// instance so a rate limit observed by one iteration backs off every
// other one too.
type Coordinator struct {
	mu sync.Mutex

	backoffUntil    time.Time
	hasBackoff      bool
	consecutiveHits int
	lastSuccess     time.Time
	hasLastSuccess  bool

	cfg Config

	// breaker trips on sustained non-429 transport failures (connection
	// errors, timeouts) — a concern distinct from the 429 backoff above,
	// layered in from the example pack rather than the original source.
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// New returns a Coordinator with the given config.
func New(cfg Config) *Coordinator {
	settings := gobreaker.Settings{
		Name:        "loopr-model-calls",
		MaxRequests: 1,
		Interval:    cfg.RecoveryPeriod,
		Timeout:     cfg.RecoveryPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("rate limit coordinator circuit breaker state change", "name", name, "from", from, "to", to)
		},
	}
	return &Coordinator{
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// IsRateLimited reports whether the coordinator currently has an active
// backoff window.
func (c *Coordinator) IsRateLimited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasBackoff && time.Now().Before(c.backoffUntil)
}

// RemainingBackoff returns how much longer the current backoff window
// lasts, and whether one is active.
func (c *Coordinator) RemainingBackoff() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasBackoff {
		return 0, false
	}
	remaining := time.Until(c.backoffUntil)
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// RecordRateLimit registers a 429 response. The backoff delay is the
// larger of the API's suggested retryAfter and an exponential backoff of
// 2^min(consecutiveHits,6) seconds, exactly as the original
// implementation computes it.
func (c *Coordinator) RecordRateLimit(retryAfter time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveHits++

	hits := c.consecutiveHits
	if hits > maxConsecutiveHitsForBackoff {
		hits = maxConsecutiveHitsForBackoff
	}
	expBackoff := time.Duration(1<<uint(hits)) * time.Second

	delay := retryAfter
	if expBackoff > delay {
		delay = expBackoff
	}
	if delay > c.cfg.MaxBackoff {
		delay = c.cfg.MaxBackoff
	}

	c.backoffUntil = time.Now().Add(delay)
	c.hasBackoff = true

	slog.Warn("rate limited, backing off globally",
		"retry_after", delay, "consecutive_hits", c.consecutiveHits)
}

// RecordSuccess resets the consecutive-hit counter and clears any active
// backoff, and records the call's success time for metrics.
func (c *Coordinator) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveHits = 0
	c.hasBackoff = false
	c.lastSuccess = time.Now()
	c.hasLastSuccess = true
}

// Reset clears the backoff and hit counter but preserves lastSuccess,
// matching the original implementation's reset-for-metrics behavior.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasBackoff = false
	c.consecutiveHits = 0
}

// TimeSinceSuccess returns how long it's been since the last recorded
// success, and whether a success has ever been recorded.
func (c *Coordinator) TimeSinceSuccess() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasLastSuccess {
		return 0, false
	}
	return time.Since(c.lastSuccess), true
}

// ConsecutiveHits returns the current consecutive-hit count.
func (c *Coordinator) ConsecutiveHits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveHits
}

// Allow reports whether new record admission should proceed: false when
// either the 429 backoff window is active or the transport circuit
// breaker has tripped on repeated non-429 failures. Already-running
// validation work is never gated by Allow; only new-unit admission is.
func (c *Coordinator) Allow() bool {
	if c.IsRateLimited() {
		return false
	}
	return c.breaker.State() != gobreaker.StateOpen
}

// RecordTransportFailure feeds a non-429 transport failure (connection
// reset, timeout) to the circuit breaker.
func (c *Coordinator) RecordTransportFailure() {
	_, _ = c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, errTransport
	})
}

// RecordTransportSuccess feeds a successful transport call to the circuit
// breaker, letting it close again after a half-open probe succeeds.
func (c *Coordinator) RecordTransportSuccess() {
	_, _ = c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, nil
	})
}

type transportError struct{}

func (transportError) Error() string { return "ratelimit: transport failure" }

var errTransport = transportError{}
