// Package breaker implements the circuit breaker protecting each downstream
// service. One Breaker guards one service name; failures in one circuit
// never affect another's.
//
// Call outcomes feed a rolling window implemented as a fixed ring of
// time buckets. Window membership is computed lazily from the clock at call
// time, so no background timers exist.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing, reject requests
	StateHalfOpen              // Testing recovery with a single trial call
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned when the circuit rejects a call without invoking it.
var ErrOpen = errors.New("breaker: circuit open")

// Config holds the breaker tuning knobs.
type Config struct {
	Name string

	// Window is the rolling duration over which failure rate is measured.
	Window time.Duration
	// Buckets divides the window; higher resolution, same memory.
	Buckets int
	// VolumeThreshold is the minimum number of calls in the window before
	// the failure percentage is considered at all.
	VolumeThreshold int
	// ErrorThresholdPercentage opens the circuit when reached (0-100].
	ErrorThresholdPercentage float64
	// ResetTimeout is how long the circuit stays open before a trial call.
	ResetTimeout time.Duration
	// CallTimeout bounds each wrapped call; exceeding it counts as a failure.
	CallTimeout time.Duration

	// OnStateChange observes transitions for monitoring. It runs with the
	// breaker lock held and must not call back into the breaker.
	OnStateChange func(name string, from, to State)

	// Clock substitutes the time source, for tests.
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 10 * time.Second
	}
	if c.Buckets <= 0 {
		c.Buckets = 10
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = 10
	}
	if c.ErrorThresholdPercentage <= 0 {
		c.ErrorThresholdPercentage = 50
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Stats are cumulative counters exposed on the health endpoint.
type Stats struct {
	Fires     uint64 `json:"fires"`
	Successes uint64 `json:"successes"`
	Failures  uint64 `json:"failures"`
	Timeouts  uint64 `json:"timeouts"`
	Rejects   uint64 `json:"rejects"`
}

type bucket struct {
	start     time.Time
	successes int
	failures  int
}

// Breaker is safe for concurrent use by many in-flight sagas.
type Breaker struct {
	cfg       Config
	bucketDur time.Duration

	mu            sync.Mutex
	state         State
	openedAt      time.Time
	trialInFlight bool
	buckets       []bucket
	stats         Stats
}

// New creates a breaker for one downstream service.
func New(cfg Config) *Breaker {
	cfg = cfg.withDefaults()
	return &Breaker{
		cfg:       cfg,
		bucketDur: cfg.Window / time.Duration(cfg.Buckets),
		state:     StateClosed,
		buckets:   make([]bucket, cfg.Buckets),
	}
}

// Name returns the protected service name.
func (b *Breaker) Name() string { return b.cfg.Name }

// CallTimeout returns the configured per-call timeout, so callers can derive
// the doubled compensation timeout from it.
func (b *Breaker) CallTimeout() time.Duration { return b.cfg.CallTimeout }

// Execute runs fn under the default call timeout.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	return b.ExecuteTimeout(ctx, b.cfg.CallTimeout, fn)
}

// ExecuteTimeout runs fn under an explicit timeout (compensation calls use a
// doubled one). The returned error is fn's own, except for ErrOpen which is
// returned without invoking fn at all.
func (b *Breaker) ExecuteTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		b.onSuccess()
		return nil
	}
	b.onFailure(errors.Is(err, context.DeadlineExceeded))
	return err
}

// State returns the current state (for monitoring).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a copy of the cumulative counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Clock()
	switch b.state {
	case StateClosed:
		b.stats.Fires++
		return nil

	case StateOpen:
		if now.Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.transition(StateHalfOpen)
			b.trialInFlight = true
			b.stats.Fires++
			return nil
		}
		b.stats.Rejects++
		return ErrOpen

	case StateHalfOpen:
		// Exactly one trial call probes the downstream.
		if b.trialInFlight {
			b.stats.Rejects++
			return ErrOpen
		}
		b.trialInFlight = true
		b.stats.Fires++
		return nil

	default:
		b.stats.Rejects++
		return ErrOpen
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Clock()
	b.stats.Successes++

	switch b.state {
	case StateHalfOpen:
		b.trialInFlight = false
		b.resetWindow()
		b.transition(StateClosed)
	case StateClosed:
		b.currentBucket(now).successes++
	}
}

func (b *Breaker) onFailure(timedOut bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Clock()
	if timedOut {
		b.stats.Timeouts++
	} else {
		b.stats.Failures++
	}

	switch b.state {
	case StateHalfOpen:
		// Any failure during the trial re-opens the circuit.
		b.trialInFlight = false
		b.openedAt = now
		b.transition(StateOpen)

	case StateClosed:
		b.currentBucket(now).failures++
		successes, failures := b.windowCounts(now)
		total := successes + failures
		if total < b.cfg.VolumeThreshold {
			return
		}
		pct := float64(failures) / float64(total) * 100
		if pct >= b.cfg.ErrorThresholdPercentage {
			b.openedAt = now
			b.transition(StateOpen)
			slog.Warn("circuit opened on failure rate",
				slog.String("name", b.cfg.Name),
				slog.Int("window_calls", total),
				slog.Float64("failure_pct", pct))
		}
	}
}

// transition mutates state and reports it. Caller holds b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	slog.Info("circuit state change",
		slog.String("name", b.cfg.Name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// currentBucket returns the live bucket for now, lazily resetting it if the
// ring has wrapped past its previous tenancy. Caller holds b.mu.
func (b *Breaker) currentBucket(now time.Time) *bucket {
	start := now.Truncate(b.bucketDur)
	idx := int((start.UnixNano() / int64(b.bucketDur)) % int64(len(b.buckets)))
	if idx < 0 {
		idx += len(b.buckets)
	}
	bk := &b.buckets[idx]
	if !bk.start.Equal(start) {
		*bk = bucket{start: start}
	}
	return bk
}

// windowCounts sums the buckets still inside the rolling window.
// Caller holds b.mu.
func (b *Breaker) windowCounts(now time.Time) (successes, failures int) {
	cutoff := now.Add(-b.cfg.Window)
	for i := range b.buckets {
		bk := &b.buckets[i]
		if bk.start.IsZero() || bk.start.Before(cutoff) {
			continue
		}
		successes += bk.successes
		failures += bk.failures
	}
	return successes, failures
}

// resetWindow clears the counters after recovery. Caller holds b.mu.
func (b *Breaker) resetWindow() {
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
}
