package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff defaults. The interval is constant unless a multiplier above 1 is
// configured.
const (
	// DefaultInterval is the delay before a retry that follows a failed retry.
	DefaultInterval = 30 * time.Second

	// DefaultMultiplier keeps the interval constant.
	DefaultMultiplier = 1.0

	// DefaultJitter is the maximum jitter as a fraction of the base delay.
	DefaultJitter = 0.25
)

// BackoffConfig allows customizing backoff parameters.
type BackoffConfig struct {
	// Initial is the first delay (default: 30s).
	Initial time.Duration

	// Max caps the delay (default: Initial).
	Max time.Duration

	// Multiplier grows the delay after each attempt (default: 1, constant).
	Multiplier float64

	// Jitter adds up to this fraction of the delay at random (default: 0.25).
	// Negative values disable jitter.
	Jitter float64
}

// DefaultBackoffConfig returns a constant 30s interval with 25% jitter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    DefaultInterval,
		Max:        DefaultInterval,
		Multiplier: DefaultMultiplier,
		Jitter:     DefaultJitter,
	}
}

// Backoff calculates retry delays with jitter.
type Backoff struct {
	mu sync.Mutex

	// Current backoff delay (before jitter)
	current time.Duration

	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	attempts int

	rng *rand.Rand
}

// NewBackoff creates a backoff calculator with default settings.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(DefaultBackoffConfig())
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
// Zero fields take their defaults.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultInterval
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.Jitter == 0 {
		cfg.Jitter = DefaultJitter
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay (with jitter) and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.addJitter(b.current)

	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Peek returns the current delay (with jitter) without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addJitter(b.current)
}

// Reset restores the initial delay. Call it once connected.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the current base delay (without jitter).
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// MaxDelay returns the longest delay Next can return.
func (b *Backoff) MaxDelay() time.Duration {
	return b.max + time.Duration(float64(b.max)*b.jitter)
}

func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*b.rng.Float64())
}
