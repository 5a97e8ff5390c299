package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive defaults.
const (
	// DefaultPingInterval is the default interval between websocket pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before the
	// socket is considered dead.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures liveness monitoring. A zero PingInterval
// disables pings; a zero IdleTimeout disables the idle check.
type KeepAliveConfig struct {
	// PingInterval is the interval between websocket pings.
	PingInterval time.Duration

	// PongTimeout bounds each ping.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of consecutive failed pings tolerated.
	MaxMissedPongs int

	// IdleTimeout closes the socket when nothing was received for this long.
	// Set it above the negotiated STOMP heart-beat receive interval.
	IdleTimeout time.Duration
}

// DefaultKeepAliveConfig returns pings every 30s and no idle timeout.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// Enabled reports whether any check is configured.
func (c KeepAliveConfig) Enabled() bool {
	return c.PingInterval > 0 || c.IdleTimeout > 0
}

// DetectionDelay is the longest time a dead socket can go unnoticed by pings.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// checkInterval is how often the loop wakes up.
func (c KeepAliveConfig) checkInterval() time.Duration {
	iv := c.PingInterval
	if c.IdleTimeout > 0 {
		if q := c.IdleTimeout / 4; iv == 0 || q < iv {
			iv = q
		}
	}
	if iv <= 0 {
		iv = time.Millisecond
	}
	return iv
}

// KeepAlive monitors one socket.
type KeepAlive struct {
	config KeepAliveConfig

	ping      func(ctx context.Context) error
	onTimeout func(reason string)

	lastRecv atomic.Int64 // unix nanos
	lastPing time.Time
	missed   int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastReceived time.Time
	MissedPongs  int
}

// NewKeepAlive creates a monitor. ping sends one websocket ping and waits for
// the pong; onTimeout is called once when the socket is considered dead.
func NewKeepAlive(config KeepAliveConfig, ping func(ctx context.Context) error, onTimeout func(reason string)) *KeepAlive {
	if config.PingInterval > 0 {
		if config.PongTimeout == 0 {
			config.PongTimeout = DefaultPongTimeout
		}
		if config.MaxMissedPongs == 0 {
			config.MaxMissedPongs = DefaultMaxMissedPongs
		}
	}

	ka := &KeepAlive{
		config:    config,
		ping:      ping,
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
	}
	ka.Touch()
	return ka
}

// Touch records that data was received.
func (ka *KeepAlive) Touch() {
	ka.lastRecv.Store(time.Now().UnixNano())
}

// Start begins monitoring. It stops on Stop, on ctx cancellation, or after
// reporting a timeout.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running || !ka.config.Enabled() {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	ka.mu.Unlock()

	ka.Touch()
	go ka.loop(ctx, ka.stopCh)
}

// Stop stops monitoring.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// IsRunning returns true if monitoring is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastReceived: time.Unix(0, ka.lastRecv.Load()),
		MissedPongs:  ka.missed,
	}
}

func (ka *KeepAlive) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(ka.config.checkInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			if reason := ka.check(ctx, now); reason != "" {
				ka.mu.Lock()
				ka.running = false
				ka.mu.Unlock()
				if ka.onTimeout != nil {
					ka.onTimeout(reason)
				}
				return
			}
		}
	}
}

// check returns a non-empty reason when the socket should be closed.
func (ka *KeepAlive) check(ctx context.Context, now time.Time) string {
	if ka.config.IdleTimeout > 0 {
		last := time.Unix(0, ka.lastRecv.Load())
		if now.Sub(last) >= ka.config.IdleTimeout {
			return "idle timeout"
		}
	}

	if ka.config.PingInterval <= 0 || now.Sub(ka.lastPing) < ka.config.PingInterval {
		return ""
	}
	ka.lastPing = now

	pingCtx, cancel := context.WithTimeout(ctx, ka.config.PongTimeout)
	err := ka.ping(pingCtx)
	cancel()

	ka.mu.Lock()
	defer ka.mu.Unlock()
	if err == nil {
		ka.missed = 0
		return ""
	}
	ka.missed++
	if ka.missed >= ka.config.MaxMissedPongs {
		return "pong timeout"
	}
	return ""
}
