package discovery

import (
	"context"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// DefaultBrowseTimeout bounds Find when the context has no deadline.
const DefaultBrowseTimeout = 5 * time.Second

// BrowserConfig configures browsing.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface. Empty means all.
	Interface string

	// Timeout bounds Find (default: 5s).
	Timeout time.Duration
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{Timeout: DefaultBrowseTimeout}
}

func (c BrowserConfig) clientOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if c.Interface != "" {
		if iface, err := net.InterfaceByName(c.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// Browse searches for Webthing servers until ctx is done. Each instance is
// emitted once, when first resolved; the channel is closed when ctx ends.
func Browse(ctx context.Context, config BrowserConfig) (<-chan *Service, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	out := make(chan *Service)

	go func() {
		defer close(out)
		aggregate(ctx, entries, removed, out)
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, config.clientOptions()...)
	}()

	return out, nil
}

// aggregate merges entries per instance and forwards new instances to out.
func aggregate(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, out chan<- *Service) {
	t := newTracker()
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			svc := t.add(fromZeroconf(entry))
			if svc == nil {
				continue
			}
			select {
			case out <- svc:
			case <-ctx.Done():
				return
			}

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			t.remove(fromZeroconf(entry))

		case <-ctx.Done():
			return
		}
	}
}

// Find returns the first server discovered within the configured timeout.
func Find(ctx context.Context, config BrowserConfig) (*Service, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	services, err := Browse(ctx, config)
	if err != nil {
		return nil, err
	}
	select {
	case svc, ok := <-services:
		if ok {
			return svc, nil
		}
	case <-ctx.Done():
	}
	return nil, ErrNotFound
}
