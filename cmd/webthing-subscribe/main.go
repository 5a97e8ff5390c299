// Command webthing-subscribe prints realtime messages from a Webthing server.
//
// It keeps a subscription session open across network failures and
// re-subscribes after every reconnect.
//
// Usage:
//
//	webthing-subscribe [flags]
//
// Flags:
//
//	-host string          Webthing host (fqdn or host:port)
//	-url string           Webthing URL; http:// selects an insecure connection
//	-insecure             Use ws:// instead of wss://
//	-discover             Find a Webthing server via mDNS (_wot._tcp)
//	-config string        YAML configuration file, watched for topic changes
//	-topic string         Topic to subscribe to (repeatable)
//	-property string      Property IRI to observe (repeatable)
//	-events, -actions, -requests, -resolutions
//	                      Subscribe to the corresponding server topic
//	-send-topic string    Send one message once connected
//	-send-body string     Body of that message
//	-interactive          Enable interactive command mode
//	-protocol-log string  Write a CBOR protocol log (view it with webthing-log)
//	-metrics-addr string  Serve Prometheus metrics, e.g. :9090
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-backoff duration     Reconnect interval (default 30s)
//
// Examples:
//
//	# Observe a property
//	webthing-subscribe -host webthing.example.com -property https://example.com/sensor/temp
//
//	# Local server, events and actions, interactive shell
//	webthing-subscribe -url http://localhost:8080 -events -actions -interactive
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webthing-client/webthing-go/pkg/connection"
	"github.com/webthing-client/webthing-go/pkg/discovery"
	"github.com/webthing-client/webthing-go/pkg/log"
	"github.com/webthing-client/webthing-go/pkg/metrics"
	"github.com/webthing-client/webthing-go/pkg/webthing"
)

const sendWait = 10 * time.Second

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "webthing-subscribe: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "webthing-subscribe: %v\n", err)
		os.Exit(1)
	}
}

func run(opts Options) error {
	level, _ := parseLevel(opts.LogLevel)
	var levelVar slog.LevelVar
	levelVar.Set(level)
	logOut := &switchWriter{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: &levelVar}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := webthing.DefaultConfig()
	cfg.Logger = logger
	if opts.Backoff > 0 {
		cfg.Backoff.Initial = opts.Backoff
		cfg.Backoff.Max = opts.Backoff
	}

	if opts.ProtocolLog != "" {
		fl, err := log.NewFileLogger(opts.ProtocolLog)
		if err != nil {
			return err
		}
		defer fl.Close()
		cfg.ProtocolLogger = fl
		logger.Info("protocol log enabled", "path", opts.ProtocolLog)
	}

	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := metrics.New(reg)
		if err != nil {
			return err
		}
		cfg.Metrics = m
		srv := serveMetrics(opts.MetricsAddr, reg, logger)
		defer srv.Close()
	}

	client, err := newClient(ctx, opts, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("connecting", "url", client.WebsocketURL())

	client.OnStateChange(func(oldState, newState connection.State) {
		logger.Info("connection state", "from", oldState, "to", newState)
	})
	connected := make(chan struct{}, 1)
	client.OnConnected(func() {
		select {
		case connected <- struct{}{}:
		default:
		}
	})

	subs := newSubscriptionSet(client, os.Stdout)
	defer subs.Close()

	var fileTargets []target
	if opts.ConfigFile != "" {
		if fileOpts, err := loadOptionsFile(opts.ConfigFile); err == nil {
			fileTargets = fileOpts.targets()
		}
		subs.Sync(sourceConfig, fileTargets)
		err := watchConfig(ctx, opts.ConfigFile, logger, func(o Options) {
			added, removed := subs.Sync(sourceConfig, o.targets())
			logger.Info("config reloaded", "added", len(added), "removed", len(removed))
			if l, err := parseLevel(o.LogLevel); err == nil && o.LogLevel != "" {
				levelVar.Set(l)
			}
		})
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		}
	}
	for _, t := range opts.targets() {
		if slices.Contains(fileTargets, t) {
			continue
		}
		if _, err := subs.Add(t, sourceFlag); err != nil {
			logger.Warn("subscribe failed", "target", t, "error", err)
		}
	}

	if opts.SendTopic != "" {
		select {
		case <-connected:
			client.Send(opts.SendTopic, opts.SendBody)
			logger.Info("message sent", "topic", opts.SendTopic, "bytes", len(opts.SendBody))
		case <-time.After(sendWait):
			return errors.New("not connected, message not sent")
		case <-ctx.Done():
			return nil
		}
		if len(subs.List()) == 0 && !opts.Interactive {
			return nil
		}
	}

	if opts.Interactive {
		sh, err := newShell(client, subs)
		if err != nil {
			return err
		}
		logOut.Set(sh.Stdout())
		subs.SetOutput(sh.Stdout())
		go sh.Run(ctx, cancel)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// newClient resolves the server from opts and creates the client.
func newClient(ctx context.Context, opts Options, cfg webthing.Config, logger *slog.Logger) (*webthing.Client, error) {
	switch {
	case opts.URL != "":
		return webthing.NewFromURL(opts.URL, cfg)
	case opts.Discover:
		logger.Info("browsing for webthing servers", "service", discovery.ServiceType)
		svc, err := discovery.Find(ctx, discovery.DefaultBrowserConfig())
		if err != nil {
			return nil, err
		}
		logger.Info("discovered", "instance", svc.Instance, "url", svc.URL())
		cfg.Insecure = !svc.Secure
		return webthing.New(svc.FQDN(), cfg)
	default:
		cfg.Insecure = opts.Insecure
		return webthing.New(opts.Host, cfg)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

// switchWriter lets log output move to the readline writer once the shell
// starts.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
