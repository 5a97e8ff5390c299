package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/webthing-client/webthing-go/pkg/webthing"
)

// Options is the merged configuration of a run. The YAML keys are the
// config file format.
type Options struct {
	Host     string `yaml:"host"`
	URL      string `yaml:"url"`
	Insecure bool   `yaml:"insecure"`
	Discover bool   `yaml:"discover"`

	Topics      []string `yaml:"topics"`
	Properties  []string `yaml:"properties"`
	Events      bool     `yaml:"events"`
	Actions     bool     `yaml:"actions"`
	Requests    bool     `yaml:"requests"`
	Resolutions bool     `yaml:"resolutions"`

	SendTopic string `yaml:"send_topic"`
	SendBody  string `yaml:"send_body"`

	Backoff     time.Duration `yaml:"backoff"`
	LogLevel    string        `yaml:"log_level"`
	ProtocolLog string        `yaml:"protocol_log"`
	MetricsAddr string        `yaml:"metrics_addr"`

	Interactive bool   `yaml:"-"`
	ConfigFile  string `yaml:"-"`
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	if v == "" {
		return errors.New("empty value")
	}
	*s = append(*s, v)
	return nil
}

// newFlagSet binds all command line flags to opts.
func newFlagSet(opts *Options) *flag.FlagSet {
	fs := flag.NewFlagSet("webthing-subscribe", flag.ContinueOnError)
	fs.StringVar(&opts.Host, "host", "", "Webthing host (fqdn or host:port)")
	fs.StringVar(&opts.URL, "url", "", "Webthing URL, e.g. https://webthing.example.com")
	fs.BoolVar(&opts.Insecure, "insecure", false, "Use ws:// instead of wss://")
	fs.BoolVar(&opts.Discover, "discover", false, "Find a Webthing server via mDNS")
	fs.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file (watched for topic changes)")
	fs.Var((*stringList)(&opts.Topics), "topic", "Topic to subscribe to (repeatable)")
	fs.Var((*stringList)(&opts.Properties), "property", "Property IRI to observe (repeatable)")
	fs.BoolVar(&opts.Events, "events", false, "Subscribe to /events")
	fs.BoolVar(&opts.Actions, "actions", false, "Subscribe to /actions")
	fs.BoolVar(&opts.Requests, "requests", false, "Subscribe to /requests")
	fs.BoolVar(&opts.Resolutions, "resolutions", false, "Subscribe to /resolutions")
	fs.StringVar(&opts.SendTopic, "send-topic", "", "Send one message to this topic once connected")
	fs.StringVar(&opts.SendBody, "send-body", "", "Body of the message sent with -send-topic")
	fs.BoolVar(&opts.Interactive, "interactive", false, "Enable interactive command mode")
	fs.StringVar(&opts.ProtocolLog, "protocol-log", "", "Write a CBOR protocol log to this file")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.DurationVar(&opts.Backoff, "backoff", 0, "Reconnect interval (default 30s)")
	return fs
}

// parseOptions parses args and merges them over the config file, if any.
// Flags given on the command line win over file values.
func parseOptions(args []string) (Options, error) {
	var flags Options
	fs := newFlagSet(&flags)
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if fs.NArg() > 0 {
		return Options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if flags.ConfigFile == "" {
		return flags, flags.validate()
	}

	opts, err := loadOptionsFile(flags.ConfigFile)
	if err != nil {
		return Options{}, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	opts = mergeFlags(opts, flags, set)
	return opts, opts.validate()
}

func loadOptionsFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read config: %w", err)
	}
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return opts, nil
}

// mergeFlags overlays the flags named in set onto base.
func mergeFlags(base, flags Options, set map[string]bool) Options {
	base.ConfigFile = flags.ConfigFile
	base.Interactive = flags.Interactive
	if base.LogLevel == "" {
		base.LogLevel = flags.LogLevel
	}

	str := map[string]struct{ dst, src *string }{
		"host":         {&base.Host, &flags.Host},
		"url":          {&base.URL, &flags.URL},
		"send-topic":   {&base.SendTopic, &flags.SendTopic},
		"send-body":    {&base.SendBody, &flags.SendBody},
		"protocol-log": {&base.ProtocolLog, &flags.ProtocolLog},
		"metrics-addr": {&base.MetricsAddr, &flags.MetricsAddr},
		"log-level":    {&base.LogLevel, &flags.LogLevel},
	}
	for name, p := range str {
		if set[name] {
			*p.dst = *p.src
		}
	}
	boolean := map[string]struct{ dst, src *bool }{
		"insecure":    {&base.Insecure, &flags.Insecure},
		"discover":    {&base.Discover, &flags.Discover},
		"events":      {&base.Events, &flags.Events},
		"actions":     {&base.Actions, &flags.Actions},
		"requests":    {&base.Requests, &flags.Requests},
		"resolutions": {&base.Resolutions, &flags.Resolutions},
	}
	for name, p := range boolean {
		if set[name] {
			*p.dst = *p.src
		}
	}
	if set["backoff"] {
		base.Backoff = flags.Backoff
	}
	// Repeatable flags add to the file's lists.
	base.Topics = append(base.Topics, flags.Topics...)
	base.Properties = append(base.Properties, flags.Properties...)
	return base
}

func (o Options) validate() error {
	targets := 0
	if o.Host != "" {
		targets++
	}
	if o.URL != "" {
		targets++
	}
	if o.Discover {
		targets++
	}
	switch {
	case targets == 0:
		return errors.New("one of -host, -url or -discover is required")
	case targets > 1:
		return errors.New("-host, -url and -discover are mutually exclusive")
	case o.SendBody != "" && o.SendTopic == "":
		return errors.New("-send-body requires -send-topic")
	case o.Backoff < 0:
		return errors.New("-backoff must not be negative")
	}
	if _, err := parseLevel(o.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// targets returns the subscriptions requested by opts, in a stable order.
func (o Options) targets() []target {
	var out []target
	for _, t := range o.Topics {
		out = append(out, topicTarget(t))
	}
	for _, iri := range o.Properties {
		out = append(out, propertyTarget(iri))
	}
	for _, t := range []struct {
		on    bool
		topic string
	}{
		{o.Events, webthing.TopicEvents},
		{o.Actions, webthing.TopicActions},
		{o.Requests, webthing.TopicRequests},
		{o.Resolutions, webthing.TopicResolutions},
	} {
		if t.on {
			out = append(out, topicTarget(t.topic))
		}
	}
	return out
}
