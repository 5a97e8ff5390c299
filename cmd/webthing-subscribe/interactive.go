package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/webthing-client/webthing-go/pkg/webthing"
)

// shell is the interactive command interface.
type shell struct {
	client *webthing.Client
	subs   *subscriptionSet
	rl     *readline.Instance
}

func newShell(client *webthing.Client, subs *subscriptionSet) (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "webthing> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &shell{client: client, subs: subs, rl: rl}, nil
}

// Stdout returns a writer that does not garble the prompt.
func (s *shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done.
func (s *shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			cancel()
			return
		}
		if s.exec(strings.TrimSpace(line)) {
			cancel()
			return
		}
	}
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(line string) bool {
	out := s.rl.Stdout()
	if line == "" {
		return false
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "help", "?":
		s.printHelp()

	case "sub", "subscribe":
		if rest == "" {
			fmt.Fprintln(out, "Usage: sub <topic>")
			return false
		}
		s.add(topicTarget(rest))

	case "prop", "property":
		if rest == "" {
			fmt.Fprintln(out, "Usage: prop <iri>")
			return false
		}
		s.add(propertyTarget(rest))

	case "unsub", "unsubscribe":
		id, err := strconv.Atoi(rest)
		if err != nil {
			fmt.Fprintln(out, "Usage: unsub <n> (see 'list')")
			return false
		}
		if err := s.subs.Remove(id); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "Removed subscription %d\n", id)

	case "send":
		topic, body, _ := strings.Cut(rest, " ")
		if topic == "" {
			fmt.Fprintln(out, "Usage: send <topic> <body>")
			return false
		}
		if !s.client.IsConnected() {
			fmt.Fprintln(out, "Not connected, message dropped")
			return false
		}
		s.client.Send(topic, body)

	case "list", "ls":
		entries := s.subs.List()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No subscriptions")
		}
		for _, e := range entries {
			fmt.Fprintf(out, "  %3d  %-40s (%s)\n", e.ID, e.Target, e.Source)
		}

	case "status":
		fmt.Fprintf(out, "URL:    %s\n", s.client.WebsocketURL())
		fmt.Fprintf(out, "State:  %s\n", s.client.State())
		fmt.Fprintf(out, "Topics: %d on the wire, %d subscriptions\n", len(s.client.Topics()), len(s.subs.List()))

	case "quit", "exit", "q":
		fmt.Fprintln(out, "Exiting...")
		return true

	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *shell) add(t target) {
	id, err := s.subs.Add(t, sourceShell)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Subscribed %d: %s\n", id, t)
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
Commands:
  sub <topic>          - Subscribe to a topic
  prop <iri>           - Observe a property
  unsub <n>            - Remove subscription n
  send <topic> <body>  - Send a message (dropped while disconnected)
  list                 - List subscriptions
  status               - Show connection status
  help                 - Show this help
  quit                 - Exit`)
}
