// Command webthing-log views and analyzes protocol log files.
//
// Log files are written by webthing-subscribe with the -protocol-log flag,
// or by any program that sets webthing.Config.ProtocolLogger to a
// log.FileLogger.
//
// Usage:
//
//	webthing-log <command> [flags] <file.wlog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View only STOMP frames
//	webthing-log view -layer stomp session.wlog
//
//	# View traffic of one topic
//	webthing-log view -topic /properties/ session.wlog
//
//	# Export to CSV
//	webthing-log export -format csv -o session.csv session.wlog
//
//	# Keep only MESSAGE frames of one connection
//	webthing-log filter -conn-id abc12345-... -command MESSAGE -o messages.wlog session.wlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/webthing-client/webthing-go/cmd/webthing-log/commands"
)

const usage = `webthing-log - Webthing Protocol Log Analyzer

Usage:
  webthing-log <command> [flags] <file.wlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "webthing-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(name, synopsis, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "webthing-log %s - %s\n\nUsage:\n  webthing-log %s %s\n\nFlags:\n", name, synopsis, name, args)
		fs.PrintDefaults()
	}
	return fs
}

// logPath returns the single positional argument.
func logPath(fs *flag.FlagSet) (string, error) {
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("log file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string) error {
	fs := newFlagSet("view", "View log file in human-readable format", "[flags] <file.wlog>")
	layer := fs.String("layer", "", "Filter by layer (transport, stomp, client)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error)")
	topic := fs.String("topic", "", "Filter by topic prefix")
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}

	filter := commands.ViewFilter{Topic: *topic}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			return err
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			return err
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			return err
		}
		filter.Category = &c
	}

	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	fs := newFlagSet("export", "Export log file to JSON or CSV format", "[flags] <file.wlog>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output, os.Stdout)
}

func runFilter(args []string) error {
	fs := newFlagSet("filter", "Filter log file and write to new file", "-o <out.wlog> [flags] <file.wlog>")
	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.Topic, "topic", "", "Filter by topic prefix")
	fs.StringVar(&opts.Command, "command", "", "Filter by STOMP command")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, stomp, client)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, control, state, error)")
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}
	return commands.RunFilter(path, opts, os.Stdout)
}

func runStats(args []string) error {
	fs := newFlagSet("stats", "Show statistics about the log file", "<file.wlog>")
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
