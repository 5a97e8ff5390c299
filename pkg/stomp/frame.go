package stomp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Client and server commands.
const (
	CmdConnect     = "CONNECT"
	CmdStomp       = "STOMP"
	CmdConnected   = "CONNECTED"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
)

var knownCommands = map[string]bool{
	CmdConnect:     true,
	CmdStomp:       true,
	CmdConnected:   true,
	CmdSubscribe:   true,
	CmdUnsubscribe: true,
	CmdSend:        true,
	CmdMessage:     true,
	CmdReceipt:     true,
	CmdError:       true,
	CmdDisconnect:  true,
	"ACK":          true,
	"NACK":         true,
	"BEGIN":        true,
	"COMMIT":       true,
	"ABORT":        true,
}

// Well-known header names.
const (
	HdrAcceptVersion = "accept-version"
	HdrHeartBeat     = "heart-beat"
	HdrHost          = "host"
	HdrVersion       = "version"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrAck           = "ack"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrContentLength = "content-length"
	HdrContentType   = "content-type"
	HdrMessage       = "message"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
)

// Header is a single header line.
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered header list. Repeated keys are allowed on the wire;
// only the first occurrence is significant.
type Headers []Header

// Get returns the value of the first header named key.
func (h Headers) Get(key string) string {
	v, _ := h.Lookup(key)
	return v
}

// Lookup returns the value of the first header named key and whether it exists.
func (h Headers) Lookup(key string) (string, bool) {
	for _, hdr := range h {
		if hdr.Key == key {
			return hdr.Value, true
		}
	}
	return "", false
}

// Add appends a header, keeping any existing header with the same key.
func (h *Headers) Add(key, value string) {
	*h = append(*h, Header{Key: key, Value: value})
}

// Set replaces the first header named key, or appends it.
func (h *Headers) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = value
			return
		}
	}
	h.Add(key, value)
}

// Frame is one STOMP frame.
type Frame struct {
	Command string
	Headers Headers
	Body    string
}

// IsHeartbeat reports whether the frame is an empty keep-alive message:
// no command and no body.
func (f Frame) IsHeartbeat() bool {
	return f.Command == "" && f.Body == ""
}

// Destination returns the destination header.
func (f Frame) Destination() string {
	return f.Headers.Get(HdrDestination)
}

// Bytes serializes the frame to its wire form.
func (f Frame) Bytes() []byte {
	if f.IsHeartbeat() {
		return []byte("\n")
	}

	escape := needsEscaping(f.Command)
	var b bytes.Buffer
	b.Grow(len(f.Command) + len(f.Body) + 64)
	b.WriteString(f.Command)
	b.WriteByte('\n')
	for _, h := range f.Headers {
		if escape {
			b.WriteString(escapeHeader(h.Key))
			b.WriteByte(':')
			b.WriteString(escapeHeader(h.Value))
		} else {
			b.WriteString(h.Key)
			b.WriteByte(':')
			b.WriteString(h.Value)
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// String returns a single-line description for debugging.
func (f Frame) String() string {
	if f.IsHeartbeat() {
		return "HEARTBEAT"
	}
	var parts []string
	for _, h := range f.Headers {
		parts = append(parts, h.Key+"="+h.Value)
	}
	return fmt.Sprintf("%s{%s} body=%d", f.Command, strings.Join(parts, ","), len(f.Body))
}

// HeartbeatFrame returns a heartbeat frame.
func HeartbeatFrame() Frame {
	return Frame{}
}

// Heartbeat is the heart-beat header pair. Send is how often this side
// promises to send heartbeats, Receive how often it wants to receive them.
// Zero means never.
type Heartbeat struct {
	Send    time.Duration
	Receive time.Duration
}

// String renders the header value in milliseconds, e.g. "0,10000".
func (h Heartbeat) String() string {
	return strconv.FormatInt(h.Send.Milliseconds(), 10) + "," + strconv.FormatInt(h.Receive.Milliseconds(), 10)
}

// ParseHeartbeat parses a heart-beat header value.
func ParseHeartbeat(s string) (Heartbeat, error) {
	sx, rx, ok := strings.Cut(s, ",")
	if !ok {
		return Heartbeat{}, fmt.Errorf("%w: heart-beat %q", ErrInvalidHeader, s)
	}
	send, err := strconv.ParseUint(strings.TrimSpace(sx), 10, 32)
	if err != nil {
		return Heartbeat{}, fmt.Errorf("%w: heart-beat %q", ErrInvalidHeader, s)
	}
	recv, err := strconv.ParseUint(strings.TrimSpace(rx), 10, 32)
	if err != nil {
		return Heartbeat{}, fmt.Errorf("%w: heart-beat %q", ErrInvalidHeader, s)
	}
	return Heartbeat{
		Send:    time.Duration(send) * time.Millisecond,
		Receive: time.Duration(recv) * time.Millisecond,
	}, nil
}

func needsEscaping(command string) bool {
	return command != CmdConnect && command != CmdConnected && command != CmdStomp
}

var headerEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
	":", `\c`,
)

func escapeHeader(s string) string {
	if !strings.ContainsAny(s, "\\\n\r:") {
		return s
	}
	return headerEscaper.Replace(s)
}

func unescapeHeader(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("%w: dangling escape in %q", ErrInvalidHeader, s)
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'c':
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("%w: undefined escape \\%c in %q", ErrInvalidHeader, s[i], s)
		}
	}
	return b.String(), nil
}
