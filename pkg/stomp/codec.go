package stomp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxFrameSize bounds payloads accepted by Decode.
const DefaultMaxFrameSize = 1 << 20

// DefaultAcceptVersions are offered in CONNECT when none are configured.
var DefaultAcceptVersions = []string{"1.0", "1.1", "1.2"}

// ConnectOptions configures the CONNECT frame.
type ConnectOptions struct {
	// AcceptVersions lists protocol versions; DefaultAcceptVersions if empty.
	AcceptVersions []string
	// Heartbeat is the heart-beat negotiation sent to the server.
	Heartbeat Heartbeat
	// Host is the virtual host header. Omitted when empty.
	Host string
}

// Connect builds a CONNECT frame.
func Connect(opts ConnectOptions) Frame {
	versions := opts.AcceptVersions
	if len(versions) == 0 {
		versions = DefaultAcceptVersions
	}
	f := Frame{Command: CmdConnect}
	f.Headers.Add(HdrAcceptVersion, strings.Join(versions, ","))
	f.Headers.Add(HdrHeartBeat, opts.Heartbeat.String())
	if opts.Host != "" {
		f.Headers.Add(HdrHost, opts.Host)
	}
	return f
}

// EncodeConnect returns the wire form of a CONNECT frame.
func EncodeConnect(opts ConnectOptions) []byte {
	return Connect(opts).Bytes()
}

// EncodeSubscribe returns a SUBSCRIBE frame for topic with automatic
// acknowledgement.
func EncodeSubscribe(topic, id string) []byte {
	return Frame{
		Command: CmdSubscribe,
		Headers: Headers{
			{Key: HdrDestination, Value: topic},
			{Key: HdrID, Value: id},
			{Key: HdrAck, Value: "auto"},
		},
	}.Bytes()
}

// EncodeUnsubscribe returns an UNSUBSCRIBE frame for a wire subscription id.
func EncodeUnsubscribe(id string) []byte {
	return Frame{
		Command: CmdUnsubscribe,
		Headers: Headers{{Key: HdrID, Value: id}},
	}.Bytes()
}

// EncodeSend returns a SEND frame carrying body to topic.
func EncodeSend(topic, body string) []byte {
	f := Frame{Command: CmdSend, Body: body}
	f.Headers.Add(HdrDestination, topic)
	if body != "" {
		f.Headers.Add(HdrContentType, "text/plain;charset=UTF-8")
		f.Headers.Add(HdrContentLength, strconv.Itoa(len(body)))
	}
	return f.Bytes()
}

// EncodeDisconnect returns a DISCONNECT frame.
func EncodeDisconnect() []byte {
	return Frame{Command: CmdDisconnect}.Bytes()
}

// Decode parses one websocket text payload using DefaultMaxFrameSize.
func Decode(data []byte) (Frame, error) {
	return DecodeLimit(data, DefaultMaxFrameSize)
}

// DecodeLimit parses one websocket text payload. Empty or whitespace-only
// payloads are heartbeats. Payloads larger than limit are rejected when
// limit is positive.
func DecodeLimit(data []byte, limit int) (Frame, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return HeartbeatFrame(), nil
	}
	if limit > 0 && len(data) > limit {
		return Frame{}, &ProtocolError{
			Reason: fmt.Sprintf("%d bytes exceeds limit %d", len(data), limit),
			Err:    ErrFrameTooLarge,
		}
	}

	// EOLs may precede the command (heartbeats coalesced with a frame).
	rest := bytes.TrimLeft(data, "\r\n")

	line, rest, ok := cutLine(rest)
	if !ok {
		return Frame{}, malformed("", "missing command terminator")
	}
	command := string(line)
	if !knownCommands[command] {
		return Frame{}, malformed("", "unknown command %q", command)
	}

	f := Frame{Command: command}
	escaped := needsEscaping(command)
	for {
		line, rest, ok = cutLine(rest)
		if !ok {
			return Frame{}, malformed(command, "missing header terminator")
		}
		if len(line) == 0 {
			break
		}
		key, value, found := bytes.Cut(line, []byte{':'})
		if !found {
			return Frame{}, malformed(command, "header line without colon: %q", line)
		}
		k, v := string(key), string(value)
		if escaped {
			var err error
			if k, err = unescapeHeader(k); err != nil {
				return Frame{}, &ProtocolError{Reason: err.Error(), Command: command, Err: ErrInvalidHeader}
			}
			if v, err = unescapeHeader(v); err != nil {
				return Frame{}, &ProtocolError{Reason: err.Error(), Command: command, Err: ErrInvalidHeader}
			}
		}
		f.Headers.Add(k, v)
	}

	var body, trailer []byte
	if cl, ok := f.Headers.Lookup(HdrContentLength); ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return Frame{}, &ProtocolError{Reason: fmt.Sprintf("content-length %q", cl), Command: command, Err: ErrInvalidHeader}
		}
		if n >= len(rest) {
			return Frame{}, malformed(command, "content-length %d exceeds body of %d bytes", n, len(rest))
		}
		if rest[n] != 0 {
			return Frame{}, malformed(command, "missing NUL after %d body bytes", n)
		}
		body, trailer = rest[:n], rest[n+1:]
	} else {
		i := bytes.IndexByte(rest, 0)
		if i < 0 {
			return Frame{}, malformed(command, "missing NUL terminator")
		}
		body, trailer = rest[:i], rest[i+1:]
	}

	if len(bytes.TrimSpace(trailer)) != 0 {
		return Frame{}, malformed(command, "%d bytes after NUL terminator", len(trailer))
	}

	f.Body = string(body)
	return f, nil
}

// cutLine splits off one line terminated by LF or CRLF.
func cutLine(b []byte) (line, rest []byte, ok bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return nil, b, false
	}
	line = b[:i]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, b[i+1:], true
}
