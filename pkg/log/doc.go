// Package log provides structured protocol logging for the webthing STOMP client.
//
// Protocol capture is separate from operational logging (slog). Every layer of
// the client reports what it does as an Event to an injected Logger: the
// websocket transport reports raw text frames, the STOMP layer reports decoded
// frames, and the client layer reports state changes, dispatch failures and
// callback panics.
//
// # Basic Usage
//
//	// Development: protocol events on the console.
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Capture to a file for webthing-log.
//	fl, _ := log.NewFileLogger("/var/log/webthing/client.wlog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # File Format
//
// Log files are a concatenated stream of CBOR-encoded events with integer
// keys. Reader iterates them, optionally through a Filter.
package log
