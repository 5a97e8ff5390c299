package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// fileEncMode writes timestamps as RFC 3339 text so logs stay readable with
// generic CBOR tools, and sorts map keys so identical events encode
// identically.
var fileEncMode = mustEncMode(cbor.EncOptions{
	Sort:          cbor.SortCoreDeterministic,
	IndefLength:   cbor.IndefLengthForbidden,
	NilContainers: cbor.NilContainerAsNull,
	Time:          cbor.TimeRFC3339Nano,
})

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor encode options: %v", err))
	}
	return em
}

// FileLogger writes protocol events to a file as a stream of CBOR items.
// It is safe for concurrent use from multiple goroutines.
type FileLogger struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
	errors  int
}

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open protocol log: %w", err)
	}
	return &FileLogger{
		file:    f,
		encoder: fileEncMode.NewEncoder(f),
	}, nil
}

// Log writes an event to the log file. Calls after Close are ignored.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	// Encoding failures are counted, never surfaced to the connection loop.
	if err := l.encoder.Encode(event); err != nil {
		l.errors++
	}
}

// EncodeErrors reports how many events failed to encode.
func (l *FileLogger) EncodeErrors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors
}

// Close closes the log file. It is safe to call Close multiple times.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
