package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	delay := 30 * time.Second
	logger.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerStomp,
		Category:     CategoryMessage,
		Message: &MessageEvent{
			Command:        "MESSAGE",
			Destination:    "/events",
			SubscriptionID: "sub-0",
			BodySize:       12,
		},
	})
	logger.Log(Event{
		Timestamp: time.Now(),
		Layer:     LayerClient,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			OldState:   "CONNECTED",
			NewState:   "DISCONNECTED",
			RetryDelay: &delay,
		},
	})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	first, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if first.Message == nil || first.Message.Destination != "/events" {
		t.Fatalf("first.Message = %+v, want destination /events", first.Message)
	}
	if first.Message.SubscriptionID != "sub-0" {
		t.Errorf("SubscriptionID = %q, want sub-0", first.Message.SubscriptionID)
	}

	second, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if second.StateChange == nil || second.StateChange.RetryDelay == nil {
		t.Fatalf("second.StateChange = %+v, want retry delay", second.StateChange)
	}
	if *second.StateChange.RetryDelay != delay {
		t.Errorf("RetryDelay = %v, want %v", *second.StateChange.RetryDelay, delay)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wlog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), ConnectionID: "c"})
		logger.Close()
	}

	if n := countEvents(t, path, Filter{}); n != 2 {
		t.Errorf("got %d events, want 2", n)
	}
}

func TestFileLoggerCloseIdempotent(t *testing.T) {
	logger, err := NewFileLogger(filepath.Join(t.TempDir(), "test.wlog"))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	// Must not panic.
	logger.Log(Event{})
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				logger.Log(Event{Timestamp: time.Now(), Layer: LayerTransport})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	if n := countEvents(t, path, Filter{}); n != 200 {
		t.Errorf("got %d events, want 200", n)
	}
	if logger.EncodeErrors() != 0 {
		t.Errorf("EncodeErrors = %d, want 0", logger.EncodeErrors())
	}
}
