package subscription

import (
	"fmt"
	"time"

	"github.com/webthing-client/webthing-go/pkg/log"
	"github.com/webthing-client/webthing-go/pkg/metrics"
)

// Dispatcher delivers message bodies to a registry's callbacks.
type Dispatcher struct {
	registry *Registry
	logger   log.Logger
	metrics  *metrics.Metrics

	// connID is stamped on reported events.
	connID string
}

// NewDispatcher creates a Dispatcher over registry. logger and m may be nil.
func NewDispatcher(registry *Registry, logger log.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   log.OrNoop(logger),
		metrics:  m,
	}
}

// SetConnectionID sets the connection id used on reported events.
// It must be called from the goroutine that calls Dispatch.
func (d *Dispatcher) SetConnectionID(id string) {
	d.connID = id
}

// Dispatch invokes every callback registered for topic, in registration
// order, and returns how many ran to completion. Panics are recovered per
// callback. Unknown topics invoke nothing.
func (d *Dispatcher) Dispatch(topic, body string) int {
	callbacks := d.registry.CallbacksFor(topic)
	completed := 0
	for i, cb := range callbacks {
		if d.invoke(topic, i, cb, body) {
			completed++
		}
	}
	return completed
}

func (d *Dispatcher) invoke(topic string, index int, cb Callback, body string) (ok bool) {
	d.metrics.CallbackInvoked()
	defer func() {
		if r := recover(); r != nil {
			ok = false
			d.metrics.CallbackPanicked(topic)
			d.logger.Log(log.Event{
				Timestamp:    time.Now(),
				ConnectionID: d.connID,
				Direction:    log.DirectionIn,
				Layer:        log.LayerClient,
				Category:     log.CategoryError,
				Topic:        topic,
				Error: &log.ErrorEventData{
					Layer:   log.LayerClient,
					Message: fmt.Sprintf("callback %d panicked: %v", index, r),
					Context: "dispatch",
				},
			})
		}
	}()
	cb(body)
	return true
}
