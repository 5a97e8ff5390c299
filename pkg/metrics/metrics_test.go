package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SetConnectionState(2)
	m.ConnectAttempt()
	m.Reconnect()
	m.FrameReceived("MESSAGE")
	m.FrameSent("SEND")
	m.FrameDropped("decode")
	m.SendDropped()
	m.CallbackInvoked()
	m.CallbackPanicked("/events")
	m.SetTopics(3)
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.SetConnectionState(2)
	m.Reconnect()
	m.Reconnect()
	m.FrameReceived("MESSAGE")
	m.FrameSent("SUBSCRIBE")
	m.FrameSent("SUBSCRIBE")
	m.FrameDropped("decode")
	m.SendDropped()
	m.CallbackPanicked("/events")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectionState))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesReceived.WithLabelValues("MESSAGE")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesSent.WithLabelValues("SUBSCRIBE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesDropped.WithLabelValues("decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbackPanics.WithLabelValues("/events")))

	n, err := testutil.GatherAndCount(reg, "webthing_reconnects_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewTwiceOnSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	var are prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &are)
}

func TestNewWithoutRegistry(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.ConnectAttempt()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectAttempts))
}
