package webthing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01T12:00:00Z", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-05-01T12:00:00", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-05-01T12:00:00.250", time.Date(2024, 5, 1, 12, 0, 0, 250_000_000, time.UTC)},
		{"2024-05-01T14:00:00+02:00", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-05-01 12:00:00", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.in, got)
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestObservationUnmarshal(t *testing.T) {
	var o Observation
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"2024-05-01T12:00:00","value":21.5}`), &o))
	assert.Equal(t, time.UTC, o.Timestamp.Location())
	assert.Equal(t, 12, o.Timestamp.Hour())

	var v float64
	require.NoError(t, o.DecodeValue(&v))
	assert.Equal(t, 21.5, v)
}

func TestObservationUnmarshalErrors(t *testing.T) {
	var o Observation
	assert.Error(t, json.Unmarshal([]byte(`{"value":1}`), &o))
	assert.Error(t, json.Unmarshal([]byte(`{"timestamp":"nope","value":1}`), &o))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &o))
}

func TestObservationMarshal(t *testing.T) {
	o := Observation{
		Timestamp: time.Date(2024, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
		Value:     json.RawMessage(`{"on":true}`),
	}
	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"2024-05-01T12:00:00Z","value":{"on":true}}`, string(data))

	data, err = json.Marshal(Observation{Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"2024-05-01T00:00:00Z","value":null}`, string(data))
}
