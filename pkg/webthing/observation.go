package webthing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Observation is a timestamped property value.
type Observation struct {
	Timestamp time.Time
	Value     json.RawMessage
}

type observationJSON struct {
	Timestamp string          `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

var errMissingTimestamp = errors.New("missing timestamp")

// Layouts accepted for timestamps without a zone; they are read as UTC.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO 8601 timestamp. Timestamps without a zone
// designator are taken to be UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// FormatTimestamp formats t as ISO 8601 in UTC with a Z suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// UnmarshalJSON decodes {"timestamp": "...", "value": ...}.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var raw observationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Timestamp == "" {
		return errMissingTimestamp
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return err
	}
	o.Timestamp = ts
	o.Value = raw.Value
	return nil
}

// MarshalJSON encodes the observation with a UTC timestamp.
func (o Observation) MarshalJSON() ([]byte, error) {
	value := o.Value
	if value == nil {
		value = json.RawMessage("null")
	}
	return json.Marshal(observationJSON{Timestamp: FormatTimestamp(o.Timestamp), Value: value})
}

// DecodeValue unmarshals the observed value into v.
func (o Observation) DecodeValue(v any) error {
	if len(o.Value) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(o.Value, v)
}
