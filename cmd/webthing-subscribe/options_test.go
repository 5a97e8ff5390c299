package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webthing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseOptionsFlags(t *testing.T) {
	opts, err := parseOptions([]string{
		"-host", "webthing.example.com",
		"-topic", "/a", "-topic", "/b",
		"-property", "urn:p",
		"-events",
		"-backoff", "5s",
	})
	require.NoError(t, err)
	assert.Equal(t, "webthing.example.com", opts.Host)
	assert.Equal(t, []string{"/a", "/b"}, opts.Topics)
	assert.Equal(t, 5*time.Second, opts.Backoff)
	assert.Equal(t, []target{
		topicTarget("/a"),
		topicTarget("/b"),
		propertyTarget("urn:p"),
		topicTarget("/events"),
	}, opts.targets())
}

func TestParseOptionsValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no server", []string{"-topic", "/a"}},
		{"host and url", []string{"-host", "a", "-url", "http://b"}},
		{"body without topic", []string{"-host", "a", "-send-body", "x"}},
		{"bad level", []string{"-host", "a", "-log-level", "loud"}},
		{"negative backoff", []string{"-host", "a", "-backoff", "-1s"}},
		{"stray argument", []string{"-host", "a", "extra"}},
		{"empty topic", []string{"-host", "a", "-topic", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOptions(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParseOptionsConfigFile(t *testing.T) {
	path := writeConfig(t, `
host: file.example.com
insecure: true
topics: [/events, /custom]
properties: [urn:prop]
actions: true
backoff: 10s
log_level: debug
metrics_addr: ":9100"
`)

	opts, err := parseOptions([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, "file.example.com", opts.Host)
	assert.True(t, opts.Insecure)
	assert.True(t, opts.Actions)
	assert.Equal(t, 10*time.Second, opts.Backoff)
	assert.Equal(t, "debug", opts.LogLevel)
	assert.Equal(t, ":9100", opts.MetricsAddr)
	assert.Equal(t, []string{"urn:prop"}, opts.Properties)
}

func TestParseOptionsFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
host: file.example.com
insecure: true
topics: [/events]
log_level: debug
`)

	opts, err := parseOptions([]string{"-config", path, "-host", "flag.example.com", "-insecure=false", "-topic", "/extra"})
	require.NoError(t, err)
	assert.Equal(t, "flag.example.com", opts.Host)
	assert.False(t, opts.Insecure)
	assert.Equal(t, "debug", opts.LogLevel, "unset flag keeps the file value")
	assert.Equal(t, []string{"/events", "/extra"}, opts.Topics)
}

func TestParseOptionsConfigErrors(t *testing.T) {
	_, err := parseOptions([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	path := writeConfig(t, "topics: [unclosed\n")
	_, err = parseOptions([]string{"-config", path})
	assert.Error(t, err)
}
