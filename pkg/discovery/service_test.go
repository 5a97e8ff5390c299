package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"td=/.well-known/wot", "Type=Thing", "type=Directory", "flag", "=x", "scheme=https"})
	assert.Equal(t, TXTRecordMap{
		"td":     "/.well-known/wot",
		"type":   "Thing",
		"flag":   "",
		"scheme": "https",
	}, txt)
}

func TestServiceEntryToService(t *testing.T) {
	e := ServiceEntry{
		Instance:  "Kitchen",
		Host:      "thing.local.",
		Port:      8443,
		Addresses: []string{"192.168.1.10", "fe80::1"},
		Text:      []string{"td=/td", "type=Thing", "scheme=wss"},
	}

	svc := e.ToService()
	require.NotNil(t, svc)
	assert.Equal(t, "Kitchen", svc.Instance)
	assert.Equal(t, "thing.local", svc.Host)
	assert.Equal(t, uint16(8443), svc.Port)
	assert.Equal(t, []string{"192.168.1.10", "fe80::1"}, svc.Addresses)
	assert.Equal(t, "/td", svc.Path)
	assert.Equal(t, "Thing", svc.Type)
	assert.True(t, svc.Secure)
	assert.Equal(t, "thing.local:8443", svc.FQDN())
	assert.Equal(t, "https://thing.local:8443", svc.URL())
}

func TestServiceEntryDefaults(t *testing.T) {
	svc := ServiceEntry{Instance: "Plain", Host: "plain.local.", Port: 80}.ToService()
	require.NotNil(t, svc)
	assert.False(t, svc.Secure)
	assert.Equal(t, "http://plain.local:80", svc.URL())

	assert.Nil(t, ServiceEntry{Instance: "NoPort"}.ToService())
	assert.Nil(t, ServiceEntry{Instance: "BadPort", Port: 70000}.ToService())
}

func TestFQDNFallsBackToAddress(t *testing.T) {
	svc := &Service{Port: 8080, Addresses: []string{"fe80::1"}}
	assert.Equal(t, "[fe80::1]:8080", svc.FQDN())
}

func TestMergeAndRemoveAddresses(t *testing.T) {
	addrs := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "10.0.0.2"})
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, addrs)

	addrs = removeAddresses(addrs, []string{"10.0.0.1"})
	assert.Equal(t, []string{"10.0.0.2"}, addrs)
}

func TestTracker(t *testing.T) {
	entry := func(instance string, port int, addrs ...string) ServiceEntry {
		return ServiceEntry{Instance: instance, Host: "h.local.", Port: port, Addresses: addrs}
	}
	tr := newTracker()

	first := tr.add(entry("A", 8080, "10.0.0.1"))
	require.NotNil(t, first)
	assert.Nil(t, tr.add(entry("A", 8080, "10.0.0.2")), "known instance is merged, not emitted")
	assert.Nil(t, tr.add(entry("Broken", 0, "10.0.0.3")))

	assert.Equal(t, []string{"10.0.0.1"}, first.Addresses, "emitted copy is not mutated")
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, tr.services["A"].Addresses)

	tr.remove(entry("A", 8080, "10.0.0.1"))
	assert.Equal(t, []string{"10.0.0.2"}, tr.services["A"].Addresses)

	tr.remove(entry("A", 8080, "10.0.0.2"))
	assert.NotContains(t, tr.services, "A")
	tr.remove(entry("Unknown", 1, "10.0.0.9"))

	again := tr.add(entry("A", 8080, "10.0.0.4"))
	require.NotNil(t, again, "instance is reported again after it vanished")
	assert.Equal(t, []string{"10.0.0.4"}, again.Addresses)
}

func TestFindCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Find(ctx, DefaultBrowserConfig())
	assert.ErrorIs(t, err, ErrNotFound)
}
