package discovery

import (
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/enbility/zeroconf/v3"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of Web of Things servers.
	ServiceType = "_wot._tcp"

	// Domain is the mDNS domain.
	Domain = "local."
)

// TXT record keys.
const (
	TXTKeyTD     = "td"
	TXTKeyType   = "type"
	TXTKeyScheme = "scheme"
)

// Service is a discovered Webthing server.
type Service struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Host is the advertised host name without the trailing dot.
	Host string

	Port      uint16
	Addresses []string

	// Path is the Thing Description path from the td TXT record.
	Path string

	// Type is "Thing" or "Directory" when advertised.
	Type string

	// Secure is true when the advertised scheme is https or wss.
	Secure bool
}

// FQDN returns host:port for webthing.New. The host name is preferred;
// without one the first address is used.
func (s *Service) FQDN() string {
	host := s.Host
	if host == "" && len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// URL returns the server's base URL.
func (s *Service) URL() string {
	scheme := "http"
	if s.Secure {
		scheme = "https"
	}
	return scheme + "://" + s.FQDN()
}

// TXTRecordMap is a parsed TXT record set.
type TXTRecordMap map[string]string

// StringsToTXTRecords parses "key=value" strings. Keys are case-insensitive
// and the first occurrence wins.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		key, value, _ := strings.Cut(s, "=")
		key = strings.ToLower(key)
		if key == "" {
			continue
		}
		if _, dup := txt[key]; !dup {
			txt[key] = value
		}
	}
	return txt
}

// secureScheme reports whether a scheme TXT value implies TLS.
func secureScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "https", "wss", "coaps":
		return true
	}
	return false
}

// ServiceEntry is a resolved DNS-SD instance, independent of the mDNS
// implementation.
type ServiceEntry struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
	Text      []string
}

func fromZeroconf(entry *zeroconf.ServiceEntry) ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return ServiceEntry{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      entry.Port,
		Addresses: addrs,
		Text:      entry.Text,
	}
}

// ToService converts the entry. Entries without a valid port yield nil.
func (e ServiceEntry) ToService() *Service {
	if e.Port <= 0 || e.Port > 65535 {
		return nil
	}
	txt := StringsToTXTRecords(e.Text)

	return &Service{
		Instance:  e.Instance,
		Host:      strings.TrimSuffix(e.Host, "."),
		Port:      uint16(e.Port),
		Addresses: slices.Clone(e.Addresses),
		Path:      txt[TXTKeyTD],
		Type:      txt[TXTKeyType],
		Secure:    secureScheme(txt[TXTKeyScheme]),
	}
}

// mergeAddresses adds addresses not yet in existing.
func mergeAddresses(existing, add []string) []string {
	for _, addr := range add {
		if !slices.Contains(existing, addr) {
			existing = append(existing, addr)
		}
	}
	return existing
}

// removeAddresses drops gone from addresses.
func removeAddresses(addresses, gone []string) []string {
	return slices.DeleteFunc(slices.Clone(addresses), func(a string) bool {
		return slices.Contains(gone, a)
	})
}

// tracker aggregates entries per instance name.
type tracker struct {
	services map[string]*Service
}

func newTracker() *tracker {
	return &tracker{services: make(map[string]*Service)}
}

// add records e and returns a copy of the service if the instance is new.
func (t *tracker) add(e ServiceEntry) *Service {
	svc := e.ToService()
	if svc == nil {
		return nil
	}
	if existing, found := t.services[svc.Instance]; found {
		existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
		return nil
	}
	t.services[svc.Instance] = svc
	emitted := *svc
	emitted.Addresses = slices.Clone(svc.Addresses)
	return &emitted
}

// remove drops e's addresses; an instance without addresses is forgotten.
func (t *tracker) remove(e ServiceEntry) {
	existing, found := t.services[e.Instance]
	if !found {
		return
	}
	existing.Addresses = removeAddresses(existing.Addresses, e.Addresses)
	if len(existing.Addresses) == 0 {
		delete(t.services, e.Instance)
	}
}
