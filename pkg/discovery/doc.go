// Package discovery finds Webthing servers on the local network.
//
// Servers are located through DNS-SD over mDNS using the Web of Things
// service type _wot._tcp in the local. domain. Each resolved instance is
// reported once as a Service; addresses seen on further interfaces are
// merged into it.
//
// # TXT Records
//
//   - td: path of the Thing Description (optional)
//   - type: "Thing" or "Directory" (optional)
//   - scheme: "http", "https", "ws" or "wss" (default: http)
//
// A Service converts to the fqdn expected by webthing.New via FQDN, with
// Secure selecting wss:// over ws://.
package discovery
