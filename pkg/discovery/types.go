// ABOUTME: Core data types for DNS-SD discovery
// ABOUTME: Service type normalization, name derivation, and the ServiceInstance codec
package discovery

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// EnumerationType is the reserved DNS-SD meta-type used to enumerate
// advertised service types (RFC 6763 section 9). It is browsed by the
// engine itself and must never be browsed or resolved as a regular type.
const EnumerationType = "_services._dns-sd._udp.local."

// Domain is the mDNS domain.
const Domain = "local"

// Timing defaults.
const (
	// ResolveTimeout bounds a single instance resolution round trip.
	ResolveTimeout = 3 * time.Second

	// StopTimeout bounds the wait for a session to shut down cleanly.
	StopTimeout = 5 * time.Second
)

// Discovery errors.
var (
	ErrEmptyQuery    = errors.New("empty service query")
	ErrReservedType  = errors.New("cannot browse the service enumeration type")
	ErrNotRunning    = errors.New("no discovery session is running")
	ErrNotFound      = errors.New("service instance not found")
	ErrResolveFailed = errors.New("service resolution failed")
)

// NormalizeServiceType turns free-form query text into a fully qualified
// DNS-SD service type ending in ".local.".
//
// Rules: trim whitespace; reject empty input; a type already ending in
// ".local." is unchanged; ".local" gets a trailing dot; a trailing dot
// (but not ".local.") gets "local." appended; anything else gets ".local.".
// The function is idempotent.
func NormalizeServiceType(service string) (string, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return "", ErrEmptyQuery
	}
	switch {
	case strings.HasSuffix(service, ".local."):
		return service, nil
	case strings.HasSuffix(service, ".local"):
		return service + ".", nil
	case strings.HasSuffix(service, "."):
		return service + "local.", nil
	default:
		return service + ".local.", nil
	}
}

// DeriveServiceType extracts a browsable service type from a name reported
// by the enumeration browser. Subtyped announcements carry extra leading
// labels (e.g. "a._sub._http._tcp.local."), so only the last four
// dot-separated labels are kept.
func DeriveServiceType(name string) string {
	labels := strings.Split(name, ".")
	if len(labels) > 4 {
		labels = labels[len(labels)-4:]
	}
	return strings.Join(labels, ".")
}

// ServiceRecord is the raw result of resolving a service instance, as
// reported by the multicast primitive. Priority and Weight are optional
// SRV load-balancing hints; backends that do not surface them leave them
// zero.
type ServiceRecord struct {
	Instance string // fully qualified instance name
	Type     string // fully qualified service type
	Host     string // server host name
	Port     int
	Priority uint16
	Weight   uint16
	Addrs    []string // plain addresses, without port
	Text     []string // raw TXT entries ("key=value" or bare "key")
}

// ServiceInstance is the display-ready value object handed to consumers.
// Instances cross the event bridge by value; consumers own their copy.
type ServiceInstance struct {
	Name       string
	Type       string
	Addresses  []string // "address:port" strings, primitive order preserved
	Port       int
	Priority   uint16
	Weight     uint16
	Server     string
	Properties map[string]*string // TXT properties, nil value = key-only entry
}

// newServiceInstance codes a raw record into a ServiceInstance.
func newServiceInstance(rec *ServiceRecord) ServiceInstance {
	addrs := make([]string, 0, len(rec.Addrs))
	for _, a := range rec.Addrs {
		addrs = append(addrs, fmt.Sprintf("%s:%d", a, rec.Port))
	}

	return ServiceInstance{
		Name:       rec.Instance,
		Type:       rec.Type,
		Addresses:  addrs,
		Port:       rec.Port,
		Priority:   rec.Priority,
		Weight:     rec.Weight,
		Server:     rec.Host,
		Properties: decodeTXT(rec.Text),
	}
}

// decodeTXT parses raw TXT entries into a property map. A bare key maps to
// a nil value. Values that are not valid UTF-8 degrade to their hex
// representation instead of failing the record.
func decodeTXT(text []string) map[string]*string {
	props := make(map[string]*string, len(text))
	for _, entry := range text {
		if entry == "" {
			continue
		}
		key, value, found := strings.Cut(entry, "=")
		key = strings.ToValidUTF8(key, "�")
		if !found {
			props[key] = nil
			continue
		}
		if !utf8.ValidString(value) {
			value = hex.EncodeToString([]byte(value))
		}
		props[key] = &value
	}
	return props
}
