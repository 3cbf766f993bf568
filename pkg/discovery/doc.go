// ABOUTME: mDNS/DNS-SD discovery engine package
// ABOUTME: Browses service types, resolves instances, bridges events to consumers

// Package discovery implements continuous mDNS/DNS-SD service discovery.
//
// A session starts with a browser on the DNS-SD enumeration type
// ("_services._dns-sd._udp.local."). Each advertised service type gets a
// dedicated browser; each added instance is resolved into a connection-ready
// ServiceInstance. Results flow through a non-blocking, order-preserving
// Bridge so a slow consumer can never stall the discovery loop.
//
// Most users want the Controller, which owns one session at a time:
//
//	ctrl := discovery.NewController(discovery.ControllerConfig{})
//	ctrl.Start("") // all interfaces
//	for ev := range ctrl.Events() {
//	    switch ev.Kind {
//	    case discovery.EventTypeFound:
//	        fmt.Println("type:", ev.Type)
//	    case discovery.EventInstanceAdded:
//	        fmt.Println("instance:", ev.Name, ev.Instance.Addresses)
//	    }
//	}
//
// The multicast transport is pluggable through OpenFunc; the default
// implementation uses enbility/zeroconf.
package discovery
