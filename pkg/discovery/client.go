// ABOUTME: Consumed multicast-discovery primitive interface
// ABOUTME: Defines the Client/Browser seam the engine runs against
package discovery

import (
	"context"
	"time"
)

// StateChange describes what a browser observed for a service name.
type StateChange int

const (
	// StateAdded means the name appeared (or was re-announced).
	StateAdded StateChange = iota

	// StateRemoved means the name sent a goodbye or expired.
	StateRemoved
)

// BrowseHandler receives browser state changes. For a regular browse the
// name is a fully qualified instance name; for an enumeration browse it is
// the advertised service type. Handlers are invoked from the primitive's
// own goroutines and must not block.
type BrowseHandler func(name string, change StateChange)

// Browser is a handle to one active browse operation.
type Browser interface {
	// Cancel stops the browse. Safe to call more than once.
	Cancel()
}

// Client is one open multicast listener. All browsers started from a
// client share its socket state and die with it.
type Client interface {
	// Browse starts continuous browsing of a fully qualified service type.
	Browse(serviceType string, h BrowseHandler) (Browser, error)

	// Resolve looks up connection info for one instance of a type within
	// the timeout. Returns ErrNotFound / ErrResolveFailed flavored errors
	// on timeout or failure.
	Resolve(ctx context.Context, serviceType, instanceName string, timeout time.Duration) (*ServiceRecord, error)

	// Close tears down the client and cancels all of its browsers.
	Close()
}

// OpenFunc opens a multicast client bound to the given local IPv4 address,
// or to all interfaces when the address is empty. Tests inject fakes here.
type OpenFunc func(ifaceAddr string) (Client, error)
