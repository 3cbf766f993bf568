// ABOUTME: zeroconf-backed implementation of the multicast primitive
// ABOUTME: Adapts enbility/zeroconf browsing to the Client/Browser interfaces
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// zeroconfClient implements Client on top of enbility/zeroconf. One client
// owns a root context; every browser runs under it and dies on Close.
type zeroconfClient struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   []zeroconf.ClientOption
}

// OpenZeroconf opens a multicast client. An empty address listens on all
// interfaces; otherwise the interface owning that local IPv4 address is
// selected. OpenZeroconf is an OpenFunc.
func OpenZeroconf(ifaceAddr string) (Client, error) {
	var opts []zeroconf.ClientOption
	if ifaceAddr != "" {
		iface, err := interfaceForAddr(ifaceAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to open multicast client: %w", err)
		}
		opts = append(opts, zeroconf.SelectIfaces([]net.Interface{iface}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &zeroconfClient{
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
	}, nil
}

// zeroconfBrowser wraps the cancel function of one browse context.
type zeroconfBrowser struct {
	cancel context.CancelFunc
}

func (b *zeroconfBrowser) Cancel() {
	b.cancel()
}

// Browse starts continuous browsing of a fully qualified type. Entries and
// removals are pumped into the handler until the browser is cancelled or
// the client closes.
func (c *zeroconfClient) Browse(serviceType string, h BrowseHandler) (Browser, error) {
	service, domain := splitType(serviceType)
	meta := serviceType == EnumerationType

	bctx, bcancel := context.WithCancel(c.ctx)
	entries := make(chan *zeroconf.ServiceEntry, 16)
	removed := make(chan *zeroconf.ServiceEntry, 16)

	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				h(browsedName(entry, serviceType, meta), StateAdded)
			case entry, ok := <-removed:
				if !ok {
					return
				}
				h(browsedName(entry, serviceType, meta), StateRemoved)
			case <-bctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(bctx, service, domain, entries, removed, c.opts...)
	}()

	return &zeroconfBrowser{cancel: bcancel}, nil
}

// Resolve browses the type until an entry for the requested instance with
// at least one address shows up, bounded by the timeout.
func (c *zeroconfClient) Resolve(ctx context.Context, serviceType, instanceName string, timeout time.Duration) (*ServiceRecord, error) {
	service, domain := splitType(serviceType)

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	removed := make(chan *zeroconf.ServiceEntry, 16)

	go func() {
		_ = zeroconf.Browse(rctx, service, domain, entries, removed, c.opts...)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, instanceName)
			}
			if browsedName(entry, serviceType, false) != instanceName {
				continue
			}
			addrs := entryAddrs(entry)
			if len(addrs) == 0 {
				// Incomplete announcement, keep waiting for one
				// that carries addresses.
				continue
			}
			return &ServiceRecord{
				Instance: instanceName,
				Type:     serviceType,
				Host:     entry.HostName,
				Port:     entry.Port,
				Addrs:    addrs,
				Text:     append([]string(nil), entry.Text...),
			}, nil
		case <-rctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrResolveFailed, instanceName, rctx.Err())
		}
	}
}

// Close cancels every browser started from this client.
func (c *zeroconfClient) Close() {
	c.cancel()
}

// browsedName builds the name a handler should see. A regular browse
// reports fully qualified instance names; the enumeration browse reports
// the advertised type, which zeroconf surfaces as the entry instance
// ("_http._tcp") and which normalization re-qualifies.
func browsedName(entry *zeroconf.ServiceEntry, serviceType string, meta bool) string {
	if meta {
		name, err := NormalizeServiceType(entry.Instance)
		if err != nil {
			return entry.Instance
		}
		return name
	}
	return entry.Instance + "." + serviceType
}

// splitType breaks "_http._tcp.local." into the service and domain parts
// zeroconf wants as separate arguments.
func splitType(serviceType string) (service, domain string) {
	suffix := "." + Domain + "."
	if s, ok := strings.CutSuffix(serviceType, suffix); ok {
		return s, Domain
	}
	return strings.TrimSuffix(serviceType, "."), Domain
}

// entryAddrs collects IPv4 then IPv6 addresses from an entry.
func entryAddrs(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// interfaceForAddr finds the up, non-loopback interface owning the given
// local IPv4 address.
func interfaceForAddr(addr string) (net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.Interface{}, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.String() == addr {
				return iface, nil
			}
		}
	}

	return net.Interface{}, fmt.Errorf("no interface with address %s", addr)
}
