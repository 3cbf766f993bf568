// ABOUTME: Local network interface enumeration
// ABOUTME: Lists candidate IPv4 addresses for binding discovery sessions
package netif

import "net"

// Candidate is one selectable local interface address.
type Candidate struct {
	Name string // interface name, e.g. "en0"
	Addr string // IPv4 address, e.g. "192.168.1.10"
}

// Label formats a candidate for display.
func (c Candidate) Label() string {
	return c.Name + " (" + c.Addr + ")"
}

// Candidates returns the local IPv4 addresses a discovery session can bind
// to. Down and loopback interfaces are skipped.
func Candidates() ([]Candidate, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					candidates = append(candidates, Candidate{
						Name: iface.Name,
						Addr: ipnet.IP.String(),
					})
				}
			}
		}
	}

	return candidates, nil
}
