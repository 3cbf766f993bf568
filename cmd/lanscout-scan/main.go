// ABOUTME: One-shot network scanner for scripting and diagnostics
// ABOUTME: Browses for a fixed duration and prints everything found
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/lanscout/lanscout-go/internal/netif"
	"github.com/lanscout/lanscout-go/pkg/discovery"
)

var (
	duration    = flag.Duration("duration", 5*time.Second, "How long to browse before printing results")
	ifaceFlag   = flag.String("interface", "", "Bind discovery to one interface (name or IPv4 address)")
	serviceType = flag.String("type", "", "Browse one service type instead of enumerating all")
	verbose     = flag.Bool("verbose", false, "Log discovery events as they arrive")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	ifaceAddr := ""
	if *ifaceFlag != "" {
		ifaces, err := netif.Candidates()
		if err != nil {
			log.Fatalf("Interface enumeration failed: %v", err)
		}
		for _, c := range ifaces {
			if c.Addr == *ifaceFlag || c.Name == *ifaceFlag {
				ifaceAddr = c.Addr
			}
		}
		if ifaceAddr == "" {
			log.Fatalf("Interface %q not found", *ifaceFlag)
		}
	}

	controller := discovery.NewController(discovery.ControllerConfig{})
	defer controller.Shutdown()

	controller.Start(ifaceAddr)
	if *serviceType != "" {
		controller.SubmitManualQuery(*serviceType)
	}

	types := make(map[string]struct{})
	services := make(map[string]discovery.ServiceInstance)

	deadline := time.After(*duration)
collect:
	for {
		select {
		case ev, ok := <-controller.Events():
			if !ok {
				break collect
			}
			if *verbose {
				log.Printf("%s type=%s name=%s", ev.Kind, ev.Type, ev.Name)
			}
			switch ev.Kind {
			case discovery.EventTypeFound:
				types[ev.Type] = struct{}{}
			case discovery.EventInstanceAdded:
				if ev.Instance != nil {
					services[ev.Name] = *ev.Instance
				}
			case discovery.EventInstanceRemoved:
				delete(services, ev.Name)
			case discovery.EventError:
				log.Printf("Discovery error: %s", ev.Err)
			}
		case <-deadline:
			break collect
		}
	}

	printResults(types, services)
}

func printResults(types map[string]struct{}, services map[string]discovery.ServiceInstance) {
	typeNames := make([]string, 0, len(types))
	for t := range types {
		typeNames = append(typeNames, t)
	}
	sort.Strings(typeNames)

	fmt.Printf("Service types (%d):\n", len(typeNames))
	for _, t := range typeNames {
		fmt.Printf("  %s\n", t)
	}

	svcNames := make([]string, 0, len(services))
	for name := range services {
		svcNames = append(svcNames, name)
	}
	sort.Strings(svcNames)

	fmt.Printf("\nServices (%d):\n", len(svcNames))
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tSERVER\tADDRESSES")
	for _, name := range svcNames {
		svc := services[name]
		addrs := ""
		for i, a := range svc.Addresses {
			if i > 0 {
				addrs += ", "
			}
			addrs += a
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", svc.Name, svc.Server, addrs)
	}
	w.Flush()
}
