// ABOUTME: Entry point for the LANScout service browser
// ABOUTME: Parses CLI flags, starts discovery, and runs the TUI or log stream
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lanscout/lanscout-go/internal/netif"
	"github.com/lanscout/lanscout-go/internal/ui"
	"github.com/lanscout/lanscout-go/internal/version"
	"github.com/lanscout/lanscout-go/pkg/discovery"
)

var (
	ifaceFlag   = flag.String("interface", "", "Bind discovery to one interface (name or IPv4 address)")
	logFile     = flag.String("log-file", "lanscout.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, stream discovery events as logs instead")
	streamLogs  = flag.Bool("stream-logs", false, "Alias for -no-tui")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	// Determine if we should use TUI or streaming logs
	useTUI := !(*noTUI || *streamLogs)

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		multiWriter := io.MultiWriter(os.Stdout, f)
		log.SetOutput(multiWriter)
	}

	ifaces, err := netif.Candidates()
	if err != nil {
		log.Printf("Interface enumeration failed: %v", err)
	}

	ifaceAddr := resolveInterface(ifaces, *ifaceFlag)
	if *ifaceFlag != "" && ifaceAddr == "" {
		log.Printf("Interface %q not found, using all interfaces", *ifaceFlag)
	}

	controller := discovery.NewController(discovery.ControllerConfig{})
	defer controller.Shutdown()

	controller.Start(ifaceAddr)

	if useTUI {
		model := ui.NewModel(controller, ifaces).SelectInterface(*ifaceFlag)
		if err := ui.Run(model, controller.Events()); err != nil {
			log.Fatalf("TUI error: %v", err)
		}
		log.Printf("Browser stopped")
		return
	}

	log.Printf("Starting %s %s", version.Product, version.Version)
	log.Printf("TUI disabled - streaming discovery events")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev, ok := <-controller.Events():
			if !ok {
				log.Printf("Event stream closed")
				return
			}
			logEvent(ev)
		case <-sigChan:
			log.Printf("Shutdown signal received")
			return
		}
	}
}

// resolveInterface maps a -interface flag value to a bind address.
func resolveInterface(ifaces []netif.Candidate, want string) string {
	if want == "" {
		return ""
	}
	for _, c := range ifaces {
		if c.Addr == want || c.Name == want {
			return c.Addr
		}
	}
	return ""
}

// logEvent writes one discovery event in streaming-logs mode.
func logEvent(ev discovery.Event) {
	switch ev.Kind {
	case discovery.EventTypeFound:
		log.Printf("Type found: %s", ev.Type)
	case discovery.EventInstanceAdded:
		addrs := ""
		if ev.Instance != nil {
			addrs = fmt.Sprintf(" at %v", ev.Instance.Addresses)
		}
		log.Printf("Service added: %s%s", ev.Name, addrs)
	case discovery.EventInstanceRemoved:
		log.Printf("Service removed: %s", ev.Name)
	case discovery.EventError:
		log.Printf("Discovery error: %s", ev.Err)
	}
}
