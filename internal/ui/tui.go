// ABOUTME: Bubbletea program wiring for the service browser TUI
// ABOUTME: Runs the alt-screen program and forwards discovery events into it
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lanscout/lanscout-go/pkg/discovery"
)

// Run runs the TUI program until the user quits, forwarding discovery
// events into it for the duration.
func Run(model Model, events <-chan discovery.Event) error {
	p := tea.NewProgram(model, tea.WithAltScreen())

	done := make(chan struct{})
	defer close(done)
	go Forward(p, events, done)

	_, err := p.Run()
	return err
}

// Forward pumps discovery events into the program as messages. It returns
// when the event channel closes or done is signalled.
func Forward(p *tea.Program, events <-chan discovery.Event, done <-chan struct{}) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Send(EventMsg(ev))
		case <-done:
			return
		}
	}
}
