// ABOUTME: Bubbletea model for the service browser TUI
// ABOUTME: Maintains the display-ready type and service tables from discovery events
package ui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lanscout/lanscout-go/internal/netif"
	"github.com/lanscout/lanscout-go/pkg/discovery"
)

// Controls is the slice of the session controller the UI drives.
type Controls interface {
	SwitchInterface(ifaceAddr string)
	SubmitManualQuery(rawType string)
	SubmitPresetQueries(rawTypes []string)
}

// EventMsg wraps a discovery event for the bubbletea loop.
type EventMsg discovery.Event

// dantePresets are the Dante audio-network service types, offered as a
// one-key batch query.
var dantePresets = []string{
	"_dante-safe._udp",
	"_dante-upgr._udp",
	"_netaudio-arc._udp",
	"_netaudio-chan._udp",
	"_netaudio-cmc._udp",
	"_netaudio-dbc._udp",
	"_dante-ddm-d._udp",
	"_dante-ddm-c._tcp",
}

// Panes.
const (
	paneTypes = iota
	paneServices
)

// Model represents the TUI state. The tables it holds are the consumer
// side of the discovery bridge: written only from bridged events, never
// shared with the engine.
type Model struct {
	controls Controls

	// Interface selection
	ifaces   []netif.Candidate
	ifaceIdx int // 0 = all interfaces, i+1 = ifaces[i]

	// Discovery tables
	types    []string // sorted for display
	typeSet  map[string]struct{}
	services map[string]discovery.ServiceInstance

	// Navigation
	pane       int
	typeCursor int
	svcCursor  int
	filter     string

	// Detail view
	detail *discovery.ServiceInstance

	// Manual query input
	querying bool
	query    string

	// Last error, shown in the footer until dismissed
	errMsg string

	// Dimensions
	width  int
	height int

	quitting bool
}

// NewModel creates the initial model.
func NewModel(controls Controls, ifaces []netif.Candidate) Model {
	return Model{
		controls: controls,
		ifaces:   ifaces,
		typeSet:  make(map[string]struct{}),
		services: make(map[string]discovery.ServiceInstance),
	}
}

// SelectInterface preselects the interface matching addr or name.
// Unknown values leave the all-interfaces default in place.
func (m Model) SelectInterface(addr string) Model {
	for i, c := range m.ifaces {
		if c.Addr == addr || c.Name == addr {
			m.ifaceIdx = i + 1
		}
	}
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case EventMsg:
		m.applyEvent(discovery.Event(msg))
	}

	return m, nil
}

// handleKey handles keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.querying {
		return m.handleQueryKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		switch {
		case m.detail != nil:
			m.detail = nil
		case m.errMsg != "":
			m.errMsg = ""
		case m.filter != "":
			m.filter = ""
		}

	case "tab":
		if m.pane == paneTypes {
			m.pane = paneServices
		} else {
			m.pane = paneTypes
		}

	case "up":
		m.moveCursor(-1)
	case "down":
		m.moveCursor(1)

	case "enter":
		if m.detail != nil {
			m.detail = nil
			break
		}
		if m.pane == paneTypes {
			m.toggleFilter()
		} else {
			m.openDetail()
		}

	case "d":
		if m.pane == paneServices {
			m.openDetail()
		}

	case "/":
		m.querying = true
		m.query = ""

	case "p":
		return m, m.submitPresets()

	case "r":
		m.clearTables()
		return m, m.restartSession()

	case "i":
		m.ifaceIdx = (m.ifaceIdx + 1) % (len(m.ifaces) + 1)
		m.clearTables()
		return m, m.restartSession()
	}

	return m, nil
}

// handleQueryKey handles keys while the manual query line is active.
func (m Model) handleQueryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.querying = false
		m.query = ""
	case "enter":
		query := strings.TrimSpace(m.query)
		m.querying = false
		m.query = ""
		if query != "" {
			return m, m.submitQuery(query)
		}
	case "backspace":
		if len(m.query) > 0 {
			m.query = m.query[:len(m.query)-1]
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.query += string(msg.Runes)
		} else if msg.Type == tea.KeySpace {
			m.query += " "
		}
	}

	return m, nil
}

// applyEvent folds one bridged discovery event into the tables.
func (m *Model) applyEvent(ev discovery.Event) {
	switch ev.Kind {
	case discovery.EventTypeFound:
		if _, seen := m.typeSet[ev.Type]; seen {
			return
		}
		m.typeSet[ev.Type] = struct{}{}
		m.types = append(m.types, ev.Type)
		sort.Strings(m.types)

	case discovery.EventInstanceAdded:
		if ev.Instance != nil {
			m.services[ev.Name] = *ev.Instance
		}

	case discovery.EventInstanceRemoved:
		// A remove with no prior add is a valid no-op.
		delete(m.services, ev.Name)

	case discovery.EventError:
		m.errMsg = ev.Err
	}
}

// clearTables resets all accumulated discovery state.
func (m *Model) clearTables() {
	m.types = nil
	m.typeSet = make(map[string]struct{})
	m.services = make(map[string]discovery.ServiceInstance)
	m.filter = ""
	m.typeCursor = 0
	m.svcCursor = 0
	m.detail = nil
}

// selectedInterface returns the bound address for the current selection,
// empty for all interfaces.
func (m Model) selectedInterface() string {
	if m.ifaceIdx == 0 {
		return ""
	}
	return m.ifaces[m.ifaceIdx-1].Addr
}

// interfaceLabel names the current selection for display.
func (m Model) interfaceLabel() string {
	if m.ifaceIdx == 0 {
		return "All interfaces"
	}
	return m.ifaces[m.ifaceIdx-1].Label()
}

// restartSession restarts discovery on the selected interface. Runs as a
// command so the bounded stop wait never blocks the UI loop.
func (m Model) restartSession() tea.Cmd {
	controls := m.controls
	addr := m.selectedInterface()
	if controls == nil {
		return nil
	}
	return func() tea.Msg {
		controls.SwitchInterface(addr)
		return nil
	}
}

// submitQuery forwards a manual query to the controller.
func (m Model) submitQuery(query string) tea.Cmd {
	controls := m.controls
	if controls == nil {
		return nil
	}
	return func() tea.Msg {
		controls.SubmitManualQuery(query)
		return nil
	}
}

// submitPresets submits the Dante preset batch.
func (m Model) submitPresets() tea.Cmd {
	controls := m.controls
	if controls == nil {
		return nil
	}
	return func() tea.Msg {
		controls.SubmitPresetQueries(dantePresets)
		return nil
	}
}

// moveCursor moves the active pane's cursor.
func (m *Model) moveCursor(delta int) {
	if m.pane == paneTypes {
		m.typeCursor = clamp(m.typeCursor+delta, 0, len(m.types)-1)
	} else {
		m.svcCursor = clamp(m.svcCursor+delta, 0, len(m.visibleServices())-1)
	}
}

// toggleFilter filters the service list by the highlighted type, or clears
// the filter when it is already selected.
func (m *Model) toggleFilter() {
	if m.typeCursor >= len(m.types) {
		return
	}
	selected := m.types[m.typeCursor]
	if m.filter == selected {
		m.filter = ""
	} else {
		m.filter = selected
	}
	m.svcCursor = 0
}

// openDetail opens the detail view for the highlighted service.
func (m *Model) openDetail() {
	names := m.visibleServices()
	if m.svcCursor >= len(names) {
		return
	}
	svc := m.services[names[m.svcCursor]]
	m.detail = &svc
}

// visibleServices returns the sorted instance names matching the filter.
func (m Model) visibleServices() []string {
	names := make([]string, 0, len(m.services))
	for name, svc := range m.services {
		if m.filter != "" && svc.Type != m.filter {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func fmtLoadBalance(svc discovery.ServiceInstance) string {
	return fmt.Sprintf("Priority: %d weight: %d", svc.Priority, svc.Weight)
}
