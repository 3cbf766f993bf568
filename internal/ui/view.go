// ABOUTME: View rendering for the service browser TUI
// ABOUTME: Two-pane type/service listing plus a detail overlay
package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	faintStyle = lipgloss.NewStyle().Faint(true)
)

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Stopping discovery...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("LANScout mDNS Service Browser"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Interface: "))
	b.WriteString(valueStyle.Render(m.interfaceLabel()))
	b.WriteString("\n\n")

	if m.detail != nil {
		b.WriteString(m.renderDetail())
	} else {
		b.WriteString(m.renderLists())
	}

	if m.querying {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Query: "))
		b.WriteString(m.query)
		b.WriteString("▌")
		b.WriteString("\n")
	}

	if m.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.errMsg))
		b.WriteString(faintStyle.Render("  (esc to dismiss)"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(faintStyle.Render("tab:Pane  ↑/↓:Select  enter:Filter/Detail  /:Query  p:Dante  r:Rescan  i:Interface  q:Quit"))
	b.WriteString("\n")

	return b.String()
}

// renderLists renders the two-pane type and service listing.
func (m Model) renderLists() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("Service Types (%d)", len(m.types))))
	if m.filter != "" {
		b.WriteString(faintStyle.Render("  filter: " + m.filter))
	}
	b.WriteString("\n")

	if len(m.types) == 0 {
		b.WriteString(faintStyle.Render("  (listening...)"))
		b.WriteString("\n")
	}
	for i, serviceType := range m.types {
		b.WriteString(m.renderRow(serviceType, i == m.typeCursor && m.pane == paneTypes, serviceType == m.filter))
	}

	names := m.visibleServices()
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("Services (%d)", len(names))))
	b.WriteString("\n")

	if len(names) == 0 {
		b.WriteString(faintStyle.Render("  (none)"))
		b.WriteString("\n")
	}
	for i, name := range names {
		b.WriteString(m.renderRow(name, i == m.svcCursor && m.pane == paneServices, false))
	}

	return b.String()
}

// renderRow renders one list row with cursor and filter markers.
func (m Model) renderRow(text string, selected, filtered bool) string {
	marker := "  "
	if selected {
		marker = "> "
	}
	if filtered {
		text += " *"
	}
	if selected {
		return cursorStyle.Render(marker+text) + "\n"
	}
	return valueStyle.Render(marker+text) + "\n"
}

// renderDetail renders the full record of the selected service.
func (m Model) renderDetail() string {
	svc := *m.detail

	var b strings.Builder
	b.WriteString(headerStyle.Render(svc.Name))
	b.WriteString("\n\n")

	rows := []struct{ label, value string }{
		{"Type", svc.Type},
		{"Server", svc.Server},
		{"IP address", strings.Join(svc.Addresses, "\n             ")},
		{"Loadbalance", fmtLoadBalance(svc)},
	}
	for _, row := range rows {
		b.WriteString(headerStyle.Render(fmt.Sprintf("%-12s ", row.label+":")))
		b.WriteString(valueStyle.Render(row.value))
		b.WriteString("\n")
	}

	if len(svc.Properties) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Properties"))
		b.WriteString("\n")

		keys := make([]string, 0, len(svc.Properties))
		for k := range svc.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			v := svc.Properties[k]
			if k == "" && v == nil {
				continue
			}
			value := "(none)"
			if v != nil {
				value = *v
			}
			b.WriteString(valueStyle.Render(fmt.Sprintf("  %s: %s", k, value)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(faintStyle.Render("esc:Back"))
	b.WriteString("\n")

	return b.String()
}
