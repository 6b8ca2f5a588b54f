// internal/tui/dashboard.go
//
// Live dashboard over the runtime: the current export table, the tick
// heartbeat, and the most recent export change. Bubbletea follows The Elm
// Architecture, so the runtime's channels are bridged into messages with
// commands that block on one receive each.

package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gantryhost/gantry/internal/bus"
	"github.com/gantryhost/gantry/internal/loop"
	"github.com/gantryhost/gantry/internal/runtime"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Faint(true).Padding(0, 1)
	tableStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
)

type notificationMsg struct {
	notification runtime.Notification
	ok           bool
}

type tickMsg struct {
	event bus.Event
	ok    bool
}

// Dashboard is the bubbletea model.
type Dashboard struct {
	rt      *runtime.Runtime
	changes runtime.Subscription
	ticks   bus.Subscription

	table      table.Model
	tickCount  uint64
	lastChange string
}

// NewDashboard subscribes to the runtime and the tick topic and seeds the
// export table.
func NewDashboard(rt *runtime.Runtime, b *bus.Bus) *Dashboard {
	columns := []table.Column{
		{Title: "Contract", Width: 18},
		{Title: "Provider", Width: 20},
		{Title: "Origin", Width: 34},
		{Title: "Policy", Width: 12},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	d := &Dashboard{
		rt:      rt,
		changes: rt.Subscribe(),
		ticks:   b.Subscribe(bus.TopicTick),
		table:   t,
	}
	d.reloadRows()
	return d
}

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.waitChange(), d.waitTick())
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			d.changes.Close()
			d.ticks.Close()
			return d, tea.Quit
		}
	case notificationMsg:
		if !msg.ok {
			return d, nil
		}
		d.lastChange = fmt.Sprintf("%s %s", msg.notification.Kind, msg.notification.Export.Key())
		d.reloadRows()
		return d, d.waitChange()
	case tickMsg:
		if !msg.ok {
			return d, nil
		}
		if tick, ok := msg.event.Payload.(loop.Tick); ok {
			d.tickCount = tick.Seq
		} else {
			d.tickCount++
		}
		return d, d.waitTick()
	}
	var cmd tea.Cmd
	d.table, cmd = d.table.Update(msg)
	return d, cmd
}

// View implements tea.Model.
func (d *Dashboard) View() string {
	status := fmt.Sprintf("ticks %d", d.tickCount)
	if d.lastChange != "" {
		status += "  |  last change: " + d.lastChange
	}
	return titleStyle.Render("gantry exports") + "\n" +
		tableStyle.Render(d.table.View()) + "\n" +
		statusStyle.Render(status) + "\n" +
		statusStyle.Render("q to quit")
}

func (d *Dashboard) reloadRows() {
	exports := d.rt.Exports()
	rows := make([]table.Row, 0, len(exports))
	for _, export := range exports {
		rows = append(rows, table.Row{
			string(export.Contract),
			export.Provider,
			export.Origin,
			string(export.Policy),
		})
	}
	d.table.SetRows(rows)
}

func (d *Dashboard) waitChange() tea.Cmd {
	return func() tea.Msg {
		notification, ok := <-d.changes.Events
		return notificationMsg{notification: notification, ok: ok}
	}
}

func (d *Dashboard) waitTick() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-d.ticks.Events
		return tickMsg{event: event, ok: ok}
	}
}
