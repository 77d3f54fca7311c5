// Package watch is a terminal monitor for the service: it consumes the SSE
// event stream and renders live job state.
package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vinnividivicci/openingbim-cicd/internal/events"
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	connected     bool
	uptimeSeconds int64
	jobsTracked   int
	jobRows       map[string]*JobRow
	eventLog      []events.Event

	spinner   spinner.Model
	theme     Theme
	hubEvents chan events.Event
	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		jobRows:   make(map[string]*JobRow),
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		spinner:   sp,
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		e := events.Event(msg)

		// Newest first.
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > 30 {
			m.eventLog = m.eventLog[:30]
		}

		applyJobEvent(m.jobRows, e)
		m.connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.connected = true
		m.uptimeSeconds = msg.UptimeSeconds
		m.jobsTracked = msg.JobsTracked
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.connected = false
		m.lastError = "SSE disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	status := m.theme.StatusFailed.Render("● offline")
	if m.connected {
		status = m.theme.StatusOK.Render("● connected")
	}
	header := fmt.Sprintf("%s openingbim %s  uptime %s  jobs %d",
		m.spinner.View(), status, formatUptime(m.uptimeSeconds), m.jobsTracked)

	jobsView := renderJobs(m.jobRows, m.theme, m.width)
	eventsView := renderEventLog(m.eventLog, m.theme)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(" ⚠ " + m.lastError)
	}

	help := m.theme.Muted.Render(" [q] Quit")

	parts := []string{header, "", jobsView, "", eventsView}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func renderEventLog(log []events.Event, theme Theme) string {
	out := theme.SectionTitle.Render("Events") + "\n"
	if len(log) == 0 {
		return out + theme.Muted.Render("  waiting for events")
	}
	n := len(log)
	if n > 8 {
		n = 8
	}
	for _, e := range log[:n] {
		out += fmt.Sprintf("  %s %-14s %s\n",
			e.At.Format("15:04:05"), e.Type, theme.Muted.Render(string(e.Data)))
	}
	return out
}

func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
