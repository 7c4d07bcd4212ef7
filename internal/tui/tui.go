// Package tui implements the client agent's status dashboard: a
// bubbletea.Model that polls a running client's admin /api/status
// endpoint once a second and renders it with lipgloss, following the
// teacher lineage's internal/ui Model shape (width/height/state fields,
// Init/Update/View). Invoked by `agentx-client status --watch`; the
// plain `agentx-client status` path uses Fetch/PrintOnce instead of
// entering the bubbletea program.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// pollInterval is how often the dashboard refetches /api/status.
const pollInterval = time.Second

// Status is the JSON shape served by the client's GET /api/status.
type Status struct {
	ClientID          string         `json:"client_id"`
	ConnectedToServer bool           `json:"connected_to_server"`
	LastFrameAt       *time.Time     `json:"last_frame_at,omitempty"`
	UptimeSeconds     float64        `json:"uptime_seconds"`
	SessionCounts     map[string]int `json:"session_counts"`
	TotalSessions     int            `json:"total_sessions"`
}

// Fetch performs a single GET against baseURL+"/api/status".
func Fetch(baseURL string) (*Status, error) {
	resp, err := http.Get(baseURL + "/api/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tui: status endpoint returned %d", resp.StatusCode)
	}
	var s Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

type statusMsg struct {
	status *Status
	err    error
}

type tickMsg time.Time

// Model is the live dashboard. Construct with NewModel and hand to
// tea.NewProgram.
type Model struct {
	baseURL string
	width   int
	height  int

	status *Status
	err    error

	theme Theme
}

// NewModel builds a Model polling baseURL.
func NewModel(baseURL string) Model {
	return Model{baseURL: baseURL, theme: DefaultTheme()}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetch() tea.Cmd {
	return func() tea.Msg {
		status, err := Fetch(m.baseURL)
		return statusMsg{status: status, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case statusMsg:
		m.status, m.err = msg.status, msg.err
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetch(), tick())
	}

	return m, nil
}

func (m Model) View() string {
	if m.err != nil {
		return m.theme.Error.Render(fmt.Sprintf("agentx: %s\n", m.err)) + m.theme.Help.Render("\nq to quit")
	}
	if m.status == nil {
		return m.theme.Help.Render("connecting...")
	}

	var body string
	body += m.theme.Title.Render("agentx client status") + "\n\n"
	body += fmt.Sprintf("client id       %s\n", m.status.ClientID)
	body += fmt.Sprintf("server           %s\n", connLabel(m.theme, m.status.ConnectedToServer))
	body += fmt.Sprintf("uptime           %s\n", time.Duration(m.status.UptimeSeconds*float64(time.Second)).Round(time.Second))
	if m.status.LastFrameAt != nil {
		body += fmt.Sprintf("last frame       %s ago\n", time.Since(*m.status.LastFrameAt).Round(time.Second))
	}
	body += "\n"
	body += m.theme.Subtitle.Render(fmt.Sprintf("sessions (%d)", m.status.TotalSessions)) + "\n"
	for _, k := range []string{"running", "completed", "failed", "cancelled"} {
		body += fmt.Sprintf("  %-10s %d\n", k, m.status.SessionCounts[k])
	}

	box := m.theme.Box.Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, box, m.theme.Help.Render("q to quit"))
}

func connLabel(t Theme, connected bool) string {
	if connected {
		return t.Good.Render("connected")
	}
	return t.Bad.Render("disconnected")
}
