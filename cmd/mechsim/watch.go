package main

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/robotcore/mechanism/mathx"
)

// WatchCommand polls a running server's /telemetry and shows it as a table
type WatchCommand struct {
	URL      string        `long:"url" default:"http://localhost:8000" description:"Server to watch"`
	Interval time.Duration `long:"interval" default:"100ms" description:"Poll interval"`
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	groupStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type telemetryMsg map[string]interface{}
type fetchErrMsg struct{ err error }
type tickMsg time.Time

type watchModel struct {
	client   *http.Client
	url      string
	interval time.Duration
	values   map[string]interface{}
	err      error
	width    int
	height   int
	quitting bool
}

func fetch(client *http.Client, url string) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.Get(url)
		if err != nil {
			return fetchErrMsg{err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fetchErrMsg{fmt.Errorf("%s: %s", url, resp.Status)}
		}
		values := map[string]interface{}{}
		if err := json.NewDecoder(resp.Body).Decode(&values); err != nil {
			return fetchErrMsg{err}
		}
		return telemetryMsg(values)
	}
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Init() tea.Cmd {
	return fetch(m.client, m.url)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case telemetryMsg:
		m.values = msg
		m.err = nil
		return m, m.tick()

	case fetchErrMsg:
		m.err = msg.err
		return m, m.tick()

	case tickMsg:
		return m, fetch(m.client, m.url)
	}
	return m, nil
}

// formatValue rounds floats for display
func formatValue(v interface{}) string {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
		r := mathx.Round(t, 0.001)
		if r == 0 {
			r = 0 // no "-0.000"
		}
		return fmt.Sprintf("%.3f", r)
	default:
		return fmt.Sprint(t)
	}
}

// renderTable groups keys by their first path element
func renderTable(values map[string]interface{}) string {
	keys := make([]string, 0, len(values))
	width := 0
	for k := range values {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)
	var sb strings.Builder
	group := ""
	for _, k := range keys {
		head, rest, found := strings.Cut(k, "/")
		if !found {
			head, rest = "", k
		}
		if head != group {
			group = head
			sb.WriteString(groupStyle.Render(group))
			sb.WriteString("\n")
		}
		sb.WriteString("  ")
		sb.WriteString(keyStyle.Render(fmt.Sprintf("%-*s", width, rest)))
		sb.WriteString("  ")
		sb.WriteString(formatValue(values[k]))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("mechsim telemetry"))
	sb.WriteString(statusStyle.Render("  " + m.url))
	sb.WriteString("\n\n")
	if m.err != nil {
		sb.WriteString(errStyle.Render(m.err.Error()))
		sb.WriteString("\n\n")
	}
	sb.WriteString(renderTable(m.values))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("Press 'q' to quit"))
	sb.WriteString("\n")
	return sb.String()
}

// Execute implements flags.Commander
func (c *WatchCommand) Execute(args []string) error {
	m := watchModel{
		client:   &http.Client{Timeout: time.Second},
		url:      strings.TrimRight(c.URL, "/") + "/telemetry",
		interval: c.Interval,
	}
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
