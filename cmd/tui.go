// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/tankstat/internal/bridge"
	"github.com/Thermoquad/tankstat/internal/capability"
	"github.com/Thermoquad/tankstat/internal/config"
	"github.com/Thermoquad/tankstat/internal/link"
	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var tuiLogFile string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Live dashboard of the tank level monitor",
	Long: `Show capabilities, observed readings, link statistics and recent events.

Keys:
  w        write a setting (key=value, enter to send, esc to cancel)
  r        request a full DP report
  ↑/↓      scroll the event log
  q        quit

The dashboard publishes to the configured stores like the run command, but does
not sync the configuration file on start.

Log output is discarded unless --log-file is given.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiCmd.Flags().StringVar(&tuiLogFile, "log-file", "", "Append log output to this file")
}

// dashboardLogger returns a logger that never writes to the terminal: it
// appends to path, or discards everything when path is empty.
func dashboardLogger(cfg *config.Config, path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("log file: %w", err)
	}
	return newLogger(f, cfg.Log), func() { f.Close() }, nil
}

// Event log entry
type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// reading is the last value seen for a capability or observation
type reading struct {
	value any
	at    time.Time
}

// Messages
type tickMsg time.Time
type outcomeMsg bridge.Outcome
type decodeErrMsg struct{ err error }
type linkClosedMsg struct{ err error }

// ErrBadSettingInput is returned for write input that is not key=value
var ErrBadSettingInput = errors.New("expected key=value")

// parseSettingInput parses the dashboard write prompt
func parseSettingInput(s string) (string, string, error) {
	key, value, ok := strings.Cut(strings.TrimSpace(s), "=")
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if !ok || key == "" || value == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadSettingInput, s)
	}
	return key, value, nil
}

// TUI model
type dashboard struct {
	connInfo string
	device   *bridge.Device
	link     *link.Link

	capabilities map[string]reading
	observed     map[bridge.Route]reading
	stats        tuyadp.StatsSnapshot

	events    []eventEntry
	maxEvents int
	log       viewport.Model
	input     textinput.Model

	width          int
	height         int
	ready          bool
	quitting       bool
	connectionLost bool
}

func newDashboard(connInfo string, dev *bridge.Device, l *link.Link) dashboard {
	ti := textinput.New()
	ti.Placeholder = "max_level=90"
	ti.CharLimit = 40
	ti.Width = 30

	return dashboard{
		connInfo:     connInfo,
		device:       dev,
		link:         l,
		capabilities: make(map[string]reading),
		observed:     make(map[bridge.Route]reading),
		maxEvents:    200,
		input:        ti,
		width:        80,
		height:       24,
	}
}

func (m dashboard) Init() tea.Cmd {
	return tea.Batch(
		dashboardTick(),
		tea.EnterAltScreen,
	)
}

func dashboardTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.input.Focused() {
			return m.handleInputKey(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "w":
			m.input.Reset()
			return m, m.input.Focus()
		case "r":
			m.query()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLog()

	case tickMsg:
		if m.link != nil {
			m.stats = m.link.Statistics().Snapshot()
		}
		return m, dashboardTick()

	case outcomeMsg:
		m.applyOutcome(bridge.Outcome(msg))

	case decodeErrMsg:
		m.addEvent(fmt.Sprintf("DECODE ERROR: %v", msg.err), true)

	case linkClosedMsg:
		m.connectionLost = true
		if msg.err != nil {
			m.addEvent(fmt.Sprintf("Connection lost: %v", msg.err), true)
		} else {
			m.addEvent("Connection closed", true)
		}
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m dashboard) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.input.Blur()
		return m, nil
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyEnter:
		m.submitInput()
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *dashboard) submitInput() {
	key, value, err := parseSettingInput(m.input.Value())
	if err != nil {
		m.addEvent(err.Error(), true)
		return
	}
	if m.device == nil {
		return
	}

	results := m.device.SettingsChanged([]string{key}, map[string]any{key: value})
	if len(results) == 0 {
		m.addEvent(fmt.Sprintf("%s: not written (unknown key or empty value)", key), true)
		return
	}
	for _, r := range results {
		if r.Err != nil {
			m.addEvent(fmt.Sprintf("%s: write failed: %v", r.Key, r.Err), true)
		} else {
			m.addEvent(fmt.Sprintf("%s <- %d (dp %d)", r.Key, r.Value, uint8(r.DP)), false)
		}
	}
}

func (m *dashboard) query() {
	if m.link == nil {
		return
	}
	if err := m.link.Query(); err != nil {
		m.addEvent(fmt.Sprintf("query failed: %v", err), true)
		return
	}
	m.addEvent("Requested full DP report", false)
}

// applyOutcome records one dispatched report
func (m *dashboard) applyOutcome(o bridge.Outcome) {
	now := time.Now()
	switch {
	case o.Route == bridge.RouteUnknown:
		m.addEvent(fmt.Sprintf("Ignored %s", o.DP), false)
	case o.Err != nil:
		m.addEvent(fmt.Sprintf("%s: %v", o.Route, o.Err), true)
	case o.Capability != "":
		m.capabilities[o.Capability] = reading{value: o.Value, at: now}
		m.addEvent(fmt.Sprintf("%s = %v", o.Capability, o.Value), false)
	case o.Route.Observational():
		m.observed[o.Route] = reading{value: o.Value, at: now}
		m.addEvent(fmt.Sprintf("%s: %v", o.Route, o.Value), false)
	}
}

func (m *dashboard) addEvent(message string, isError bool) {
	m.events = append(m.events, eventEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}

	if m.ready {
		m.log.SetContent(m.renderEvents())
		m.log.GotoBottom()
	}
}

// Rows above the event log: title, header, capability and stats boxes
const dashboardChrome = 17

func (m *dashboard) resizeLog() {
	height := max(m.height-dashboardChrome, 5)
	width := max(m.width-4, 20)

	if !m.ready {
		m.log = viewport.New(width, height)
		m.ready = true
	} else {
		m.log.Width = width
		m.log.Height = height
	}
	m.log.SetContent(m.renderEvents())
	m.log.GotoBottom()
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func stateStyle(state any) lipgloss.Style {
	switch state {
	case tuyadp.TankLow.String():
		return errorStyle
	case tuyadp.TankFull.String():
		return infoStyle
	}
	return valueStyle
}

func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t).Round(time.Second)
	if d < time.Second {
		return "just now"
	}
	return d.String() + " ago"
}

func (m dashboard) renderEvents() string {
	if len(m.events) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	var b strings.Builder
	for _, e := range m.events {
		timestamp := headerStyle.Render(e.timestamp.Format("15:04:05.000"))
		if e.isError {
			fmt.Fprintf(&b, "%s %s\n", timestamp, errorStyle.Render("✗ "+e.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", timestamp, infoStyle.Render("ℹ "+e.message))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m dashboard) renderCapabilities(now time.Time) string {
	var b strings.Builder
	for _, name := range capability.Names() {
		r, ok := m.capabilities[name]
		value := headerStyle.Render("-")
		if ok {
			style := valueStyle
			if name == capability.TankState {
				style = stateStyle(r.value)
			}
			value = style.Render(fmt.Sprint(r.value)) + " " + headerStyle.Render(formatAge(r.at, now))
		}
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-18s", name+":")), value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m dashboard) renderObserved() string {
	routes := []bridge.Route{bridge.RouteDistanceToTop, bridge.RouteDistanceToBottom, bridge.RouteMinLevel, bridge.RouteMaxLevel}

	var b strings.Builder
	for _, route := range routes {
		value := headerStyle.Render("-")
		if r, ok := m.observed[route]; ok {
			value = valueStyle.Render(fmt.Sprint(r.value))
		}
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-19s", route.String()+":")), value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m dashboard) renderStats() string {
	s := m.stats
	var validPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
	}

	errCount := valueStyle.Render(fmt.Sprintf("%d", s.Errors()))
	if s.Errors() > 0 {
		errCount = errorStyle.Render(fmt.Sprintf("%d", s.Errors()))
	}

	return fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", s.TotalFrames)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		labelStyle.Render("Records:"), valueStyle.Render(fmt.Sprintf("%d", s.Records)),
		labelStyle.Render("Errors:"), errCount,
	)
}

func (m dashboard) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	now := time.Now()
	var s strings.Builder

	s.WriteString(titleStyle.Render("TANKSTAT"))
	s.WriteString("\n")
	header := fmt.Sprintf("%s | w: write  r: query  q: quit", m.connInfo)
	if m.device != nil {
		header = fmt.Sprintf("%s | device %s | w: write  r: query  q: quit", m.connInfo, m.device.ID())
	}
	s.WriteString(headerStyle.Render(header))
	s.WriteString("\n")
	if m.connectionLost {
		s.WriteString(errorStyle.Render("✗ Connection lost"))
	}
	s.WriteString("\n")

	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(labelStyle.Render("Capabilities")+"\n"+m.renderCapabilities(now)),
		" ",
		boxStyle.Render(labelStyle.Render("Readings")+"\n"+m.renderObserved()),
	)
	s.WriteString(panels)
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.renderStats()))
	s.WriteString("\n")

	if m.input.Focused() {
		s.WriteString(labelStyle.Render("Write: ") + m.input.View())
	} else {
		s.WriteString(labelStyle.Render("Recent Events:"))
	}
	s.WriteString("\n")

	if m.ready {
		s.WriteString(boxStyle.Width(m.width - 2).Render(m.log.View()))
	}
	return s.String()
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Log lines would tear the alternate screen. Dropped reports and decode
	// errors are shown as dashboard events instead.
	logger, closeLog, err := dashboardLogger(cfg, tuiLogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, l, connInfo, closeBridge, err := openBridge(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBridge()

	dev := bridge.NewDevice(cfg.Device.ID, l, store, logger)
	p := tea.NewProgram(newDashboard(connInfo, dev, l))

	dev.Dispatcher().OnOutcome(func(o bridge.Outcome) { p.Send(outcomeMsg(o)) })
	l.OnError(func(err error) { p.Send(decodeErrMsg{err: err}) })

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		err := l.Run(gctx)
		p.Send(linkClosedMsg{err: err})
		return err
	})
	g.Go(func() error { return ignoreCanceled(dev.Run(gctx, l.Reports())) })

	if err := l.Query(); err != nil {
		logger.Warn("initial query not sent", "err", err)
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
