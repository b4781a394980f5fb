package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wemokit/wemokit/internal/config"
	"github.com/wemokit/wemokit/internal/control"
	"github.com/wemokit/wemokit/internal/description"
	"github.com/wemokit/wemokit/internal/discovery"
)

const (
	// refreshInterval is how often every device's state is re-queried
	refreshInterval = 10 * time.Second

	// opTimeout bounds each control call issued from the panel
	opTimeout = 5 * time.Second
)

// Messages for async operations
type scanCompleteMsg struct {
	devices []*description.Device
	err     error
}

type stateMsg struct {
	udn   string
	state int
	err   error
}

type refreshTickMsg struct{}

// panelKeyMap defines key bindings for the control panel
type panelKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	On     key.Binding
	Off    key.Binding
	Rescan key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k panelKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Rescan, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k panelKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle},
		{k.On, k.Off, k.Rescan, k.Quit},
	}
}

func newPanelKeyMap() panelKeyMap {
	return panelKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("enter", " ", "t"),
			key.WithHelp("enter/t", "toggle"),
		),
		On: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "on"),
		),
		Off: key.NewBinding(
			key.WithKeys("0"),
			key.WithHelp("0", "off"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Model is the control panel's top-level model. It scans for devices,
// shows each one with its current binary state and lets the user flip
// switches from the keyboard.
type Model struct {
	Scanner  *discovery.Scanner
	Registry *config.Registry // optional, supplies nicknames

	devices []*description.Device
	states  map[string]*int // keyed by UDN, nil while a query is in flight
	cursor  int

	scanning bool
	spinner  spinner.Model
	lastErr  error

	keys panelKeyMap
	help help.Model

	width  int
	height int
}

// NewModel creates a control panel model that starts with a scan.
func NewModel(scanner *discovery.Scanner, registry *config.Registry) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	return Model{
		Scanner:  scanner,
		Registry: registry,
		states:   make(map[string]*int),
		scanning: true,
		spinner:  sp,
		keys:     newPanelKeyMap(),
		help:     help.New(),
	}
}

// Init kicks off the initial scan
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.scanCmd())
}

// Update handles all panel messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if !m.scanning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case scanCompleteMsg:
		m.scanning = false
		m.lastErr = msg.err
		if msg.err == nil {
			m.devices = msg.devices
			m.states = make(map[string]*int)
			if m.cursor >= len(m.devices) {
				m.cursor = 0
			}
			return m, tea.Batch(m.queryAllStates(), refreshTick())
		}
		return m, nil

	case stateMsg:
		if msg.err != nil {
			// Leave the badge pending; the next refresh retries
			m.lastErr = msg.err
			return m, nil
		}
		state := msg.state
		m.states[msg.udn] = &state
		return m, nil

	case refreshTickMsg:
		if m.scanning || len(m.devices) == 0 {
			return m, refreshTick()
		}
		return m, tea.Batch(m.queryAllStates(), refreshTick())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.devices)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Rescan):
		if !m.scanning {
			m.scanning = true
			m.lastErr = nil
			return m, tea.Batch(m.spinner.Tick, m.scanCmd())
		}

	case key.Matches(msg, m.keys.Toggle):
		if device := m.selected(); device != nil {
			m.states[device.UDN] = nil
			return m, toggleCmd(device)
		}

	case key.Matches(msg, m.keys.On):
		if device := m.selected(); device != nil {
			m.states[device.UDN] = nil
			return m, setStateCmd(device, true)
		}

	case key.Matches(msg, m.keys.Off):
		if device := m.selected(); device != nil {
			m.states[device.UDN] = nil
			return m, setStateCmd(device, false)
		}
	}

	return m, nil
}

func (m Model) selected() *description.Device {
	if m.cursor < 0 || m.cursor >= len(m.devices) {
		return nil
	}
	return m.devices[m.cursor]
}

// displayName prefers the configured nickname over the device-reported name
func (m Model) displayName(device *description.Device) string {
	if m.Registry != nil {
		if d := m.Registry.GetDevice(device.UDN); d != nil && d.Nickname != "" {
			return d.Nickname
		}
	}
	if device.FriendlyName != "" {
		return device.FriendlyName
	}
	return device.UDN
}

// View renders the panel
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(RenderHeader())
	b.WriteString("\n")

	if m.scanning {
		b.WriteString(TitleStyle.Render("Scanning for devices..."))
		b.WriteString("\n")
		b.WriteString(m.spinner.View())
		b.WriteString(SubtitleStyle.Render(" searching the local network"))
		b.WriteString("\n")
		b.WriteString(m.help.View(m.keys))
		return b.String()
	}

	b.WriteString(TitleStyle.Render(fmt.Sprintf("Devices (%d)", len(m.devices))))
	b.WriteString("\n")

	if len(m.devices) == 0 {
		b.WriteString(SubtitleStyle.Render("No devices found. Press r to rescan."))
		b.WriteString("\n")
	}

	for i, device := range m.devices {
		badge := renderStateBadge(m.states[device.UDN])
		line := fmt.Sprintf("%s %s", badge, m.displayName(device))
		if i == m.cursor {
			b.WriteString(SelectedItemStyle.Render("→ " + line))
		} else {
			b.WriteString(ItemStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	if m.lastErr != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render("✗ " + m.lastErr.Error()))
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// scanCmd runs a network scan off the update loop
func (m Model) scanCmd() tea.Cmd {
	scanner := m.Scanner
	return func() tea.Msg {
		devices, err := scanner.Scan(context.Background())
		return scanCompleteMsg{devices: devices, err: err}
	}
}

// queryAllStates issues one state query per known device
func (m Model) queryAllStates() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(m.devices))
	for _, device := range m.devices {
		cmds = append(cmds, queryStateCmd(device))
	}
	return tea.Batch(cmds...)
}

func queryStateCmd(device *description.Device) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		state, err := control.NewSwitch(device).State(ctx)
		return stateMsg{udn: device.UDN, state: state, err: err}
	}
}

func toggleCmd(device *description.Device) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		state, err := control.NewSwitch(device).Toggle(ctx)
		return stateMsg{udn: device.UDN, state: state, err: err}
	}
}

func setStateCmd(device *description.Device, on bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		sw := control.NewSwitch(device)
		var err error
		state := control.StateOff
		if on {
			err = sw.OnWithRetry(ctx)
			state = control.StateOn
		} else {
			err = sw.OffWithRetry(ctx)
		}
		return stateMsg{udn: device.UDN, state: state, err: err}
	}
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

// Run starts the interactive control panel and blocks until the user quits.
func Run(scanner *discovery.Scanner, registry *config.Registry) error {
	program := tea.NewProgram(NewModel(scanner, registry), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
