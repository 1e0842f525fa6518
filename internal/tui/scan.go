package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/proxiscan/internal/device"
	"github.com/muurk/proxiscan/internal/network"
	"github.com/muurk/proxiscan/internal/radio"
	"github.com/muurk/proxiscan/internal/session"
)

// RadioView is the part of the radio engine the scan view reads.
type RadioView interface {
	Devices() []device.RadioDevice
	Progress() float64
}

// NetworkView is the part of the network engine the scan view reads.
type NetworkView interface {
	Devices() []device.NetworkDevice
	Progress() float64
}

// ScanConfig describes a scan shown by ScanModel.
type ScanConfig struct {
	Title   string
	Command string
	Params  map[string]string

	// Radio and Network are nil for channels that are not scanned.
	Radio   RadioView
	Network NetworkView

	// Stop is called when the user asks to end the scan early.
	Stop func()
}

// RadioEventMsg carries a radio engine event into the program.
type RadioEventMsg struct{ Event radio.Event }

// NetworkEventMsg carries a network engine event into the program.
type NetworkEventMsg struct{ Event network.Event }

// FinishedMsg reports the finalized session, or why there is none.
type FinishedMsg struct {
	Session *session.ScanSession
	Err     error
}

type scanKeyMap struct {
	Stop  key.Binding
	Abort key.Binding
}

func (k scanKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Stop, k.Abort}
}

func (k scanKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Stop, k.Abort}}
}

// ScanModel is the live scan view.
type ScanModel struct {
	cfg     ScanConfig
	bar     progress.Model
	spinner spinner.Model
	help    help.Model
	keys    scanKeyMap

	width  int
	height int

	radioDevices   []device.RadioDevice
	networkDevices []device.NetworkDevice
	progress       float64
	notes          []string

	stopping bool
	finished bool
	aborted  bool
	result   *session.ScanSession
	err      error
}

// NewScanModel creates the scan view.
func NewScanModel(cfg ScanConfig) ScanModel {
	width, height := GetTerminalSize()
	return ScanModel{
		cfg: cfg,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(barWidth(width)),
		),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:    help.New(),
		keys: scanKeyMap{
			Stop: key.NewBinding(
				key.WithKeys("q", "esc"),
				key.WithHelp("q", "stop and save"),
			),
			Abort: key.NewBinding(
				key.WithKeys("ctrl+c"),
				key.WithHelp("ctrl+c", "quit"),
			),
		},
		width:  width,
		height: height,
	}
}

func barWidth(width int) int {
	return min(max(width-30, 20), 60)
}

// Init implements tea.Model
func (m ScanModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m ScanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKey(msg)

	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.height = msg.Height
		m.bar.Width = barWidth(m.width)

	case RadioEventMsg:
		m.noteRadio(msg.Event)
		m.refresh()

	case NetworkEventMsg:
		m.noteNetwork(msg.Event)
		m.refresh()

	case FinishedMsg:
		m.finished = true
		m.result = msg.Session
		m.err = msg.Err
		m.refresh()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ScanModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Abort):
		m.aborted = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Stop):
		if m.stopping {
			// Second press: stop waiting for the save.
			m.aborted = true
			return m, tea.Quit
		}
		m.stopping = true
		if stop := m.cfg.Stop; stop != nil {
			return m, func() tea.Msg {
				stop()
				return nil
			}
		}
	}
	return m, nil
}

func (m *ScanModel) refresh() {
	var total float64
	var n int
	if v := m.cfg.Radio; v != nil {
		m.radioDevices = v.Devices()
		total += v.Progress()
		n++
	}
	if v := m.cfg.Network; v != nil {
		m.networkDevices = v.Devices()
		total += v.Progress()
		n++
	}
	if n > 0 {
		m.progress = total / float64(n)
	}
}

func (m *ScanModel) noteRadio(ev radio.Event) {
	switch ev.Kind {
	case radio.EventPower:
		if !ev.Power.Available() {
			m.addNote("Radio " + ev.Power.Description())
		}
	case radio.EventError:
		if ev.Err != nil {
			m.addNote(ev.Err.Error())
		}
	}
}

func (m *ScanModel) noteNetwork(ev network.Event) {
	if ev.Kind == network.EventError && ev.Err != nil {
		m.addNote(ev.Err.Error())
	}
}

func (m *ScanModel) addNote(note string) {
	const maxNotes = 3
	m.notes = append(m.notes, note)
	if len(m.notes) > maxNotes {
		m.notes = m.notes[len(m.notes)-maxNotes:]
	}
}

// Result returns the finalized session, if the scan produced one.
func (m ScanModel) Result() (*session.ScanSession, error) {
	return m.result, m.err
}

// Aborted reports whether the user quit before the session was saved.
func (m ScanModel) Aborted() bool {
	return m.aborted
}

// View implements tea.Model
func (m ScanModel) View() string {
	var b strings.Builder
	b.WriteString(RenderHeader(m.cfg.Title, m.cfg.Command, m.cfg.Params, m.width))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")

	// Header, status line, help and section titles take roughly 14 lines.
	rows := max(m.height-14-len(m.notes), 3)
	if m.cfg.Radio != nil && m.cfg.Network != nil {
		rows = max(rows/2, 3)
	}

	if m.cfg.Radio != nil {
		b.WriteString("\n")
		b.WriteString(SectionTitleStyle.Render(fmt.Sprintf("Radio devices (%d)", len(m.radioDevices))))
		b.WriteString("\n")
		b.WriteString(RenderRadioTable(m.radioDevices, m.width, rows))
		b.WriteString("\n")
	}
	if m.cfg.Network != nil {
		b.WriteString("\n")
		b.WriteString(SectionTitleStyle.Render(fmt.Sprintf("Network devices (%d)", len(m.networkDevices))))
		b.WriteString("\n")
		b.WriteString(RenderNetworkTable(m.networkDevices, m.width, rows))
		b.WriteString("\n")
	}

	for _, note := range m.notes {
		b.WriteString("\n")
		b.WriteString(WarningStyle.Render("  ! " + note))
	}
	if len(m.notes) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.finished && m.err != nil:
		b.WriteString(RenderError("Scan not saved", m.err, nil, m.width))
	case m.finished && m.result != nil:
		b.WriteString(RenderSummary(*m.result, m.width))
	case m.finished:
		b.WriteString(MutedStyle.Render("  Nothing found; no session saved."))
	default:
		b.WriteString("  " + m.help.View(m.keys))
	}
	b.WriteString("\n")
	return b.String()
}

func (m ScanModel) renderStatusLine() string {
	var state string
	switch {
	case m.finished:
		state = SuccessTitleStyle.Render(SuccessMarker + " done")
	case m.stopping:
		state = WarningStyle.Render(m.spinner.View() + " stopping")
	default:
		state = m.spinner.View() + " scanning"
	}
	total := len(m.radioDevices) + len(m.networkDevices)
	return fmt.Sprintf("  %s  %3.0f%%  %s  %s",
		m.bar.ViewAs(m.progress),
		m.progress*100,
		state,
		MutedStyle.Render(fmt.Sprintf("%d devices", total)),
	)
}
