package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/rawws/internal/discovery"
)

// ScanFunc browses the network for rawws services.
type ScanFunc func(ctx context.Context) ([]*discovery.Service, error)

type scanDoneMsg struct {
	services []*discovery.Service
	err      error
}

type scanKeyMap struct {
	Quit key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k scanKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k scanKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Quit}}
}

// ScanModel shows a spinner while an mDNS scan runs and quits once it
// completes or the user presses q.
type ScanModel struct {
	ctx     context.Context
	cancel  context.CancelFunc
	scan    ScanFunc
	timeout time.Duration

	spinner spinner.Model
	help    help.Model
	keys    scanKeyMap
	started time.Time

	services  []*discovery.Service
	err       error
	done      bool
	cancelled bool
}

// NewScanModel creates a model that runs scan with ctx. cancel is called
// when the user aborts.
func NewScanModel(ctx context.Context, cancel context.CancelFunc, scan ScanFunc, timeout time.Duration) ScanModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return ScanModel{
		ctx:     ctx,
		cancel:  cancel,
		scan:    scan,
		timeout: timeout,
		spinner: s,
		help:    help.New(),
		keys: scanKeyMap{
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "cancel"),
			),
		},
		started: time.Now(),
	}
}

// Init starts the scan and the spinner
func (m ScanModel) Init() tea.Cmd {
	return tea.Batch(m.runScan, m.spinner.Tick)
}

func (m ScanModel) runScan() tea.Msg {
	services, err := m.scan(m.ctx)
	return scanDoneMsg{services: services, err: err}
}

// Update handles messages and updates the model
func (m ScanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.cancelled = true
			m.cancel()
			return m, tea.Quit
		}

	case scanDoneMsg:
		m.done = true
		m.services = msg.services
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the scanning line. Results are printed by the caller after
// the program exits.
func (m ScanModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	elapsed := time.Since(m.started).Truncate(time.Second)
	status := fmt.Sprintf("%s Scanning for %s services... %s / %s",
		m.spinner.View(), discovery.ServiceType, elapsed, m.timeout)
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingLeft(2).Render(status),
		lipgloss.NewStyle().PaddingLeft(2).Render(m.help.View(m.keys)),
	)
}

// Services returns the scan result once the model is done.
func (m ScanModel) Services() []*discovery.Service { return m.services }

// Err returns the scan error, if any.
func (m ScanModel) Err() error { return m.err }

// Cancelled reports whether the user aborted the scan.
func (m ScanModel) Cancelled() bool { return m.cancelled }

// RunScan runs scan behind a spinner on out and returns its result. An
// aborted scan returns context.Canceled.
func RunScan(ctx context.Context, in io.Reader, out io.Writer, timeout time.Duration, scan ScanFunc) ([]*discovery.Service, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewScanModel(scanCtx, cancel, scan, timeout)
	final, err := tea.NewProgram(model, tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return nil, fmt.Errorf("scan display: %w", err)
	}

	result := final.(ScanModel)
	if result.Cancelled() {
		return nil, context.Canceled
	}
	return result.Services(), result.Err()
}
