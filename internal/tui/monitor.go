// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"beatloop/internal/looper"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 100 * time.Millisecond

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5"))
	recordingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E05252")).Bold(true)
	waitingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0B252"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#E05252"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
)

// Controller is what the monitor drives. *looper.Runner satisfies it.
type Controller interface {
	Snapshot(ctx context.Context) (looper.Snapshot, error)
	Submit(ctx context.Context, cmd looper.Command) error
}

type monitorKeys struct {
	Command key.Binding
	Record  key.Binding
	Quit    key.Binding
	Submit  key.Binding
	Cancel  key.Binding
}

func (k monitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Record, k.Command, k.Quit}
}

func (k monitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Record, k.Command, k.Submit, k.Cancel, k.Quit}}
}

var defaultKeys = monitorKeys{
	Command: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "command")),
	Record:  key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "record/stop track")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Submit:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
}

type tickMsg time.Time

type snapshotMsg struct {
	snap looper.Snapshot
	err  error
}

type resultMsg struct {
	cmd looper.Command
	err error
}

// MonitorModel shows the tracks and sends operator commands.
type MonitorModel struct {
	ctrl   Controller
	level  func() float32
	keys   monitorKeys
	help   help.Model
	input  textinput.Model
	snap   looper.Snapshot
	have   bool
	status string
	failed bool
	width  int
}

// NewMonitorModel builds the monitor. level may be nil.
func NewMonitorModel(ctrl Controller, level func() float32) MonitorModel {
	in := textinput.New()
	in.Placeholder = "record 1 | stop 1 | clear 2 | toggle 1 | load 1 file.txt | intensity 0.7 | train kick"
	in.Prompt = ": "
	in.CharLimit = 256
	return MonitorModel{
		ctrl:  ctrl,
		level: level,
		keys:  defaultKeys,
		help:  help.New(),
		input: in,
	}
}

func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(m.fetch, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m MonitorModel) fetch() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := m.ctrl.Snapshot(ctx)
	return snapshotMsg{snap: s, err: err}
}

func (m MonitorModel) submit(cmd looper.Command) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return resultMsg{cmd: cmd, err: m.ctrl.Submit(ctx, cmd)}
	}
}

// trackToggle records an idle track and stops a recording or waiting one.
func (m MonitorModel) trackToggle(id int) looper.Command {
	for _, t := range m.snap.Tracks {
		if t.ID == id && t.State != looper.Idle.String() {
			return looper.Command{Kind: looper.CmdStop, Track: id}
		}
	}
	return looper.Command{Kind: looper.CmdRecord, Track: id}
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.input.Width = max(msg.Width-4, 10)

	case tickMsg:
		return m, tea.Batch(m.fetch, tick())

	case snapshotMsg:
		if msg.err == nil {
			m.snap = msg.snap
			m.have = true
		}

	case resultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s: %v", msg.cmd, msg.err)
			m.failed = true
		} else {
			m.status = msg.cmd.String()
			m.failed = false
		}
		return m, m.fetch

	case tea.KeyMsg:
		if m.input.Focused() {
			switch {
			case key.Matches(msg, m.keys.Submit):
				line := strings.TrimSpace(m.input.Value())
				m.input.Reset()
				m.input.Blur()
				if line == "" {
					return m, nil
				}
				cmd, err := looper.ParseCommand(line)
				if err != nil {
					m.status = err.Error()
					m.failed = true
					return m, nil
				}
				return m, m.submit(cmd)
			case key.Matches(msg, m.keys.Cancel):
				m.input.Reset()
				m.input.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Command):
			cmd := m.input.Focus()
			return m, cmd
		case key.Matches(msg, m.keys.Record):
			id := int(msg.String()[0] - '0')
			return m, m.submit(m.trackToggle(id))
		}
	}
	return m, nil
}

func (m MonitorModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("beatloop"))
	sb.WriteString("  ")
	sb.WriteString(m.summary())
	sb.WriteString("\n\n")
	if !m.have {
		sb.WriteString("Waiting for looper...\n")
	} else {
		sb.WriteString(renderTracks(m.snap))
	}
	sb.WriteString("\n")
	if m.status != "" {
		if m.failed {
			sb.WriteString(errorStyle.Render(m.status))
		} else {
			sb.WriteString(dimStyle.Render("sent " + m.status))
		}
		sb.WriteString("\n")
	}
	if m.input.Focused() {
		sb.WriteString(m.input.View())
		sb.WriteString("\n")
	}
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func (m MonitorModel) summary() string {
	parts := []string{}
	if m.have {
		if m.snap.Reference > 0 {
			parts = append(parts, fmt.Sprintf("master %.3fs", m.snap.Reference))
		} else {
			parts = append(parts, "no master")
		}
		parts = append(parts, fmt.Sprintf("intensity %.2f", m.snap.Intensity))
		if m.snap.Training != "" {
			parts = append(parts, recordingStyle.Render("training "+m.snap.Training))
		} else if !m.snap.Trained {
			parts = append(parts, dimStyle.Render("untrained"))
		}
	}
	if m.level != nil {
		parts = append(parts, "in "+meter(float64(m.level()), 10))
	}
	return infoStyle.Render(strings.Join(parts, " • "))
}

// meter renders v in [0, 1] as a bar of width cells.
func meter(v float64, width int) string {
	v = min(max(v, 0), 1)
	n := int(v*float64(width) + 0.5)
	return strings.Repeat("█", n) + strings.Repeat("·", width-n)
}

func renderTracks(s looper.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-3s %-10s %-7s %-9s %-22s %-5s %-11s %-4s",
		"#", "State", "Session", "Length", "Position", "Hits", "Pending", "Var")))
	sb.WriteString("\n")
	for _, t := range s.Tracks {
		state := t.State
		switch t.State {
		case looper.Recording.String():
			state = recordingStyle.Render(fmt.Sprintf("%-10s", fmt.Sprintf("rec %.1fs", t.Recorded)))
		case looper.WaitingForBoundary.String():
			state = waitingStyle.Render(fmt.Sprintf("%-10s", state))
		default:
			state = fmt.Sprintf("%-10s", state)
		}

		length, position := "-", "-"
		if t.Length > 0 {
			length = fmt.Sprintf("%.3fs", t.Length)
			position = fmt.Sprintf("%s %5.2f", meter(t.Position/t.Length, 14), t.Position)
		}
		if !t.Playing {
			position = dimStyle.Render(fmt.Sprintf("%-22s", position))
		} else {
			position = fmt.Sprintf("%-22s", position)
		}

		variation := ""
		switch {
		case t.OnVariation:
			variation = "alt*"
		case t.HasVariation:
			variation = "alt"
		}

		fmt.Fprintf(&sb, "%-3d %s %-7d %-9s %s %-5d %-11s %-4s\n",
			t.ID, state, t.Session, length, position, t.Hits, t.Pending, variation)
	}
	return sb.String()
}

// StartMonitor runs the monitor until the operator quits or ctx is done.
func StartMonitor(ctx context.Context, ctrl Controller, level func() float32) error {
	p := tea.NewProgram(
		NewMonitorModel(ctrl, level),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
