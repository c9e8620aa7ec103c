// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"slices"
	"strings"

	"beatloop/internal/audio"
	"beatloop/internal/config"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

var (
	pickerRates   = []float64{44100, 48000, 88200, 96000}
	pickerBuffers = []int{128, 256, 512, 1024}
)

// Selection is the input setup picked in the device picker.
type Selection struct {
	DeviceID        int
	Name            string
	SampleRate      float64
	FramesPerBuffer int
}

// Apply writes the selection into an audio section.
func (s Selection) Apply(a *config.AudioConfig) {
	a.InputDevice = s.DeviceID
	a.SampleRate = s.SampleRate
	a.FramesPerBuffer = s.FramesPerBuffer
}

// YAML renders the audio section of beatloop.yaml for the selection.
func (s Selection) YAML() (string, error) {
	doc := struct {
		Audio config.AudioConfig `yaml:"audio"`
	}{Audio: config.Default().Audio}
	s.Apply(&doc.Audio)
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return "# " + s.Name + "\n" + string(out), nil
}

type pickerKeys struct {
	Up    key.Binding
	Down  key.Binding
	Field key.Binding
	Pick  key.Binding
	Back  key.Binding
	Quit  key.Binding
}

func (k pickerKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Field, k.Pick, k.Back, k.Quit}
}

func (k pickerKeys) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var defaultPickerKeys = pickerKeys{
	Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "up")),
	Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "down")),
	Field: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next setting")),
	Pick:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Back:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type setting int

const (
	settingRate setting = iota
	settingBuffer
	numSettings
)

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// DevicePicker lists the input devices, then lets the operator choose the
// sample rate and buffer size the looper should open the chosen one with.
type DevicePicker struct {
	devices []audio.Device
	cursor  int
	setup   bool // on the settings screen
	setting setting
	rate    int
	buffer  int

	keys     pickerKeys
	help     help.Model
	viewport viewport.Model
	ready    bool
	err      error

	selection *Selection
}

func NewDevicePicker() DevicePicker {
	return DevicePicker{
		keys:   defaultPickerKeys,
		help:   help.New(),
		buffer: slices.Index(pickerBuffers, config.Default().Audio.FramesPerBuffer),
	}
}

func (m DevicePicker) Init() tea.Cmd {
	return fetchDevices
}

// fetchDevices gets the input-capable devices. PortAudio must be initialized.
func fetchDevices() tea.Msg {
	devices, err := audio.HostDevices()
	if err != nil {
		return errMsg{err}
	}
	inputs := devices[:0]
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return devicesMsg{inputs}
}

func (m DevicePicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.help.Width = msg.Width

	case devicesMsg:
		m.devices = msg.devices

	case errMsg:
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.setup {
			if pick := m.updateSetup(msg); pick {
				return m, tea.Quit
			}
		} else {
			m.updateList(msg)
		}
	}

	m.refresh()
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *DevicePicker) updateList(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.cursor = min(m.cursor+1, max(len(m.devices)-1, 0))
	case key.Matches(msg, m.keys.Pick):
		if len(m.devices) == 0 {
			return
		}
		m.setup = true
		m.setting = settingRate
		// start from the device's own rate when it is one we offer
		m.rate = max(slices.Index(pickerRates, m.devices[m.cursor].DefaultSampleRate), 0)
	}
}

// updateSetup reports whether the operator confirmed the selection.
func (m *DevicePicker) updateSetup(msg tea.KeyMsg) bool {
	step := 0
	switch {
	case key.Matches(msg, m.keys.Back):
		m.setup = false
	case key.Matches(msg, m.keys.Field):
		m.setting = (m.setting + 1) % numSettings
	case key.Matches(msg, m.keys.Up):
		step = -1
	case key.Matches(msg, m.keys.Down):
		step = 1
	case key.Matches(msg, m.keys.Pick):
		s := m.current()
		m.selection = &s
		return true
	}
	switch m.setting {
	case settingRate:
		m.rate = min(max(m.rate+step, 0), len(pickerRates)-1)
	case settingBuffer:
		m.buffer = min(max(m.buffer+step, 0), len(pickerBuffers)-1)
	}
	return false
}

func (m DevicePicker) current() Selection {
	d := m.devices[m.cursor]
	return Selection{
		DeviceID:        d.ID,
		Name:            d.Name,
		SampleRate:      pickerRates[m.rate],
		FramesPerBuffer: pickerBuffers[m.buffer],
	}
}

func (m *DevicePicker) refresh() {
	if !m.ready {
		return
	}
	if m.setup {
		m.viewport.SetContent(m.renderSetup())
	} else {
		m.viewport.SetContent(m.renderDevices())
	}
}

func (m DevicePicker) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}
	title := titleStyle.Render("Input Devices")
	if m.setup {
		title = titleStyle.Render("Input Setup")
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), m.help.View(m.keys))
}

func (m DevicePicker) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}
	var sb strings.Builder
	for i, d := range m.devices {
		entry := fmt.Sprintf("[%d] %s (%s)\n    %d inputs on %s, %.0f Hz, latency %.1f/%.1f ms\n",
			d.ID, d.Name, d.Type(), d.MaxInputChannels, d.HostAPI, d.DefaultSampleRate,
			d.LowInputLatency.Seconds()*1000, d.HighInputLatency.Seconds()*1000)
		if i == m.cursor {
			entry = highlightStyle.Render(entry)
		}
		sb.WriteString(entry)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DevicePicker) renderSetup() string {
	var sb strings.Builder
	s := m.current()
	fmt.Fprintf(&sb, "Device: %s\n\n", s.Name)

	row := func(label, value string, active bool) {
		line := fmt.Sprintf("  %-18s ◀ %s ▶", label, value)
		if active {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	row("Sample rate", fmt.Sprintf("%.0f Hz", s.SampleRate), m.setting == settingRate)
	row("Frames per buffer", fmt.Sprintf("%d (%.1f ms)", s.FramesPerBuffer,
		float64(s.FramesPerBuffer)/s.SampleRate*1000), m.setting == settingBuffer)

	if doc, err := s.YAML(); err == nil {
		sb.WriteString("\n")
		sb.WriteString(infoStyle.Render(doc))
	}
	return sb.String()
}

// Selection returns the picked setup, nil when the operator quit.
func (m DevicePicker) Selection() *Selection { return m.selection }

// PickDevice runs the device picker. PortAudio must be initialized.
func PickDevice() (*Selection, error) {
	p := tea.NewProgram(NewDevicePicker(), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(DevicePicker)
	if m.err != nil {
		return nil, m.err
	}
	return m.selection, nil
}
