// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"beatloop/internal/audio"
	"beatloop/internal/looper"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeController struct {
	mu   sync.Mutex
	snap looper.Snapshot
	cmds []looper.Command
	err  error
}

func (f *fakeController) Snapshot(context.Context) (looper.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, nil
}

func (f *fakeController) Submit(_ context.Context, cmd looper.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return f.err
}

func testSnapshot() looper.Snapshot {
	return looper.Snapshot{
		Reference: 2,
		Intensity: 0.5,
		Trained:   true,
		Tracks: []looper.TrackSnapshot{
			{ID: 1, State: "idle", Session: 2, Playing: true, Length: 2, Position: 1, Hits: 4, HasVariation: true},
			{ID: 2, State: "recording", Recorded: 1.5},
			{ID: 3, State: "waiting", Pending: "clear"},
		},
	}
}

func update(t *testing.T, m MonitorModel, msg tea.Msg) (MonitorModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(MonitorModel), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMonitorRendersSnapshot(t *testing.T) {
	ctrl := &fakeController{snap: testSnapshot()}
	m := NewMonitorModel(ctrl, func() float32 { return 0.5 })

	if !strings.Contains(m.View(), "Waiting for looper") {
		t.Errorf("initial view should wait for a snapshot:\n%s", m.View())
	}

	m, _ = update(t, m, m.fetch())
	view := m.View()
	for _, want := range []string{"master 2.000s", "rec 1.5s", "waiting", "clear", "alt", "2.000s", "█████·····"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestMonitorTrackKeys(t *testing.T) {
	ctrl := &fakeController{snap: testSnapshot()}
	m := NewMonitorModel(ctrl, nil)
	m, _ = update(t, m, m.fetch())

	tests := []struct {
		key  string
		want looper.Command
	}{
		{"1", looper.Command{Kind: looper.CmdRecord, Track: 1}},
		{"2", looper.Command{Kind: looper.CmdStop, Track: 2}},
		{"3", looper.Command{Kind: looper.CmdStop, Track: 3}},
		{"4", looper.Command{Kind: looper.CmdRecord, Track: 4}},
	}
	for _, tt := range tests {
		_, cmd := update(t, m, runes(tt.key))
		if cmd == nil {
			t.Fatalf("key %s produced no command", tt.key)
		}
		msg := cmd().(resultMsg)
		if msg.cmd != tt.want {
			t.Errorf("key %s sent %+v, want %+v", tt.key, msg.cmd, tt.want)
		}
	}
	if len(ctrl.cmds) != len(tests) {
		t.Errorf("controller received %d commands, want %d", len(ctrl.cmds), len(tests))
	}
}

func TestMonitorCommandLine(t *testing.T) {
	ctrl := &fakeController{snap: testSnapshot()}
	m := NewMonitorModel(ctrl, nil)

	m, _ = update(t, m, runes(":"))
	if !m.input.Focused() {
		t.Fatal("':' should focus the command line")
	}
	m, _ = update(t, m, runes("clear 2"))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.input.Focused() || cmd == nil {
		t.Fatal("enter should blur the input and submit")
	}
	res := cmd().(resultMsg)
	if res.cmd.Kind != looper.CmdClear || res.cmd.Track != 2 {
		t.Errorf("submitted %+v", res.cmd)
	}

	m, _ = update(t, m, res)
	if !strings.Contains(m.View(), "sent clear 2") {
		t.Errorf("status missing from view:\n%s", m.View())
	}

	m, _ = update(t, m, runes(":"))
	m, _ = update(t, m, runes("bogus"))
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || !m.failed {
		t.Errorf("invalid command should fail locally, status %q", m.status)
	}
}

func TestMonitorCommandError(t *testing.T) {
	ctrl := &fakeController{err: errors.New("track is busy")}
	m := NewMonitorModel(ctrl, nil)
	_, cmd := update(t, m, runes("1"))
	m, _ = update(t, m, cmd())
	if !m.failed || !strings.Contains(m.View(), "track is busy") {
		t.Errorf("error not shown:\n%s", m.View())
	}
}

func TestMonitorQuit(t *testing.T) {
	m := NewMonitorModel(&fakeController{}, nil)
	_, cmd := update(t, m, runes("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not return tea.Quit")
	}
}

func TestMeter(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0, "····"},
		{0.5, "██··"},
		{1, "████"},
		{2, "████"},
		{-1, "····"},
	}
	for _, tt := range tests {
		if got := meter(tt.v, 4); got != tt.want {
			t.Errorf("meter(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestDevicePickerSelection(t *testing.T) {
	m := NewDevicePicker()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	next, _ = next.Update(devicesMsg{devices: []audio.Device{
		{ID: 0, Name: "Mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
		{ID: 3, Name: "Interface", MaxInputChannels: 2, DefaultSampleRate: 96000},
	}})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(next.View(), "input_device: 3") {
		t.Errorf("setup screen missing yaml preview:\n%s", next.View())
	}

	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyUp}) // 96000 -> 88200
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyTab})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyDown}) // 512 -> 1024
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter on the setup screen should quit")
	}
	sel := next.(DevicePicker).Selection()
	want := Selection{DeviceID: 3, Name: "Interface", SampleRate: 88200, FramesPerBuffer: 1024}
	if sel == nil || *sel != want {
		t.Errorf("selection = %+v, want %+v", sel, want)
	}
}

func TestDevicePickerBack(t *testing.T) {
	m := NewDevicePicker()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	next, _ = next.Update(devicesMsg{devices: []audio.Device{{ID: 1, Name: "Mic", MaxInputChannels: 1}}})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !strings.Contains(next.View(), "Input Devices") {
		t.Errorf("esc should return to the list:\n%s", next.View())
	}
	if next.(DevicePicker).Selection() != nil {
		t.Error("selection set without confirming")
	}
}

func TestSelectionYAML(t *testing.T) {
	doc, err := Selection{DeviceID: 2, Name: "USB", SampleRate: 48000, FramesPerBuffer: 256}.YAML()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# USB", "audio:", "input_device: 2", "sample_rate: 48000", "frames_per_buffer: 256"} {
		if !strings.Contains(doc, want) {
			t.Errorf("yaml missing %q:\n%s", want, doc)
		}
	}
}
