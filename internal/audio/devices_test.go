// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"strings"
	"testing"

	"github.com/gordonklaus/portaudio"
)

var testDevices = []*portaudio.DeviceInfo{
	{Name: "Built-in Mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
	{Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100},
	{Name: "Interface", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 96000},
}

// withDevices replaces the PortAudio device queries for one test.
func withDevices(t *testing.T, infos []*portaudio.DeviceInfo, listErr, defaultErr error) {
	t.Helper()
	origList, origDefault := paLibDevicesFunc, paLibDefaultInputDeviceFunc
	t.Cleanup(func() {
		paLibDevicesFunc, paLibDefaultInputDeviceFunc = origList, origDefault
	})
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return infos, listErr
	}
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		if defaultErr != nil {
			return nil, defaultErr
		}
		return infos[0], nil
	}
}

func TestHostDevices(t *testing.T) {
	withDevices(t, testDevices, nil, nil)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices: %v", err)
	}
	want := []string{"Input", "Output", "Input/Output"}
	if len(devices) != len(want) {
		t.Fatalf("got %d devices, want %d", len(devices), len(want))
	}
	for i, d := range devices {
		if d.ID != i || d.Type() != want[i] || d.Name != testDevices[i].Name {
			t.Errorf("device %d = %+v (type %q), want type %q", i, d, d.Type(), want[i])
		}
	}
}

func TestInputDevice(t *testing.T) {
	errList := errors.New("device list failed")
	errDefault := errors.New("no default input")

	tests := []struct {
		name       string
		id         int
		listErr    error
		defaultErr error
		wantName   string
		wantErr    string
	}{
		{name: "default device", id: -1, wantName: "Built-in Mic"},
		{name: "input device", id: 0, wantName: "Built-in Mic"},
		{name: "duplex device", id: 2, wantName: "Interface"},
		{name: "output only", id: 1, wantErr: "does not support input"},
		{name: "negative id", id: -2, wantErr: "invalid device ID"},
		{name: "id past the end", id: 3, wantErr: "invalid device ID"},
		{name: "list error", id: 0, listErr: errList, wantErr: errList.Error()},
		{name: "default error", id: -1, defaultErr: errDefault, wantErr: errDefault.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withDevices(t, testDevices, tt.listErr, tt.defaultErr)
			dev, err := InputDevice(tt.id)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("InputDevice(%d) error = %v, want %q", tt.id, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("InputDevice(%d): %v", tt.id, err)
			}
			if dev.Name != tt.wantName {
				t.Errorf("InputDevice(%d) = %q, want %q", tt.id, dev.Name, tt.wantName)
			}
		})
	}
}

func TestPaDevicesNeverNil(t *testing.T) {
	withDevices(t, nil, nil, nil)
	devices, err := paDevices()
	if err != nil {
		t.Fatalf("paDevices: %v", err)
	}
	if devices == nil {
		t.Error("paDevices returned a nil slice")
	}

	withDevices(t, nil, errors.New("PortAudio not initialized"), nil)
	if devices, err := paDevices(); err == nil || devices != nil {
		t.Errorf("paDevices = %v, %v, want nil and an error", devices, err)
	}
}

func TestListDevices(t *testing.T) {
	withDevices(t, testDevices, nil, nil)
	var out strings.Builder
	if err := ListDevices(&out); err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1+len(testDevices) {
		t.Fatalf("got %d lines, want header plus %d rows:\n%s", len(lines), len(testDevices), out.String())
	}
	if row := lines[3]; !strings.HasPrefix(row, "2 ") || !strings.Contains(row, "Interface") || !strings.Contains(row, "Input/Output") {
		t.Errorf("row for device 2 = %q", row)
	}

	withDevices(t, nil, nil, nil)
	out.Reset()
	if err := ListDevices(&out); err != nil || !strings.Contains(out.String(), "No audio devices") {
		t.Errorf("empty listing = %q, %v", out.String(), err)
	}
}

func TestInitializeTerminate(t *testing.T) {
	origInit, origTerm := paLibInitialize, paLibTerminate
	t.Cleanup(func() { paLibInitialize, paLibTerminate = origInit, origTerm })

	fail := errors.New("host API gone")
	paLibInitialize = func() error { return fail }
	paLibTerminate = func() error { return fail }
	if err := Initialize(); !errors.Is(err, fail) {
		t.Errorf("Initialize error = %v, want wrapped %v", err, fail)
	}
	if err := Terminate(); !errors.Is(err, fail) {
		t.Errorf("Terminate error = %v, want wrapped %v", err, fail)
	}

	paLibInitialize = func() error { return nil }
	paLibTerminate = func() error { return nil }
	if err := Initialize(); err != nil {
		t.Errorf("Initialize: %v", err)
	}
	if err := Terminate(); err != nil {
		t.Errorf("Terminate: %v", err)
	}
}

// TestHostDevicesHardware runs against the real host, when it has PortAudio.
func TestHostDevicesHardware(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Skipf("PortAudio unavailable: %v", err)
	}
	t.Cleanup(func() { Terminate() })

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices: %v", err)
	}
	for i, d := range devices {
		if d.ID != i || d.Name == "" {
			t.Errorf("device %d = %+v", i, d)
		}
	}
}
