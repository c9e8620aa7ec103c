// SPDX-License-Identifier: MIT
package pattern

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"beatloop/internal/classify"
)

func TestCloseInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := range 200 {
		duration := 0.5 + rng.Float64()*8
		hits := make([]Hit, 1+rng.Intn(20))
		for j := range hits {
			hits[j] = Hit{
				Class:     classify.Label(rng.Intn(3)),
				Timestamp: rng.Float64() * duration * 1.2,
				Intensity: rng.Float64(),
			}
		}
		p, err := Close(hits, duration)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		last := p.Hits[len(p.Hits)-1]
		if math.Abs(last.Timestamp+last.Delta-duration) > 1e-9 {
			t.Fatalf("case %d: last %+v does not close %.6f", i, last, duration)
		}
		if err := p.Validate(); err != nil {
			t.Fatalf("case %d: Validate: %v", i, err)
		}
	}
}

func TestCloseWrapsAndSorts(t *testing.T) {
	p, err := Close([]Hit{
		{Class: classify.Snare, Timestamp: 1.5, Intensity: 0.5},
		{Class: classify.Kick, Timestamp: 0.25, Intensity: 2},
		{Class: classify.Hat, Timestamp: 2.1, Intensity: 0.3}, // wraps to 0.1
	}, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	want := []Hit{
		{Class: classify.Hat, Timestamp: 0.1, Intensity: 0.3, Delta: 0.15},
		{Class: classify.Kick, Timestamp: 0.25, Intensity: 1, Delta: 1.25},
		{Class: classify.Snare, Timestamp: 1.5, Intensity: 0.5, Delta: 0.5},
	}
	for i := range want {
		got := p.Hits[i]
		if got.Class != want[i].Class || math.Abs(got.Timestamp-want[i].Timestamp) > 1e-9 ||
			got.Intensity != want[i].Intensity || math.Abs(got.Delta-want[i].Delta) > 1e-9 {
			t.Errorf("hit %d = %+v, want %+v", i, got, want[i])
		}
	}
}

func TestCloseErrors(t *testing.T) {
	if _, err := Close(nil, 1); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty: %v", err)
	}
	for _, d := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := Close([]Hit{{}}, d); !errors.Is(err, ErrNoDuration) {
			t.Errorf("duration %v: %v", d, err)
		}
	}
}

const sampleFile = `# Track 0 Drum Data

# Format: DRUM_CLASS,TIMESTAMP,VELOCITY,DELTA_TIME
# Classes: 0=kick, 1=snare, 2=hat

# Total loop duration: 2.540000 seconds
0,0.084172,0.482133,0.635646
1,0.719818,0.132769,0.635646
0,1.355464,0.272635,1.184536
`

func TestReadFile(t *testing.T) {
	p, err := Read(strings.NewReader(sampleFile))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(p.Hits) != 3 || p.Duration != 2.54 {
		t.Fatalf("got %d hits, duration %v", len(p.Hits), p.Duration)
	}
	if p.Hits[1].Class != classify.Snare {
		t.Errorf("row 2 class = %v", p.Hits[1].Class)
	}
}

func TestReadRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		is   error
	}{
		{"no header", "0,0.0,0.5,1.0\n", ErrNoDuration},
		{"zero rows", "# Total loop duration: 1.0 seconds\n", ErrEmpty},
		{"header mismatch", "# Total loop duration: 2.0 seconds\n0,0.0,0.5,1.0\n", ErrDurationMismatch},
		{"bad column count", "# Total loop duration: 1.0 seconds\n0,0.0,0.5\n", ErrMalformedRow},
		{"bad number", "# Total loop duration: 1.0 seconds\n0,zero,0.5,1.0\n", ErrMalformedRow},
		{"class out of range", "# Total loop duration: 1.0 seconds\n7,0.0,0.5,1.0\n", ErrMalformedRow},
		{"intensity out of range", "# Total loop duration: 1.0 seconds\n0,0.0,1.5,1.0\n", ErrMalformedRow},
		{"out of order", "# Total loop duration: 1.0 seconds\n0,0.5,0.5,-0.4\n1,0.1,0.5,0.9\n", ErrMalformedRow},
		{"delta gap", "# Total loop duration: 1.0 seconds\n0,0.0,0.5,0.2\n1,0.5,0.5,0.5\n", ErrMalformedRow},
		{"unparseable header", "# Total loop duration: soon\n0,0.0,0.5,1.0\n", ErrNoDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in))
			if !errors.Is(err, tt.is) {
				t.Fatalf("Read() = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestWriteThenReadKeepsSession(t *testing.T) {
	p, _ := Close([]Hit{{Class: classify.Kick, Timestamp: 0.2, Intensity: 0.7}}, 1.0)
	p.Session = "4b1e2b7e-5d9a-4e55-9b0f-1d67f6a3e2a0"
	var buf bytes.Buffer
	if _, err := p.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "# Total loop duration: 1.000000 seconds\n") {
		t.Fatalf("missing duration header:\n%s", buf.String())
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Session != p.Session {
		t.Errorf("session = %q", got.Session)
	}
}

func TestSaveIsAtomicAndValidated(t *testing.T) {
	dir := t.TempDir()
	path := DrumsFile(dir, 2)
	if err := Save(path, &Pattern{Duration: 1}); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Save(empty) = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("invalid pattern must not create a file")
	}

	p, _ := Close([]Hit{{Class: classify.Hat, Timestamp: 0.5, Intensity: 0.4}}, 1.0)
	if err := Save(path, p); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "track_2_drums.txt" {
		t.Fatalf("directory holds %v", entries)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Hits) != 1 || got.Hits[0].Class != classify.Hat {
		t.Errorf("loaded %+v", got)
	}
}

func TestParseVariationFile(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{filepath.Join("x", "track_3_variation.txt"), 3, true},
		{"track_0_variation.txt", 0, true},
		{"track_3_drums.txt", 0, false},
		{"track__variation.txt", 0, false},
		{"track_3_variation.txt.swp", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseVariationFile(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseVariationFile(%q) = %d, %v", tt.in, got, ok)
		}
	}
	if got, ok := ParseVariationFile(VariationFile("d", 5)); !ok || got != 5 {
		t.Errorf("VariationFile round trip = %d, %v", got, ok)
	}
}
