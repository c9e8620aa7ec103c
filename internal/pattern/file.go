// SPDX-License-Identifier: MIT
package pattern

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"beatloop/internal/classify"
)

const (
	durationPrefix = "# Total loop duration:"
	sessionPrefix  = "# Session:"
)

// Read parses and validates a pattern file. Comment lines start with '#',
// the duration header is required.
func Read(r io.Reader) (*Pattern, error) {
	p := &Pattern{}
	haveDuration := false

	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		switch {
		case text == "":
			continue
		case strings.HasPrefix(text, durationPrefix):
			fields := strings.Fields(strings.TrimPrefix(text, durationPrefix))
			if len(fields) == 0 {
				return nil, fmt.Errorf("line %d: %w", line, ErrNoDuration)
			}
			d, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w: %v", line, ErrNoDuration, err)
			}
			p.Duration = d
			haveDuration = true
			continue
		case strings.HasPrefix(text, sessionPrefix):
			p.Session = strings.TrimSpace(strings.TrimPrefix(text, sessionPrefix))
			continue
		case strings.HasPrefix(text, "#"):
			continue
		}

		h, err := parseRow(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p.Hits = append(p.Hits, h)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !haveDuration {
		return nil, ErrNoDuration
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseRow(text string) (Hit, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 4 {
		return Hit{}, fmt.Errorf("%w: want 4 columns, got %d", ErrMalformedRow, len(parts))
	}
	class, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Hit{}, fmt.Errorf("%w: class: %v", ErrMalformedRow, err)
	}
	var vals [3]float64
	for i := range vals {
		vals[i], err = strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return Hit{}, fmt.Errorf("%w: column %d: %v", ErrMalformedRow, i+2, err)
		}
	}
	return Hit{Class: classify.Label(class), Timestamp: vals[0], Intensity: vals[1], Delta: vals[2]}, nil
}

// WriteTo writes the pattern in file format. Deltas are written as stored,
// so callers write patterns produced by Close or Read.
func (p *Pattern) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}
	fmt.Fprintf(cw, "# Track Drum Data\n")
	fmt.Fprintf(cw, "# Format: DRUM_CLASS,TIMESTAMP,VELOCITY,DELTA_TIME\n")
	fmt.Fprintf(cw, "# Classes: 0=kick, 1=snare, 2=hat\n")
	fmt.Fprintf(cw, "# DELTA_TIME: Duration until next hit (for last hit: time until loop end)\n")
	if p.Session != "" {
		fmt.Fprintf(cw, "%s %s\n", sessionPrefix, p.Session)
	}
	fmt.Fprintf(cw, "%s %.6f seconds\n", durationPrefix, p.Duration)
	for _, h := range p.Hits {
		fmt.Fprintf(cw, "%d,%.6f,%.6f,%.6f\n", h.Class, h.Timestamp, h.Intensity, h.Delta)
	}
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, bw.Flush()
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(b []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(b)
	c.n += int64(n)
	c.err = err
	return n, err
}

// Load reads and validates the pattern file at path.
func Load(path string) (*Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Save writes p to a temp file in the target directory and renames it into
// place, watchers never observe a partial file.
func Save(path string, p *Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pattern directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".pattern-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp pattern file: %w", err)
	}
	if _, err := p.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// DrumsFile is the exchange file name for a track's recorded pattern.
func DrumsFile(dir string, track int) string {
	return filepath.Join(dir, fmt.Sprintf("track_%d_drums.txt", track))
}

// VariationFile is the exchange file name the variation service writes.
func VariationFile(dir string, track int) string {
	return filepath.Join(dir, fmt.Sprintf("track_%d_variation.txt", track))
}

// ParseVariationFile extracts the track number from a variation file name.
func ParseVariationFile(path string) (int, bool) {
	name, ok := strings.CutPrefix(filepath.Base(path), "track_")
	if !ok {
		return 0, false
	}
	name, ok = strings.CutSuffix(name, "_variation.txt")
	if !ok {
		return 0, false
	}
	track, err := strconv.Atoi(name)
	if err != nil || track < 0 {
		return 0, false
	}
	return track, true
}
