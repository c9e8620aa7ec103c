// SPDX-License-Identifier: MIT
package classify

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"beatloop/internal/feature"
)

// Header is the training CSV header row.
func Header() []string {
	return append([]string{"label"}, feature.Names[:]...)
}

// ReadCSV parses a training set. A header row is optional.
func ReadCSV(r io.Reader) ([]Example, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 1 + feature.Dims
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var out []Example
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("training csv: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "label") {
			continue
		}
		label, err := ParseLabel(rec[0])
		if err != nil {
			return nil, fmt.Errorf("training csv line %d: %w", line, err)
		}
		ex := Example{Label: label}
		for d := range feature.Dims {
			f, err := strconv.ParseFloat(strings.TrimSpace(rec[1+d]), 64)
			if err != nil {
				return nil, fmt.Errorf("training csv line %d column %s: %w", line, feature.Names[d], err)
			}
			ex.Vector[d] = f
		}
		out = append(out, ex)
	}
	if len(out) == 0 {
		return nil, ErrNoExamples
	}
	return out, nil
}

// WriteCSV writes examples with a header row.
func WriteCSV(w io.Writer, examples []Example) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	rec := make([]string, 1+feature.Dims)
	for _, ex := range examples {
		rec[0] = ex.Label.String()
		for d := range feature.Dims {
			rec[1+d] = strconv.FormatFloat(ex.Vector[d], 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadFile reads a training CSV from disk.
func LoadFile(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// SaveFile writes a training CSV next to path and renames it into place.
func SaveFile(path string, examples []Example) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".training-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp training file: %w", err)
	}
	if err := WriteCSV(tmp, examples); err != nil {
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

// FileStore persists training sets as a CSV file at the given path.
type FileStore string

func (f FileStore) SaveExamples(examples []Example) error {
	return SaveFile(string(f), examples)
}

// LoadExamples returns ErrNoExamples when the file is missing or empty.
func (f FileStore) LoadExamples() ([]Example, error) {
	examples, err := LoadFile(string(f))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoExamples
	}
	if err != nil {
		return nil, err
	}
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}
	return examples, nil
}
