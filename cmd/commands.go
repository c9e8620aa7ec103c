// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"beatloop/internal/audio"
	"beatloop/internal/classify"
	"beatloop/internal/config"
	"beatloop/internal/log"
	"beatloop/internal/looper"
	"beatloop/internal/pattern"
	"beatloop/internal/storage"
	"beatloop/internal/tui"
	"beatloop/pkg/signal"
)

var logger = log.Component("cmd")

// Execute runs a one-off command that doesn't need the live looper. Results
// go to w, diagnostics to the log.
func Execute(inv *Invocation, w io.Writer) error {
	switch inv.Command {
	case "list":
		if inv.Interactive {
			return pickDevice(w)
		}
		return audio.ListDevices(w)
	case "transcribe":
		return transcribe(inv, w)
	case "train":
		return train(inv, w)
	case "validate":
		return validate(inv.Args, w)
	case "synth":
		return synth(inv, w)
	case "takes":
		return takes(inv, w)
	default:
		return fmt.Errorf("unknown command %q", inv.Command)
	}
}

// OpenStore opens the configured database, nil when none is configured.
func OpenStore(cfg *config.Config) (*storage.DB, error) {
	if cfg.Database.Path == "" {
		return nil, nil
	}
	return storage.Open(cfg.Database.Path)
}

// TrainingStore is where a classifier's training set lives.
type TrainingStore interface {
	looper.ExampleStore
	LoadExamples() ([]classify.Example, error)
}

// ExampleStore picks the database when it is open, the CSV training file
// otherwise.
func ExampleStore(cfg *config.Config, db *storage.DB) TrainingStore {
	if db != nil {
		return db
	}
	return classify.FileStore(cfg.Classifier.TrainingFile)
}

// LoadClassifier trains a classifier from the configured store. With no
// training set the classifier stays untrained and uses the fallback rules.
func LoadClassifier(cfg *config.Config, db *storage.DB) (*classify.Classifier, error) {
	c := classify.New(cfg.Classifier.K)
	examples, err := ExampleStore(cfg, db).LoadExamples()
	switch {
	case errors.Is(err, classify.ErrNoExamples):
		logger.Warnf("no training examples, classifying with fallback rules")
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("load training set: %w", err)
	}
	c.Train(examples)
	counts := c.Counts()
	logger.Infof("classifier trained on %d examples (kick %d, snare %d, hat %d)",
		len(examples), counts[classify.Kick], counts[classify.Snare], counts[classify.Hat])
	return c, nil
}

func pickDevice(w io.Writer) error {
	sel, err := tui.PickDevice()
	if err != nil || sel == nil {
		return err
	}
	doc, err := sel.YAML()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, doc)
	return err
}

// readInput loads a WAV file and returns a config copy running at its rate.
func readInput(cfg *config.Config, path string) (*config.Config, []float32, error) {
	samples, rate, err := audio.ReadWAV(path)
	if err != nil {
		return nil, nil, err
	}
	c := *cfg
	if rate != c.Audio.SampleRate {
		logger.Infof("%s is %.0f Hz, analysing at the file rate", path, rate)
		c.Audio.SampleRate = rate
		if err := c.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return &c, samples, nil
}

func transcribe(inv *Invocation, w io.Writer) error {
	db, err := OpenStore(inv.Config)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	classifier, err := LoadClassifier(inv.Config, db)
	if err != nil {
		return err
	}

	cfg, samples, err := readInput(inv.Config, inv.Args[0])
	if err != nil {
		return err
	}
	p, err := looper.Transcribe(cfg, classifier, samples)
	if err != nil {
		return fmt.Errorf("%s: %w", inv.Args[0], err)
	}
	counts := p.Counts()
	logger.Infof("%s: %d hits over %.3fs (kick %d, snare %d, hat %d)", inv.Args[0], len(p.Hits), p.Duration,
		counts[classify.Kick], counts[classify.Snare], counts[classify.Hat])

	return writePattern(p, inv.Output, w)
}

func writePattern(p *pattern.Pattern, path string, w io.Writer) error {
	if path == "" {
		_, err := p.WriteTo(w)
		return err
	}
	if err := pattern.Save(path, p); err != nil {
		return err
	}
	fmt.Fprintf(w, "Pattern saved to: %s\n", path)
	return nil
}

func train(inv *Invocation, w io.Writer) error {
	db, err := OpenStore(inv.Config)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	store := ExampleStore(inv.Config, db)
	if inv.Output != "" {
		store = classify.FileStore(inv.Output)
	}

	var examples []classify.Example
	if !inv.Replace {
		existing, err := store.LoadExamples()
		if err != nil && !errors.Is(err, classify.ErrNoExamples) {
			return err
		}
		examples = existing
	}

	sets := []struct {
		label classify.Label
		files []string
	}{
		{classify.Kick, inv.Kick},
		{classify.Snare, inv.Snare},
		{classify.Hat, inv.Hat},
	}
	for _, set := range sets {
		for _, path := range set.files {
			cfg, samples, err := readInput(inv.Config, path)
			if err != nil {
				return err
			}
			found, err := looper.CollectExamples(cfg, set.label, samples)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				logger.Warnf("%s: no onsets detected", path)
			}
			fmt.Fprintf(w, "%s: %d %s examples\n", path, len(found), set.label)
			examples = append(examples, found...)
		}
	}
	if len(examples) == 0 {
		return classify.ErrNoExamples
	}
	if err := store.SaveExamples(examples); err != nil {
		return err
	}
	fmt.Fprintf(w, "Training set of %d examples saved\n", len(examples))
	return nil
}

func validate(paths []string, w io.Writer) error {
	var errs []error
	for _, path := range paths {
		p, err := pattern.Load(path)
		if err != nil {
			errs = append(errs, err)
			fmt.Fprintf(w, "FAIL %v\n", err)
			continue
		}
		fmt.Fprintf(w, "ok   %s: %d hits, %.6fs\n", path, len(p.Hits), p.Duration)
	}
	return errors.Join(errs...)
}

// synth renders a rock beat: kicks on beats 1 and 3, snares on 2 and 4, hats
// on the off-beats.
func synth(inv *Invocation, w io.Writer) error {
	cfg := inv.Config
	bars := max(inv.Bars, 1)
	beat := 60 / cfg.Sync.BPM
	beats := bars * cfg.Sync.BeatsPerMeasure

	var hits []signal.Hit
	for b := range beats {
		at := float64(b) * beat
		kind := signal.Thump
		if b%2 == 1 {
			kind = signal.Crack
		}
		hits = append(hits,
			signal.Hit{At: at, Kind: kind, Amplitude: 0.8},
			signal.Hit{At: at + beat/2, Kind: signal.Tick, Amplitude: 0.5},
		)
	}

	duration := float64(beats) * beat
	samples := signal.Render(duration, cfg.Audio.SampleRate, hits, 1)
	if err := audio.WriteWAV(inv.Args[0], samples, cfg.Audio.SampleRate, cfg.Recording.BitDepth); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %d hits over %.3fs to %s\n", len(hits), duration, inv.Args[0])
	return nil
}

func takes(inv *Invocation, w io.Writer) error {
	db, err := storage.Open(inv.Config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if inv.Export != 0 {
		p, err := db.LoadTake(inv.Export)
		if err != nil {
			return err
		}
		return writePattern(p, inv.Output, w)
	}

	session := ""
	if len(inv.Args) > 0 {
		session = inv.Args[0]
	}
	list, err := db.Takes(session)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No takes archived.")
		return nil
	}
	fmt.Fprintf(w, "%-6s %-36s %-5s %-4s %-10s %-5s %s\n", "ID", "Session", "Track", "Take", "Duration", "Hits", "Created")
	for _, t := range list {
		fmt.Fprintf(w, "%-6d %-36s %-5d %-4d %-10.3f %-5d %s\n",
			t.ID, t.Session, t.Track, t.Take, t.Duration, t.Hits, t.Created.Local().Format(time.DateTime))
	}
	return nil
}
