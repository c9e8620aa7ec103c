// SPDX-License-Identifier: MIT
//
// Package looper owns the tracks. Onsets from the analysis pipeline become
// hits while a track records, recordings are quantized against the master
// reference, and playback runs on a virtual clock where every pending action
// executes exactly at its track's loop boundary.
//
// A Looper is single threaded: Process, Apply and HandleInbound must be
// called from one goroutine, Runner provides that goroutine for live use.
package looper

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"beatloop/internal/analysis"
	"beatloop/internal/classify"
	"beatloop/internal/config"
	"beatloop/internal/log"
	"beatloop/internal/master"
	"beatloop/internal/pattern"
	"beatloop/internal/sched"

	"github.com/google/uuid"
)

var logger = log.Component("looper")

var (
	ErrUnknownTrack = errors.New("unknown track")
	ErrBusy         = errors.New("track is busy")
	ErrNotRecording = errors.New("track is not recording")
	ErrNoTraining   = errors.New("no training pass in progress")
)

// Options carries the collaborators of a Looper, all optional.
type Options struct {
	Classifier *classify.Classifier
	Sink       Sink
	Notifier   Notifier
	Archive    Archive
	Examples   ExampleStore
}

// Looper is the transcription and playback core.
type Looper struct {
	sampleRate  float64
	maxRecord   int64
	syncStart   bool
	exchangeDir string

	pipeline   *analysis.Pipeline
	classifier *classify.Classifier
	master     *master.Engine
	sched      *sched.Scheduler
	tracks     []*Track

	sink     Sink
	notifier Notifier
	archive  Archive
	examples ExampleStore

	session   string
	takes     int
	intensity float64
	training  *trainingPass

	onsets  []analysis.Onset
	collect func(analysis.Onset)
}

type trainingPass struct {
	label    classify.Label
	examples []classify.Example
}

// New builds a looper from cfg.
func New(cfg *config.Config, opts Options) (*Looper, error) {
	sampleRate := cfg.Audio.SampleRate
	pipeline, err := analysis.NewPipeline(cfg.Analysis, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis pipeline: %w", err)
	}
	policy, err := master.ParsePolicy(cfg.Sync.MasterPolicy)
	if err != nil {
		return nil, err
	}
	engine, err := master.New(master.Config{
		Ratios:          cfg.Sync.Ratios,
		Policy:          policy,
		BPM:             cfg.Sync.BPM,
		BeatsPerMeasure: cfg.Sync.BeatsPerMeasure,
		SampleRate:      sampleRate,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Looper.Tracks < 1 {
		return nil, fmt.Errorf("looper needs at least one track, got %d", cfg.Looper.Tracks)
	}
	maxRecord := cfg.Looper.MaxRecordDuration
	if maxRecord <= 0 {
		maxRecord = 30 * time.Second
	}

	l := &Looper{
		sampleRate:  sampleRate,
		maxRecord:   int64(maxRecord.Seconds() * sampleRate),
		syncStart:   cfg.Looper.SyncStart,
		exchangeDir: cfg.Looper.ExchangeDir,
		pipeline:    pipeline,
		classifier:  opts.Classifier,
		master:      engine,
		sched:       sched.New(),
		sink:        opts.Sink,
		notifier:    opts.Notifier,
		archive:     opts.Archive,
		examples:    opts.Examples,
		session:     uuid.NewString(),
		intensity:   0.5,
	}
	if l.classifier == nil {
		l.classifier = classify.New(cfg.Classifier.K)
	}
	if l.sink == nil {
		l.sink = nopSink{}
	}
	if l.notifier == nil {
		l.notifier = nopNotifier{}
	}
	for i := range cfg.Looper.Tracks {
		l.tracks = append(l.tracks, &Track{ID: i + 1})
	}
	l.collect = func(o analysis.Onset) { l.onsets = append(l.onsets, o) }

	logger.Infof("session %s: %d tracks, grid %d samples", l.session, len(l.tracks), engine.Grid())
	return l, nil
}

// Now is the current virtual time in samples.
func (l *Looper) Now() int64 { return l.sched.Now() }

// SampleRate of the virtual clock.
func (l *Looper) SampleRate() float64 { return l.sampleRate }

// Session is the current recording session id.
func (l *Looper) Session() string { return l.session }

// Classifier returns the classifier used for live onsets.
func (l *Looper) Classifier() *classify.Classifier { return l.classifier }

// Track returns the track with the given 1-based id.
func (l *Looper) Track(id int) (*Track, error) {
	if id < 1 || id > len(l.tracks) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTrack, id)
	}
	return l.tracks[id-1], nil
}

// Process runs a block of mono samples through the analysis pipeline and
// advances the virtual clock past it. Onsets are handled in stream order,
// interleaved with the playback events due before them.
func (l *Looper) Process(samples []float32) {
	base := l.sched.Now() - l.pipeline.Position()
	end := l.sched.Now() + int64(len(samples))

	l.onsets = l.onsets[:0]
	l.pipeline.Process(samples, l.collect)
	for _, o := range l.onsets {
		at := base + o.At
		l.sched.AdvanceTo(at)
		l.handleOnset(o, at)
	}
	l.sched.AdvanceTo(end)
}

// Advance moves the clock to t without audio, running due events.
func (l *Looper) Advance(t int64) { l.sched.AdvanceTo(t) }

// Skip moves the clock over n samples of input that were never analysed.
// Onsets after the gap keep their stream time.
func (l *Looper) Skip(n int64) {
	if n > 0 {
		l.sched.AdvanceTo(l.sched.Now() + n)
	}
}

func (l *Looper) handleOnset(o analysis.Onset, at int64) {
	label := l.classifier.Classify(o.Vector)
	l.sink.Publish(Event{Kind: KindOnset, At: at, Class: label.String(), Intensity: o.Intensity})

	if l.training != nil {
		l.training.examples = append(l.training.examples, classify.Example{Vector: o.Vector, Label: l.training.label})
	}
	for _, t := range l.tracks {
		if t.State != Recording || at < t.recStart {
			continue
		}
		t.recHits = append(t.recHits, pattern.Hit{
			Class:     label,
			Timestamp: l.seconds(at - t.recStart),
			Intensity: o.Intensity,
		})
	}
}

// Apply executes a control command at the current virtual time. Recording
// and parameter commands act immediately, clear, load, toggle and regenerate
// are queued for the track's next loop boundary.
func (l *Looper) Apply(cmd Command) error {
	switch cmd.Kind {
	case CmdIntensity:
		l.intensity = max(0, min(1, cmd.Value))
		l.notifier.ParameterChanged("variation_intensity", l.intensity)
		return nil
	case CmdTrain:
		return l.startTraining(cmd.Label)
	case CmdTrainCommit:
		return l.commitTraining()
	case CmdTrainCancel:
		return l.cancelTraining()
	case CmdReset:
		l.reset()
		return nil
	}

	t, err := l.Track(cmd.Track)
	if err != nil {
		return err
	}
	switch cmd.Kind {
	case CmdRecord:
		return l.startRecording(t)
	case CmdStop:
		return l.stopRecording(t)
	case CmdClear:
		l.queue(t, Action{Kind: ActionClear})
	case CmdToggle:
		l.queue(t, Action{Kind: ActionToggle})
	case CmdRegenerate:
		l.queue(t, Action{Kind: ActionRegenerate})
	case CmdLoad:
		p, err := pattern.Load(cmd.Path)
		if err != nil {
			return fmt.Errorf("track %d: %w", t.ID, err)
		}
		l.queue(t, Action{Kind: ActionLoad, Pattern: p, Source: cmd.Path})
	default:
		return fmt.Errorf("unsupported command %s", cmd)
	}
	return nil
}

// HandleInbound applies a notification from the variation service.
func (l *Looper) HandleInbound(n Notification) {
	switch n.Kind {
	case VariationsReady:
		if n.Track < 0 {
			for _, t := range l.tracks {
				l.loadAlternate(t, false)
			}
			return
		}
		t, err := l.Track(n.Track)
		if err != nil {
			l.diagnostic(0, fmt.Sprintf("variation for %v", err))
			return
		}
		l.loadAlternate(t, true)
	case GenerationProgress:
		logger.Infof("variation service: %s", n.Text)
	case GenerationError:
		l.diagnostic(n.Track, "variation service: "+n.Text)
	}
}

func (l *Looper) loadAlternate(t *Track, required bool) {
	if l.exchangeDir == "" {
		l.diagnostic(t.ID, "variation ready but no exchange directory is configured")
		return
	}
	path := pattern.VariationFile(l.exchangeDir, t.ID)
	p, err := pattern.Load(path)
	if err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			l.diagnostic(t.ID, fmt.Sprintf("variation rejected: %v", err))
		}
		return
	}
	t.alternate = p
	logger.Infof("track %d: variation loaded (%d hits, %.3fs)", t.ID, len(p.Hits), p.Duration)
	l.publishState(t)
}

func (l *Looper) reset() {
	for _, t := range l.tracks {
		t.Session++
		t.State = Idle
		t.pending = nil
		t.armed = false
		t.current, t.original, t.alternate = nil, nil, nil
		t.onAlternate = false
		t.playing = false
		t.offsets = nil
		t.length = 0
		t.recHits = nil
		t.recGen++
		t.waitGen++
		l.publishState(t)
	}
	l.master.Reset()
	l.training = nil
	l.takes = 0
	l.session = uuid.NewString()
	logger.Infof("session reset, new session %s", l.session)
}

func (l *Looper) diagnostic(track int, msg string) {
	if track > 0 {
		logger.Warnf("track %d: %s", track, msg)
	} else {
		logger.Warnf("%s", msg)
	}
	l.sink.Publish(Event{Kind: KindDiagnostic, Track: track, At: l.sched.Now(), Message: msg})
}

// Diagnostic surfaces an operator message through the log and the sink.
func (l *Looper) Diagnostic(track int, msg string) { l.diagnostic(track, msg) }

func (l *Looper) publishState(t *Track) {
	l.sink.Publish(Event{Kind: KindState, Track: t.ID, At: l.sched.Now(), Session: t.Session, State: t.State.String()})
}

func (l *Looper) seconds(samples int64) float64 { return float64(samples) / l.sampleRate }
