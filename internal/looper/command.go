// SPDX-License-Identifier: MIT
package looper

import (
	"fmt"
	"strconv"
	"strings"

	"beatloop/internal/classify"
)

// CommandKind enumerates the control vocabulary.
type CommandKind int

const (
	CmdRecord CommandKind = iota
	CmdStop
	CmdClear
	CmdLoad
	CmdToggle
	CmdIntensity
	CmdRegenerate
	CmdTrain
	CmdTrainCommit
	CmdTrainCancel
	CmdReset
)

// Command is one control request.
type Command struct {
	Kind  CommandKind
	Track int
	Path  string
	Value float64
	Label classify.Label
}

// ParseCommand reads the text form used on the websocket and the console:
//
//	record 1 | stop 1 | clear 1 | load 1 path | toggle 1 | regenerate 1
//	intensity 0.7 | train kick | train commit | train cancel | reset
func ParseCommand(s string) (Command, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	trackArg := func(kind CommandKind) (Command, error) {
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%s: want a track number", verb)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return Command{}, fmt.Errorf("%s: bad track %q", verb, args[0])
		}
		return Command{Kind: kind, Track: n}, nil
	}

	switch verb {
	case "record", "rec":
		return trackArg(CmdRecord)
	case "stop":
		return trackArg(CmdStop)
	case "clear":
		return trackArg(CmdClear)
	case "toggle":
		return trackArg(CmdToggle)
	case "regenerate", "regen":
		return trackArg(CmdRegenerate)
	case "load":
		if len(args) < 2 {
			return Command{}, fmt.Errorf("load: want a track number and a file")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return Command{}, fmt.Errorf("load: bad track %q", args[0])
		}
		return Command{Kind: CmdLoad, Track: n, Path: strings.Join(args[1:], " ")}, nil
	case "intensity":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("intensity: want a value")
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil || v < 0 || v > 1 {
			return Command{}, fmt.Errorf("intensity: %q is not in 0..1", args[0])
		}
		return Command{Kind: CmdIntensity, Value: v}, nil
	case "train":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("train: want a label, commit or cancel")
		}
		switch strings.ToLower(args[0]) {
		case "commit":
			return Command{Kind: CmdTrainCommit}, nil
		case "cancel":
			return Command{Kind: CmdTrainCancel}, nil
		}
		label, err := classify.ParseLabel(args[0])
		if err != nil {
			return Command{}, fmt.Errorf("train: %w", err)
		}
		return Command{Kind: CmdTrain, Label: label}, nil
	case "reset":
		if len(args) != 0 {
			return Command{}, fmt.Errorf("reset takes no arguments")
		}
		return Command{Kind: CmdReset}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", verb)
	}
}

func (c Command) String() string {
	switch c.Kind {
	case CmdRecord:
		return fmt.Sprintf("record %d", c.Track)
	case CmdStop:
		return fmt.Sprintf("stop %d", c.Track)
	case CmdClear:
		return fmt.Sprintf("clear %d", c.Track)
	case CmdLoad:
		return fmt.Sprintf("load %d %s", c.Track, c.Path)
	case CmdToggle:
		return fmt.Sprintf("toggle %d", c.Track)
	case CmdIntensity:
		return fmt.Sprintf("intensity %g", c.Value)
	case CmdRegenerate:
		return fmt.Sprintf("regenerate %d", c.Track)
	case CmdTrain:
		return "train " + c.Label.String()
	case CmdTrainCommit:
		return "train commit"
	case CmdTrainCancel:
		return "train cancel"
	case CmdReset:
		return "reset"
	default:
		return fmt.Sprintf("command(%d)", int(c.Kind))
	}
}
