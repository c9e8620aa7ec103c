// SPDX-License-Identifier: MIT
package classify

import (
	"fmt"
	"strconv"
	"strings"
)

// Label is a drum class id as written in pattern files.
type Label int

const (
	Kick Label = iota
	Snare
	Hat
	NumLabels
)

func (l Label) String() string {
	switch l {
	case Kick:
		return "kick"
	case Snare:
		return "snare"
	case Hat:
		return "hat"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

// Valid reports whether l is one of the fixed labels.
func (l Label) Valid() bool { return l >= 0 && l < NumLabels }

// ParseLabel accepts a label name or its numeric id.
func ParseLabel(s string) (Label, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "kick", "bd":
		return Kick, nil
	case "snare", "sd":
		return Snare, nil
	case "hat", "hihat", "hh":
		return Hat, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || !Label(n).Valid() {
		return 0, fmt.Errorf("unknown label %q", s)
	}
	return Label(n), nil
}
