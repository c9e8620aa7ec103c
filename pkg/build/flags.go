// SPDX-License-Identifier: MIT
//
// Package build exposes metadata embedded at link time: application name,
// build timestamp, git commit and semantic version, for example:
//
//	go build -ldflags "-X beatloop/pkg/build.buildName=beatloop -X beatloop/pkg/build.buildVersion=0.3.0"
//
// Development builds carry no ldflags, they report "dev" values instead of
// failing so the binary stays usable from `go run`.
package build

import (
	"errors"
	"fmt"
)

// Info is the build information reported by --version and the monitor header.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultInfo()
)

func defaultInfo() *Info {
	return &Info{
		Name:        "beatloop",
		Description: "Beatbox transcription looper with master-synchronised tracks",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the ldflags variables into the build information. Every
// flag that is present is applied; the returned error lists the missing ones
// so release pipelines can fail while development builds only warn.
func Initialize() error {
	var errs []error
	set := func(dst *string, val, name string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			return
		}
		*dst = val
	}

	set(&buildFlags.Name, buildName, "BuildName")
	set(&buildFlags.Time, buildTime, "BuildTime")
	set(&buildFlags.Commit, buildCommit, "BuildCommit")
	set(&buildFlags.Version, buildVersion, "BuildVersion")

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}

// String renders a one-line version banner.
func (i *Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}
