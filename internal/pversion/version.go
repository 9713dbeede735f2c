// Copyright 2023-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pversion reports which code the running binary was built from.
package pversion

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/coreos/go-semver/semver"
	k8sstrings "k8s.io/utils/strings"
)

// readBuildInfo is meant to be overwritten by tests.
//
//nolint:gochecknoglobals // these are swapped during unit tests.
var readBuildInfo = debug.ReadBuildInfo

// gitVersion is set using a linker flag
// -ldflags "-X 'go.loginrelay.dev/internal/pversion.gitVersion=v9.8.7'"
// (or set for unit tests).
//
//nolint:gochecknoglobals // these are swapped during unit tests.
var gitVersion string

const (
	TreeStateClean = "clean"
	TreeStateDirty = "dirty"
)

// Info describes a build.
type Info struct {
	Version   string `json:"version"`
	Major     int64  `json:"major"`
	Minor     int64  `json:"minor"`
	Patch     int64  `json:"patch"`
	Commit    string `json:"commit,omitempty"`
	TreeState string `json:"treeState"`
	BuildDate string `json:"buildDate,omitempty"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func (i Info) String() string {
	return fmt.Sprintf("loginrelay %s (%s, %s)", i.Version, i.GoVersion, i.Platform)
}

// Get combines the linker provided version with the VCS information that the go tool embeds in the binary.
// A missing or unparsable version is reported as v0.0.0 suffixed with the short commit and tree state.
func Get() Info {
	info := Info{
		Version:   "v0.0.0",
		TreeState: TreeStateDirty,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if v, err := semver.NewVersion(strings.TrimPrefix(gitVersion, "v")); err == nil && v != nil {
		info.Version = gitVersion
		info.Major = v.Major
		info.Minor = v.Minor
		info.Patch = v.Patch
	}

	if buildInfo, ok := readBuildInfo(); ok && buildInfo != nil {
		for _, setting := range buildInfo.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.Commit = setting.Value
			case "vcs.time":
				info.BuildDate = setting.Value
			case "vcs.modified":
				if setting.Value == "false" {
					info.TreeState = TreeStateClean
				}
			}
		}
	}

	if info.Version == "v0.0.0" && info.Commit != "" {
		info.Version += fmt.Sprintf("-%s-%s", k8sstrings.ShortenString(info.Commit, 8), info.TreeState)
	}

	return info
}
