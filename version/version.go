// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package version

import (
	"fmt"
	"strings"
	"time"
)

// Build information, filled in through -ldflags by the release build.
var (
	// BuildDate is the RFC3339 time of the commit the binary was built from.
	BuildDate string

	// GitCommit is the commit the binary was built from.
	GitCommit string

	// GitDescribe is the output of git describe, and replaces Version when
	// set.
	GitDescribe string
)

var (
	// Version is the release this tree will become.
	Version = "0.1.0"

	// VersionPrerelease marks a pre-release such as "dev" or "rc1". It is
	// empty for final releases.
	VersionPrerelease = "dev"

	// VersionMetadata further describes the build, for example "ent".
	VersionMetadata = ""
)

// VersionInfo describes the running build.
type VersionInfo struct {
	BuildDate         time.Time
	Revision          string
	Version           string
	VersionPrerelease string
	VersionMetadata   string
}

// GetVersion returns the version of the running binary.
func GetVersion() *VersionInfo {
	ver := Version
	if GitDescribe != "" {
		ver = strings.TrimPrefix(GitDescribe, "v")
	}

	// An unparseable build date is left as the zero time.
	built, _ := time.Parse(time.RFC3339, BuildDate)

	return &VersionInfo{
		BuildDate:         built,
		Revision:          GitCommit,
		Version:           ver,
		VersionPrerelease: VersionPrerelease,
		VersionMetadata:   VersionMetadata,
	}
}

func (v *VersionInfo) Copy() *VersionInfo {
	if v == nil {
		return nil
	}
	nv := *v
	return &nv
}

// VersionNumber returns the semantic version, for example 0.1.0-dev+ent.
func (v *VersionInfo) VersionNumber() string {
	version := v.Version
	if v.VersionPrerelease != "" {
		version += "-" + v.VersionPrerelease
	}
	if v.VersionMetadata != "" {
		version += "+" + v.VersionMetadata
	}
	return version
}

// FullVersionNumber returns the version line printed by the CLI, followed
// by the build date and, when rev is set, the revision.
func (v *VersionInfo) FullVersionNumber(rev bool) string {
	lines := []string{fmt.Sprintf("hostpool v%s", v.VersionNumber())}
	if !v.BuildDate.IsZero() {
		lines = append(lines, "BuildDate "+v.BuildDate.Format(time.RFC3339))
	}
	if rev && v.Revision != "" {
		lines = append(lines, "Revision "+v.Revision)
	}
	return strings.Join(lines, "\n")
}
