// Post-processor version discovery
//
// The version stamped into the processed-by line comes from git describe
// in the RatOS script checkout (RATOS_SCRIPT_DIR), mirroring how the host
// computes its own version. A missing checkout falls back to the
// compiled-in version.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package postprocess

import (
	"os/exec"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/viper"
)

// FallbackVersion is the compiled-in version used when git describe is
// unavailable.
const FallbackVersion = "0.2.0"

var (
	versionOnce   sync.Once
	versionString string
	versionParsed *semver.Version
)

// Version returns the post-processor version string
func Version() string {
	versionOnce.Do(resolveVersion)
	return versionString
}

// HostVersion returns the post-processor version as semver, for the
// printability comparisons.
func HostVersion() *semver.Version {
	versionOnce.Do(resolveVersion)
	return versionParsed
}

func resolveVersion() {
	versionString = FallbackVersion
	versionParsed = semver.MustParse(FallbackVersion)

	v := viper.New()
	_ = v.BindEnv("script_dir", "RATOS_SCRIPT_DIR")
	dir := v.GetString("script_dir")
	if dir == "" {
		return
	}

	out, err := exec.Command("git", "-C", dir, "describe",
		"--always", "--tags", "--long", "--dirty").Output()
	if err != nil {
		return
	}
	described := strings.TrimPrefix(strings.TrimSpace(string(out)), "v")
	parsed, err := semver.NewVersion(described)
	if err != nil {
		// A bare commit hash (no tags yet) is not comparable; keep the
		// fallback for comparisons but stamp the described string.
		versionString = described
		return
	}
	versionString = described
	versionParsed = parsed
}
