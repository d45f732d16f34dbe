// Processing configuration for the RatOS post-processor
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/metadata"
)

// Knobs are the tunable parameters of the streaming pipeline. The defaults
// match observed slicer behaviour; changing a scan window is an explicit
// configuration decision, never a silent code change.
type Knobs struct {
	// LinesBehind and LinesAhead size the sliding window
	LinesBehind int `yaml:"lines_behind"`
	LinesAhead  int `yaml:"lines_ahead"`

	// ToolshiftScanWindow bounds the backward and forward walks around a
	// toolchange
	ToolshiftScanWindow int `yaml:"toolshift_scan_window"`

	// TowerScanWindow bounds the backward probe for the purge tower marker
	TowerScanWindow int `yaml:"tower_scan_window"`

	// TempScanWindow bounds the forward M104 scan after the layer-2 marker
	TempScanWindow int `yaml:"temp_scan_window"`

	// Padding reserved on bookmarked lines, in space characters
	IdentPadding      int `yaml:"ident_padding"`
	StartPrintPadding int `yaml:"start_print_padding"`
	LayerTempPadding  int `yaml:"layer_temp_padding"`
}

// DefaultKnobs returns the default pipeline tuning
func DefaultKnobs() Knobs {
	return Knobs{
		LinesBehind:         20,
		LinesAhead:          100,
		ToolshiftScanWindow: 19,
		TowerScanWindow:     100,
		TempScanWindow:      9,
		IdentPadding:        100,
		StartPrintPadding:   250,
		LayerTempPadding:    250,
	}
}

// SupportMatrix maps a flavour to the semver range of generator versions
// the transform actions were validated against.
type SupportMatrix struct {
	constraints map[metadata.Flavour]*semver.Constraints
}

// defaultRanges is the built-in allow-list per flavour.
var defaultRanges = map[metadata.Flavour]string{
	metadata.FlavourPrusaSlicer: "2.8.x",
	metadata.FlavourOrcaSlicer:  "2.1.1 || 2.2.0",
	metadata.FlavourSuperSlicer: "2.5.59 || 2.5.60",
	metadata.FlavourRatOS:       "0.1",
}

// DefaultSupportMatrix returns the built-in allow-list
func DefaultSupportMatrix() *SupportMatrix {
	m := &SupportMatrix{constraints: make(map[metadata.Flavour]*semver.Constraints, len(defaultRanges))}
	for flavour, rng := range defaultRanges {
		c, err := semver.NewConstraint(rng)
		if err != nil {
			// The built-in ranges are constants; a parse failure here is a
			// programmer error.
			panic(fmt.Sprintf("invalid built-in version range %q: %v", rng, err))
		}
		m.constraints[flavour] = c
	}
	return m
}

// Supports reports whether a generator version is in the allow-list for
// its flavour. Unknown flavours are never supported.
func (m *SupportMatrix) Supports(flavour metadata.Flavour, version *semver.Version) bool {
	if version == nil {
		return false
	}
	c, ok := m.constraints[flavour&^metadata.FlavourRatOS]
	if !ok {
		return false
	}
	return c.Check(version)
}

// SupportsDialect reports whether a RatOS dialect version is supported
func (m *SupportMatrix) SupportsDialect(version *semver.Version) bool {
	if version == nil {
		return false
	}
	return m.constraints[metadata.FlavourRatOS].Check(version)
}

// matrixFile is the on-disk override format:
//
//	slicers:
//	  prusaslicer: "2.8.x"
//	  orcaslicer: "2.1.1 || 2.2.0"
//	knobs:
//	  toolshift_scan_window: 25
type matrixFile struct {
	Slicers map[string]string `yaml:"slicers"`
	Knobs   *Knobs            `yaml:"knobs"`
}

// Load reads a yaml override file, merging it over the defaults. Flavour
// keys are generator names plus "ratos" for the dialect range.
func Load(path string) (*SupportMatrix, Knobs, error) {
	matrix := DefaultSupportMatrix()
	knobs := DefaultKnobs()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, knobs, errors.Wrap(err, errors.ErrResource,
			fmt.Sprintf("cannot read config file %s", path))
	}
	var f matrixFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, knobs, errors.Wrap(err, errors.ErrResource,
			fmt.Sprintf("cannot parse config file %s", path))
	}

	for name, rng := range f.Slicers {
		flavour := metadata.FlavourFromGenerator(name)
		if name == "ratos" {
			flavour = metadata.FlavourRatOS
		}
		if flavour == metadata.FlavourUnknown {
			return nil, knobs, errors.ResourceError(
				fmt.Sprintf("config file %s: unknown slicer %q", path, name))
		}
		c, err := semver.NewConstraint(rng)
		if err != nil {
			return nil, knobs, errors.Wrap(err, errors.ErrResource,
				fmt.Sprintf("config file %s: invalid version range %q for %s", path, rng, name))
		}
		matrix.constraints[flavour] = c
	}
	if f.Knobs != nil {
		knobs = mergeKnobs(knobs, *f.Knobs)
	}
	return matrix, knobs, nil
}

// mergeKnobs overlays non-zero override values on the defaults
func mergeKnobs(base, over Knobs) Knobs {
	if over.LinesBehind > 0 {
		base.LinesBehind = over.LinesBehind
	}
	if over.LinesAhead > 0 {
		base.LinesAhead = over.LinesAhead
	}
	if over.ToolshiftScanWindow > 0 {
		base.ToolshiftScanWindow = over.ToolshiftScanWindow
	}
	if over.TowerScanWindow > 0 {
		base.TowerScanWindow = over.TowerScanWindow
	}
	if over.TempScanWindow > 0 {
		base.TempScanWindow = over.TempScanWindow
	}
	if over.IdentPadding > 0 {
		base.IdentPadding = over.IdentPadding
	}
	if over.StartPrintPadding > 0 {
		base.StartPrintPadding = over.StartPrintPadding
	}
	if over.LayerTempPadding > 0 {
		base.LayerTempPadding = over.LayerTempPadding
	}
	return base
}
