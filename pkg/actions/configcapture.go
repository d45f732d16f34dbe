// Slicer config section capture
//
// Each flavour ends its file with a key/value dump of the slicing
// profile. On the begin marker this action replaces itself with a
// capturing action that stores every pair until the end marker.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package actions

import (
	"regexp"

	"ratos-postprocessor/pkg/metadata"
	"ratos-postprocessor/pkg/stream"
)

var configPairRe = regexp.MustCompile(`^; (\S+)\s=\s(.+)$`)

// configMarkers maps a flavour to its begin/end marker lines
var configMarkers = map[metadata.Flavour][2]string{
	metadata.FlavourPrusaSlicer: {"; prusaslicer_config = begin", "; prusaslicer_config = end"},
	metadata.FlavourOrcaSlicer:  {"; CONFIG_BLOCK_START", "; CONFIG_BLOCK_END"},
	metadata.FlavourSuperSlicer: {"; SuperSlicer_config = begin", "; SuperSlicer_config = end"},
}

// captureConfigStart waits for the flavour-specific begin marker, then
// swaps itself for the capturing action.
func captureConfigStart(c *stream.Context, st *State) (Outcome, error) {
	markers, ok := configMarkers[st.Ident.Flavour&^metadata.FlavourRatOS]
	if !ok {
		// Unknown generators have no config section to capture.
		return RemoveAndContinue(), nil
	}
	if c.Line() != markers[0] {
		return Continue(), nil
	}
	st.SlicerConfig = make(map[string]string)
	endMarker := markers[1]
	return Stop().WithReplacement(ActionItem(captureConfigPairs(endMarker))), nil
}

// captureConfigPairs stores every key/value line until the end marker
func captureConfigPairs(endMarker string) Action {
	return func(c *stream.Context, st *State) (Outcome, error) {
		line := c.Line()
		if line == endMarker {
			return RemoveAndContinue(), nil
		}
		if m := configPairRe.FindStringSubmatch(line); m != nil {
			st.SlicerConfig[m[1]] = m[2]
		}
		return Continue(), nil
	}
}
