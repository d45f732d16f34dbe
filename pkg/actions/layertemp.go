// Other-layer temperature fix for OrcaSlicer and SuperSlicer
//
// Both slicers emit M104 lines after the layer-2 marker that address the
// active tool only, leaving the inactive IDEX toolhead at its first-layer
// temperature. The captured lines are commented out at finalisation and a
// corrected per-tool set is appended after the marker.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package actions

import (
	"strings"

	"ratos-postprocessor/pkg/gcode"
	"ratos-postprocessor/pkg/stream"
)

const layerTwoMarker = "_ON_LAYER_CHANGE LAYER=2"

// fixLayerTemps pads and bookmarks the layer-2 marker and every M104 line
// within the scan window, recording handles for the finalisation pass.
func fixLayerTemps(c *stream.Context, st *State) (Outcome, error) {
	line := c.Line()
	if !strings.HasPrefix(line, layerTwoMarker) {
		return Continue(), nil
	}

	key := st.Registry.NewKey()
	c.SetLine(line + strings.Repeat(" ", st.Knobs.LayerTempPadding))
	if err := c.Bookmark(key); err != nil {
		return Stop(), err
	}
	st.LayerTwo = &Handle{Line: line, Key: key}

	for _, nc := range c.ScanForward(st.Knobs.TempScanWindow) {
		l := nc.Line()
		if !strings.HasPrefix(l, "M104 S") {
			continue
		}
		tempKey := st.Registry.NewKey()
		// Reserve exactly the room the removed-by prefix needs.
		nc.SetLine(l + strings.Repeat(" ", len(gcode.RemovedByPostProcessor)))
		if err := nc.Bookmark(tempKey); err != nil {
			return Stop(), err
		}
		st.TempLines = append(st.TempLines, &Handle{Line: l, Key: tempKey})
	}

	return RemoveAndStop(), nil
}
