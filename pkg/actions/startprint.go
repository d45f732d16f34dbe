// START_PRINT discovery action
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package actions

import (
	"regexp"
	"strings"

	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/gcode"
	"ratos-postprocessor/pkg/stream"
)

var (
	initialToolRe    = regexp.MustCompile(`INITIAL_TOOL=(\d+)`)
	otherLayerTempRe = regexp.MustCompile(`EXTRUDER_OTHER_LAYER_TEMP=([\d,]+)`)
)

// findStartPrint looks for the START_PRINT (or RMMU_START_PRINT) macro
// call. Until it is found, nothing after it in the sequence runs; a
// movement or toolchange before it is a hard error.
func findStartPrint(c *stream.Context, st *State) (Outcome, error) {
	line := c.Line()
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed[0] == ';' {
		return Stop(), nil
	}

	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "START_PRINT") || strings.HasPrefix(upper, "RMMU_START_PRINT") {
		st.RMMU = strings.HasPrefix(upper, "RMMU_START_PRINT")

		// Slicers emit colour variables with a leading '#'; strip them so
		// the macro parser downstream does not choke.
		fixed := strings.ReplaceAll(line, "#", "")

		if m := initialToolRe.FindStringSubmatch(fixed); m != nil {
			st.AddUsedTool(m[1])
		}
		if m := otherLayerTempRe.FindStringSubmatch(fixed); m != nil {
			st.ExtruderTemps = strings.Split(m[1], ",")
		}

		key := st.Registry.NewKey()
		c.SetLine(fixed + strings.Repeat(" ", st.Knobs.StartPrintPadding))
		if err := c.Bookmark(key); err != nil {
			return Stop(), err
		}
		st.StartPrint = &Handle{Line: fixed, Key: key}
		return RemoveAndStop(), nil
	}

	if cmd := gcode.ParseLine(line); cmd != nil {
		return Stop(), errors.GCodeError(
			"movement before START_PRINT; file is missing the start macro", c.LineNumber(), line)
	}
	return Stop(), nil
}
