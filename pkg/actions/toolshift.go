// Toolchange to toolshift rewriting
//
// On IDEX machines a slicer tool-change block (retract, z-hop, park,
// travel) collapses into a single atomic toolshift instruction carrying
// the destination coordinates. The surrounding retract and z-hop moves are
// redacted unless the print uses a purge tower, which needs them.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package actions

import (
	"fmt"
	"strings"

	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/gcode"
	"ratos-postprocessor/pkg/stream"
)

// purgeTowerMarker is emitted by PrusaSlicer-family slicers at the start
// of every wipe-tower toolchange block.
const purgeTowerMarker = "; CP TOOLCHANGE START"

// wipeEndMarker protects the retract that belongs to a wipe move
const wipeEndMarker = ";WIPE_END"

// rewriteToolchange is the only handler for T lines in the common-command
// sub-sequence.
func rewriteToolchange(c *stream.Context, st *State) (Outcome, error) {
	cmd := st.Cmd
	if !cmd.IsToolchange() {
		return Continue(), nil
	}

	st.ToolChangeCount++
	line := c.Line()

	// The slicer's initial tool selection is redundant: START_PRINT
	// already selects the initial tool.
	if st.ToolChangeCount == 1 {
		c.SetLine(gcode.RemovedByPostProcessor + line)
		return Stop(), nil
	}

	st.AddUsedTool(cmd.Value)

	if st.HasPurgeTower == nil {
		found := false
		for _, nc := range c.ScanBack(st.Knobs.TowerScanWindow) {
			if strings.HasPrefix(nc.Line(), purgeTowerMarker) {
				found = true
				break
			}
		}
		st.HasPurgeTower = &found
	}
	purge := *st.HasPurgeTower

	if !purge {
		redactBeforeToolchange(c, st)
	}

	x, y, z, err := scanAfterToolchange(c, st, purge)
	if err != nil {
		return Stop(), err
	}

	var replacement string
	if st.RMMU {
		replacement = fmt.Sprintf("TOOL T=%s X=%s Y=%s", cmd.Value, x, y)
		if z != "" {
			replacement += " Z=" + z
		}
	} else {
		replacement = fmt.Sprintf("T%s X%s Y%s", cmd.Value, x, y)
		if z != "" {
			replacement += " Z" + z
		}
	}
	c.SetLine(replacement)
	return Stop(), nil
}

// redactBeforeToolchange walks backwards from the T line, commenting out
// the retract and z-hop moves that precede it, and stops at the first XY
// move (the end of the previous printing region). Retracts that belong to
// a wipe move are exempt.
func redactBeforeToolchange(c *stream.Context, st *State) {
	stopped := false
	for i := 1; i <= st.Knobs.ToolshiftScanWindow; i++ {
		nc, ok := c.GetLine(-i)
		if !ok {
			break
		}
		pcmd := gcode.ParseLine(nc.Line())
		if pcmd == nil || !pcmd.IsMove() {
			continue
		}
		if pcmd.X != "" || pcmd.Y != "" {
			stopped = true
			break
		}
		if pcmd.E != "" || pcmd.Z != "" {
			if !nearWipeEnd(c, -i) {
				nc.SetLine(gcode.RemovedByPostProcessor + nc.Line())
			}
		}
	}
	if !stopped {
		st.Warn(errors.SmellWarning(
			"backward toolchange scan ended without finding an XY move", c.LineNumber()))
	}
}

// nearWipeEnd reports whether any line within two of the given offset is a
// wipe-end comment.
func nearWipeEnd(c *stream.Context, offset int) bool {
	for d := -2; d <= 2; d++ {
		nc, ok := c.GetLine(offset + d)
		if !ok {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(nc.Line()), wipeEndMarker) {
			return true
		}
	}
	return false
}

// scanAfterToolchange walks forward from the T line collecting the first
// XY-bearing move (required) and the trailing z-hop moves. Without a
// purge tower the extrusion moves and all but the last Z move are
// redacted; the captured coordinates become the toolshift destination.
func scanAfterToolchange(c *stream.Context, st *State, purge bool) (x, y, z string, err error) {
	xyFound := false
	var zContexts []*stream.Context

	for i := 1; i <= st.Knobs.ToolshiftScanWindow; i++ {
		nc, ok := c.GetLine(i)
		if !ok {
			break
		}
		pcmd := gcode.ParseLine(nc.Line())
		if pcmd == nil || !pcmd.IsMove() {
			continue
		}

		if xyFound && (pcmd.X != "" || pcmd.Y != "") {
			// The next travel after the toolshift destination ends the block.
			break
		}
		if !xyFound && pcmd.HasXY() {
			x, y = pcmd.X, pcmd.Y
			xyFound = true
			continue
		}
		if pcmd.X != "" || pcmd.Y != "" {
			continue
		}

		if pcmd.Z != "" {
			z = pcmd.Z
			zContexts = append(zContexts, nc)
			continue
		}
		if pcmd.E != "" && !purge {
			nc.SetLine(gcode.RemovedByPostProcessor + nc.Line())
		}
	}

	if !xyFound {
		return "", "", "", errors.GCodeError(
			"no XY move found after toolchange", c.LineNumber(), c.Line())
	}
	if len(zContexts) > 2 {
		st.Warn(errors.SmellWarning(
			fmt.Sprintf("%d Z moves after toolchange, expected at most 2", len(zContexts)), c.LineNumber()))
	}
	if !purge {
		for _, nc := range zContexts[:max(0, len(zContexts)-1)] {
			nc.SetLine(gcode.RemovedByPostProcessor + nc.Line())
		}
	}
	return x, y, z, nil
}
