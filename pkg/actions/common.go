// Common-command sub-sequence: parse entry, first-move capture, extent
// tracking
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package actions

import (
	"strconv"

	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/gcode"
	"ratos-postprocessor/pkg/stream"
)

// parseCommand is the sub-sequence entry: it resets the per-line scratch
// and decides whether the inner sequence runs at all. A matched command
// stops the rest of the outer sequence once the inner actions are done.
func parseCommand(c *stream.Context, st *State) (Outcome, error) {
	st.Cmd = gcode.ParseLine(c.Line())
	if st.Cmd == nil {
		return Continue().WithSkipSub(), nil
	}
	return Stop(), nil
}

// captureFirstMove latches the first XY-bearing move. In quick-inspection
// mode this is the last fact needed, signalled with the control error the
// facade catches.
func captureFirstMove(c *stream.Context, st *State) (Outcome, error) {
	cmd := st.Cmd
	if cmd.IsMove() && cmd.HasXY() && st.FirstMoveX == "" {
		st.FirstMoveX = cmd.X
		st.FirstMoveY = cmd.Y
		if st.QuickInspectionOnly {
			return Stop(), errors.InspectionCompleteError()
		}
	}
	return Continue(), nil
}

// trackExtents maintains the running min/max X. Arcs are a hard error:
// the toolshift heuristics cannot reason about them.
func trackExtents(c *stream.Context, st *State) (Outcome, error) {
	cmd := st.Cmd
	if cmd.IsArc() {
		return Stop(), errors.GCodeError("arcs (G2/G3) are not supported", c.LineNumber(), c.Line())
	}
	if cmd.IsMove() && cmd.X != "" {
		x, err := strconv.ParseFloat(cmd.X, 64)
		if err != nil {
			return Stop(), errors.GCodeError("unparsable X coordinate", c.LineNumber(), c.Line())
		}
		if x < st.MinX {
			st.MinX = x
		}
		if x > st.MaxX {
			st.MaxX = x
		}
	}
	return Continue(), nil
}
