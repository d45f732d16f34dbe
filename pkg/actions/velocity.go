// OrcaSlicer SET_VELOCITY_LIMIT rewrite
//
// OrcaSlicer emits Klipper-style SET_VELOCITY_LIMIT commands for
// acceleration changes; they are rewritten to plain M204 so firmwares
// without the macro accept them.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package actions

import (
	"regexp"
	"strings"

	"ratos-postprocessor/pkg/gcode"
	"ratos-postprocessor/pkg/stream"
)

var velocityAccelRe = regexp.MustCompile(`ACCEL=(\d+)`)

// rewriteVelocityLimit converts SET_VELOCITY_LIMIT ACCEL=<n> lines into
// M204 S<n>, keeping the original in a changed-by marker.
func rewriteVelocityLimit(c *stream.Context, st *State) (Outcome, error) {
	line := c.Line()
	if !strings.HasPrefix(line, "SET_VELOCITY_LIMIT") {
		return Continue(), nil
	}
	m := velocityAccelRe.FindStringSubmatch(line)
	if m == nil {
		return Continue(), nil
	}
	c.SetLine("M204 S" + m[1] + gcode.ChangedByPostProcessor + line)
	return Stop(), nil
}
