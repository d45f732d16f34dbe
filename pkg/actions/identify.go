// Generator identification action
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package actions

import (
	"fmt"
	"strings"

	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/metadata"
	"ratos-postprocessor/pkg/stream"
)

// identifyGenerator runs on the first line only. It parses the first three
// lines as one blob (so a missing thumbnail or comment line does not move
// the identification out of reach), validates the generator against the
// support matrix, pads and bookmarks the first line for the processed-by
// prefix, and removes itself.
func identifyGenerator(c *stream.Context, st *State) (Outcome, error) {
	blob := c.Line()
	for _, nc := range c.ScanForward(2) {
		blob += "\n" + nc.Line()
	}

	id, err := metadata.ParseHeader(blob)
	if err != nil {
		if id != nil && id.Processed() {
			return Stop(), errors.AlreadyProcessedError(id)
		}
		return Stop(), err
	}
	if id.Processed() {
		return Stop(), errors.AlreadyProcessedError(id)
	}

	if err := st.checkSupported(id, c.LineNumber()); err != nil {
		return Stop(), err
	}
	st.Ident = id

	original := c.Line()
	key := st.Registry.NewKey()
	c.SetLine(original + strings.Repeat(" ", st.Knobs.IdentPadding))
	if err := c.Bookmark(key); err != nil {
		return Stop(), err
	}
	st.FirstLine = &Handle{Line: original, Key: key}

	return RemoveAndStop(), nil
}

// checkSupported validates the identification against the allow-list,
// honouring the override flags.
func (st *State) checkSupported(id *metadata.Identification, lineNumber int) error {
	if id.Flavour == metadata.FlavourUnknown {
		if !st.AllowUnknown {
			return errors.SlicerNotSupportedError(id.Generator, versionString(id))
		}
		st.Warn(errors.Warning{
			Kind:       errors.WarnUnsupportedSlicer,
			Message:    fmt.Sprintf("unknown generator %q allowed by override", id.Generator),
			LineNumber: lineNumber,
		})
		return nil
	}

	supported := st.Matrix.Supports(id.Flavour, id.Version)
	if supported && id.RatOSDialectVersion != nil {
		supported = st.Matrix.SupportsDialect(id.RatOSDialectVersion)
	}
	if supported {
		return nil
	}
	if st.AllowUnsupported {
		st.Warn(errors.Warning{
			Kind:       errors.WarnUnsupportedSlicer,
			Message:    fmt.Sprintf("%s %s is not in the supported range; proceeding on override", id.Generator, versionString(id)),
			LineNumber: lineNumber,
		})
		return nil
	}
	return errors.SlicerNotSupportedError(id.Generator, versionString(id))
}

func versionString(id *metadata.Identification) string {
	if id.Version == nil {
		return "?"
	}
	return id.Version.String()
}
