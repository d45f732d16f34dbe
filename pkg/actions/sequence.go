// Transform sequence assembly
//
// The ordering here is part of the contract: identification first,
// START_PRINT discovery second, then the command sub-sequence, then the
// flavour-specific fixes and the config capture.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package actions

import (
	"ratos-postprocessor/pkg/metadata"
)

// TransformSequence builds the full action sequence for a streaming pass
func TransformSequence() *Sequence {
	return NewSequence(
		ActionItem(identifyGenerator),
		ActionItem(findStartPrint),
		SubSequenceItem(parseCommand,
			ActionItem(captureFirstMove),
			ActionItem(trackExtents),
			ActionItem(rewriteToolchange),
		),
		FilteredItem(Filter{Flavours: metadata.FlavourOrcaSlicer | metadata.FlavourSuperSlicer}, fixLayerTemps),
		FilteredItem(Filter{Flavours: metadata.FlavourOrcaSlicer}, rewriteVelocityLimit),
		ActionItem(captureConfigStart),
	)
}
