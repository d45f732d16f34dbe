// File facade for the RatOS post-processor
//
// The facade orchestrates inspect / analyse / transform over a file path,
// classifies printability, and materialises the analysis trailer.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package postprocess

import (
	"ratos-postprocessor/pkg/config"
	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/log"
	"ratos-postprocessor/pkg/metadata"
)

// Printability classifies whether a file can be printed as-is or must be
// (re)processed first.
type Printability string

const (
	// PrintabilityReady means the file can print as-is
	PrintabilityReady Printability = "READY"

	// PrintabilityMustProcess means the file needs its first transform
	PrintabilityMustProcess Printability = "MUST_PROCESS"

	// PrintabilityMustReprocess means the recorded processing no longer fits
	PrintabilityMustReprocess Printability = "MUST_REPROCESS"

	// PrintabilityCouldReprocess means newer processing is available but
	// not required
	PrintabilityCouldReprocess Printability = "COULD_REPROCESS"

	// PrintabilityNotSupported means the file cannot be printed at all
	PrintabilityNotSupported Printability = "NOT_SUPPORTED"

	// PrintabilityUnknown means the generator could not be identified
	PrintabilityUnknown Printability = "UNKNOWN"
)

// Options configure a facade operation
type Options struct {
	// Idex marks the target printer as a dual-carriage machine
	Idex bool

	// Overwrite allows replacing an existing output file
	Overwrite bool

	// OverwriteInput rewrites the input file in place (via a temp file)
	OverwriteInput bool

	// AllowUnsupported lets unsupported slicer versions through with a warning
	AllowUnsupported bool

	// AllowUnknown lets unidentified generators through (inspection
	// returns UNKNOWN instead of failing)
	AllowUnknown bool

	// Knobs overrides the pipeline tuning (nil means defaults)
	Knobs *config.Knobs

	// Matrix overrides the slicer support matrix (nil means defaults)
	Matrix *config.SupportMatrix

	// Warn receives non-fatal conditions; nil discards them
	Warn errors.WarningSink

	// Progress receives (bytes consumed, total bytes) at chunk boundaries
	Progress func(done, total int64)

	// Logger overrides the component logger
	Logger *log.Logger
}

func (o *Options) knobs() config.Knobs {
	if o.Knobs != nil {
		return *o.Knobs
	}
	return config.DefaultKnobs()
}

func (o *Options) matrix() *config.SupportMatrix {
	if o.Matrix != nil {
		return o.Matrix
	}
	return config.DefaultSupportMatrix()
}

func (o *Options) warn() errors.WarningSink {
	if o.Warn != nil {
		return o.Warn
	}
	return errors.DiscardWarnings
}

func (o *Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.GetLogger("postprocess")
}

// Inspection is the result of a header/tail probe
type Inspection struct {
	// Ident is the parsed identification; nil only for UNKNOWN results
	Ident *metadata.Identification

	// Printability is the classification per the decision table
	Printability Printability

	// Reasons explain the classification, most significant first
	Reasons []string

	// CanDeprocess reports whether the original file could be recovered
	// (a trailer with the recorded analysis is present)
	CanDeprocess bool
}

// Result is the outcome of a transform
type Result struct {
	// Ident carries the identification with the materialised analysis
	Ident *metadata.Identification

	// Analysis is the materialised full analysis (nil when the file was
	// already processed)
	Analysis *metadata.Analysis

	// OutputPath is where the transformed file landed
	OutputPath string

	// WasAlreadyProcessed is set when the input already carried a
	// processed-by header and no transform ran
	WasAlreadyProcessed bool
}
