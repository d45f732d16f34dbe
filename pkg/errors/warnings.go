// Warning kinds for the RatOS post-processor
//
// Warnings never abort the pipeline. They are delivered to a warning sink
// and reported alongside the result.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import "fmt"

// WarningKind classifies a non-fatal condition
type WarningKind string

const (
	// WarnHeuristicSmell is raised when a scan terminated without its
	// expected sentinel
	WarnHeuristicSmell WarningKind = "HEURISTIC_SMELL"

	// WarnMetadata is raised when the analysis trailer fails length or
	// base64 checks
	WarnMetadata WarningKind = "METADATA"

	// WarnUnsupportedSlicer is raised when an unsupported slicer version
	// is allowed through by configuration
	WarnUnsupportedSlicer WarningKind = "UNSUPPORTED_SLICER"
)

// Warning is a non-fatal condition observed during processing
type Warning struct {
	Kind       WarningKind
	Message    string
	LineNumber int // 0 if not tied to a line
}

func (w Warning) String() string {
	if w.LineNumber > 0 {
		return fmt.Sprintf("[%s] %s (line %d)", w.Kind, w.Message, w.LineNumber)
	}
	return fmt.Sprintf("[%s] %s", w.Kind, w.Message)
}

// WarningSink receives warnings as they are observed. Implementations must
// not block the pipeline.
type WarningSink func(Warning)

// DiscardWarnings is a sink that drops all warnings
func DiscardWarnings(Warning) {}

// SmellWarning creates a heuristic-smell warning tagged with a line number
func SmellWarning(message string, lineNumber int) Warning {
	return Warning{Kind: WarnHeuristicSmell, Message: message, LineNumber: lineNumber}
}

// MetadataWarning creates an invalid-metadata warning
func MetadataWarning(message string) Warning {
	return Warning{Kind: WarnMetadata, Message: message}
}
