// Per-stream processing state
//
// All mutable per-stream data lives here and is threaded through every
// action call; there are no module-level globals.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package actions

import (
	"math"

	"ratos-postprocessor/pkg/config"
	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/gcode"
	"ratos-postprocessor/pkg/log"
	"ratos-postprocessor/pkg/metadata"
	"ratos-postprocessor/pkg/stream"
)

// Handle pairs a bookmarked line's original text with the opaque key used
// to look the bookmark up after emission.
type Handle struct {
	Line string
	Key  stream.BookmarkKey
}

// State is the single per-stream object carrying analysis results,
// bookmarked line handles and configuration flags between actions.
type State struct {
	// Immutable configuration
	PrinterHasIdex      bool
	QuickInspectionOnly bool
	AllowUnsupported    bool
	AllowUnknown        bool
	Knobs               config.Knobs
	Matrix              *config.SupportMatrix

	Registry *stream.Registry
	Warn     errors.WarningSink
	Log      *log.Logger

	// Identification, populated once, then read-only
	Ident *metadata.Identification

	// RMMU is set when the print was started through RMMU_START_PRINT;
	// toolshifts then use the RMMU TOOL form.
	RMMU bool

	// Bookmarked line handles for finalisation
	FirstLine  *Handle
	StartPrint *Handle
	LayerTwo   *Handle
	TempLines  []*Handle

	// Accumulated analysis
	ExtruderTemps   []string
	ToolChangeCount int
	UsedTools       []string
	FirstMoveX      string
	FirstMoveY      string
	MinX            float64
	MaxX            float64
	HasPurgeTower   *bool
	SlicerConfig    map[string]string

	// Per-line scratch, reset by the common-commands entry action
	Cmd *gcode.Command
}

// NewState creates a state with the given configuration. min_x begins at
// +inf and max_x at -inf; they stay there until the first X-bearing move.
func NewState(knobs config.Knobs, matrix *config.SupportMatrix, reg *stream.Registry, warn errors.WarningSink, logger *log.Logger) *State {
	if warn == nil {
		warn = errors.DiscardWarnings
	}
	if logger == nil {
		logger = log.GetLogger("actions")
	}
	return &State{
		Knobs:    knobs,
		Matrix:   matrix,
		Registry: reg,
		Warn:     warn,
		Log:      logger,
		MinX:     math.Inf(1),
		MaxX:     math.Inf(-1),
	}
}

// AddUsedTool appends a tool in order of first use, without duplicates
func (st *State) AddUsedTool(tool string) {
	for _, t := range st.UsedTools {
		if t == tool {
			return
		}
	}
	st.UsedTools = append(st.UsedTools, tool)
}

// SawExtents reports whether any X-bearing move updated the extents
func (st *State) SawExtents() bool {
	return !math.IsInf(st.MinX, 1)
}

// Materialise produces the analysis result of the given kind from the
// accumulated state.
func (st *State) Materialise(kind metadata.AnalysisKind) *metadata.Analysis {
	a := &metadata.Analysis{
		Version:       metadata.AnalysisSchemaVersion,
		Kind:          kind,
		ExtruderTemps: st.ExtruderTemps,
		FirstMoveX:    st.FirstMoveX,
		FirstMoveY:    st.FirstMoveY,
		HasPurgeTower: st.HasPurgeTower,
		SlicerConfig:  st.SlicerConfig,
	}
	if kind == metadata.AnalysisFull {
		a.ToolChangeCount = st.ToolChangeCount
		a.UsedTools = st.UsedTools
		if st.SawExtents() {
			minX, maxX := st.MinX, st.MaxX
			a.MinX = &minX
			a.MaxX = &maxX
		}
	}
	return a
}
