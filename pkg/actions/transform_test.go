// Integration tests for the transform action library, driven through a
// real window and encoder
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package actions

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/gcode"
	"ratos-postprocessor/pkg/stream"
)

const prusaHeader = "; generated by PrusaSlicer 2.8.1 on 2024-05-01 at 10:00:00"
const orcaHeader = "; generated by OrcaSlicer 2.1.1 on 2024-05-01 at 10:00:00"

// runTransform streams lines through the full transform sequence and
// returns the emitted output lines.
func runTransform(t *testing.T, st *State, lines []string) ([]string, error) {
	t.Helper()
	var buf bytes.Buffer
	enc := stream.NewEncoder(context.Background(), &buf, st.Registry)
	seq := TransformSequence()
	w := stream.NewWindow(context.Background(), st.Knobs.TowerScanWindow, st.Knobs.LinesAhead,
		func(c *stream.Context) error { return seq.Process(c, st) }, enc)

	for _, l := range lines {
		if err := w.Push(l); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	out := strings.Split(buf.String(), "\n")
	if len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out, nil
}

func toolchangeFixture(header string) []string {
	return []string{
		header,
		"; estimated printing time: 1h",
		"START_PRINT EXTRUDER_TEMP=210 EXTRUDER_OTHER_LAYER_TEMP=210,215 INITIAL_TOOL=0",
		"T0",
		"G1 X50 Y50 F3000",
		"G1 X60 Y60 E2.5 F1800",
		"G1 E-0.8 F2100",
		"G1 Z0.6 F600",
		"T1",
		"G1 E0.8 F2100",
		"G1 Z0.2 F600",
		"G1 X120 Y80 F3000",
		"G1 X125 Y85 E1.2 F1800",
		"; layer end",
	}
}

func TestToolshiftWithoutPurgeTower(t *testing.T) {
	st := testState()
	out, err := runTransform(t, st, toolchangeFixture(prusaHeader))
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	// First toolchange is redundant and commented out.
	if out[3] != gcode.RemovedByPostProcessor+"T0" {
		t.Errorf("T0 line = %q", out[3])
	}
	// Retract and z-hop before the toolchange are redacted.
	if out[6] != gcode.RemovedByPostProcessor+"G1 E-0.8 F2100" {
		t.Errorf("retract not redacted: %q", out[6])
	}
	if out[7] != gcode.RemovedByPostProcessor+"G1 Z0.6 F600" {
		t.Errorf("z-hop not redacted: %q", out[7])
	}
	// The toolchange collapses into an atomic toolshift.
	if out[8] != "T1 X120 Y80 Z0.2" {
		t.Errorf("toolshift line = %q", out[8])
	}
	// The unretract after the toolchange is redacted; the single Z move
	// is the last one and stays.
	if out[9] != gcode.RemovedByPostProcessor+"G1 E0.8 F2100" {
		t.Errorf("unretract not redacted: %q", out[9])
	}
	if out[10] != "G1 Z0.2 F600" {
		t.Errorf("last Z move should stay: %q", out[10])
	}
	if out[11] != "G1 X120 Y80 F3000" {
		t.Errorf("destination move damaged: %q", out[11])
	}

	if st.ToolChangeCount != 2 {
		t.Errorf("tool change count = %d, want 2", st.ToolChangeCount)
	}
	if len(st.UsedTools) != 2 || st.UsedTools[0] != "0" || st.UsedTools[1] != "1" {
		t.Errorf("used tools = %v", st.UsedTools)
	}
	if st.HasPurgeTower == nil || *st.HasPurgeTower {
		t.Error("purge tower should be detected as absent")
	}
	if st.FirstMoveX != "50" || st.FirstMoveY != "50" {
		t.Errorf("first move = %s,%s", st.FirstMoveX, st.FirstMoveY)
	}
	if st.MinX != 50 || st.MaxX != 125 {
		t.Errorf("extents = %f..%f", st.MinX, st.MaxX)
	}
}

func TestToolshiftWithPurgeTower(t *testing.T) {
	lines := toolchangeFixture(prusaHeader)
	// Insert the wipe tower marker shortly before the toolchange.
	withTower := append([]string{}, lines[:6]...)
	withTower = append(withTower, "; CP TOOLCHANGE START")
	withTower = append(withTower, lines[6:]...)

	st := testState()
	out, err := runTransform(t, st, withTower)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if st.HasPurgeTower == nil || !*st.HasPurgeTower {
		t.Fatal("purge tower not detected")
	}
	// With a purge tower the retract/z-hop redaction is disabled.
	joined := strings.Join(out, "\n")
	if strings.Contains(joined, gcode.RemovedByPostProcessor+"G1 E-0.8") {
		t.Error("retract should not be redacted with a purge tower")
	}
	if strings.Contains(joined, gcode.RemovedByPostProcessor+"G1 Z0.6") {
		t.Error("z-hop should not be redacted with a purge tower")
	}
	if !strings.Contains(joined, "T1 X120 Y80 Z0.2") {
		t.Error("toolshift replacement missing")
	}
}

func TestToolshiftWipeEndExemption(t *testing.T) {
	lines := []string{
		prusaHeader,
		"START_PRINT INITIAL_TOOL=0",
		"T0",
		"G1 X60 Y60 E2.5 F1800",
		";WIPE_END",
		"G1 E-0.8 F2100",
		"T1",
		"G1 X120 Y80 F3000",
		"G1 X125 Y85 E1.2 F1800",
	}
	st := testState()
	out, err := runTransform(t, st, lines)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if out[5] != "G1 E-0.8 F2100" {
		t.Errorf("retract near ;WIPE_END must not be redacted: %q", out[5])
	}
}

func TestToolshiftRMMUForm(t *testing.T) {
	lines := toolchangeFixture(prusaHeader)
	lines[2] = "RMMU_START_PRINT EXTRUDER_TEMP=210 INITIAL_TOOL=0"
	st := testState()
	out, err := runTransform(t, st, lines)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if out[8] != "TOOL T=1 X=120 Y=80 Z=0.2" {
		t.Errorf("RMMU toolshift line = %q", out[8])
	}
}

func TestToolshiftMissingXYFails(t *testing.T) {
	lines := []string{
		prusaHeader,
		"START_PRINT INITIAL_TOOL=0",
		"T0",
		"G1 X60 Y60 E2.5 F1800",
		"T1",
		"G1 E0.8 F2100",
	}
	st := testState()
	_, err := runTransform(t, st, lines)
	if !errors.Is(err, errors.ErrGCode) {
		t.Fatalf("want GCodeError, got %v", err)
	}
	pe, _ := errors.AsPostError(err)
	if !strings.Contains(pe.Message, "XY") {
		t.Errorf("message should mention the missing XY move: %s", pe.Message)
	}
}

func TestToolshiftBackwardScanSmell(t *testing.T) {
	var warnings []errors.Warning
	st := testState()
	st.Warn = func(w errors.Warning) { warnings = append(warnings, w) }

	lines := []string{
		prusaHeader,
		"START_PRINT INITIAL_TOOL=0",
		"T0",
	}
	// No XY move within the backward scan window before the toolchange.
	for i := 0; i < 25; i++ {
		lines = append(lines, "M400")
	}
	lines = append(lines, "T1", "G1 X120 Y80 F3000", "G1 X125 Y85 E1 F1800")

	if _, err := runTransform(t, st, lines); err != nil {
		t.Fatalf("transform: %v", err)
	}
	found := false
	for _, w := range warnings {
		if w.Kind == errors.WarnHeuristicSmell {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a heuristic smell warning, got %v", warnings)
	}
}

func TestArcsAbort(t *testing.T) {
	lines := []string{
		prusaHeader,
		"START_PRINT INITIAL_TOOL=0",
		"G1 X10 Y10 F3000",
		"G2 X100 Y100 I10 J0 E1",
	}
	st := testState()
	_, err := runTransform(t, st, lines)
	if !errors.Is(err, errors.ErrGCode) {
		t.Fatalf("want GCodeError, got %v", err)
	}
	pe, _ := errors.AsPostError(err)
	if !strings.Contains(pe.Message, "arcs") {
		t.Errorf("message should mention arcs: %s", pe.Message)
	}
	if pe.LineNumber != 4 {
		t.Errorf("line number = %d, want 4", pe.LineNumber)
	}
}

func TestMoveBeforeStartPrintFails(t *testing.T) {
	lines := []string{
		prusaHeader,
		"G1 X10 Y10 F3000",
		"START_PRINT",
	}
	st := testState()
	_, err := runTransform(t, st, lines)
	if !errors.Is(err, errors.ErrGCode) {
		t.Fatalf("want GCodeError, got %v", err)
	}
	pe, _ := errors.AsPostError(err)
	if !strings.Contains(pe.Message, "START_PRINT") {
		t.Errorf("message should mention START_PRINT: %s", pe.Message)
	}
}

func TestStartPrintCapture(t *testing.T) {
	lines := []string{
		prusaHeader,
		"START_PRINT EXTRUDER_TEMP=210 EXTRUDER_OTHER_LAYER_TEMP=205,215 INITIAL_TOOL=1 EXTRUDER_COLOR=#FF0000",
		"G1 X10 Y10 F3000",
	}
	st := testState()
	out, err := runTransform(t, st, lines)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if st.StartPrint == nil {
		t.Fatal("START_PRINT handle missing")
	}
	if strings.Contains(st.StartPrint.Line, "#") {
		t.Errorf("colour hash not stripped: %q", st.StartPrint.Line)
	}
	if len(st.UsedTools) != 1 || st.UsedTools[0] != "1" {
		t.Errorf("INITIAL_TOOL not captured: %v", st.UsedTools)
	}
	if len(st.ExtruderTemps) != 2 || st.ExtruderTemps[0] != "205" || st.ExtruderTemps[1] != "215" {
		t.Errorf("other layer temps = %v", st.ExtruderTemps)
	}
	// The emitted line carries the reserved padding.
	if len(out[1]) != len(st.StartPrint.Line)+st.Knobs.StartPrintPadding {
		t.Errorf("START_PRINT line not padded: %d chars", len(out[1]))
	}
}

func TestIdentifyPadsAndBookmarks(t *testing.T) {
	st := testState()
	out, err := runTransform(t, st, []string{prusaHeader, "START_PRINT", "G1 X1 Y1"})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if st.FirstLine == nil {
		t.Fatal("first line handle missing")
	}
	if st.FirstLine.Line != prusaHeader {
		t.Errorf("handle should keep the original text: %q", st.FirstLine.Line)
	}
	if len(out[0]) != len(prusaHeader)+st.Knobs.IdentPadding {
		t.Errorf("ident line not padded: %d chars", len(out[0]))
	}
	if _, err := st.Registry.Lookup(st.FirstLine.Key); err != nil {
		t.Errorf("first line bookmark not recorded: %v", err)
	}
}

func TestIdentifyAlreadyProcessed(t *testing.T) {
	st := testState()
	_, err := runTransform(t, st, []string{
		"; processed by RatOS.PostProcessor 0.2.0 on 2024-05-01 at 10:00:00 UTC v:3 m:1a2b idex",
		prusaHeader,
		"START_PRINT",
	})
	if !errors.Is(err, errors.ErrAlreadyProcessed) {
		t.Fatalf("want ErrAlreadyProcessed, got %v", err)
	}
}

func TestIdentifyUnsupportedVersion(t *testing.T) {
	header := "; generated by PrusaSlicer 2.6.0 on 2024-05-01 at 10:00:00"
	st := testState()
	_, err := runTransform(t, st, []string{header, "START_PRINT"})
	if !errors.Is(err, errors.ErrSlicerNotSupported) {
		t.Fatalf("want ErrSlicerNotSupported, got %v", err)
	}

	// The override turns the failure into a warning.
	var warned bool
	st2 := testState()
	st2.AllowUnsupported = true
	st2.Warn = func(w errors.Warning) {
		if w.Kind == errors.WarnUnsupportedSlicer {
			warned = true
		}
	}
	if _, err := runTransform(t, st2, []string{header, "START_PRINT"}); err != nil {
		t.Fatalf("override should allow the version: %v", err)
	}
	if !warned {
		t.Error("override path should emit a warning")
	}
}

func TestIdentifyMissingHeader(t *testing.T) {
	st := testState()
	_, err := runTransform(t, st, []string{"G28", "G1 X0 Y0"})
	if !errors.Is(err, errors.ErrSlicerNotFound) {
		t.Fatalf("want ErrSlicerNotFound, got %v", err)
	}
}

func TestQuickInspectionStopsAtFirstMove(t *testing.T) {
	st := testState()
	st.QuickInspectionOnly = true
	_, err := runTransform(t, st, toolchangeFixture(prusaHeader))
	if !errors.Is(err, errors.ErrInspectionComplete) {
		t.Fatalf("want InspectionComplete, got %v", err)
	}
	if st.FirstMoveX != "50" || st.FirstMoveY != "50" {
		t.Errorf("first move = %s,%s", st.FirstMoveX, st.FirstMoveY)
	}
}

func TestLayerTempCapture(t *testing.T) {
	lines := []string{
		orcaHeader,
		"START_PRINT EXTRUDER_OTHER_LAYER_TEMP=210,215 INITIAL_TOOL=0",
		"G1 X10 Y10 F3000",
		"_ON_LAYER_CHANGE LAYER=2",
		"G1 X11 Y11 F3000",
		"M104 S210",
		"G1 X12 Y12 F3000",
	}
	st := testState()
	out, err := runTransform(t, st, lines)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if st.LayerTwo == nil {
		t.Fatal("layer-2 handle missing")
	}
	if len(st.TempLines) != 1 || st.TempLines[0].Line != "M104 S210" {
		t.Fatalf("temp line handles = %+v", st.TempLines)
	}
	// The M104 line is padded by exactly the removed-by prefix length.
	if len(out[5]) != len("M104 S210")+len(gcode.RemovedByPostProcessor) {
		t.Errorf("M104 padding wrong: %d chars", len(out[5]))
	}
	if len(out[3]) != len(st.LayerTwo.Line)+st.Knobs.LayerTempPadding {
		t.Errorf("layer-2 padding wrong: %d chars", len(out[3]))
	}
}

func TestLayerTempSkippedForPrusa(t *testing.T) {
	lines := []string{
		prusaHeader,
		"START_PRINT INITIAL_TOOL=0",
		"_ON_LAYER_CHANGE LAYER=2",
		"M104 S210",
	}
	st := testState()
	out, err := runTransform(t, st, lines)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if st.LayerTwo != nil {
		t.Error("layer temp fix must not run for PrusaSlicer")
	}
	if out[3] != "M104 S210" {
		t.Errorf("M104 line should be untouched: %q", out[3])
	}
}

func TestVelocityLimitRewriteOrcaOnly(t *testing.T) {
	lines := []string{
		orcaHeader,
		"START_PRINT INITIAL_TOOL=0",
		"SET_VELOCITY_LIMIT ACCEL=4000 ACCEL_TO_DECEL=2000",
	}
	st := testState()
	out, err := runTransform(t, st, lines)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	want := "M204 S4000" + gcode.ChangedByPostProcessor + "SET_VELOCITY_LIMIT ACCEL=4000 ACCEL_TO_DECEL=2000"
	if out[2] != want {
		t.Errorf("rewrite = %q, want %q", out[2], want)
	}

	st2 := testState()
	linesPrusa := append([]string{}, lines...)
	linesPrusa[0] = prusaHeader
	out2, err := runTransform(t, st2, linesPrusa)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if out2[2] != lines[2] {
		t.Errorf("prusa file should keep SET_VELOCITY_LIMIT: %q", out2[2])
	}
}

func TestConfigCapture(t *testing.T) {
	lines := []string{
		prusaHeader,
		"START_PRINT INITIAL_TOOL=0",
		"G1 X10 Y10 F3000",
		"; prusaslicer_config = begin",
		"; wipe_tower_acceleration = 3000",
		"; nozzle_diameter = 0.4,0.4",
		"; prusaslicer_config = end",
	}
	st := testState()
	if _, err := runTransform(t, st, lines); err != nil {
		t.Fatalf("transform: %v", err)
	}
	if st.SlicerConfig["wipe_tower_acceleration"] != "3000" {
		t.Errorf("config capture = %v", st.SlicerConfig)
	}
	if st.SlicerConfig["nozzle_diameter"] != "0.4,0.4" {
		t.Errorf("config capture = %v", st.SlicerConfig)
	}
}
