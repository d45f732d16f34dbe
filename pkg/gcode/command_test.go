// Unit tests for the line command parser
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import (
	"testing"
)

func TestParseLineMoves(t *testing.T) {
	cases := []struct {
		line string
		want Command
	}{
		{"G1 X10.5 Y20 E0.123 F3000", Command{Letter: 'G', Value: "1", X: "10.5", Y: "20", E: "0.123", F: "3000"}},
		{"G0 X1 Y2", Command{Letter: 'G', Value: "1", X: "1", Y: "2"}},
		{"G1 Z0.4", Command{Letter: 'G', Value: "1", Z: "0.4"}},
		{"g1 x-3.2 y+7", Command{Letter: 'G', Value: "1", X: "-3.2", Y: "+7"}},
		{"  G1 E-0.8 F2100", Command{Letter: 'G', Value: "1", E: "-0.8", F: "2100"}},
		{"G1   X5    Y6", Command{Letter: 'G', Value: "1", X: "5", Y: "6"}},
		{"G2 X100 Y100 I10 J0 E1", Command{Letter: 'G', Value: "2", X: "100", Y: "100", I: "10", J: "0", E: "1"}},
		{"G3 X1 Y1 I0 J5", Command{Letter: 'G', Value: "3", X: "1", Y: "1", I: "0", J: "5"}},
	}
	for _, c := range cases {
		got := ParseLine(c.line)
		if got == nil {
			t.Errorf("ParseLine(%q) = nil", c.line)
			continue
		}
		if *got != c.want {
			t.Errorf("ParseLine(%q) = %+v, want %+v", c.line, *got, c.want)
		}
	}
}

func TestParseLineToolchange(t *testing.T) {
	cases := []struct {
		line string
		tool string
	}{
		{"T0", "0"},
		{"T1", "1"},
		{"T12", "12"},
		{"t3", "3"},
		{"T2 ; select second extruder", "2"},
	}
	for _, c := range cases {
		got := ParseLine(c.line)
		if got == nil || got.Letter != 'T' {
			t.Errorf("ParseLine(%q) should parse a toolchange, got %+v", c.line, got)
			continue
		}
		if got.Value != c.tool {
			t.Errorf("ParseLine(%q).Value = %q, want %q", c.line, got.Value, c.tool)
		}
	}
}

func TestParseLineRejects(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"; a comment",
		";G1 X10",
		"G28",
		"G10",
		"G32 bogus",
		"M104 S210",
		"START_PRINT EXTRUDER_TEMP=210",
		"TOOL T=1",
		"T",
		"T1a",
		"G",
	}
	for _, line := range lines {
		if got := ParseLine(line); got != nil {
			t.Errorf("ParseLine(%q) = %+v, want nil", line, got)
		}
	}
}

func TestParseLineStopsAtComment(t *testing.T) {
	got := ParseLine("G1 X10 Y20 ; Z99 lurking in a comment")
	if got == nil {
		t.Fatal("move with trailing comment should parse")
	}
	if got.Z != "" {
		t.Errorf("captured a parameter from comment text: Z=%q", got.Z)
	}
	if got.X != "10" || got.Y != "20" {
		t.Errorf("parameters before the comment lost: %+v", got)
	}
}

func TestCommandPredicates(t *testing.T) {
	move := ParseLine("G1 X1 Y2")
	if !move.IsMove() || move.IsArc() || move.IsToolchange() {
		t.Errorf("predicates wrong for move: %+v", move)
	}
	if !move.HasXY() {
		t.Error("HasXY should be true for X+Y move")
	}
	if ParseLine("G1 X1").HasXY() {
		t.Error("HasXY should be false without Y")
	}
	arc := ParseLine("G2 X1 Y1 I0 J1")
	if !arc.IsArc() {
		t.Errorf("G2 should be an arc: %+v", arc)
	}
	tc := ParseLine("T7")
	if !tc.IsToolchange() || tc.Value != "7" {
		t.Errorf("T7 should be a toolchange: %+v", tc)
	}
}
