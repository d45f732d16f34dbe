// Streaming passes: analyse, quick-inspect and transform
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package postprocess

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"ratos-postprocessor/pkg/actions"
	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/gcode"
	"ratos-postprocessor/pkg/metadata"
	"ratos-postprocessor/pkg/stream"
)

// scannerBufferSize bounds a single input line. Slicer thumbnails keep
// lines under 80 chars; a megabyte leaves room for pathological files.
const scannerBufferSize = 1 << 20

// progressInterval is how many lines pass between progress callbacks
const progressInterval = 2500

// Analyse runs a full streaming pass into a discarding sink and returns
// the materialised analysis.
func Analyse(ctx context.Context, path string, opts Options) (*metadata.Analysis, error) {
	st, _, err := streamPass(ctx, path, io.Discard, opts, false)
	if err != nil {
		return nil, err
	}
	if st.Ident == nil {
		return nil, errors.SlicerNotFoundError()
	}
	return st.Materialise(metadata.AnalysisFull), nil
}

// QuickInspect runs a streaming pass that stops as soon as the minimal
// fields (temps, first XY move) are known.
func QuickInspect(ctx context.Context, path string, opts Options) (*metadata.Analysis, error) {
	st, _, err := streamPass(ctx, path, io.Discard, opts, true)
	if err != nil && !errors.Is(err, errors.ErrInspectionComplete) {
		return nil, err
	}
	if st.Ident == nil {
		return nil, errors.SlicerNotFoundError()
	}
	return st.Materialise(metadata.AnalysisQuick), nil
}

// Transform streams the input through the transform pipeline into
// outPath, applies the retro-patches and appends the analysis trailer.
// With OverwriteInput set, outPath is ignored and the input is replaced
// atomically.
func Transform(ctx context.Context, inPath, outPath string, opts Options) (*Result, error) {
	target := outPath
	if opts.OverwriteInput {
		target = inPath
	}
	if target == "" {
		return nil, errors.ResourceError("no output path given")
	}
	if !opts.OverwriteInput && !opts.Overwrite {
		if _, err := os.Stat(target); err == nil {
			return nil, errors.ResourceError(fmt.Sprintf("output %s already exists", target))
		}
	}

	tmp := target + ".postprocess.tmp"
	out, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrResource, fmt.Sprintf("cannot create %s", tmp))
	}
	cleanup := func() {
		out.Close()
		os.Remove(tmp)
	}

	bw := bufio.NewWriterSize(out, 512*1024)
	st, enc, err := streamPass(ctx, inPath, bw, opts, false)
	if err != nil {
		if pe, ok := errors.AsPostError(err); ok && pe.Code == errors.ErrAlreadyProcessed {
			cleanup()
			id, _ := pe.GetContext("identification")
			ident, _ := id.(*metadata.Identification)
			return &Result{Ident: ident, WasAlreadyProcessed: true, OutputPath: inPath}, nil
		}
		cleanup()
		return nil, err
	}
	if st.Ident == nil {
		// An empty or headerless stream never reached identification.
		cleanup()
		return nil, errors.SlicerNotFoundError()
	}
	if err := bw.Flush(); err != nil {
		cleanup()
		return nil, errors.Wrap(err, errors.ErrResource, "output flush failed")
	}

	if err := finalise(ctx, out, st, enc.Offset(), opts); err != nil {
		cleanup()
		return nil, err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return nil, errors.Wrap(err, errors.ErrResource, "output close failed")
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return nil, errors.Wrap(err, errors.ErrResource, fmt.Sprintf("cannot move output into place at %s", target))
	}

	return &Result{
		Ident:      st.Ident,
		Analysis:   st.Ident.Analysis,
		OutputPath: target,
	}, nil
}

// streamPass runs the window/dispatcher/encoder chain over the input file
func streamPass(ctx context.Context, path string, sink io.Writer, opts Options, quick bool) (*actions.State, *stream.Encoder, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrResource, fmt.Sprintf("cannot open %s", path))
	}
	defer in.Close()
	adviseSequential(in)

	stat, err := in.Stat()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrResource, fmt.Sprintf("cannot stat %s", path))
	}
	total := stat.Size()

	knobs := opts.knobs()
	reg := stream.NewRegistry()
	st := actions.NewState(knobs, opts.matrix(), reg, opts.warn(), opts.logger())
	st.PrinterHasIdex = opts.Idex
	st.QuickInspectionOnly = quick
	st.AllowUnsupported = opts.AllowUnsupported
	st.AllowUnknown = opts.AllowUnknown

	enc := stream.NewEncoder(ctx, sink, reg)
	seq := actions.TransformSequence()

	// The purge tower probe reaches further back than the default window;
	// size the backward context to the larger of the two.
	behind := knobs.LinesBehind
	if knobs.TowerScanWindow > behind {
		behind = knobs.TowerScanWindow
	}
	w := stream.NewWindow(ctx, behind, knobs.LinesAhead, func(c *stream.Context) error {
		return seq.Process(c, st)
	}, enc)

	if err := ctx.Err(); err != nil {
		return st, enc, errors.CancelledError(err)
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), scannerBufferSize)

	var consumed int64
	var lines int64
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		consumed += int64(len(sc.Bytes())) + 1
		if err := w.Push(line); err != nil {
			return st, enc, err
		}
		lines++
		if opts.Progress != nil && lines%progressInterval == 0 {
			opts.Progress(consumed, total)
		}
	}
	if err := sc.Err(); err != nil {
		return st, enc, errors.Wrap(err, errors.ErrResource, "input read failed")
	}
	if err := w.Flush(); err != nil {
		return st, enc, err
	}
	if opts.Progress != nil {
		opts.Progress(total, total)
	}
	return st, enc, nil
}

// finalise applies the retro-patches recorded during the forward pass and
// appends the analysis trailer. The forward pass has ended: random-access
// writes are now exclusive.
func finalise(ctx context.Context, out *os.File, st *actions.State, streamedSize int64, opts Options) error {
	analysis := st.Materialise(metadata.AnalysisFull)
	if st.Ident == nil {
		return errors.InternalError("finalise reached without identification")
	}
	st.Ident.Analysis = analysis

	trailer, err := metadata.EncodeTrailer(analysis)
	if err != nil {
		return err
	}

	// 1. Prefix the first line with the processed-by line. The trailer
	// starts exactly at the streamed size.
	if st.FirstLine != nil {
		if err := ctx.Err(); err != nil {
			return errors.CancelledError(err)
		}
		processedBy := metadata.FormatProcessedByLine(Version(), time.Now(),
			metadata.CurrentFileFormatVersion, streamedSize, opts.Idex)
		replacement := processedBy + "\n" + st.FirstLine.Line
		if err := st.Registry.Patch(out, st.FirstLine.Key, replacement); err != nil {
			return err
		}
	}

	// 2. Append the gathered facts to the START_PRINT line.
	if st.StartPrint != nil {
		if err := ctx.Err(); err != nil {
			return errors.CancelledError(err)
		}
		if err := st.Registry.Patch(out, st.StartPrint.Key, startPrintLine(st)); err != nil {
			return err
		}
	}

	// 3. Correct the other-layer temperatures.
	if st.LayerTwo != nil && len(st.ExtruderTemps) > 0 {
		if err := ctx.Err(); err != nil {
			return errors.CancelledError(err)
		}
		block := st.LayerTwo.Line
		for _, tool := range st.UsedTools {
			idx, err := strconv.Atoi(tool)
			if err != nil || idx >= len(st.ExtruderTemps) {
				continue
			}
			block += "\nM104 S" + st.ExtruderTemps[idx] + " T" + tool
		}
		if err := st.Registry.Patch(out, st.LayerTwo.Key, block); err != nil {
			return err
		}
		for _, h := range st.TempLines {
			if err := st.Registry.Patch(out, h.Key, gcode.RemovedByPostProcessor+h.Line); err != nil {
				return err
			}
		}
	}

	// 4. Append the trailer.
	if err := ctx.Err(); err != nil {
		return errors.CancelledError(err)
	}
	if _, err := out.WriteAt([]byte(trailer), streamedSize); err != nil {
		return errors.Wrap(err, errors.ErrResource, "trailer write failed")
	}
	return nil
}

// startPrintLine rebuilds the START_PRINT line with the appended flags
func startPrintLine(st *actions.State) string {
	line := st.StartPrint.Line
	if st.ToolChangeCount > 0 {
		line += " TOTAL_TOOLSHIFTS=" + strconv.Itoa(st.ToolChangeCount-1)
	}
	if st.FirstMoveX != "" {
		line += " FIRST_X=" + st.FirstMoveX + " FIRST_Y=" + st.FirstMoveY
	}
	if st.SawExtents() {
		line += " MIN_X=" + formatCoord(st.MinX) + " MAX_X=" + formatCoord(st.MaxX)
	}
	if len(st.UsedTools) > 0 {
		line += " USED_TOOLS=" + strings.Join(st.UsedTools, ",")
		if accel, ok := st.SlicerConfig["wipe_tower_acceleration"]; ok {
			line += " WIPE_ACCEL=" + accel
		}
	}
	return line
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
