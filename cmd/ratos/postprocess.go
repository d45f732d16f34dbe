// The postprocess subcommand
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"ratos-postprocessor/pkg/config"
	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/log"
	"ratos-postprocessor/pkg/postprocess"
	"ratos-postprocessor/pkg/report"
)

var postprocessCmd = &cobra.Command{
	Use:   "postprocess [flags] <input> [output]",
	Short: "Inspect and transform slicer G-code for RatOS printers",
	Long: `Reads a slicer G-code file, validates its generator, extracts per-print
statistics and rewrites tool-change blocks into atomic toolshift
instructions. The rewrite runs with or without --idex; the flag marks the
output as processed for an IDEX printer. The analysis is appended to the
output file as a metadata trailer.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPostprocess,
}

func init() {
	addPostprocessFlags(postprocessCmd.Flags())
	rootCmd.AddCommand(postprocessCmd)
}

func addPostprocessFlags(f *pflag.FlagSet) {
	f.Bool("non-interactive", false, "emit JSON records on stdout and never prompt")
	f.BoolP("idex", "i", false, "process for a dual-carriage (IDEX) printer")
	f.BoolP("overwrite", "o", false, "overwrite the output file if it exists")
	f.BoolP("overwrite-input", "O", false, "rewrite the input file in place")
	f.BoolP("allow-unsupported-slicer-versions", "a", false, "proceed with a warning on unsupported slicer versions")
	f.BoolP("allow-unknown-generator", "u", false, "proceed on files whose generator cannot be identified")
	f.String("config", "", "path to a ratos.yaml overrides file")
}

func runPostprocess(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	nonInteractive, _ := f.GetBool("non-interactive")
	idex, _ := f.GetBool("idex")
	overwrite, _ := f.GetBool("overwrite")
	overwriteInput, _ := f.GetBool("overwrite-input")
	allowUnsupported, _ := f.GetBool("allow-unsupported-slicer-versions")
	allowUnknown, _ := f.GetBool("allow-unknown-generator")
	configPath, _ := f.GetString("config")

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		nonInteractive = true
	}

	logger := log.GetLogger("postprocess")
	var reporter *report.Reporter
	if nonInteractive {
		reporter = report.NewReporter(os.Stdout)
	}

	inPath := args[0]
	outPath := ""
	if len(args) > 1 {
		outPath = args[1]
	}
	if outPath == "" && !overwriteInput {
		err := errors.ResourceError("no output path given; pass an output file or --overwrite-input")
		emitError(reporter, logger, err)
		return err
	}

	opts := postprocess.Options{
		Idex:             idex,
		Overwrite:        overwrite,
		OverwriteInput:   overwriteInput,
		AllowUnsupported: allowUnsupported,
		AllowUnknown:     allowUnknown,
		Logger:           logger,
	}
	if configPath != "" {
		matrix, knobs, err := config.Load(configPath)
		if err != nil {
			emitError(reporter, logger, err)
			return err
		}
		opts.Matrix = matrix
		opts.Knobs = &knobs
	}
	opts.Warn = func(w errors.Warning) {
		if reporter != nil {
			reporter.Warning(w)
		} else {
			logger.Warn("%s", w)
		}
	}

	// An existing output needs a confirmation we can only get from a
	// terminal.
	if outPath != "" && !overwrite && !overwriteInput {
		if _, err := os.Stat(outPath); err == nil {
			if nonInteractive {
				err := errors.ResourceError(fmt.Sprintf("output %s already exists (use --overwrite)", outPath))
				emitError(reporter, logger, err)
				return err
			}
			if !confirm(fmt.Sprintf("Output %s exists. Overwrite? [y/N] ", outPath)) {
				err := errors.ResourceError("aborted: output exists")
				return err
			}
			opts.Overwrite = true
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stat, err := os.Stat(inPath)
	if err != nil {
		err = errors.Wrap(err, errors.ErrResource, fmt.Sprintf("cannot stat %s", inPath))
		emitError(reporter, logger, err)
		return err
	}

	progressCh := make(chan int64, 16)
	tracker := report.NewTracker(stat.Size())
	opts.Progress = func(done, total int64) {
		select {
		case progressCh <- done:
		default:
		}
	}

	var result *postprocess.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(progressCh)
		var err error
		result, err = postprocess.Transform(gctx, inPath, outPath, opts)
		return err
	})
	g.Go(func() error {
		for done := range progressCh {
			pct, eta, emit := tracker.Update(done)
			if !emit {
				continue
			}
			if reporter != nil {
				reporter.Progress(pct, eta)
			} else {
				logger.Info("progress: %d%% (eta %ds)", pct, eta)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		emitError(reporter, logger, err)
		return err
	}

	payload := report.SuccessPayload{WasAlreadyProcessed: result.WasAlreadyProcessed}
	if result.Ident != nil {
		payload.GCodeInfo = report.GCodeInfo{
			Generator:        result.Ident.Generator,
			GeneratorVersion: versionOrEmpty(result),
		}
	}
	if result.Analysis != nil {
		payload.UsedTools = result.Analysis.UsedTools
		payload.ToolChangeCount = result.Analysis.ToolChangeCount
	}

	if reporter != nil {
		reporter.Success(payload)
	} else if result.WasAlreadyProcessed {
		logger.Info("file was already processed, nothing to do")
	} else {
		logger.WithField("output", result.OutputPath).
			WithField("toolshifts", payload.ToolChangeCount).
			Info("post processing complete")
	}
	return nil
}

func versionOrEmpty(result *postprocess.Result) string {
	if result.Ident.Version == nil {
		return ""
	}
	return result.Ident.Version.String()
}

func emitError(reporter *report.Reporter, logger *log.Logger, err error) {
	if reporter != nil {
		reporter.Error(err)
	} else {
		logger.Error("%s", err)
	}
}

// confirm asks a yes/no question on the terminal
func confirm(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	r := bufio.NewReader(os.Stdin)
	answer, err := r.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
