// Inspection and printability classification
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package postprocess

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/metadata"
)

// headerProbeLines is how many leading lines the inspection reads
const headerProbeLines = 4

// Inspect reads the file's header and tail, locates the analysis trailer
// if present, and classifies printability against the target printer.
func Inspect(path string, opts Options) (*Inspection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrResource, fmt.Sprintf("cannot open %s", path))
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrResource, fmt.Sprintf("cannot stat %s", path))
	}

	id, err := metadata.ParseHeader(readHeaderBlob(f))
	if err != nil {
		if opts.AllowUnknown {
			return &Inspection{
				Printability: PrintabilityUnknown,
				Reasons:      []string{"no identification"},
			}, nil
		}
		return nil, err
	}

	// Legacy files were stamped at the end of the stream, not the header.
	if !id.Processed() && tailHasLegacyMarker(f, stat.Size()) {
		id.MarkLegacyProcessed()
	}

	var warns []errors.Warning
	if id.TrailerOffset >= 0 {
		id.Analysis, warns = metadata.LoadTrailerAt(f, id.TrailerOffset, stat.Size())
	} else if id.Processed() {
		id.Analysis, warns = metadata.LoadTrailer(f, stat.Size())
	}
	for _, w := range warns {
		opts.warn()(w)
	}

	printability, reasons := classify(id, opts)
	return &Inspection{
		Ident:        id,
		Printability: printability,
		Reasons:      reasons,
		CanDeprocess: id.TrailerOffset >= 0 && id.Analysis != nil,
	}, nil
}

// classify implements the printability decision table; the first matching
// row wins.
func classify(id *metadata.Identification, opts Options) (Printability, []string) {
	if !opts.AllowUnsupported && !opts.matrix().Supports(id.Flavour, id.Version) {
		if id.Flavour != metadata.FlavourUnknown || !opts.AllowUnknown {
			return PrintabilityNotSupported,
				[]string{fmt.Sprintf("%s %s version rejected", id.Generator, id.Version)}
		}
	}

	if id.Processed() {
		if id.FileFormatVersion < metadata.CurrentFileFormatVersion {
			return PrintabilityNotSupported,
				[]string{"file format is older than this host supports; re-upload required"}
		}
		if id.FileFormatVersion > metadata.CurrentFileFormatVersion {
			return PrintabilityNotSupported,
				[]string{"file format is newer than this host; update the host"}
		}
		if id.ProcessedForIdex != opts.Idex {
			return PrintabilityMustReprocess,
				[]string{"IDEX axis: processed-for-IDEX flag does not match the target printer"}
		}

		host := HostVersion()
		file := id.PostProcessorVersion
		switch {
		case file.Equal(host):
			return PrintabilityReady, nil
		case file.GreaterThan(host):
			return PrintabilityMustReprocess,
				[]string{"file was processed by a newer host"}
		case file.Major() < host.Major():
			return PrintabilityMustReprocess,
				[]string{"incompatible processing change since this file was processed"}
		default:
			return PrintabilityCouldReprocess,
				[]string{"processing enhancements and fixes are available"}
		}
	}

	if opts.Idex {
		return PrintabilityMustProcess, []string{"IDEX target requires the toolshift transform"}
	}
	return PrintabilityReady, nil
}

// readHeaderBlob reads the first few lines as a single blob, so the
// identification is found whichever of them it sits on.
func readHeaderBlob(f *os.File) string {
	r := bufio.NewReader(f)
	var sb strings.Builder
	for i := 0; i < headerProbeLines; i++ {
		line, err := r.ReadString('\n')
		sb.WriteString(line)
		if err != nil {
			break
		}
	}
	return sb.String()
}

// tailHasLegacyMarker probes the last line for the pre-streaming
// processor's marker.
func tailHasLegacyMarker(f *os.File, size int64) bool {
	const probe = 256
	want := int64(probe)
	if want > size {
		want = size
	}
	if want == 0 {
		return false
	}
	buf := make([]byte, want)
	if _, err := f.ReadAt(buf, size-want); err != nil {
		return false
	}
	tail := strings.TrimRight(string(buf), "\n\r ")
	idx := strings.LastIndexByte(tail, '\n')
	last := tail[idx+1:]
	return strings.HasPrefix(strings.ToLower(last), "; processed by ratos") &&
		!strings.HasPrefix(strings.ToLower(last), "; processed by ratos.postprocessor")
}
