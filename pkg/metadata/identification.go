// Generator identification header parsing and emission
//
// The identification line has the shape
//
//	; generated (by|with) <GENERATOR> <VERSION> [in RatOS dialect <DIALECT>] on <DATE> at <TIME>
//
// and a processed file additionally starts with
//
//	; processed by RatOS.PostProcessor <SEMVER> on YYYY-MM-DD at HH:mm:ss UTC v:<FORMAT> m:<HEX_OFFSET>[ idex]
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metadata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"ratos-postprocessor/pkg/errors"
)

// Identification describes what generated a G-code file and, for processed
// files, what processed it. Populated once, early in the stream, then
// read-only.
type Identification struct {
	// Generator is the lowercased generator name ("prusaslicer", ...)
	Generator string

	// Version is the generator version
	Version *semver.Version

	// Flavour is the canonical flavour bit for the generator. Files in
	// RatOS dialect additionally carry FlavourRatOS.
	Flavour Flavour

	// Timestamp is the generator timestamp, kept as text ("<DATE> at <TIME>")
	Timestamp string

	// RatOSDialectVersion is set when the header carries a RatOS dialect token
	RatOSDialectVersion *semver.Version

	// PostProcessorVersion is set for processed files. The raw string is
	// kept alongside because git-describe builds carry metadata a strict
	// parse would lose.
	PostProcessorVersion    *semver.Version
	PostProcessorVersionRaw string

	// ProcessedTimestamp is the processed-by timestamp, kept as text
	ProcessedTimestamp string

	// ProcessedForIdex is true when the file was processed for an IDEX target
	ProcessedForIdex bool

	// FileFormatVersion is the v:<N> tail field; 0 means unknown (legacy)
	FileFormatVersion int

	// TrailerOffset is the m:<HEX> byte offset of the analysis trailer, or
	// -1 when not recorded
	TrailerOffset int64

	// Analysis is the loaded or materialised analysis result, if any
	Analysis *Analysis

	// legacyProcessed marks files stamped by the pre-streaming processor,
	// which wrote a bare "; processed by RatOS" marker with no version
	// information (detected by header or tail probe).
	legacyProcessed bool
}

// Processed reports whether the file carries any processed-by marker
func (id *Identification) Processed() bool {
	return id.PostProcessorVersionRaw != "" || id.legacyProcessed
}

// LegacyProcessed reports whether the file was stamped by the pre-streaming
// processor, which recorded no version information
func (id *Identification) LegacyProcessed() bool {
	return id.legacyProcessed
}

// MarkLegacyProcessed records a legacy marker found by the facade's tail probe
func (id *Identification) MarkLegacyProcessed() {
	id.legacyProcessed = true
}

var (
	generatedRe = regexp.MustCompile(`(?im)^; generated (?:by|with) (\S+) (\S+?)(?: in RatOS dialect (\S+))? on (\S+) at (\S+)`)

	// Current form with key/value tail fields
	processedRe = regexp.MustCompile(`(?im)^; processed by RatOS\.PostProcessor (\S+) on (\S+) at (\S+) UTC((?: \S+)*)\s*$`)

	// Historical form without the UTC tail
	processedLegacyRe = regexp.MustCompile(`(?im)^; processed by RatOS\.PostProcessor (\S+) on (\S+) at (\S+)\s*$`)

	// Pre-streaming processor marker
	processedBareRe = regexp.MustCompile(`(?im)^; processed by ratos\s*$`)
)

// ParseHeader parses the first lines of a file (passed as one blob so the
// identification and processed-by lines may appear in any of them) into an
// Identification. Returns ErrSlicerNotFound when no generator can be
// identified.
func ParseHeader(blob string) (*Identification, error) {
	id := &Identification{TrailerOffset: -1}

	if m := processedRe.FindStringSubmatch(blob); m != nil {
		if err := id.applyProcessed(m[1], m[2], m[3]); err != nil {
			return nil, err
		}
		id.applyProcessedTail(m[4])
	} else if m := processedLegacyRe.FindStringSubmatch(blob); m != nil {
		if err := id.applyProcessed(m[1], m[2], m[3]); err != nil {
			return nil, err
		}
	} else if processedBareRe.MatchString(blob) {
		id.legacyProcessed = true
	}

	m := generatedRe.FindStringSubmatch(blob)
	if m == nil {
		if id.Processed() {
			// A processed file should still carry its generator line;
			// surface the processed state to the caller regardless.
			return id, errors.SlicerNotFoundError()
		}
		return nil, errors.SlicerNotFoundError()
	}

	id.Generator = strings.ToLower(m[1])
	ver, err := semver.NewVersion(m[2])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrSlicerNotFound,
			fmt.Sprintf("cannot parse generator version %q", m[2]))
	}
	id.Version = ver
	id.Flavour = FlavourFromGenerator(id.Generator)
	if m[3] != "" {
		dv, err := semver.NewVersion(m[3])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrSlicerNotFound,
				fmt.Sprintf("cannot parse RatOS dialect version %q", m[3]))
		}
		id.RatOSDialectVersion = dv
		id.Flavour |= FlavourRatOS
	}
	id.Timestamp = m[4] + " at " + m[5]

	return id, nil
}

func (id *Identification) applyProcessed(version, date, clock string) error {
	id.PostProcessorVersionRaw = version
	ver, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrap(err, errors.ErrSlicerNotFound,
			fmt.Sprintf("cannot parse post-processor version %q", version))
	}
	id.PostProcessorVersion = ver
	id.ProcessedTimestamp = date + " at " + clock
	return nil
}

// applyProcessedTail parses the key/value tail of the current processed-by
// form: v:<N>, m:<HEX>, and the bare token "idex".
func (id *Identification) applyProcessedTail(tail string) {
	for _, tok := range strings.Fields(tail) {
		switch {
		case tok == "idex":
			id.ProcessedForIdex = true
		case strings.HasPrefix(tok, "v:"):
			if n, err := strconv.Atoi(tok[2:]); err == nil {
				id.FileFormatVersion = n
			}
		case strings.HasPrefix(tok, "m:"):
			if n, err := strconv.ParseInt(tok[2:], 16, 64); err == nil {
				id.TrailerOffset = n
			}
		}
	}
}

// FormatProcessedByLine serialises the processed-by line in its current,
// byte-identical round-trip form.
func FormatProcessedByLine(version string, t time.Time, fileFormat int, trailerOffset int64, idex bool) string {
	u := t.UTC()
	line := fmt.Sprintf("; processed by RatOS.PostProcessor %s on %s at %s UTC v:%d m:%x",
		version, u.Format("2006-01-02"), u.Format("15:04:05"), fileFormat, trailerOffset)
	if idex {
		line += " idex"
	}
	return line
}
