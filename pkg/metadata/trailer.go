// Analysis trailer codec
//
// The trailer is appended as a comment block so printers that do not know
// about it simply ignore it:
//
//	; ratos_meta begin <BASE64_CHAR_COUNT>
//	; <base64 payload, 78 chars per line>
//	; ratos_meta end <LINE_COUNT>
//
// LINE_COUNT is the total number of lines in the block including both
// marker lines, so a tail reader that only caught the end marker knows how
// much more to load.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metadata

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ratos-postprocessor/pkg/errors"
)

const (
	trailerBeginPrefix = "; ratos_meta begin "
	trailerEndPrefix   = "; ratos_meta end "
	trailerLineWidth   = 78

	// tailProbeLines is how many lines the first tail load assumes
	tailProbeLines = 100

	// tailLineEstimate is a pessimistic bytes-per-line estimate for tail loads
	tailLineEstimate = trailerLineWidth + 4
)

// EncodeTrailer serialises an analysis into the trailer block, including
// the terminating newline of the end marker.
func EncodeTrailer(a *Analysis) (string, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "cannot marshal analysis")
	}
	encoded := base64.StdEncoding.EncodeToString(payload)

	var sb strings.Builder
	lineCount := (len(encoded) + trailerLineWidth - 1) / trailerLineWidth
	fmt.Fprintf(&sb, "%s%d\n", trailerBeginPrefix, len(encoded))
	for i := 0; i < len(encoded); i += trailerLineWidth {
		end := i + trailerLineWidth
		if end > len(encoded) {
			end = len(encoded)
		}
		sb.WriteString("; ")
		sb.WriteString(encoded[i:end])
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "%s%d\n", trailerEndPrefix, lineCount+2)
	return sb.String(), nil
}

// LoadTrailer locates and decodes the analysis trailer at the end of a
// file. A missing trailer is not an error (nil analysis, no warnings);
// a malformed one yields a metadata warning and a nil analysis.
func LoadTrailer(r io.ReaderAt, size int64) (*Analysis, []errors.Warning) {
	lines := readTailLines(r, size, int64(tailProbeLines)*tailLineEstimate)
	a, warns, found, lineHint := parseTrailerLines(lines)
	if found || lineHint == 0 {
		return a, warns
	}

	// Only the end marker was in the probe window. Use its line-count hint
	// to load a slightly larger tail and re-match.
	need := int64(lineHint+10) * tailLineEstimate
	lines = readTailLines(r, size, need)
	a, warns, _, _ = parseTrailerLines(lines)
	return a, warns
}

// LoadTrailerAt decodes the trailer at a known byte offset, as recorded in
// the processed-by line's m: field.
func LoadTrailerAt(r io.ReaderAt, offset, size int64) (*Analysis, []errors.Warning) {
	if offset < 0 || offset >= size {
		return nil, []errors.Warning{errors.MetadataWarning(
			fmt.Sprintf("trailer offset %d outside file of %d bytes", offset, size))}
	}
	buf := make([]byte, size-offset)
	if _, err := r.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, []errors.Warning{errors.MetadataWarning("cannot read trailer: " + err.Error())}
	}
	a, warns, found, _ := parseTrailerLines(splitLines(string(buf)))
	if !found && len(warns) == 0 {
		warns = append(warns, errors.MetadataWarning("no trailer block at recorded offset"))
	}
	return a, warns
}

// parseTrailerLines scans a tail slice of lines for the trailer block.
// Returns the decoded analysis, any warnings, whether a complete block was
// found, and the end marker's line-count hint (0 when no end marker).
func parseTrailerLines(lines []string) (*Analysis, []errors.Warning, bool, int) {
	endIdx := -1
	lineHint := 0
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(lines[i], trailerEndPrefix) {
			endIdx = i
			if n, err := strconv.Atoi(strings.TrimSpace(lines[i][len(trailerEndPrefix):])); err == nil {
				lineHint = n
			}
			break
		}
	}
	if endIdx < 0 {
		return nil, nil, false, 0
	}

	beginIdx := -1
	for i := endIdx - 1; i >= 0; i-- {
		if strings.HasPrefix(lines[i], trailerBeginPrefix) {
			beginIdx = i
			break
		}
	}
	if beginIdx < 0 {
		return nil, nil, false, lineHint
	}

	expected, err := strconv.Atoi(strings.TrimSpace(lines[beginIdx][len(trailerBeginPrefix):]))
	if err != nil {
		return nil, []errors.Warning{errors.MetadataWarning("unparsable trailer begin marker")}, true, lineHint
	}

	var sb strings.Builder
	for _, line := range lines[beginIdx+1 : endIdx] {
		if !strings.HasPrefix(line, "; ") {
			return nil, []errors.Warning{errors.MetadataWarning("trailer payload line missing comment prefix")}, true, lineHint
		}
		sb.WriteString(line[2:])
	}
	encoded := sb.String()
	if len(encoded) != expected {
		return nil, []errors.Warning{errors.MetadataWarning(
			fmt.Sprintf("trailer length mismatch: have %d base64 chars, expected %d", len(encoded), expected))}, true, lineHint
	}

	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, []errors.Warning{errors.MetadataWarning("trailer payload is not valid base64")}, true, lineHint
	}
	var a Analysis
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, []errors.Warning{errors.MetadataWarning("trailer payload is not valid JSON")}, true, lineHint
	}
	if a.Version > AnalysisSchemaVersion {
		return nil, []errors.Warning{errors.MetadataWarning(
			fmt.Sprintf("trailer schema version %d is newer than supported %d", a.Version, AnalysisSchemaVersion))}, true, lineHint
	}
	return &a, nil, true, lineHint
}

// readTailLines reads up to want bytes from the end of the file and splits
// them into lines. A partial first line is dropped.
func readTailLines(r io.ReaderAt, size, want int64) []string {
	if want > size {
		want = size
	}
	if want == 0 {
		return nil
	}
	buf := make([]byte, want)
	if _, err := r.ReadAt(buf, size-want); err != nil && err != io.EOF {
		return nil
	}
	lines := splitLines(string(buf))
	if want < size && len(lines) > 0 {
		// The first line may have been cut mid-way by the byte window.
		lines = lines[1:]
	}
	return lines
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
