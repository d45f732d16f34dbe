// Bookmarking byte encoder
//
// The encoder is the last pipeline stage before the output sink. It
// serialises each surviving line as UTF-8 plus a single newline, records
// bookmarks at the byte offsets where their lines actually land, and
// tracks the running offset. Backpressure is the blocking write itself: a
// slow sink suspends the whole push chain until it drains.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package stream

import (
	"context"
	"io"

	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/pool"
)

// LineSink accepts lines leaving the sliding window. key is NoBookmark for
// ordinary lines.
type LineSink interface {
	WriteLine(text string, key BookmarkKey) error
}

// Encoder writes lines to an io.Writer, recording bookmarks as it goes.
type Encoder struct {
	ctx    context.Context
	w      io.Writer
	reg    *Registry
	offset int64
	lines  int64
}

// NewEncoder creates an encoder over the given writer. The context is
// polled at every record boundary.
func NewEncoder(ctx context.Context, w io.Writer, reg *Registry) *Encoder {
	return &Encoder{ctx: ctx, w: w, reg: reg}
}

// WriteLine encodes one line followed by exactly one newline. If key is
// set, the line's byte extent is recorded in the registry before the write.
func (e *Encoder) WriteLine(text string, key BookmarkKey) error {
	if err := e.ctx.Err(); err != nil {
		return errors.CancelledError(err)
	}

	buf := pool.GetLineBuffer()
	defer pool.PutLineBuffer(buf)
	*buf = append(*buf, text...)
	*buf = append(*buf, '\n')

	if key != NoBookmark {
		if err := e.reg.record(key, Bookmark{Line: text, Offset: e.offset, Length: len(*buf)}); err != nil {
			return err
		}
	}

	n, err := e.w.Write(*buf)
	e.offset += int64(n)
	if err != nil {
		return errors.Wrap(err, errors.ErrResource, "output write failed")
	}
	e.lines++
	return nil
}

// Offset returns the running byte offset, which after the stream ends is
// the size of the streamed output (and the offset at which the trailer
// will be appended).
func (e *Encoder) Offset() int64 {
	return e.offset
}

// Lines returns the number of lines emitted
func (e *Encoder) Lines() int64 {
	return e.lines
}
