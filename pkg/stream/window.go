// Sliding-window line processor
//
// The window presents each line to a callback with bounded forward and
// backward context, emits lines to the sink in input order, and hands
// bookmark keys to the encoder as lines leave the window. A line is
// processed only once its full lookahead has been buffered (or the stream
// ended); it is evicted, and emitted, once it falls more than lines_behind
// positions behind the processing point.
//
// Neighbour contexts are generation-tagged: they are valid only during the
// callback invocation that obtained them, and dereferencing a stale
// context is a detected error.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package stream

import (
	"context"
	"fmt"

	"ratos-postprocessor/pkg/errors"
)

const (
	// DefaultLinesBehind is the default backward context of the window
	DefaultLinesBehind = 20

	// DefaultLinesAhead is the default forward context of the window
	DefaultLinesAhead = 100
)

// Callback is invoked once per line, in input order, with a context over
// the window's midpoint.
type Callback func(*Context) error

type slot struct {
	text       string
	key        BookmarkKey
	removed    bool
	bookmarked bool
}

// Window is the sliding-window line processor.
type Window struct {
	ctx    context.Context
	behind int
	ahead  int
	size   int
	sink   LineSink
	cb     Callback

	slots []slot
	head  int64 // absolute index of the first buffered line
	count int
	total int64 // lines pushed so far
	next  int64 // absolute index of the next line to hand to the callback

	callSeq    uint64
	inCallback bool
}

// NewWindow creates a window with the given geometry. behind and ahead
// must be non-negative; zero-zero still buffers the current line.
func NewWindow(ctx context.Context, behind, ahead int, cb Callback, sink LineSink) *Window {
	size := behind + ahead + 1
	return &Window{
		ctx:    ctx,
		behind: behind,
		ahead:  ahead,
		size:   size,
		sink:   sink,
		cb:     cb,
		slots:  make([]slot, size),
	}
}

func (w *Window) slotFor(abs int64) *slot {
	return &w.slots[abs%int64(w.size)]
}

// Push feeds one input line (without its newline) into the window. The
// evicted slot, if any, is emitted before the new line's callback runs, so
// a callback may still mutate every line within lines_behind of it.
func (w *Window) Push(line string) error {
	if err := w.ctx.Err(); err != nil {
		return errors.CancelledError(err)
	}

	if w.count == w.size {
		if err := w.emit(w.head); err != nil {
			return err
		}
		w.head++
		w.count--
	}

	*w.slotFor(w.total) = slot{text: line}
	w.total++
	w.count++

	for w.next+int64(w.ahead) < w.total {
		if err := w.invoke(w.next); err != nil {
			return err
		}
		w.next++
	}
	return nil
}

// Flush processes every line still awaiting its callback, then emits all
// buffered slots in order.
func (w *Window) Flush() error {
	for w.next < w.total {
		if err := w.ctx.Err(); err != nil {
			return errors.CancelledError(err)
		}
		if err := w.invoke(w.next); err != nil {
			return err
		}
		w.next++
	}
	for w.count > 0 {
		if err := w.ctx.Err(); err != nil {
			return errors.CancelledError(err)
		}
		if err := w.emit(w.head); err != nil {
			return err
		}
		w.head++
		w.count--
	}
	return nil
}

func (w *Window) invoke(abs int64) error {
	w.callSeq++
	w.inCallback = true
	err := w.cb(&Context{w: w, abs: abs, seq: w.callSeq})
	w.inCallback = false
	return err
}

func (w *Window) emit(abs int64) error {
	s := w.slotFor(abs)
	if s.removed {
		return nil
	}
	return w.sink.WriteLine(s.text, s.key)
}

// Context is a callback-scoped handle over one buffered line. Contexts
// obtained during a callback (including neighbours from GetLine and the
// scan helpers) become invalid when that callback returns.
type Context struct {
	w   *Window
	abs int64
	seq uint64
}

func (c *Context) check() {
	if !c.w.inCallback || c.seq != c.w.callSeq {
		panic(errors.InternalError("window context used outside its callback invocation"))
	}
}

// LineNumber returns the 1-based input line number
func (c *Context) LineNumber() int {
	c.check()
	return int(c.abs) + 1
}

// Line returns the current text of the line
func (c *Context) Line() string {
	c.check()
	return c.w.slotFor(c.abs).text
}

// SetLine replaces the line's text
func (c *Context) SetLine(text string) {
	c.check()
	c.w.slotFor(c.abs).text = text
}

// Remove marks the line so the encoder skips its emission
func (c *Context) Remove() {
	c.check()
	c.w.slotFor(c.abs).removed = true
}

// IsRemoved reports whether the line was marked removed
func (c *Context) IsRemoved() bool {
	c.check()
	return c.w.slotFor(c.abs).removed
}

// Bookmark attaches a bookmark key to the line. A line can carry at most
// one key; a second assignment is an error.
func (c *Context) Bookmark(key BookmarkKey) error {
	c.check()
	s := c.w.slotFor(c.abs)
	if s.bookmarked {
		return errors.InternalError(fmt.Sprintf("line %d already carries a bookmark", c.abs+1))
	}
	s.bookmarked = true
	s.key = key
	return nil
}

// GetLine returns a context over the buffered neighbour at the given
// offset (negative for earlier lines), or false when the neighbour is
// outside the window or the stream.
func (c *Context) GetLine(offset int) (*Context, bool) {
	c.check()
	abs := c.abs + int64(offset)
	if abs < c.w.head || abs >= c.w.total {
		return nil, false
	}
	return &Context{w: c.w, abs: abs, seq: c.seq}, true
}

// ScanForward returns contexts over up to n following lines, nearest
// first, clamped to the window.
func (c *Context) ScanForward(n int) []*Context {
	c.check()
	out := make([]*Context, 0, n)
	for i := 1; i <= n; i++ {
		nc, ok := c.GetLine(i)
		if !ok {
			break
		}
		out = append(out, nc)
	}
	return out
}

// ScanBack returns contexts over up to n preceding lines, nearest first,
// clamped to the window.
func (c *Context) ScanBack(n int) []*Context {
	c.check()
	out := make([]*Context, 0, n)
	for i := 1; i <= n; i++ {
		nc, ok := c.GetLine(-i)
		if !ok {
			break
		}
		out = append(out, nc)
	}
	return out
}
