// Bookmark registry for retro-patched lines
//
// A bookmark records the byte extent a padded line occupies in the output
// so finalisation can rewrite it in place. Offsets are the offsets at which
// the line was actually written to the output sink.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package stream

import (
	"fmt"
	"io"

	"ratos-postprocessor/pkg/errors"
)

// BookmarkKey is an opaque identity for a bookmarked line. The zero value
// means "no bookmark".
type BookmarkKey int

// NoBookmark is the absent-bookmark sentinel
const NoBookmark BookmarkKey = 0

// Bookmark records the original line text and the byte extent (offset and
// length including the terminating newline) it occupies in the output.
type Bookmark struct {
	Line   string
	Offset int64
	Length int
}

// Registry issues bookmark keys and stores bookmarks as the encoder emits
// the lines that carry them.
type Registry struct {
	next  BookmarkKey
	marks map[BookmarkKey]Bookmark
}

// NewRegistry creates an empty bookmark registry
func NewRegistry() *Registry {
	return &Registry{marks: make(map[BookmarkKey]Bookmark)}
}

// NewKey issues a fresh bookmark key
func (r *Registry) NewKey() BookmarkKey {
	r.next++
	return r.next
}

// record stores a bookmark under its key. Duplicate keys fail: a line must
// be emitted exactly once.
func (r *Registry) record(key BookmarkKey, bm Bookmark) error {
	if key == NoBookmark {
		return errors.InternalError("cannot record a bookmark under the zero key")
	}
	if _, ok := r.marks[key]; ok {
		return errors.InternalError(fmt.Sprintf("duplicate bookmark key %d", key))
	}
	r.marks[key] = bm
	return nil
}

// Lookup returns the bookmark stored under key. A miss is an internal
// error: finalisation asked for a line that was never emitted.
func (r *Registry) Lookup(key BookmarkKey) (Bookmark, error) {
	bm, ok := r.marks[key]
	if !ok {
		return Bookmark{}, errors.InternalError(fmt.Sprintf("bookmark key %d was never emitted", key))
	}
	return bm, nil
}

// Len returns the number of recorded bookmarks
func (r *Registry) Len() int {
	return len(r.marks)
}

// Patch rewrites the bookmarked extent in place with the replacement text,
// padding with spaces up to the reserved length. The replacement may
// contain interior newlines (to insert lines); the extent's terminating
// newline is preserved and the write never changes the byte length.
func (r *Registry) Patch(w io.WriterAt, key BookmarkKey, replacement string) error {
	bm, err := r.Lookup(key)
	if err != nil {
		return err
	}
	need := len(replacement) + 1
	if need > bm.Length {
		return errors.ReplacementTooLongError(need, bm.Length)
	}
	buf := make([]byte, bm.Length)
	copy(buf, replacement)
	for i := len(replacement); i < bm.Length-1; i++ {
		buf[i] = ' '
	}
	buf[bm.Length-1] = '\n'
	if _, err := w.WriteAt(buf, bm.Offset); err != nil {
		return errors.Wrap(err, errors.ErrResource, "retro-patch write failed")
	}
	return nil
}
