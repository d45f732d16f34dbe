// Object pools for reducing GC pressure in hot paths
//
// The streaming pipeline touches every line of inputs that reach hundreds
// of megabytes; the encoder's scratch buffers are pooled so encoding a
// line does not allocate a fresh buffer.
//
// Usage:
//
//	buf := pool.GetLineBuffer()
//	defer pool.PutLineBuffer(buf)
//	// use buf...
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
)

// defaultLineCapacity covers the overwhelming majority of G-code lines,
// including padded bookmark lines.
const defaultLineCapacity = 512

// Line buffer pool - for encoding a line plus its newline
var lineBufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, defaultLineCapacity)
		return &b
	},
}

// GetLineBuffer gets an empty byte buffer from the pool
func GetLineBuffer() *[]byte {
	b := lineBufferPool.Get().(*[]byte)
	*b = (*b)[:0]
	return b
}

// PutLineBuffer returns a buffer to the pool. Oversized buffers (from the
// occasional huge line) are dropped so the pool keeps a bounded footprint.
func PutLineBuffer(b *[]byte) {
	if b == nil || cap(*b) > 64*1024 {
		return
	}
	lineBufferPool.Put(b)
}

// String slice pool - for scan results and tool lists
var stringSlicePool = sync.Pool{
	New: func() any {
		s := make([]string, 0, 32)
		return &s
	},
}

// GetStringSlice gets an empty string slice from the pool
func GetStringSlice() *[]string {
	s := stringSlicePool.Get().(*[]string)
	*s = (*s)[:0]
	return s
}

// PutStringSlice returns a string slice to the pool
func PutStringSlice(s *[]string) {
	if s == nil {
		return
	}
	clear(*s)
	stringSlicePool.Put(s)
}
