// Non-interactive JSON record stream
//
// In --non-interactive mode the CLI emits one JSON record per line on
// stdout; the printer host tails the stream and surfaces the records in
// its console. The shapes here are a wire contract with that host.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package report

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"ratos-postprocessor/pkg/errors"
)

// GCodeInfo is the generator summary in a success payload
type GCodeInfo struct {
	Generator        string `json:"generator"`
	GeneratorVersion string `json:"generatorVersion"`
}

// SuccessPayload is the payload of the final success record
type SuccessPayload struct {
	GCodeInfo           GCodeInfo `json:"gcodeInfo"`
	UsedTools           []string  `json:"usedTools"`
	ToolChangeCount     int       `json:"toolChangeCount"`
	WasAlreadyProcessed bool      `json:"wasAlreadyProcessed"`
}

// progressPayload is the payload of a progress record
type progressPayload struct {
	Percentage int `json:"percentage"`
	ETA        int `json:"eta"`
}

// record is the envelope of every emitted line
type record struct {
	Result  string      `json:"result"`
	Error   string      `json:"error,omitempty"`
	Warning string      `json:"warning,omitempty"`
	For     string      `json:"for,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Reporter emits newline-delimited JSON records
type Reporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewReporter creates a reporter over the given writer (normally stdout)
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{enc: json.NewEncoder(w)}
}

func (r *Reporter) emit(rec record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// An encode failure here has nowhere to go; the host treats a missing
	// record as a stall and times out.
	_ = r.enc.Encode(rec)
}

// Progress emits a progress record with a percentage and ETA in seconds
func (r *Reporter) Progress(percentage, etaSeconds int) {
	r.emit(record{Result: "progress", Payload: progressPayload{Percentage: percentage, ETA: etaSeconds}})
}

// Warning emits a warning record
func (r *Reporter) Warning(w errors.Warning) {
	r.emit(record{Result: "warning", Warning: w.String()})
}

// Error emits an error record
func (r *Reporter) Error(err error) {
	r.emit(record{Result: "error", Error: err.Error()})
}

// Waiting emits a waiting record naming what the process waits for
func (r *Reporter) Waiting(what string) {
	r.emit(record{Result: "waiting", For: what})
}

// Success emits the final success record
func (r *Reporter) Success(payload SuccessPayload) {
	r.emit(record{Result: "success", Payload: payload})
}

// Tracker converts byte progress into percentage/ETA pairs, rate-limited
// so the record stream stays small.
type Tracker struct {
	start    time.Time
	total    int64
	lastPct  int
	lastEmit time.Time
}

// NewTracker creates a tracker for total input bytes
func NewTracker(total int64) *Tracker {
	return &Tracker{start: time.Now(), total: total, lastPct: -1}
}

// Update returns the current percentage and ETA, and whether the caller
// should emit a record (percentage changed, at most every 500ms).
func (t *Tracker) Update(done int64) (pct, etaSeconds int, emit bool) {
	if t.total <= 0 {
		return 0, 0, false
	}
	pct = int(done * 100 / t.total)
	if pct > 100 {
		pct = 100
	}
	elapsed := time.Since(t.start)
	if done > 0 {
		remaining := time.Duration(float64(elapsed) * float64(t.total-done) / float64(done))
		etaSeconds = int(remaining / time.Second)
	}
	now := time.Now()
	if pct != t.lastPct && now.Sub(t.lastEmit) >= 500*time.Millisecond {
		t.lastPct = pct
		t.lastEmit = now
		return pct, etaSeconds, true
	}
	return pct, etaSeconds, false
}
