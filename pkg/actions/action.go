// Action dispatch engine
//
// An action is a function over the current window context and the
// processing state. Actions run as an ordered sequence per line; each may
// continue, stop the line, remove itself, replace itself, and may gate a
// sub-sequence. Ordering is part of the contract.
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package actions

import (
	"github.com/Masterminds/semver/v3"

	"ratos-postprocessor/pkg/errors"
	"ratos-postprocessor/pkg/metadata"
	"ratos-postprocessor/pkg/stream"
)

// Flow is the control-flow part of an action outcome
type Flow int

const (
	// FlowContinue proceeds to the next action
	FlowContinue Flow = iota

	// FlowStop aborts the rest of the sequence for this line
	FlowStop

	// FlowRemoveAndContinue drops this action from the sequence, then continues
	FlowRemoveAndContinue

	// FlowRemoveAndStop drops this action from the sequence, then stops
	FlowRemoveAndStop
)

// Outcome is what an action returns: a flow, an optional replacement
// applied before the flow, and an optional skip flag for sub-sequences.
type Outcome struct {
	Flow        Flow
	SkipSub     bool
	Replacement *Item
}

// Continue proceeds to the next action
func Continue() Outcome { return Outcome{Flow: FlowContinue} }

// Stop aborts the rest of the sequence for this line
func Stop() Outcome { return Outcome{Flow: FlowStop} }

// RemoveAndContinue drops this action, then continues
func RemoveAndContinue() Outcome { return Outcome{Flow: FlowRemoveAndContinue} }

// RemoveAndStop drops this action, then stops
func RemoveAndStop() Outcome { return Outcome{Flow: FlowRemoveAndStop} }

// WithSkipSub marks the outcome so a gated sub-sequence is skipped
func (o Outcome) WithSkipSub() Outcome {
	o.SkipSub = true
	return o
}

// WithReplacement swaps the current action for another before the flow is
// applied, enabling state-machine behaviour.
func (o Outcome) WithReplacement(it Item) Outcome {
	o.Replacement = &it
	return o
}

// Action is a single transform step
type Action func(c *stream.Context, st *State) (Outcome, error)

// Filter gates an action on the generator flavour and optionally a semver
// range. Filtered actions must not run before identification is known.
type Filter struct {
	Flavours metadata.Flavour
	Versions *semver.Constraints
}

// Matches reports whether the identification satisfies the filter
func (f *Filter) Matches(id *metadata.Identification) bool {
	if !id.Flavour.Has(f.Flavours) {
		return false
	}
	if f.Versions != nil && (id.Version == nil || !f.Versions.Check(id.Version)) {
		return false
	}
	return true
}

// Item is the closed sum of sequence entries: a plain action, a filtered
// action, or a sub-sequence, plus the no-op marker left behind by removed
// filtered actions.
type Item struct {
	fn     Action
	filter *Filter

	entry Action
	sub   []Item

	noop bool
}

// ActionItem wraps a plain action
func ActionItem(fn Action) Item {
	return Item{fn: fn}
}

// FilteredItem wraps an action gated on flavour (and optionally version)
func FilteredItem(f Filter, fn Action) Item {
	return Item{fn: fn, filter: &f}
}

// SubSequenceItem wraps an entry action gating an inner sequence. The
// entry runs first; unless its outcome carries SkipSub, the inner sequence
// runs; the entry's outcome is then applied to the parent sequence.
func SubSequenceItem(entry Action, items ...Item) Item {
	return Item{entry: entry, sub: items}
}

// Sequence is an ordered, self-mutating list of items dispatched once per
// line.
type Sequence struct {
	items []Item
}

// NewSequence builds a sequence from items, in dispatch order
func NewSequence(items ...Item) *Sequence {
	return &Sequence{items: items}
}

// Len returns the number of live items (for tests and diagnostics)
func (s *Sequence) Len() int {
	return len(s.items)
}

// Process dispatches one line through the sequence
func (s *Sequence) Process(c *stream.Context, st *State) error {
	return run(&s.items, c, st)
}

func run(items *[]Item, c *stream.Context, st *State) error {
	for i := 0; i < len(*items); {
		it := &(*items)[i]

		if it.noop {
			*items = removeAt(*items, i)
			continue
		}

		var out Outcome
		var err error

		if it.entry != nil {
			out, err = it.entry(c, st)
			if err != nil {
				return err
			}
			if !out.SkipSub {
				if err := run(&it.sub, c, st); err != nil {
					return err
				}
			}
		} else {
			if it.filter != nil {
				if st.Ident == nil {
					return errors.InternalError("flavour-filtered action reached before identification")
				}
				if !it.filter.Matches(st.Ident) {
					// Replace with the no-op marker; the next pass over this
					// index removes it, so the mismatch is paid once per file.
					(*items)[i] = Item{noop: true}
					continue
				}
				// Matched filters are stripped so the check runs once.
				it.filter = nil
			}
			out, err = it.fn(c, st)
			if err != nil {
				return err
			}
		}

		if out.Replacement != nil {
			(*items)[i] = *out.Replacement
		}

		switch out.Flow {
		case FlowContinue:
			i++
		case FlowStop:
			return nil
		case FlowRemoveAndContinue:
			*items = removeAt(*items, i)
		case FlowRemoveAndStop:
			*items = removeAt(*items, i)
			return nil
		}
	}
	return nil
}

// removeAt deletes in place; indexes above i shift down
func removeAt(items []Item, i int) []Item {
	return append(items[:i], items[i+1:]...)
}
