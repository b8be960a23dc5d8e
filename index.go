// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package serhex

import (
	"cmp"
	"iter"
	"slices"
	"sort"
	"strings"

	"github.com/RaduBerinde/axisds"
	"github.com/RaduBerinde/axisds/regiontree"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/serhex/nodepath"
)

// Record describes the logical byte range of one read or span.
type Record struct {
	// Start and End delimit the half-open range [Start, End).
	Start, End uint64
	// Name is the span's name, or for a read the name of its enclosing span.
	Name string
	Path nodepath.Path
	Kind ActionKind
	// Depth is the depth of the node in the action tree; the root span has
	// depth zero.
	Depth int
}

// String implements fmt.Stringer.
func (r *Record) String() string {
	return redact.StringWithoutMarkers(r)
}

// SafeFormat implements redact.SafeFormatter. The span name is treated as
// unsafe.
func (r *Record) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s %s %s [%d,%d)", redact.SafeString(r.Path.String()), r.Kind, r.Name, r.Start, r.End)
}

// region is a maximal range over which the set of covering records is
// constant.
type region struct {
	start, end uint64
	// records are indexes into Index.records, in pre-order.
	records []int
}

// Index answers stabbing queries over the records of a trace: which reads
// and spans cover a given logical offset.
//
// Records with empty or inverted ranges (spans whose contents seeked
// backwards, zero-byte reads) are retained by Records but are never returned
// by a query.
type Index struct {
	layout  *Layout
	records []Record
	// regions is sorted and non-overlapping.
	regions []region
}

// BuildIndex computes the layout of t and indexes it.
func BuildIndex(t *Trace) (*Index, error) {
	l, err := NewLayout(t)
	if err != nil {
		return nil, err
	}
	return NewIndex(l), nil
}

// NewIndex builds an index over every read and span of l.
func NewIndex(l *Layout) *Index {
	ix := &Index{layout: l}
	for _, n := range l.Nodes() {
		if n.Kind() == ActionSeek {
			continue
		}
		ix.records = append(ix.records, Record{
			Start: n.Start,
			End:   n.End,
			Name:  n.Name(),
			Path:  n.Path,
			Kind:  n.Kind(),
			Depth: n.Depth,
		})
	}

	rt := regiontree.Make(axisds.CompareFn[uint64](cmp.Compare[uint64]), func(a, b []int) bool {
		return slices.Equal(a, b)
	})
	for i := range ix.records {
		r := &ix.records[i]
		if r.End <= r.Start {
			continue
		}
		rt.Update(r.Start, r.End, func(p []int) []int {
			return append(slices.Clip(p), i)
		})
	}
	rt.EnumerateAll(func(start, end uint64, ids []int) bool {
		if len(ids) == 0 {
			return true
		}
		ix.regions = append(ix.regions, region{start: start, end: end, records: ids})
		return true
	})
	return ix
}

// Layout returns the layout the index was built over.
func (ix *Index) Layout() *Layout { return ix.layout }

// Records returns every indexed record in pre-order.
func (ix *Index) Records() []Record { return ix.records }

// regionAt returns the index of the first region ending after addr.
func (ix *Index) regionAt(addr uint64) int {
	return sort.Search(len(ix.regions), func(i int) bool {
		return ix.regions[i].end > addr
	})
}

// QueryPoint yields every record whose range contains addr, outermost first.
func (ix *Index) QueryPoint(addr uint64) iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		i := ix.regionAt(addr)
		if i == len(ix.regions) || ix.regions[i].start > addr {
			return
		}
		for _, id := range ix.regions[i].records {
			if !yield(&ix.records[id]) {
				return
			}
		}
	}
}

// Innermost returns the most recently captured record containing addr, that
// is the last one in pre-order. This need not be the deepest: a byte re-read
// by an outer span after a seek is attributed to the outer span's read.
func (ix *Index) Innermost(addr uint64) (*Record, bool) {
	var last *Record
	for r := range ix.QueryPoint(addr) {
		last = r
	}
	return last, last != nil
}

// QueryRange yields, in pre-order, every record whose range overlaps
// [start, end). Each record is yielded once.
func (ix *Index) QueryRange(start, end uint64) iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		if end <= start {
			return
		}
		var ids []int
		for i := ix.regionAt(start); i < len(ix.regions) && ix.regions[i].start < end; i++ {
			ids = append(ids, ix.regions[i].records...)
		}
		slices.Sort(ids)
		for _, id := range slices.Compact(ids) {
			if !yield(&ix.records[id]) {
				return
			}
		}
	}
}

// Dominant returns the name that covers the most bytes of [start, end) when
// each byte is attributed to the record Innermost returns for it. Ties go to
// the lexicographically smaller name. It returns false if no byte in the range
// is covered.
func (ix *Index) Dominant(start, end uint64) (string, bool) {
	if end <= start {
		return "", false
	}
	counts := make(map[string]uint64)
	for i := ix.regionAt(start); i < len(ix.regions) && ix.regions[i].start < end; i++ {
		r := &ix.regions[i]
		lo, hi := max(start, r.start), min(end, r.end)
		name := ix.records[r.records[len(r.records)-1]].Name
		counts[name] += hi - lo
	}
	var best string
	var bestN uint64
	for name, n := range counts {
		if n > bestN || (n == bestN && strings.Compare(name, best) < 0) {
			best, bestN = name, n
		}
	}
	return best, bestN > 0
}

// Covered returns the number of bytes of [start, end) covered by at least
// one record.
func (ix *Index) Covered(start, end uint64) uint64 {
	var total uint64
	if end <= start {
		return 0
	}
	for i := ix.regionAt(start); i < len(ix.regions) && ix.regions[i].start < end; i++ {
		r := &ix.regions[i]
		total += min(end, r.end) - max(start, r.start)
	}
	return total
}
