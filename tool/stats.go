// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/serhex"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// spanStats aggregates the spans sharing a name.
type spanStats struct {
	name  string
	count int
	reads int
	// bytes counts the bytes read directly by the spans, excluding nested
	// spans.
	bytes uint64
}

// traceStats summarizes one trace.
type traceStats struct {
	path      string
	trace     *serhex.Trace
	spans     int
	reads     int
	seeks     int
	maxDepth  int
	covered   uint64
	readSizes *hdrhistogram.Histogram
	sizes     []float64
	byName    []spanStats
}

func computeStats(path string, ix *serhex.Index) *traceStats {
	l := ix.Layout()
	s := &traceStats{
		path:      path,
		trace:     l.Trace(),
		readSizes: hdrhistogram.New(0, 1<<32, 2),
	}
	byName := make(map[string]*spanStats)
	get := func(name string) *spanStats {
		ss, ok := byName[name]
		if !ok {
			ss = &spanStats{name: name}
			byName[name] = ss
		}
		return ss
	}
	var lo, hi uint64
	first := true
	l.Walk(func(n *serhex.Node) bool {
		s.maxDepth = max(s.maxDepth, n.Depth)
		switch n.Kind() {
		case serhex.ActionSpan:
			s.spans++
			get(n.Name()).count++
		case serhex.ActionSeek:
			s.seeks++
		case serhex.ActionRead:
			s.reads++
			_ = s.readSizes.RecordValue(int64(n.Action.N))
			s.sizes = append(s.sizes, float64(n.Action.N))
			ss := get(n.Name())
			ss.reads++
			ss.bytes += n.Action.N
			if n.Len() > 0 {
				if first {
					lo, hi, first = n.Start, n.End, false
				}
				lo, hi = min(lo, n.Start), max(hi, n.End)
			}
		}
		return true
	})
	if !first {
		s.covered = ix.Covered(lo, hi)
	}
	for _, ss := range byName {
		s.byName = append(s.byName, *ss)
	}
	slices.SortFunc(s.byName, func(a, b spanStats) int {
		if a.bytes != b.bytes {
			if a.bytes > b.bytes {
				return -1
			}
			return 1
		}
		return strings.Compare(a.name, b.name)
	})
	return s
}

func humanBytes(n uint64) string {
	return string(crhumanize.Bytes(n, crhumanize.Compact, crhumanize.OmitI))
}

func (s *traceStats) write(w io.Writer, plot bool) {
	fmt.Fprintf(w, "%s\n", s.path)
	fmt.Fprintf(w, "  data: %s from offset %d, %s distinct stream bytes\n",
		humanBytes(uint64(len(s.trace.Data))), s.trace.StartIndex, humanBytes(s.covered))
	fmt.Fprintf(w, "  spans: %s  reads: %s  seeks: %s  max depth: %d\n",
		crhumanize.Count(s.spans, crhumanize.Compact),
		crhumanize.Count(s.reads, crhumanize.Compact),
		crhumanize.Count(s.seeks, crhumanize.Compact),
		s.maxDepth)
	if s.reads > 0 {
		h := s.readSizes
		fmt.Fprintf(w, "  read sizes: p50=%d p90=%d p99=%d max=%d mean=%.1f\n",
			h.ValueAtQuantile(50), h.ValueAtQuantile(90), h.ValueAtQuantile(99), h.Max(), h.Mean())
	}

	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"span", "count", "reads", "bytes"})
	for _, ss := range s.byName {
		tbl.Append([]string{
			ss.name,
			fmt.Sprint(ss.count),
			fmt.Sprint(ss.reads),
			humanBytes(ss.bytes),
		})
	}
	tbl.Render()

	if plot && len(s.sizes) > 1 {
		fmt.Fprintln(w, asciigraph.Plot(s.sizes, asciigraph.Height(10), asciigraph.Caption("bytes per read")))
	}
}

func (t *traceT) runStats(cmd *cobra.Command, args []string) error {
	stdout := cmd.OutOrStdout()
	stats := make([]*traceStats, len(args))
	var g errgroup.Group
	g.SetLimit(4)
	for i, path := range args {
		g.Go(func() error {
			ix, err := t.load(path)
			if err != nil {
				return err
			}
			stats[i] = computeStats(path, ix)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, s := range stats {
		s.write(stdout, t.plot)
	}
	return nil
}
