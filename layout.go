// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package serhex

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/serhex/internal/base"
	"github.com/cockroachdb/serhex/nodepath"
)

// Node is an action of a trace placed in the logical stream.
type Node struct {
	Action *Action
	Path   nodepath.Path
	Parent *Node
	// Children is set for span nodes, in program order.
	Children []*Node
	Depth    int

	// Start and End delimit the logical byte range of the node. For a read
	// this is the range it consumed. For a span it runs from the offset when
	// the span was entered to the offset when it was exited, which may be
	// inverted if the span seeks backwards. For a seek, Start is the offset
	// before the seek and End its target.
	Start, End uint64

	// DataStart and DataEnd delimit the bytes of Trace.Data consumed by the
	// reads in the node's subtree.
	DataStart, DataEnd uint64

	// ord is the node's position in pre-order.
	ord int
}

// Kind returns the kind of the node's action.
func (n *Node) Kind() ActionKind { return n.Action.Kind }

// Name returns the span name for a span node and the name of the enclosing
// span for a read or seek.
func (n *Node) Name() string {
	if n.Action.Kind == ActionSpan {
		return n.Action.Span.Name
	}
	if n.Parent != nil {
		return n.Parent.Action.Span.Name
	}
	return ""
}

// Len returns the number of logical bytes covered by the node, or zero if its
// range is empty or inverted.
func (n *Node) Len() uint64 {
	if n.End <= n.Start {
		return 0
	}
	return n.End - n.Start
}

// Layout is a trace with every action placed at its logical offset. Offsets
// start at the trace's StartIndex, advance by N over each read and jump to N
// at each seek.
type Layout struct {
	trace *Trace
	// nodes is in pre-order, which is also ascending path order.
	nodes []*Node
}

// NewLayout computes the layout of t. It returns a malformed trace error if
// the tree is not rooted at a span or its reads consume more bytes than t
// holds.
func NewLayout(t *Trace) (*Layout, error) {
	if t.Root.Kind != ActionSpan || t.Root.Span == nil {
		return nil, base.MalformedTracef("serhex: trace root must be a span, found %s", t.Root.Kind)
	}
	b := layoutBuilder{
		l:      &Layout{trace: t},
		offset: t.StartIndex,
		limit:  uint64(len(t.Data)),
	}
	if _, err := b.place(&t.Root, nil, nil); err != nil {
		return nil, err
	}
	return b.l, nil
}

// Validate checks that t's action tree is consistent with its data buffer.
func (t *Trace) Validate() error {
	_, err := NewLayout(t)
	return err
}

type layoutBuilder struct {
	l      *Layout
	offset uint64
	cursor uint64
	limit  uint64
}

func (b *layoutBuilder) place(a *Action, parent *Node, path nodepath.Path) (*Node, error) {
	n := &Node{
		Action:    a,
		Path:      path,
		Parent:    parent,
		Start:     b.offset,
		DataStart: b.cursor,
		ord:       len(b.l.nodes),
	}
	if parent != nil {
		n.Depth = parent.Depth + 1
	}
	b.l.nodes = append(b.l.nodes, n)

	switch a.Kind {
	case ActionRead:
		if a.N > b.limit-b.cursor {
			return nil, base.MalformedTracef(
				"serhex: read of %d bytes at data offset %d exceeds the %d captured bytes",
				a.N, b.cursor, b.limit)
		}
		if a.N > math.MaxUint64-b.offset {
			return nil, base.MalformedTracef("serhex: read of %d bytes at offset %d overflows", a.N, b.offset)
		}
		b.cursor += a.N
		b.offset += a.N
	case ActionSeek:
		b.offset = a.N
	case ActionSpan:
		if a.Span == nil {
			return nil, base.MalformedTracef("serhex: span action without a span")
		}
		siblings := len(a.Span.Actions)
		n.Children = make([]*Node, 0, siblings)
		for i := range a.Span.Actions {
			child := path.Clone()
			child.Push(siblings, i)
			c, err := b.place(&a.Span.Actions[i], n, child)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, c)
		}
	default:
		return nil, base.MalformedTracef("serhex: unknown action kind %s", a.Kind)
	}
	n.End = b.offset
	n.DataEnd = b.cursor
	return n, nil
}

// Trace returns the trace the layout was computed from.
func (l *Layout) Trace() *Trace { return l.trace }

// Root returns the node of the root span.
func (l *Layout) Root() *Node { return l.nodes[0] }

// Nodes returns every node in pre-order.
func (l *Layout) Nodes() []*Node { return l.nodes }

// Lookup returns the node at path p.
func (l *Layout) Lookup(p nodepath.Path) (*Node, bool) {
	i := sort.Search(len(l.nodes), func(i int) bool {
		return nodepath.Compare(l.nodes[i].Path, p) >= 0
	})
	if i < len(l.nodes) && nodepath.Compare(l.nodes[i].Path, p) == 0 {
		return l.nodes[i], true
	}
	return nil, false
}

// Ancestors returns the chain of nodes from the root down to and including
// the node at path p, or nil if there is no such node.
func (l *Layout) Ancestors(p nodepath.Path) []*Node {
	n, ok := l.Lookup(p)
	if !ok {
		return nil
	}
	chain := make([]*Node, n.Depth+1)
	for ; n != nil; n = n.Parent {
		chain[n.Depth] = n
	}
	return chain
}

// Bytes returns the captured bytes consumed by n's subtree.
func (l *Layout) Bytes(n *Node) []byte {
	return l.trace.Data[n.DataStart:n.DataEnd]
}

// Walk calls fn for every node in pre-order, stopping early if fn returns
// false.
func (l *Layout) Walk(fn func(n *Node) bool) {
	for _, n := range l.nodes {
		if !fn(n) {
			return
		}
	}
}

// maxFormattedBytes bounds the hex shown per read by Format.
const maxFormattedBytes = 16

// Format writes an indented dump of the layout, one node per line.
func (l *Layout) Format(w io.Writer) error {
	for _, n := range l.nodes {
		if _, err := io.WriteString(w, l.formatNode(n)); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layout) formatNode(n *Node) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", n.Depth))
	b.WriteString(n.Path.String())
	switch n.Kind() {
	case ActionSpan:
		fmt.Fprintf(&b, " span %s [%d,%d)", n.Action.Span.Name, n.Start, n.End)
	case ActionRead:
		fmt.Fprintf(&b, " read %d [%d,%d) data[%d,%d)", n.Action.N, n.Start, n.End, n.DataStart, n.DataEnd)
		if data := l.Bytes(n); len(data) > 0 {
			b.WriteByte(' ')
			if len(data) > maxFormattedBytes {
				b.WriteString(hex.EncodeToString(data[:maxFormattedBytes]))
				b.WriteString("...")
			} else {
				b.WriteString(hex.EncodeToString(data))
			}
		}
	case ActionSeek:
		fmt.Fprintf(&b, " seek %d [%d,%d)", n.Action.N, n.Start, n.End)
	}
	b.WriteByte('\n')
	return b.String()
}

// String returns the output of Format.
func (l *Layout) String() string {
	var b strings.Builder
	_ = l.Format(&b)
	return b.String()
}

// checkNesting verifies that every read lies within the range of each of its
// enclosing spans, for spans that never seek.
func (l *Layout) checkNesting() error {
	for _, n := range l.nodes {
		if n.Kind() != ActionRead || n.Len() == 0 {
			continue
		}
		for p := n.Parent; p != nil; p = p.Parent {
			if p.hasSeek() {
				break
			}
			if n.Start < p.Start || n.End > p.End {
				return errors.AssertionFailedf("serhex: read %s [%d,%d) escapes span %q [%d,%d)",
					n.Path, n.Start, n.End, p.Name(), p.Start, p.End)
			}
		}
	}
	return nil
}

// hasSeek returns true if n's subtree contains a seek.
func (n *Node) hasSeek() bool {
	for _, c := range n.Children {
		if c.Kind() == ActionSeek || c.hasSeek() {
			return true
		}
	}
	return false
}
