// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package nodepath implements compact, order-preserving identifiers for nodes
// of a trace tree.
//
// A Path is built by descending the tree one level at a time. At each level
// the index of the chosen child is appended in big-endian form using the
// smallest width that can represent the number of siblings at that level:
//
//	width(max) = 1                          if max == 0
//	width(max) = floor(log2(max)/8) + 1     otherwise
//
// Because all siblings share the same width and a parent's path is a prefix
// of each of its children's paths, comparing two paths bytewise orders nodes
// exactly as a pre-order traversal of the tree would. A Path can therefore be
// used directly as a key in an ordered map.
//
// The encoding does not record the widths; decoding a Path requires the same
// sequence of sibling counts that was used to build it (which a consumer
// recovers by walking the tree from the root).
package nodepath

import (
	"bytes"
	"encoding/hex"
	"math/bits"

	"github.com/cockroachdb/errors"
)

// Path identifies a node in a tree by the sequence of child indices leading to
// it from the root. The zero value identifies the root.
type Path []byte

// Width returns the number of bytes used to encode a child index at a level
// with max siblings.
func Width(max int) int {
	if max <= 0 {
		return 1
	}
	// bits.Len(max)-1 == floor(log2(max)).
	return (bits.Len(uint(max))-1)/8 + 1
}

// Push appends the encoding of child index n at a level with max siblings.
//
// Push panics if n does not fit in the width implied by max.
func (p *Path) Push(max, n int) {
	w := Width(max)
	if n < 0 || (w < 8 && uint64(n) >= 1<<(8*w)) {
		panic(errors.AssertionFailedf("nodepath: child index %d does not fit in %d byte(s) (max %d)", n, w, max))
	}
	for i := w - 1; i >= 0; i-- {
		*p = append(*p, byte(uint64(n)>>(8*i)))
	}
}

// Pop removes the last level from the path; max must be the sibling count
// that was passed to the matching Push.
func (p *Path) Pop(max int) {
	w := Width(max)
	if w > len(*p) {
		panic(errors.AssertionFailedf("nodepath: cannot pop %d byte(s) from a %d byte path", w, len(*p)))
	}
	*p = (*p)[:len(*p)-w]
}

// Next decodes the first level of the path, given the number of siblings at
// that level, returning the child index and the remainder of the path.
func (p Path) Next(max int) (n int, rest Path, err error) {
	w := Width(max)
	if w > len(p) {
		return 0, nil, errors.Newf("nodepath: path %s too short for a %d byte level", p, w)
	}
	var v uint64
	for _, b := range p[:w] {
		v = v<<8 | uint64(b)
	}
	return int(v), p[w:], nil
}

// Decode splits the path into one child index per level using the provided
// sibling counts. It returns an error if the path is shorter than the counts
// require or has trailing bytes.
func Decode(p Path, maxes []int) ([]int, error) {
	indexes := make([]int, 0, len(maxes))
	for _, max := range maxes {
		n, rest, err := p.Next(max)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, n)
		p = rest
	}
	if len(p) > 0 {
		return nil, errors.Newf("nodepath: %d trailing byte(s) after decoding %d level(s)", len(p), len(maxes))
	}
	return indexes, nil
}

// Level is one step of descent: the child index N among Max siblings.
type Level struct {
	Max int
	N   int
}

// Encode builds the path for the given sequence of levels.
func Encode(levels ...Level) Path {
	var p Path
	for _, l := range levels {
		p.Push(l.Max, l.N)
	}
	return p
}

// Compare returns -1, 0 or +1 depending on whether a sorts before, equal to,
// or after b in pre-order.
func Compare(a, b Path) int {
	return bytes.Compare(a, b)
}

// IsPrefixOf returns true if p identifies an ancestor of (or the same node as)
// other.
func (p Path) IsPrefixOf(other Path) bool {
	return bytes.HasPrefix(other, p)
}

// Clone returns a copy of the path that does not alias p.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return append(Path(make([]byte, 0, len(p))), p...)
}

// String returns the hex encoding of the path; the root is rendered as "/".
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	return hex.EncodeToString(p)
}

// Parse parses the output of String.
func Parse(s string) (Path, error) {
	if s == "/" || s == "" {
		return Path{}, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "nodepath: invalid path %q", s)
	}
	return Path(b), nil
}
