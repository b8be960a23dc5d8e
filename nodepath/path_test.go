// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nodepath

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/crlib/crstrings"
	"github.com/cockroachdb/datadriven"
	"github.com/stretchr/testify/require"
)

func TestPathDataDriven(t *testing.T) {
	datadriven.RunTest(t, "testdata/path", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "encode":
			var p Path
			var maxes []int
			for line := range crstrings.LinesSeq(td.Input) {
				var max, n int
				if _, err := fmt.Sscanf(line, "%d %d", &max, &n); err != nil {
					td.Fatalf(t, "parsing %q: %v", line, err)
				}
				p.Push(max, n)
				maxes = append(maxes, max)
			}
			decoded, err := Decode(p, maxes)
			if err != nil {
				return err.Error()
			}
			var buf strings.Builder
			fmt.Fprintf(&buf, "path: %s\ndecoded:", p)
			for _, n := range decoded {
				fmt.Fprintf(&buf, " %d", n)
			}
			return buf.String()

		case "width":
			var buf strings.Builder
			for line := range crstrings.LinesSeq(td.Input) {
				max, err := strconv.Atoi(line)
				if err != nil {
					td.Fatalf(t, "parsing %q: %v", line, err)
				}
				fmt.Fprintf(&buf, "%d: %d\n", max, Width(max))
			}
			return buf.String()

		case "compare":
			var a, b string
			td.ScanArgs(t, "a", &a)
			td.ScanArgs(t, "b", &b)
			return strconv.Itoa(Compare(parseLevels(t, a), parseLevels(t, b)))

		default:
			td.Fatalf(t, "unknown command %q", td.Cmd)
			return ""
		}
	})
}

// parseLevels parses "max:n/max:n/..." into a path.
func parseLevels(t *testing.T, s string) Path {
	var levels []Level
	for _, part := range strings.Split(s, "/") {
		var l Level
		_, err := fmt.Sscanf(part, "%d:%d", &l.Max, &l.N)
		require.NoError(t, err)
		levels = append(levels, l)
	}
	return Encode(levels...)
}

func TestPathRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(0, uint64(1)))
	for iter := 0; iter < 1000; iter++ {
		depth := rng.IntN(10)
		levels := make([]Level, depth)
		maxes := make([]int, depth)
		for i := range levels {
			// Mix narrow and very wide levels so that every width is exercised.
			max := 1 + rng.IntN(1<<uint(rng.IntN(24)))
			levels[i] = Level{Max: max, N: rng.IntN(max)}
			maxes[i] = max
		}
		p := Encode(levels...)
		decoded, err := Decode(p, maxes)
		require.NoError(t, err)
		for i := range levels {
			require.Equal(t, levels[i].N, decoded[i], "level %d of %v", i, levels)
		}
	}
}

func TestPathSiblingOrder(t *testing.T) {
	for _, max := range []int{1, 2, 255, 256, 300, 70000} {
		prefix := Encode(Level{Max: 5, N: 3})
		var prev Path
		for n := 0; n < max && n < 600; n++ {
			p := prefix.Clone()
			p.Push(max, n)
			if prev != nil {
				require.Equal(t, -1, Compare(prev, p), "max=%d n=%d", max, n)
			}
			prev = p
		}
	}
}

func TestPathPreOrder(t *testing.T) {
	// A small tree: root has 3 children, the second of which has 300 children.
	var paths []Path
	var p Path
	for i := 0; i < 3; i++ {
		p.Push(3, i)
		paths = append(paths, p.Clone())
		if i == 1 {
			for j := 0; j < 300; j++ {
				p.Push(300, j)
				paths = append(paths, p.Clone())
				p.Pop(300)
			}
		}
		p.Pop(3)
	}
	require.Empty(t, p)
	require.True(t, slices.IsSortedFunc(paths, Compare))
}

func TestPathPushPop(t *testing.T) {
	var p Path
	p.Push(10, 3)
	p.Push(1000, 999)
	require.Equal(t, Path{0x03, 0x03, 0xe7}, p)
	p.Pop(1000)
	require.Equal(t, Path{0x03}, p)
	require.Panics(t, func() { p.Pop(1 << 20) })
	require.Panics(t, func() { p.Push(10, 256) })
	require.Panics(t, func() { p.Push(10, -1) })
}

func TestPathDecodeErrors(t *testing.T) {
	_, err := Decode(Path{0x01}, []int{300})
	require.Error(t, err)
	_, err = Decode(Path{0x01, 0x02}, []int{3})
	require.Error(t, err)
}

func TestPathParse(t *testing.T) {
	p := Encode(Level{Max: 3, N: 1}, Level{Max: 300, N: 270})
	parsed, err := Parse(p.String())
	require.NoError(t, err)
	require.Equal(t, p, parsed)
	root, err := Parse("/")
	require.NoError(t, err)
	require.Empty(t, root)
	require.True(t, root.IsPrefixOf(p))
	_, err = Parse("zz")
	require.Error(t, err)
}
