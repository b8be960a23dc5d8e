// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package binfmt

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// DumpOptions configure FHexDump.
type DumpOptions struct {
	// Width is the number of bytes per line. Defaults to 16.
	Width int
	// IncludeOffsets prefixes each line with the offset of its first byte.
	IncludeOffsets bool
	// BaseOffset is the offset of data[0].
	BaseOffset uint64
	// Annotate, if set, is called with the offsets [start, end) covered by
	// each line and its result is appended to the line as a comment.
	Annotate func(start, end uint64) string
}

// HexDump returns a string representation of the data in a hex dump format.
// The width is the number of bytes per line.
func HexDump(data []byte, width int, includeOffsets bool) string {
	var buf bytes.Buffer
	FHexDump(&buf, data, DumpOptions{Width: width, IncludeOffsets: includeOffsets})
	return buf.String()
}

// FHexDump writes a hex dump of the data to w.
func FHexDump(w io.Writer, data []byte, opts DumpOptions) {
	width := opts.Width
	if width <= 0 {
		width = 16
	}
	last := opts.BaseOffset + uint64(max(len(data), 1)-1)
	offsetFormatWidth := max(2, len(strconv.FormatUint(last, 16)))
	offsetFormatStr := "%0" + strconv.Itoa(offsetFormatWidth) + "x"
	for i := 0; i < len(data); i += width {
		start := opts.BaseOffset + uint64(i)
		if opts.IncludeOffsets {
			fmt.Fprintf(w, offsetFormatStr+": ", start)
		}
		for j := 0; j < width; j++ {
			if j%4 == 0 {
				fmt.Fprint(w, " ")
			}
			if i+j >= len(data) {
				fmt.Fprintf(w, "  ")
			} else {
				fmt.Fprintf(w, "%02x", data[i+j])
			}
		}

		fmt.Fprint(w, " | ")
		n := min(width, len(data)-i)
		for j := 0; j < width; j++ {
			if j >= n && opts.Annotate == nil {
				break
			}
			if j%4 == 0 {
				fmt.Fprint(w, " ")
			}
			switch {
			case j >= n:
				// Pad so that annotations line up.
				fmt.Fprint(w, " ")
			case data[i+j] < 32 || data[i+j] > 126:
				fmt.Fprint(w, ".")
			default:
				fmt.Fprintf(w, "%c", data[i+j])
			}
		}
		if opts.Annotate != nil {
			if s := opts.Annotate(start, start+uint64(n)); s != "" {
				fmt.Fprint(w, " # ", s)
			}
		}
		fmt.Fprintln(w)
	}
}
