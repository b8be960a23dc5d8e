// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package binfmt exposes utilities for formatting binary data with descriptive
// comments.
package binfmt

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// New constructs a new binary formatter.
func New(data []byte) *Formatter {
	return &Formatter{
		data:      data,
		lineWidth: 40,
	}
}

// Formatter is a utility for formatting binary data with descriptive comments.
//
// Each line is prefixed with the range of offsets it covers. Offsets start at
// zero and advance with the data consumed, but may be repositioned with
// SetDisplayOffset to show the bytes at their position in some other address
// space (for example, a stream that was read out of order).
type Formatter struct {
	buf   bytes.Buffer
	lines []line
	data  []byte
	off   int
	// display is the offset shown for the byte at off.
	display uint64

	// config
	lineWidth  int
	linePrefix string
}

type line struct {
	start, end uint64
	hasOffsets bool
	binary     string
	comment    string
}

// SetLinePrefix sets a prefix for each line of formatted output.
func (f *Formatter) SetLinePrefix(prefix string) {
	f.linePrefix = prefix
}

// SetDisplayOffset sets the offset shown for the next byte formatted.
func (f *Formatter) SetDisplayOffset(off uint64) {
	f.display = off
}

// LineWidth sets the Formatter's maximum line width for binary data.
func (f *Formatter) LineWidth(width int) *Formatter {
	f.lineWidth = width
	return f
}

// More returns true if there is more data in the byte slice that can be formatted.
func (f *Formatter) More() bool {
	return f.off < len(f.data)
}

// Remaining returns the number of unformatted bytes remaining in the byte slice.
func (f *Formatter) Remaining() int {
	return len(f.data) - f.off
}

// Offset returns the current offset within the original data slice.
func (f *Formatter) Offset() int {
	return f.off
}

// Data returns the original data slice. Offset may be used to retrieve the
// current offset within the slice.
func (f *Formatter) Data() []byte {
	return f.data
}

// Commentf adds a line with no binary data.
func (f *Formatter) Commentf(format string, args ...interface{}) {
	f.lines = append(f.lines, line{comment: fmt.Sprintf(format, args...)})
}

// HexBytesln formats the next n bytes in hexadecimal format, appending the
// formatted comment string to each line and ending on a newline. A zero-length
// n produces a single line with an empty range.
func (f *Formatter) HexBytesln(n int, format string, args ...interface{}) int {
	consumed := n
	commentLine := strings.TrimSpace(fmt.Sprintf(format, args...))
	printLine := func() {
		bytesInLine := min(f.lineWidth/2, n)
		f.printf("x %0"+strconv.Itoa(bytesInLine*2)+"x", f.data[f.off:f.off+bytesInLine])
		f.newline(bytesInLine, commentLine)
		n -= bytesInLine
	}
	printLine()
	commentLine = "(continued...)"
	for n > 0 {
		printLine()
	}
	return consumed
}

// HexTextln formats the next n bytes in hexadecimal format, appending a comment
// to each line showing the ASCII equivalent characters for each byte for bytes
// that are human-readable.
func (f *Formatter) HexTextln(n int) int {
	consumed := n
	printLine := func() {
		bytesInLine := min(f.lineWidth/2, n)
		f.printf("x %0"+strconv.Itoa(bytesInLine*2)+"x", f.data[f.off:f.off+bytesInLine])
		f.newline(bytesInLine, asciiChars(f.data[f.off:f.off+bytesInLine]))
		n -= bytesInLine
	}
	printLine()
	for n > 0 {
		printLine()
	}
	return consumed
}

// String returns the current formatted output.
func (f *Formatter) String() string {
	f.buf.Reset()
	// Identify the max widths of the offsets and binary data so that offsets
	// are zero-padded and comments are aligned on the right.
	var maxOffset uint64
	binaryLineWidth := 0
	for _, l := range f.lines {
		if l.hasOffsets {
			maxOffset = max(maxOffset, l.end)
		}
		binaryLineWidth = max(binaryLineWidth, len(l.binary))
	}
	offsetWidth := strconv.Itoa(len(strconv.FormatUint(maxOffset, 10)))
	offsetFormatStr := "%0" + offsetWidth + "d-%0" + offsetWidth + "d: "
	for _, l := range f.lines {
		fmt.Fprint(&f.buf, f.linePrefix)
		var data string
		if l.hasOffsets {
			data = fmt.Sprintf(offsetFormatStr, l.start, l.end) + l.binary
		}
		fmt.Fprint(&f.buf, data)
		if len(l.comment) > 0 {
			if len(data) == 0 {
				// There's no binary data on this line, just a comment. Print
				// the comment left-aligned.
				fmt.Fprint(&f.buf, "# ")
			} else {
				// Align the comment to the right of the binary data.
				fmt.Fprint(&f.buf, strings.Repeat(" ", binaryLineWidth-len(l.binary)))
				fmt.Fprint(&f.buf, " # ")
			}
			fmt.Fprint(&f.buf, l.comment)
		}
		fmt.Fprintln(&f.buf)
	}
	return f.buf.String()
}

// newline records the pending binary data as a line covering the next n
// bytes and advances past them.
func (f *Formatter) newline(n int, comment string) {
	f.lines = append(f.lines, line{
		start:      f.display,
		end:        f.display + uint64(n),
		hasOffsets: true,
		binary:     f.buf.String(),
		comment:    comment,
	})
	f.buf.Reset()
	f.off += n
	f.display += uint64(n)
}

func (f *Formatter) printf(format string, args ...interface{}) {
	fmt.Fprintf(&f.buf, format, args...)
}

func asciiChars(b []byte) string {
	s := make([]byte, len(b))
	for i := range b {
		if b[i] >= 32 && b[i] <= 126 {
			s[i] = b[i]
		} else {
			s[i] = '.'
		}
	}
	return string(s)
}
