// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sampling

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/serhex"
	"github.com/cockroachdb/serhex/internal/base"
	"github.com/stretchr/testify/require"
)

func TestTrimCommonFrames(t *testing.T) {
	const A, B, C, D, E = 0xa, 0xb, 0xc, 0xd, 0xe
	for _, tc := range []struct {
		in, want [][]uintptr
	}{
		{
			in:   [][]uintptr{{A, B, C, D}, {A, B, E, D}},
			want: [][]uintptr{{C}, {E}},
		},
		{
			in:   [][]uintptr{{A, B, C}},
			want: [][]uintptr{{}},
		},
		{
			// The suffix is computed after the prefix is removed, so the two
			// never overlap.
			in:   [][]uintptr{{A, B}, {A, B, B}},
			want: [][]uintptr{{}, {B}},
		},
		{
			in:   [][]uintptr{{A, C}, {B, C}, {A, D, C}},
			want: [][]uintptr{{A}, {B}, {A, D}},
		},
		{
			in:   [][]uintptr{{A, B, C}, {D, E}},
			want: [][]uintptr{{A, B, C}, {D, E}},
		},
	} {
		t.Run(fmt.Sprint(tc.in), func(t *testing.T) {
			got := TrimCommonFrames(tc.in)
			require.Len(t, got, len(tc.want))
			for i := range got {
				require.Equal(t, len(tc.want[i]), len(got[i]))
				if len(got[i]) > 0 {
					require.Equal(t, tc.want[i], got[i])
				}
			}
		})
	}
	require.Nil(t, TrimCommonFrames(nil))
}

// shortName strips the package qualifier from a function name.
func shortName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func formatTree(a serhex.Action) string {
	var buf strings.Builder
	var walk func(a serhex.Action, depth int)
	walk = func(a serhex.Action, depth int) {
		buf.WriteString(strings.Repeat("  ", depth))
		if a.Kind != serhex.ActionSpan {
			fmt.Fprintln(&buf, a)
			return
		}
		fmt.Fprintln(&buf, shortName(a.Span.Name))
		for _, c := range a.Span.Actions {
			walk(c, depth+1)
		}
	}
	walk(a, 0)
	return buf.String()
}

//go:noinline
func readStuff(r *Reader) error {
	if _, err := r.Read(make([]byte, 1)); err != nil {
		return err
	}
	if err := readNestedStuff(r); err != nil {
		return err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := r.Read(make([]byte, 1))
	return err
}

//go:noinline
func readNestedStuff(r *Reader) error {
	_, err := r.Read(make([]byte, 4))
	return err
}

func TestSamplerNestedScenario(t *testing.T) {
	s := New(nil)
	require.NoError(t, readStuff(s.Wrap(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6}))))
	require.Equal(t, 4, s.Len())

	trace := s.Trace()
	require.Equal(t, []byte{1, 2, 3, 4, 5, 1}, trace.Data)
	require.Equal(t, `root
  readStuff
    Read(1)
    readNestedStuff
      Read(4)
    Seek(0)
    Read(1)
`, formatTree(trace.Root))
	require.NoError(t, trace.Validate())
}

//go:noinline
func readRecord(r *Reader) error {
	if err := readU8(r); err != nil {
		return err
	}
	if err := readU8(r); err != nil {
		return err
	}
	if err := readU16(r); err != nil {
		return err
	}
	return readU8(r)
}

//go:noinline
func readU8(r *Reader) error {
	_, err := r.ReadByte()
	return err
}

//go:noinline
func readU16(r *Reader) error {
	_, err := r.Read(make([]byte, 2))
	return err
}

// Consecutive calls into the same function share a span; calls separated by
// another call do not.
func TestSamplerSiblingCalls(t *testing.T) {
	s := New(&Options{RootName: "record"})
	require.NoError(t, readRecord(s.Wrap(bytes.NewReader([]byte{1, 2, 3, 4, 5}))))
	trace := s.Trace()
	require.Equal(t, []byte{1, 2, 3, 4, 5}, trace.Data)
	require.Equal(t, `record
  readRecord
    readU8
      Read(1)
      Read(1)
    readU16
      Read(2)
    readU8
      Read(1)
`, formatTree(trace.Root))
}

//go:noinline
func readVia(r *Reader, p []byte) error {
	_, err := r.Read(p)
	return err
}

//go:noinline
func seekVia(r *Reader, off int64) error {
	_, err := r.Seek(off, io.SeekStart)
	return err
}

//go:noinline
func readStuffVia(r *Reader) error {
	if err := readVia(r, make([]byte, 1)); err != nil {
		return err
	}
	if err := seekVia(r, 0); err != nil {
		return err
	}
	return readVia(r, make([]byte, 2))
}

func TestSamplerSkipFrames(t *testing.T) {
	s := New(&Options{SkipFrames: 1})
	require.NoError(t, readStuffVia(s.Wrap(bytes.NewReader([]byte{1, 2, 3}))))
	require.Equal(t, `root
  readStuffVia
    Read(1)
    Seek(0)
    Read(2)
`, formatTree(s.Trace().Root))
}

func TestSamplerStartIndexAndErrors(t *testing.T) {
	br := bytes.NewReader([]byte{1, 2, 3, 4})
	_, err := br.Seek(2, io.SeekStart)
	require.NoError(t, err)
	s := New(nil)
	r := s.Wrap(br)
	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(3), b)

	boom := errors.New("boom")
	bad := s.Wrap(iotest.ErrReader(boom))
	_, err = bad.Read(make([]byte, 1))
	require.ErrorIs(t, err, boom)
	_, err = bad.Seek(0, io.SeekStart)
	require.Error(t, err)

	trace := s.Trace()
	require.Equal(t, uint64(2), trace.StartIndex)
	require.Equal(t, []byte{3}, trace.Data)
	require.Equal(t, 1, s.Len())
}

//go:noinline
func hookedParse(s *Sampler, data []byte) {
	s.RecordRead(data[:2])
	s.RecordSeek(0)
	s.RecordRead(data[:1])
}

func TestSamplerRecordHooks(t *testing.T) {
	s := New(nil)
	hookedParse(s, []byte{9, 8})
	trace := s.Trace()
	require.Equal(t, []byte{9, 8, 9}, trace.Data)
	require.Equal(t, `root
  hookedParse
    Read(2)
    Seek(0)
    Read(1)
`, formatTree(trace.Root))
}

func TestSamplerTruncatedStacks(t *testing.T) {
	logger := &base.InMemLogger{}
	s := New(&Options{MaxFrames: 2, Logger: logger})
	r := s.Wrap(bytes.NewReader([]byte{1, 2, 3}))
	for i := 0; i < 3; i++ {
		_, err := r.ReadByte()
		require.NoError(t, err)
	}
	// Reported once, however many samples are truncated.
	lines := logger.Lines()
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "E sampling: stack deeper than 2 frames truncated")

	logger.Reset()
	s = New(&Options{Logger: logger})
	r = s.Wrap(bytes.NewReader([]byte{1}))
	_, err := r.ReadByte()
	require.NoError(t, err)
	require.Empty(t, logger.Lines())
}

func TestSymbolizer(t *testing.T) {
	sym := NewSymbolizer()
	pcs := make([]uintptr, 1)
	require.Equal(t, 1, runtime.Callers(1, pcs))
	a := sym.Resolve(pcs[0])
	require.Equal(t, "TestSymbolizer", shortName(a.Name))
	require.Equal(t, reflect.ValueOf(TestSymbolizer).Pointer(), a.Entry)
	require.Equal(t, a, sym.Resolve(pcs[0]))
	require.Equal(t, 1, sym.Len())

	unknown := sym.Resolve(1)
	require.Equal(t, uintptr(1), unknown.Entry)
	require.Equal(t, "0x1", unknown.Name)
	require.Equal(t, 2, sym.Len())
}
