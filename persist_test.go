// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package serhex

import (
	"bytes"
	"io"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"
)

func scenarioTrace() *Trace {
	return &Trace{
		Data: []byte{1, 2, 3, 4, 5, 1},
		Root: SpanAction(&Span{
			Name: "root",
			Actions: []Action{
				SpanAction(&Span{
					Name: "read_stuff",
					Actions: []Action{
						Read(1),
						SpanAction(&Span{Name: "read_nested_stuff", Actions: []Action{Read(4)}}),
						Seek(0),
						Read(1),
					},
				}),
			},
		}),
	}
}

func TestSaveLoad(t *testing.T) {
	fs := vfs.NewMem()
	want := scenarioTrace()
	for _, c := range []Compression{NoCompression, SnappyCompression, ZstdCompression} {
		t.Run(c.String(), func(t *testing.T) {
			path := TraceFileName(want.Data, c)
			require.NoError(t, Save(fs, path, want, c))

			f, err := fs.Open(path)
			require.NoError(t, err)
			raw, err := io.ReadAll(f)
			require.NoError(t, err)
			require.NoError(t, f.Close())
			switch c {
			case NoCompression:
				require.Equal(t, byte('{'), raw[0])
			case SnappyCompression:
				require.True(t, bytes.HasPrefix(raw, snappyMagic))
			case ZstdCompression:
				require.True(t, bytes.HasPrefix(raw, zstdMagic))
			}

			got, err := Load(fs, path)
			require.NoError(t, err)
			require.Equal(t, want, got)

			// The temporary file is renamed into place.
			_, err = fs.Stat(path + ".tmp")
			require.Error(t, err)
		})
	}
}

func TestTraceFileName(t *testing.T) {
	a := TraceFileName([]byte("abc"), NoCompression)
	require.Equal(t, a, TraceFileName([]byte("abc"), NoCompression))
	require.NotEqual(t, a, TraceFileName([]byte("abd"), NoCompression))
	require.Regexp(t, `^trace-[0-9a-f]{16}\.json$`, a)
	require.Regexp(t, `^trace-[0-9a-f]{16}\.json\.zst$`, TraceFileName(nil, ZstdCompression))
	require.Regexp(t, `^trace-[0-9a-f]{16}\.json\.sz$`, TraceFileName(nil, SnappyCompression))
}

func TestParseMalformed(t *testing.T) {
	for _, tc := range []struct {
		name string
		doc  string
	}{
		{"not-json", `hello`},
		{"truncated", `{"data":"AQ==","start_index":0,"root":{"Span":`},
		{"root-is-read", `{"data":"AQ==","start_index":0,"root":{"Read":1}}`},
		{"missing-root", `{"data":"AQ==","start_index":0}`},
		{"two-keys", `{"data":"","start_index":0,"root":{"Span":{"name":"r","actions":[{"Read":0,"Seek":1}]}}}`},
		{"no-keys", `{"data":"","start_index":0,"root":{"Span":{"name":"r","actions":[{}]}}}`},
		{"read-past-data", `{"data":"AQ==","start_index":0,"root":{"Span":{"name":"r","actions":[{"Read":2}]}}}`},
		{"nested-read-past-data", `{"data":"AQI=","start_index":0,"root":{"Span":{"name":"r","actions":[{"Read":1},{"Span":{"name":"n","actions":[{"Read":2}]}}]}}}`},
		{"bad-base64", `{"data":"!!","start_index":0,"root":{"Span":{"name":"r","actions":[]}}}`},
		{"bad-zstd", "\x28\xb5\x2f\xfd\x00\x00"},
		{"bad-snappy", "\xff\x06\x00\x00sNaPpY\x01\x05\x00\x00"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			require.True(t, IsMalformedTrace(err), "%v", err)
		})
	}
}

func TestParseAcceptsUnreadData(t *testing.T) {
	// Bytes beyond the last read are tolerated.
	tr, err := Parse([]byte(`{"data":"AQID","start_index":7,"root":{"Span":{"name":"r","actions":[{"Read":1}]}}}`))
	require.NoError(t, err)
	require.Equal(t, uint64(7), tr.StartIndex)
	l, err := NewLayout(tr)
	require.NoError(t, err)
	require.Equal(t, uint64(7), l.Root().Start)
	require.Equal(t, uint64(8), l.Root().End)
}

func TestTraceString(t *testing.T) {
	require.Equal(t, "trace: 6 bytes from offset 0, 3 spans, 3 reads, 1 seeks", scenarioTrace().String())
	require.Equal(t, "Read(4)", Read(4).String())
	require.Equal(t, "Seek(0)", Seek(0).String())
	require.Equal(t, `Span("x", 0 actions)`, SpanAction(&Span{Name: "x"}).String())
}

func TestOptionsParse(t *testing.T) {
	o, err := ParseOptions([]byte(`
root_name: top
dir: traces
compression: zstd
`))
	require.NoError(t, err)
	require.Equal(t, "top", o.RootName)
	require.Equal(t, "traces", o.Dir)
	require.Equal(t, ZstdCompression, o.Compression)
	require.NotNil(t, o.FS)
	require.NotNil(t, o.Logger)

	o, err = ParseOptions(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultRootName, o.RootName)

	_, err = ParseOptions([]byte("compression: lz4\n"))
	require.Error(t, err)
	_, err = ParseOptions([]byte("unknown_field: 1\n"))
	require.Error(t, err)
}
