// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package serhex

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/serhex/internal/base"
	"gopkg.in/yaml.v3"
)

// Logger exports the base.Logger type.
type Logger = base.Logger

// DefaultLogger exports the base.DefaultLogger type.
type DefaultLogger = base.DefaultLogger

// DefaultRootName is the name given to the span that a session opens on
// creation and that encloses every span entered by the instrumented code.
const DefaultRootName = "root"

// Compression selects the framing used when a trace is persisted.
type Compression uint8

const (
	// NoCompression persists the plain JSON document.
	NoCompression Compression = iota
	// SnappyCompression persists the JSON document as a snappy stream.
	SnappyCompression
	// ZstdCompression persists the JSON document as a zstd frame.
	ZstdCompression
)

// String implements fmt.Stringer.
func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case SnappyCompression:
		return "snappy"
	case ZstdCompression:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", c)
	}
}

// fileSuffix is appended to content-addressed trace file names.
func (c Compression) fileSuffix() string {
	switch c {
	case SnappyCompression:
		return ".json.sz"
	case ZstdCompression:
		return ".json.zst"
	default:
		return ".json"
	}
}

// ParseCompression parses the output of Compression.String.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NoCompression, nil
	case "snappy":
		return SnappyCompression, nil
	case "zstd":
		return ZstdCompression, nil
	default:
		return NoCompression, errors.Newf("serhex: unknown compression %q", s)
	}
}

// Options holds the optional parameters for a capture session. The zero value
// is usable; EnsureDefaults fills in unset fields.
type Options struct {
	// RootName is the name of the span that a session opens on creation. All
	// spans entered by instrumented code are nested beneath it.
	RootName string

	// FS is the filesystem used to persist the trace when Path or Dir is set.
	// Defaults to vfs.Default.
	FS vfs.FS

	// Path, if set, is the file the finalized trace is written to.
	Path string

	// Dir, if set and Path is not, is a directory the finalized trace is
	// written to under a name derived from a hash of the captured data
	// ("trace-<hash>.json"). Two sessions that capture the same bytes share a
	// file.
	Dir string

	// Compression selects the framing of the persisted trace.
	Compression Compression

	// Logger is used to report persisted traces and finalization failures
	// that have no caller to return to. Defaults to DefaultLogger.
	Logger Logger

	// Metrics, if set, is updated as reads, seeks and spans are captured.
	Metrics *CaptureMetrics
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.RootName == "" {
		o.RootName = DefaultRootName
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger{}
	}
	return o
}

// Clone creates a shallow copy of the supplied options.
func (o *Options) Clone() *Options {
	n := &Options{}
	if o != nil {
		*n = *o
	}
	return n
}

// yamlOptions is the subset of Options that can be configured from a YAML
// document.
type yamlOptions struct {
	RootName    string `yaml:"root_name"`
	Path        string `yaml:"path"`
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"`
}

// Parse parses a YAML document of the form
//
//	root_name: root
//	path: /tmp/trace.json
//	dir: traces
//	compression: zstd
//
// into o, overwriting the fields that are present. Unknown fields are an
// error.
func (o *Options) Parse(data []byte) error {
	var y yamlOptions
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&y); err != nil && err != io.EOF {
		return errors.Wrap(err, "serhex: parsing options")
	}
	if y.RootName != "" {
		o.RootName = y.RootName
	}
	if y.Path != "" {
		o.Path = y.Path
	}
	if y.Dir != "" {
		o.Dir = y.Dir
	}
	if y.Compression != "" {
		c, err := ParseCompression(y.Compression)
		if err != nil {
			return err
		}
		o.Compression = c
	}
	return nil
}

// ParseOptions parses a YAML options document into a fresh Options with
// defaults applied.
func ParseOptions(data []byte) (*Options, error) {
	o := &Options{}
	if err := o.Parse(data); err != nil {
		return nil, err
	}
	return o.EnsureDefaults(), nil
}
