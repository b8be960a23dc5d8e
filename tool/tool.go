// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/serhex"
	"github.com/spf13/cobra"
)

// T is the container for all of the introspection tools.
type T struct {
	Commands []*cobra.Command
	trace    *traceT
	opts     serhex.Options
}

// A Option configures the introspection tools.
type Option func(*T)

// FS sets the filesystem traces are read from and written to.
func FS(fs vfs.FS) Option {
	return func(t *T) {
		t.opts.FS = fs
	}
}

// Logger sets the logger used for diagnostics that are not command output.
func Logger(l serhex.Logger) Option {
	return func(t *T) {
		t.opts.Logger = l
	}
}

// New creates a new introspection tool.
func New(opts ...Option) *T {
	t := &T{}
	for _, opt := range opts {
		opt(t)
	}
	t.opts.EnsureDefaults()

	t.trace = newTrace(&t.opts)
	t.Commands = []*cobra.Command{
		t.trace.Root,
	}
	return t
}
