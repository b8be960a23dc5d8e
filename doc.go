// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package serhex captures how a binary deserializer consumes its input.
//
// A Session wraps the reader handed to a parser. Every Read and Seek made
// through the wrapper is recorded, along with a copy of the bytes returned,
// inside the innermost open span. Parsing routines open spans with
// EnterSpan:
//
//	s := serhex.NewSession(&serhex.Options{Dir: "traces"})
//	r := s.Wrap(f)
//	g := s.EnterSpan("header")
//	_, err := io.ReadFull(r, hdr[:])
//	g.Exit()
//	...
//	trace, err := s.Finish()
//
// The resulting Trace holds the captured bytes, the stream position at which
// capture began, and the tree of spans and actions. NewLayout places every
// action at its logical stream offset and BuildIndex answers which spans and
// reads cover a given offset or range, for example to annotate a hex dump of
// the input.
//
// Traces persist as JSON documents, optionally compressed with snappy or
// zstd, under a content-addressed name derived from the captured bytes. See
// the sampling package for a capture engine that needs no span
// instrumentation, and the tool package for command-line introspection.
package serhex
