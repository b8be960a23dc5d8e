// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrMalformedTrace is a marker for errors produced while loading a trace that
// is structurally invalid or inconsistent with its data buffer.
var ErrMalformedTrace = errors.New("serhex: malformed trace")

// MarkMalformedTrace marks the given error as a malformed trace error.
func MarkMalformedTrace(err error) error {
	return errors.Mark(err, ErrMalformedTrace)
}

// IsMalformedTrace returns true if the given error indicates a malformed
// trace.
func IsMalformedTrace(err error) bool {
	return errors.Is(err, ErrMalformedTrace)
}

// MalformedTracef formats according to a format specifier and returns the
// string as an error value that is marked as a malformed trace error.
func MalformedTracef(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedTrace)
}
