// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package serhex

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/serhex/internal/base"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var (
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")
)

// TraceFileName returns the content-addressed name under which a trace of
// data is persisted with the given compression.
func TraceFileName(data []byte, c Compression) string {
	return fmt.Sprintf("trace-%016x%s", xxhash.Sum64(data), c.fileSuffix())
}

func (s *Session) persist(t *Trace) error {
	o := s.opts
	path := o.Path
	if path == "" {
		if o.Dir == "" {
			return nil
		}
		if err := o.FS.MkdirAll(o.Dir, 0755); err != nil {
			return errors.Wrapf(err, "serhex: creating %s", o.Dir)
		}
		path = o.FS.PathJoin(o.Dir, TraceFileName(t.Data, o.Compression))
	}
	if err := Save(o.FS, path, t, o.Compression); err != nil {
		return err
	}
	o.Logger.Infof("serhex: wrote trace %s (%d bytes captured)", path, len(t.Data))
	return nil
}

// Save encodes t and writes it to path. The document is written to a
// temporary file that is synced and then renamed into place, so a reader
// never observes a partially written trace.
func Save(fs vfs.FS, path string, t *Trace, c Compression) error {
	doc, err := t.Encode()
	if err != nil {
		return errors.Wrap(err, "serhex: encoding trace")
	}
	doc, err = compress(doc, c)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := fs.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "serhex: creating %s", tmp)
	}
	if _, err := f.Write(doc); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return errors.Wrapf(err, "serhex: writing %s", tmp)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return errors.Wrapf(err, "serhex: syncing %s", tmp)
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return errors.Wrapf(err, "serhex: closing %s", tmp)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return errors.Wrapf(err, "serhex: renaming %s", tmp)
	}
	return nil
}

func compress(doc []byte, c Compression) ([]byte, error) {
	switch c {
	case NoCompression:
		return doc, nil
	case SnappyCompression:
		var buf bytes.Buffer
		w := snappy.NewBufferedWriter(&buf)
		if _, err := w.Write(doc); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case ZstdCompression:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(doc, nil), nil
	default:
		return nil, errors.AssertionFailedf("serhex: unknown compression %s", c)
	}
}

// decompress detects the framing of a persisted trace from its leading bytes.
func decompress(b []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(b, zstdMagic):
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(b, nil)
		if err != nil {
			return nil, base.MarkMalformedTrace(errors.Wrap(err, "serhex: zstd frame"))
		}
		return out, nil
	case bytes.HasPrefix(b, snappyMagic):
		out, err := io.ReadAll(snappy.NewReader(bytes.NewReader(b)))
		if err != nil {
			return nil, base.MarkMalformedTrace(errors.Wrap(err, "serhex: snappy stream"))
		}
		return out, nil
	default:
		return b, nil
	}
}

// Load reads a trace persisted by Save (with any compression) and checks
// that its action tree is consistent with its data buffer. Inconsistent or
// undecodable traces are reported as malformed; see IsMalformedTrace.
func Load(fs vfs.FS, path string) (*Trace, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "serhex: reading %s", path)
	}
	return Parse(b)
}

// Parse decodes a persisted trace, detecting its compression, and validates
// it.
func Parse(b []byte) (*Trace, error) {
	doc, err := decompress(b)
	if err != nil {
		return nil, err
	}
	t, err := Decode(doc)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
