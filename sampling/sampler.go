// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package sampling captures traces without explicit span instrumentation.
// At every read or seek the call stack is sampled, and the span tree is
// derived from the sampled stacks: each function on the stack becomes a span
// named after it.
//
// Frames shared by every sample (the program's entry point, the test runner,
// the I/O helpers between the parser and the Reader) are trimmed before the
// tree is built; see TrimCommonFrames.
package sampling

import (
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/serhex"
)

// Options configure a Sampler.
type Options struct {
	// SkipFrames is the number of frames nearest the sampled read to discard,
	// beyond the caller of Reader.Read (or Seek, or RecordRead) which is
	// always the innermost retained frame.
	SkipFrames int
	// MaxFrames bounds the depth of each sampled stack. Defaults to 256.
	// Deeper stacks keep their innermost frames, so their outermost
	// retained frames differ between samples and cannot be trimmed; the
	// first truncated sample is reported to Logger.
	MaxFrames int
	// RootName names the span that encloses the derived tree. Defaults to
	// serhex.DefaultRootName.
	RootName string
	// Symbolizer resolves frame addresses. Defaults to a process-wide
	// Symbolizer.
	Symbolizer *Symbolizer
	// Logger reports sampling problems. Defaults to serhex.DefaultLogger.
	Logger serhex.Logger
}

// EnsureDefaults fills in unset options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.MaxFrames <= 0 {
		o.MaxFrames = defaultMaxFrames
	}
	if o.Logger == nil {
		o.Logger = serhex.DefaultLogger{}
	}
	if o.RootName == "" {
		o.RootName = serhex.DefaultRootName
	}
	if o.Symbolizer == nil {
		o.Symbolizer = defaultSymbolizer
	}
	return o
}

type sample struct {
	action serhex.Action
	// stack is outermost frame first.
	stack []uintptr
}

// Sampler records reads and seeks along with the call stack that performed
// them. It is safe for concurrent use, though samples from different
// goroutines share no common frames and produce disjoint subtrees.
type Sampler struct {
	opts      Options
	truncated atomic.Bool
	mu        struct {
		sync.Mutex
		data       []byte
		samples    []sample
		startIndex uint64
		wrapped    bool
	}
}

// New creates a Sampler.
func New(opts *Options) *Sampler {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	return &Sampler{opts: *o.EnsureDefaults()}
}

const defaultMaxFrames = 256

// callersSkip skips runtime.Callers, Sampler.record and the exported method
// that called record.
const callersSkip = 3

//go:noinline
func (s *Sampler) record(a serhex.Action, data []byte) {
	pcs := make([]uintptr, s.opts.MaxFrames)
	n := runtime.Callers(callersSkip+s.opts.SkipFrames, pcs)
	if n == len(pcs) && s.truncated.CompareAndSwap(false, true) {
		s.opts.Logger.Errorf("sampling: stack deeper than %d frames truncated; "+
			"outer frames will not be trimmed, raise MaxFrames", s.opts.MaxFrames)
	}
	stack := pcs[:n]
	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.samples = append(s.mu.samples, sample{action: a, stack: stack})
	s.mu.data = append(s.mu.data, data...)
}

// RecordRead samples the caller's stack and records a read that returned p.
// It is for code that intercepts reads by some other means than Wrap.
//
//go:noinline
func (s *Sampler) RecordRead(p []byte) {
	s.record(serhex.Read(uint64(len(p))), p)
}

// RecordSeek samples the caller's stack and records a seek to off.
//
//go:noinline
func (s *Sampler) RecordSeek(off uint64) {
	s.record(serhex.Seek(off), nil)
}

// Wrap returns a Reader that samples every successful read and seek of r.
// The first reader wrapped determines the trace's StartIndex.
func (s *Sampler) Wrap(r io.Reader) *Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mu.wrapped {
		s.mu.wrapped = true
		if sk, ok := r.(io.Seeker); ok {
			if off, err := sk.Seek(0, io.SeekCurrent); err == nil && off > 0 {
				s.mu.startIndex = uint64(off)
			}
		}
	}
	return &Reader{s: s, r: r}
}

// Reader wraps an io.Reader, sampling each read and seek.
type Reader struct {
	s *Sampler
	r io.Reader
}

// Read implements io.Reader. Reads that fail with an error other than io.EOF
// are not recorded.
//
//go:noinline
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		return n, err
	}
	r.s.record(serhex.Read(uint64(n)), p[:n])
	return n, err
}

// ReadByte implements io.ByteReader.
//
//go:noinline
func (r *Reader) ReadByte() (byte, error) {
	var b [1]byte
	for {
		n, err := r.r.Read(b[:])
		if err != nil && err != io.EOF {
			return 0, err
		}
		r.s.record(serhex.Read(uint64(n)), b[:n])
		if n == 1 {
			return b[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Seek implements io.Seeker. It returns an error if the wrapped reader does
// not implement io.Seeker.
//
//go:noinline
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	sk, ok := r.r.(io.Seeker)
	if !ok {
		return 0, errors.Newf("sampling: %T does not support seeking", r.r)
	}
	off, err := sk.Seek(offset, whence)
	if err != nil {
		return off, err
	}
	r.s.record(serhex.Seek(uint64(off)), nil)
	return off, nil
}

// Len returns the number of samples recorded so far.
func (s *Sampler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mu.samples)
}

// frameNode is a span under construction, identified by the entry address of
// the function it represents.
type frameNode struct {
	entry    uintptr
	name     string
	children []treeChild
}

type treeChild struct {
	frame  *frameNode
	action serhex.Action
}

// insert descends along stack, reusing the last child at each level if it is
// the same function and appending a new one otherwise, and appends a at the
// end of the path.
func (f *frameNode) insert(sym *Symbolizer, stack []uintptr, a serhex.Action) {
	for _, pc := range stack {
		s := sym.Resolve(pc)
		if n := len(f.children); n > 0 && f.children[n-1].frame != nil && f.children[n-1].frame.entry == s.Entry {
			f = f.children[n-1].frame
			continue
		}
		child := &frameNode{entry: s.Entry, name: s.Name}
		f.children = append(f.children, treeChild{frame: child})
		f = child
	}
	f.children = append(f.children, treeChild{action: a})
}

func (f *frameNode) span() *serhex.Span {
	sp := &serhex.Span{Name: f.name, Actions: make([]serhex.Action, len(f.children))}
	for i, c := range f.children {
		if c.frame != nil {
			sp.Actions[i] = serhex.SpanAction(c.frame.span())
		} else {
			sp.Actions[i] = c.action
		}
	}
	return sp
}

// Trace builds a trace from the samples recorded so far. Frames common to
// every sample are trimmed, then each sample is inserted into the tree in
// capture order.
func (s *Sampler) Trace() *serhex.Trace {
	s.mu.Lock()
	samples := s.mu.samples
	data := append([]byte(nil), s.mu.data...)
	startIndex := s.mu.startIndex
	s.mu.Unlock()

	stacks := make([][]uintptr, len(samples))
	for i := range samples {
		stacks[i] = samples[i].stack
	}
	stacks = TrimCommonFrames(stacks)

	root := &frameNode{name: s.opts.RootName}
	for i := range samples {
		root.insert(s.opts.Symbolizer, stacks[i], samples[i].action)
	}
	return &serhex.Trace{
		Data:       data,
		StartIndex: startIndex,
		Root:       serhex.SpanAction(root.span()),
	}
}
