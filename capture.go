// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package serhex

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/serhex/internal/invariants"
	"github.com/cockroachdb/swiss"
)

// spanID identifies a span in a session's arena. Zero is never assigned.
type spanID = uint64

// pendingSpan is the in-progress form of a Span. Child spans are referenced
// by id and only resolved into a nested Span tree at finalization.
type pendingSpan struct {
	name    string
	actions []pendingAction
}

// pendingAction mirrors Action; for ActionSpan, n holds the child's spanID.
type pendingAction struct {
	kind ActionKind
	n    uint64
}

// Session records the reads, seeks and spans performed while deserializing a
// stream. A session is created with a root span already open; instrumented
// code brackets each logical parsing routine with EnterSpan and Guard.Exit,
// and reads through a Reader obtained from Wrap.
//
// A session is finalized exactly once, either explicitly with Finish or
// implicitly when the session and every Reader wrapped from it have been
// closed. Finalization turns the recorded arena into a Trace and, if the
// options name a destination, persists it.
//
// All methods are safe for concurrent use. The internal lock covers
// bookkeeping only, never the underlying reader's I/O.
type Session struct {
	opts *Options
	// refs counts the session itself plus every open Reader.
	refs atomic.Int32

	mu struct {
		sync.Mutex
		lastID spanID
		rootID spanID
		spans  swiss.Map[spanID, *pendingSpan]
		// stack holds the ids of the open spans, innermost last.
		stack []spanID
		data  []byte
		// startIndex is the position of the first wrapped reader when the
		// session began reading through it, if that reader could report one.
		startIndex uint64
		wrapped    bool
		finished   bool
		trace      *Trace
	}
}

// NewSession creates a session whose root span is named opts.RootName.
func NewSession(opts *Options) *Session {
	s := &Session{opts: opts.Clone().EnsureDefaults()}
	s.refs.Store(1)
	s.mu.spans.Init(16)
	s.mu.Lock()
	s.enterLocked(s.opts.RootName)
	s.mu.Unlock()
	invariants.SetFinalizer(s, checkSessionFinished)
	return s
}

func checkSessionFinished(obj interface{}) {
	s := obj.(*Session)
	if !s.mu.finished {
		s.opts.Logger.Errorf("serhex: session %q dropped without being finalized", s.opts.RootName)
	}
}

// Guard closes the span returned by EnterSpan.
type Guard struct {
	s  *Session
	id spanID
}

// EnterSpan opens a span named name nested in the innermost open span.
// Every subsequent action is recorded in the new span until the returned
// Guard is exited. Guards must be exited in strict LIFO order.
func (s *Session) EnterSpan(name string) Guard {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertActiveLocked("enter span")
	return Guard{s: s, id: s.enterLocked(name)}
}

// Span runs fn inside a span named name, closing the span when fn returns
// or panics.
func (s *Session) Span(name string, fn func() error) error {
	g := s.EnterSpan(name)
	defer g.Exit()
	return fn()
}

// Exit closes the guard's span. It panics if the span is not the innermost
// open span of its session.
func (g Guard) Exit() {
	if g.s == nil {
		panic(errors.AssertionFailedf("serhex: exit of a zero Guard"))
	}
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	g.s.exitLocked(g.id)
}

func (s *Session) enterLocked(name string) spanID {
	s.mu.lastID++
	id := s.mu.lastID
	s.mu.spans.Put(id, &pendingSpan{name: name})
	if len(s.mu.stack) == 0 {
		if s.mu.rootID != 0 {
			panic(errors.AssertionFailedf("serhex: span %q would be a second root", name))
		}
		s.mu.rootID = id
	} else {
		parent := s.topLocked()
		parent.actions = append(parent.actions, pendingAction{kind: ActionSpan, n: id})
	}
	s.mu.stack = append(s.mu.stack, id)
	s.opts.Metrics.recordSpan()
	return id
}

func (s *Session) exitLocked(id spanID) {
	s.assertActiveLocked("exit span")
	n := len(s.mu.stack)
	// The root is only closed by finalization.
	if n <= 1 {
		panic(errors.AssertionFailedf("serhex: span exit with no open span"))
	}
	if top := s.mu.stack[n-1]; top != id {
		panic(errors.AssertionFailedf("serhex: exit of span %q while %q is innermost",
			s.spanLocked(id).name, s.spanLocked(top).name))
	}
	s.mu.stack = s.mu.stack[:n-1]
}

func (s *Session) spanLocked(id spanID) *pendingSpan {
	p, ok := s.mu.spans.Get(id)
	if !ok {
		panic(errors.AssertionFailedf("serhex: span %d not found", id))
	}
	return p
}

func (s *Session) topLocked() *pendingSpan {
	return s.spanLocked(s.mu.stack[len(s.mu.stack)-1])
}

func (s *Session) assertActiveLocked(op string) {
	if s.mu.finished {
		panic(errors.AssertionFailedf("serhex: %s after the session was finalized", op))
	}
}

func (s *Session) recordRead(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertActiveLocked("read")
	top := s.topLocked()
	top.actions = append(top.actions, pendingAction{kind: ActionRead, n: uint64(len(b))})
	s.mu.data = append(s.mu.data, b...)
	s.opts.Metrics.recordRead(len(b))
}

func (s *Session) recordSeek(off uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertActiveLocked("seek")
	top := s.topLocked()
	top.actions = append(top.actions, pendingAction{kind: ActionSeek, n: off})
	s.opts.Metrics.recordSeek()
}

// Wrap returns a Reader that forwards to r and records every successful read
// and seek into the session. The first reader wrapped determines the trace's
// StartIndex: if it implements io.Seeker its current position is used,
// otherwise StartIndex is zero.
//
// Each Reader holds a reference on the session that is released by
// Reader.Close.
func (s *Session) Wrap(r io.Reader) *Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertActiveLocked("wrap")
	if !s.mu.wrapped {
		s.mu.wrapped = true
		if sk, ok := r.(io.Seeker); ok {
			if off, err := sk.Seek(0, io.SeekCurrent); err == nil && off > 0 {
				s.mu.startIndex = uint64(off)
			}
		}
	}
	// Taken under the lock; unref re-checks the count under it.
	s.refs.Add(1)
	return &Reader{s: s, r: r}
}

// Finish finalizes the session and returns its trace. The root span must be
// the only open span. If the options name a destination the trace is
// persisted, and a failure to do so is returned with a nil trace.
//
// Finish panics if the session was already finalized.
func (s *Session) Finish() (*Trace, error) {
	t := func() *Trace {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.finalizeLocked()
	}()
	s.opts.Metrics.recordTrace()
	if err := s.persist(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Close releases the session's own reference. If no Reader remains open and
// the session has not been finalized, it is finalized now and any
// persistence error is returned (and logged).
func (s *Session) Close() error {
	return s.unref()
}

// Trace returns the finalized trace, or nil if the session has not been
// finalized.
func (s *Session) Trace() *Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.trace
}

func (s *Session) unref() error {
	switch v := s.refs.Add(-1); {
	case v < 0:
		panic(errors.AssertionFailedf("serhex: session reference count is negative: %d", v))
	case v > 0:
		return nil
	}
	s.mu.Lock()
	// A Reader may have been wrapped since the count reached zero; it now
	// holds the last reference.
	if s.mu.finished || s.refs.Load() > 0 {
		s.mu.Unlock()
		return nil
	}
	t := s.finalizeLocked()
	s.mu.Unlock()
	s.opts.Metrics.recordTrace()
	if err := s.persist(t); err != nil {
		s.opts.Logger.Errorf("serhex: finalizing session %q: %v", s.opts.RootName, err)
		return err
	}
	return nil
}

// finalizeLocked resolves the arena into a nested span tree. Each span is
// removed from the arena as it is resolved, so a span referenced twice or a
// span unreachable from the root is detected.
func (s *Session) finalizeLocked() *Trace {
	s.assertActiveLocked("finalize")
	if n := len(s.mu.stack); n != 1 {
		panic(errors.AssertionFailedf("serhex: finalizing with span %q still open",
			s.spanLocked(s.mu.stack[n-1]).name))
	}
	s.mu.stack = s.mu.stack[:0]
	root := s.resolveLocked(s.mu.rootID)
	if n := s.mu.spans.Len(); n != 0 {
		panic(errors.AssertionFailedf("serhex: %d spans unreachable from the root", n))
	}
	t := &Trace{
		Data:       s.mu.data,
		StartIndex: s.mu.startIndex,
		Root:       SpanAction(root),
	}
	s.mu.data = nil
	s.mu.finished = true
	s.mu.trace = t
	if invariants.Enabled {
		l, err := NewLayout(t)
		if err == nil {
			err = l.checkNesting()
		}
		if err != nil {
			panic(errors.NewAssertionErrorWithWrappedErrf(err, "serhex: finalized trace is inconsistent"))
		}
	}
	return t
}

func (s *Session) resolveLocked(id spanID) *Span {
	p, ok := s.mu.spans.Get(id)
	if !ok {
		panic(errors.AssertionFailedf("serhex: span %d missing or resolved twice", id))
	}
	s.mu.spans.Delete(id)
	span := &Span{Name: p.name, Actions: make([]Action, len(p.actions))}
	for i, a := range p.actions {
		if a.kind == ActionSpan {
			span.Actions[i] = SpanAction(s.resolveLocked(a.n))
		} else {
			span.Actions[i] = Action{Kind: a.kind, N: a.n}
		}
	}
	return span
}

// Reader wraps an io.Reader, recording reads and seeks into a Session.
//
// Reads that fail with an error other than io.EOF are not recorded. A read
// that returns io.EOF is recorded, including with zero bytes.
type Reader struct {
	s      *Session
	r      io.Reader
	closed atomic.Bool
}

var _ io.ReadSeekCloser = (*Reader)(nil)
var _ io.ByteReader = (*Reader)(nil)

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		return n, err
	}
	r.s.recordRead(p[:n])
	return n, err
}

// ReadByte implements io.ByteReader. Each attempt is recorded as a read.
func (r *Reader) ReadByte() (byte, error) {
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			return b[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Seek implements io.Seeker. It returns an error if the wrapped reader does
// not implement io.Seeker. The recorded action holds the absolute offset the
// seek resolved to.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	sk, ok := r.r.(io.Seeker)
	if !ok {
		return 0, errors.Newf("serhex: %T does not support seeking", r.r)
	}
	off, err := sk.Seek(offset, whence)
	if err != nil {
		return off, err
	}
	r.s.recordSeek(uint64(off))
	return off, nil
}

// Close releases the reader's reference on its session, finalizing the
// session if this was the last reference. It does not close the wrapped
// reader.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		panic(errors.AssertionFailedf("serhex: reader closed twice"))
	}
	return r.s.unref()
}
