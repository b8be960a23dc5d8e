// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package serhex

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/serhex/internal/base"
)

// ActionKind enumerates the kinds of recorded events.
type ActionKind uint8

const (
	// ActionRead records a read that returned N bytes.
	ActionRead ActionKind = iota + 1
	// ActionSeek records a seek to the absolute stream offset N.
	ActionSeek
	// ActionSpan records a nested span.
	ActionSpan
)

var actionKindNames = [...]string{
	ActionRead: "Read",
	ActionSeek: "Seek",
	ActionSpan: "Span",
}

// String implements fmt.Stringer.
func (k ActionKind) String() string {
	if int(k) < len(actionKindNames) && actionKindNames[k] != "" {
		return actionKindNames[k]
	}
	return fmt.Sprintf("ActionKind(%d)", k)
}

// SafeFormat implements redact.SafeFormatter.
func (k ActionKind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(k.String()))
}

// Action is one recorded event, in program order within its parent span.
type Action struct {
	Kind ActionKind
	// N is the number of bytes returned for ActionRead and the absolute target
	// offset for ActionSeek. It is unused for ActionSpan.
	N uint64
	// Span is set iff Kind == ActionSpan.
	Span *Span
}

// Read returns an ActionRead of n bytes.
func Read(n uint64) Action { return Action{Kind: ActionRead, N: n} }

// Seek returns an ActionSeek to the absolute offset off.
func Seek(off uint64) Action { return Action{Kind: ActionSeek, N: off} }

// SpanAction returns an ActionSpan wrapping s.
func SpanAction(s *Span) Action { return Action{Kind: ActionSpan, Span: s} }

// Span is a named, ordered sequence of actions representing one invocation of
// a logical parsing routine.
type Span struct {
	Name    string
	Actions []Action
}

// Trace is the finalized, serializable record of a capture session.
//
// Data is the concatenation, in capture order, of every byte returned by a
// read during the session. Replaying the Read actions of Root in order and
// slicing Data with a cursor that only Reads advance reproduces the bytes of
// each Read. Seeks never consume from Data; they only relocate the logical
// offset (which starts at StartIndex) used to report byte ranges.
type Trace struct {
	Data       []byte
	StartIndex uint64
	Root       Action
}

// String implements fmt.Stringer.
func (a Action) String() string {
	return redact.StringWithoutMarkers(a)
}

// SafeFormat implements redact.SafeFormatter.
func (a Action) SafeFormat(w redact.SafePrinter, _ rune) {
	switch a.Kind {
	case ActionRead, ActionSeek:
		w.Printf("%s(%d)", a.Kind, a.N)
	case ActionSpan:
		if a.Span == nil {
			w.SafeString("Span(<nil>)")
			return
		}
		w.Printf("Span(%q, %d actions)", a.Span.Name, len(a.Span.Actions))
	default:
		w.Printf("%s", a.Kind)
	}
}

// String implements fmt.Stringer.
func (t *Trace) String() string {
	return redact.StringWithoutMarkers(t)
}

// SafeFormat implements redact.SafeFormatter.
func (t *Trace) SafeFormat(w redact.SafePrinter, _ rune) {
	var spans, reads, seeks int
	var walk func(a *Action)
	walk = func(a *Action) {
		switch a.Kind {
		case ActionRead:
			reads++
		case ActionSeek:
			seeks++
		case ActionSpan:
			spans++
			for i := range a.Span.Actions {
				walk(&a.Span.Actions[i])
			}
		}
	}
	if t.Root.Kind == ActionSpan && t.Root.Span != nil {
		walk(&t.Root)
	}
	w.Printf("trace: %d bytes from offset %d, %d spans, %d reads, %d seeks",
		len(t.Data), t.StartIndex, spans, reads, seeks)
}

// jsonSpan is the wire form of a Span.
type jsonSpan struct {
	Name    string   `json:"name"`
	Actions []Action `json:"actions"`
}

// jsonAction is the wire form of an Action: an object with exactly one of the
// three keys set.
type jsonAction struct {
	Read *uint64   `json:"Read,omitempty"`
	Seek *uint64   `json:"Seek,omitempty"`
	Span *jsonSpan `json:"Span,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (a Action) MarshalJSON() ([]byte, error) {
	var j jsonAction
	switch a.Kind {
	case ActionRead:
		j.Read = &a.N
	case ActionSeek:
		j.Seek = &a.N
	case ActionSpan:
		if a.Span == nil {
			return nil, errors.AssertionFailedf("serhex: span action without a span")
		}
		j.Span = &jsonSpan{Name: a.Span.Name, Actions: a.Span.Actions}
		if j.Span.Actions == nil {
			j.Span.Actions = []Action{}
		}
	default:
		return nil, errors.AssertionFailedf("serhex: cannot marshal action of kind %s", a.Kind)
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Action) UnmarshalJSON(b []byte) error {
	var j jsonAction
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	n := 0
	if j.Read != nil {
		*a = Read(*j.Read)
		n++
	}
	if j.Seek != nil {
		*a = Seek(*j.Seek)
		n++
	}
	if j.Span != nil {
		*a = SpanAction(&Span{Name: j.Span.Name, Actions: j.Span.Actions})
		n++
	}
	if n != 1 {
		return base.MalformedTracef("serhex: action %s must have exactly one of Read, Seek or Span",
			errors.Safe(truncateForError(b)))
	}
	return nil
}

// jsonTrace is the wire form of a Trace. Data is base64 encoded by
// encoding/json.
type jsonTrace struct {
	Data       []byte `json:"data"`
	StartIndex uint64 `json:"start_index"`
	Root       Action `json:"root"`
}

// MarshalJSON implements json.Marshaler.
func (t *Trace) MarshalJSON() ([]byte, error) {
	data := t.Data
	if data == nil {
		data = []byte{}
	}
	return json.Marshal(jsonTrace{Data: data, StartIndex: t.StartIndex, Root: t.Root})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Trace) UnmarshalJSON(b []byte) error {
	var j jsonTrace
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	if j.Root.Kind != ActionSpan {
		return base.MalformedTracef("serhex: trace root must be a span, found %s", j.Root.Kind)
	}
	*t = Trace{Data: j.Data, StartIndex: j.StartIndex, Root: j.Root}
	return nil
}

// Encode returns the JSON document for the trace.
func (t *Trace) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// Decode parses a JSON trace document. Structural problems are reported as
// malformed trace errors; see IsMalformedTrace.
func Decode(b []byte) (*Trace, error) {
	t := &Trace{}
	if err := json.Unmarshal(b, t); err != nil {
		return nil, base.MarkMalformedTrace(errors.Wrap(err, "serhex: decoding trace"))
	}
	return t, nil
}

// IsMalformedTrace returns true if err indicates that a trace could not be
// loaded because it is structurally invalid.
func IsMalformedTrace(err error) bool {
	return base.IsMalformedTrace(err)
}

func truncateForError(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > 64 {
		return string(b[:64]) + "..."
	}
	return string(b)
}
