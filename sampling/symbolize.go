// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sampling

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cockroachdb/swiss"
)

// Symbol is a resolved frame address.
type Symbol struct {
	// Entry is the entry address of the function containing the frame, or the
	// frame address itself if it could not be resolved.
	Entry uintptr
	Name  string
}

// Symbolizer resolves return addresses to symbols, caching the results.
// It is safe for concurrent use.
type Symbolizer struct {
	mu struct {
		sync.Mutex
		syms swiss.Map[uintptr, Symbol]
	}
}

// NewSymbolizer returns an empty Symbolizer.
func NewSymbolizer() *Symbolizer {
	s := &Symbolizer{}
	s.mu.syms.Init(64)
	return s
}

// defaultSymbolizer is shared by every sampler that does not supply its own.
var defaultSymbolizer = NewSymbolizer()

// Resolve returns the symbol for the return address pc.
func (s *Symbolizer) Resolve(pc uintptr) Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sym, ok := s.mu.syms.Get(pc); ok {
		return sym
	}
	sym := Symbol{Entry: pc, Name: fmt.Sprintf("0x%X", pc)}
	// pc is a return address; pc-1 lies within the call instruction.
	if fn := runtime.FuncForPC(pc - 1); fn != nil {
		sym = Symbol{Entry: fn.Entry(), Name: fn.Name()}
	}
	s.mu.syms.Put(pc, sym)
	return sym
}

// Len returns the number of cached addresses.
func (s *Symbolizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.syms.Len()
}
