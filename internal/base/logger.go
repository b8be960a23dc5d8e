// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Logger defines an interface for writing log messages. Capture sessions log
// the traces they persist and any failure that occurs after the last reader
// is closed, when there is no caller to return an error to.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultLogger logs to the Go stdlib logs.
type DefaultLogger struct{}

var _ Logger = DefaultLogger{}

// Infof implements the Logger.Infof interface.
func (DefaultLogger) Infof(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(format, args...))
}

// Errorf implements the Logger.Errorf interface.
func (DefaultLogger) Errorf(format string, args ...interface{}) {
	_ = log.Output(2, "error: "+fmt.Sprintf(format, args...))
}

// InMemLogger implements Logger by retaining every message in memory (used
// for testing). Each message is prefixed with "I " or "E " according to its
// severity.
type InMemLogger struct {
	mu struct {
		sync.Mutex
		lines []string
	}
}

var _ Logger = (*InMemLogger)(nil)

// Reset discards the retained messages.
func (b *InMemLogger) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mu.lines = nil
}

// Lines returns the retained messages, one per entry.
func (b *InMemLogger) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.mu.lines...)
}

// String returns the retained messages, newline terminated.
func (b *InMemLogger) String() string {
	var sb strings.Builder
	for _, l := range b.Lines() {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (b *InMemLogger) add(severity, format string, args ...interface{}) {
	s := strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mu.lines = append(b.mu.lines, severity+s)
}

// Infof is part of the Logger interface.
func (b *InMemLogger) Infof(format string, args ...interface{}) {
	b.add("I ", format, args...)
}

// Errorf is part of the Logger interface.
func (b *InMemLogger) Errorf(format string, args ...interface{}) {
	b.add("E ", format, args...)
}
