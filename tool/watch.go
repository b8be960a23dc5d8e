// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/serhex"
	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long a file must be quiet after a change before it is
// reloaded. Traces are written to a temporary file and renamed into place,
// which produces a burst of events.
var watchDebounce = 200 * time.Millisecond

// watchFiles calls fn with the path of each of files whenever it is created
// or rewritten, until ctx is canceled. The containing directories are watched
// rather than the files themselves so that atomic replacement by rename is
// observed.
func watchFiles(ctx context.Context, files []string, logger serhex.Logger, fn func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating file watcher")
	}
	defer watcher.Close()

	watched := make(map[string]string, len(files))
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		watched[abs] = f
		dir := filepath.Dir(abs)
		if _, ok := dirs[dir]; ok {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return errors.Wrapf(err, "watching %s", dir)
		}
		dirs[dir] = struct{}{}
	}

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			path, ok := watched[filepath.Clean(event.Name)]
			if !ok {
				continue
			}
			mu.Lock()
			if t, ok := timers[path]; ok {
				t.Reset(watchDebounce)
			} else {
				timers[path] = time.AfterFunc(watchDebounce, func() {
					mu.Lock()
					delete(timers, path)
					mu.Unlock()
					fn(path)
				})
			}
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorf("file watcher error: %v", err)
		}
	}
}
