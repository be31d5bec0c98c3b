// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the burst of filesystem events an editor emits
// for one save into a single reload.
const debounceDelay = 200 * time.Millisecond

// Watch reloads the config whenever the file at path changes and passes
// the result to onChange. A change that fails to load or validate is
// logged and skipped; the previous configuration stays in effect. Watch
// returns once the watcher is installed and stops when ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: editors replace files on save,
	// which would drop a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var pending *time.Timer
		reload := func() {
			cfg, err := Load(path)
			if err != nil {
				log.Printf("WARNING: config reload failed, keeping previous: %v", err)
				return
			}
			log.Printf("config reloaded from %s", path)
			onChange(cfg)
		}

		for {
			select {
			case <-ctx.Done():
				if pending != nil {
					pending.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(debounceDelay, reload)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("WARNING: config watcher error: %v", err)
			}
		}
	}()
	return nil
}
