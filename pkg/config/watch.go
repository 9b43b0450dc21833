// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	debounceDelay = 100 * time.Millisecond
	rewatchTries  = 10
	rewatchEvery  = 500 * time.Millisecond
)

// Watch reloads the config file whenever it changes and hands each valid
// result to onChange. Invalid edits are logged and skipped. Watch returns
// once the watcher is installed; the loop ends with ctx.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors replace files by rename, which drops a
	// watch placed on the file itself.
	dir := filepath.Dir(absPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	changed := make(chan struct{}, 1)
	go watchLoop(ctx, watcher, absPath, changed)
	go func() {
		for range changed {
			cfg, err := Load(absPath)
			if err != nil {
				slog.Error("Config reload failed", "path", absPath, "error", err)
				continue
			}
			slog.Info("Config reloaded", "path", absPath)
			onChange(cfg)
		}
	}()

	slog.Info("Watching config file", "path", absPath)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, ch chan struct{}) {
	defer close(ch)
	defer watcher.Close()

	var debounce *time.Timer
	notify := func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}

			switch {
			case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, notify)
			case event.Has(fsnotify.Remove):
				slog.Warn("Config file was deleted", "path", path)
				go rewatch(ctx, watcher, path, notify)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func rewatch(ctx context.Context, watcher *fsnotify.Watcher, path string, notify func()) {
	ticker := time.NewTicker(rewatchEvery)
	defer ticker.Stop()

	for i := 0; i < rewatchTries; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := watcher.Add(filepath.Dir(path)); err == nil {
				slog.Info("Re-established watch on config file", "path", path)
				notify()
				return
			}
		}
	}
	slog.Warn("Failed to re-establish watch on config file", "path", path)
}
