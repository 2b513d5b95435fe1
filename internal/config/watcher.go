// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reloads the configuration file on change and hands the parsed
// result to a callback. Reload failures keep the previous configuration.
type Watcher struct {
	configPath string
	reload     func(*Config)
	watcher    *fsnotify.Watcher

	// debounce coalesces editor write bursts into one reload.
	debounce time.Duration
}

// NewWatcher creates a Watcher for configPath. The reload callback runs on
// the watcher goroutine; it must swap the active config atomically itself.
func NewWatcher(configPath string, reload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors replace files on save and
	// the inode-level watch would be lost.
	if err = fsw.Add(filepath.Dir(configPath)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		configPath: configPath,
		reload:     reload,
		watcher:    fsw,
		debounce:   200 * time.Millisecond,
	}, nil
}

// Start runs the watch loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.reloadOnce()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithField("error", err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) reloadOnce() {
	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		log.WithField("error", err).Error("config reload failed, keeping previous configuration")
		return
	}
	log.Info("configuration reloaded")
	w.reload(cfg)
}
