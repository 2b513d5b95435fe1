// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

const cleanerInterval = time.Minute

// logDirCleaner bounds the total size of the logs directory by removing the
// oldest files first. The active log file is never removed.
type logDirCleaner struct {
	dir           string
	maxTotalBytes int64
	protected     string

	stop chan struct{}
	done chan struct{}
}

// cleaner is the active cleaner, guarded by writerMu.
var cleaner *logDirCleaner

// configureCleanerLocked replaces the active cleaner. maxTotalSizeMB <= 0 or
// an empty protected path (not logging to file) disables cleaning.
// Caller must hold writerMu.
func configureCleanerLocked(dir string, maxTotalSizeMB int, protected string) {
	stopCleanerLocked()
	if maxTotalSizeMB <= 0 || protected == "" {
		return
	}
	cleaner = &logDirCleaner{
		dir:           dir,
		maxTotalBytes: int64(maxTotalSizeMB) * 1024 * 1024,
		protected:     filepath.Clean(protected),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go cleaner.run()
}

// stopCleanerLocked stops the active cleaner and waits for its goroutine to
// exit. Caller must hold writerMu.
func stopCleanerLocked() {
	if cleaner == nil {
		return
	}
	close(cleaner.stop)
	<-cleaner.done
	cleaner = nil
}

func (c *logDirCleaner) run() {
	defer close(c.done)
	ticker := time.NewTicker(cleanerInterval)
	defer ticker.Stop()

	c.sweep()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// sweep removes the oldest log files until the directory total is within the
// limit. Removal failures are logged and skipped so one stuck file cannot
// wedge the cleaner.
func (c *logDirCleaner) sweep() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		log.WithField("error", err).Warn("log cleaner: failed to read log directory")
		return
	}

	type logFile struct {
		path    string
		size    int64
		modTime time.Time
	}
	var files []logFile
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		files = append(files, logFile{
			path:    filepath.Join(c.dir, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		total += info.Size()
	}
	if total <= c.maxTotalBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})
	for _, f := range files {
		if total <= c.maxTotalBytes {
			return
		}
		if filepath.Clean(f.path) == c.protected {
			continue
		}
		if err = os.Remove(f.path); err != nil {
			log.WithField("error", err).Warn("log cleaner: failed to remove old log file")
			continue
		}
		total -= f.size
		log.WithField("file", filepath.Base(f.path)).Info("log cleaner: removed old log file")
	}
}
