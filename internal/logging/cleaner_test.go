package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeLogFile(t *testing.T, dir, name string, size int, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	mod := time.Now().Add(-age)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return path
}

func TestCleaner_SweepRemovesOldestFirst(t *testing.T) {
	dir := t.TempDir()
	oldest := writeLogFile(t, dir, "safegate-2026-08-01.log", 1024, 72*time.Hour)
	middle := writeLogFile(t, dir, "safegate-2026-08-15.log", 1024, 48*time.Hour)
	newest := writeLogFile(t, dir, "safegate-2026-08-27.log", 1024, 24*time.Hour)

	c := &logDirCleaner{dir: dir, maxTotalBytes: 2048, protected: filepath.Join(dir, "safegate.log")}
	c.sweep()

	if _, err := os.Stat(oldest); !os.IsNotExist(err) {
		t.Error("oldest file should have been removed")
	}
	for _, path := range []string{middle, newest} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s should have been kept: %v", filepath.Base(path), err)
		}
	}
}

func TestCleaner_SweepNeverRemovesActiveFile(t *testing.T) {
	dir := t.TempDir()
	active := writeLogFile(t, dir, "safegate.log", 4096, 96*time.Hour)
	rotated := writeLogFile(t, dir, "safegate-2026-08-20.log", 1024, 12*time.Hour)

	// Limit smaller than the active file alone: everything else goes, the
	// active file stays.
	c := &logDirCleaner{dir: dir, maxTotalBytes: 2048, protected: active}
	c.sweep()

	if _, err := os.Stat(active); err != nil {
		t.Fatalf("active log file was removed: %v", err)
	}
	if _, err := os.Stat(rotated); !os.IsNotExist(err) {
		t.Error("rotated file should have been removed to approach the limit")
	}
}

func TestCleaner_SweepNoopUnderLimit(t *testing.T) {
	dir := t.TempDir()
	kept := writeLogFile(t, dir, "safegate-2026-08-25.log", 512, 24*time.Hour)

	c := &logDirCleaner{dir: dir, maxTotalBytes: 10 * 1024, protected: filepath.Join(dir, "safegate.log")}
	c.sweep()

	if _, err := os.Stat(kept); err != nil {
		t.Fatalf("file under the limit was removed: %v", err)
	}
}

func TestConfigureOutput_ZeroLimitDisablesCleaner(t *testing.T) {
	// Stdout mode with no limit: no cleaner goroutine must be left behind.
	if err := ConfigureOutput(false, 0); err != nil {
		t.Fatalf("ConfigureOutput: %v", err)
	}
	writerMu.Lock()
	defer writerMu.Unlock()
	if cleaner != nil {
		t.Error("cleaner should be disabled for stdout logging with zero limit")
	}
}
