package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"capturerig/director/internal/config"
)

func TestNewWritesToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "director.log")
	logger, err := New(config.LoggingConfig{Level: "debug", Path: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	file := logger.writer.(fanout)[0].(*rotatingFile)
	defer file.Close()
	logger.writer = file
	logger.Info("started")
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"message":"started"`) {
		t.Fatalf("expected log line on disk, got %q", data)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "director.log")
	for _, cfg := range []config.LoggingConfig{
		{Path: "", MaxSizeMB: 1},
		{Path: path, Level: "loud", MaxSizeMB: 1},
		{Path: path, MaxSizeMB: 0},
		{Path: path, MaxSizeMB: 1, MaxBackups: -1},
	} {
		if _, err := New(cfg); err == nil {
			t.Fatalf("expected %+v to be rejected", cfg)
		}
	}
}

func newSmallRotatingFile(t *testing.T, backups int, compress bool) (*rotatingFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "director.log")
	r, err := openRotatingFile(config.LoggingConfig{Path: path, MaxSizeMB: 1, MaxBackups: backups, Compress: compress})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	r.maxSize = 8
	return r, path
}

func writeLines(t *testing.T, r *rotatingFile, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if _, err := r.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("write %q: %v", line, err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestRotatingFileShiftsNumberedBackups(t *testing.T) {
	r, path := newSmallRotatingFile(t, 2, false)
	writeLines(t, r, "first", "second", "third", "fourth")

	if got := readFile(t, path); got != "fourth\n" {
		t.Fatalf("expected the live file to hold the newest line, got %q", got)
	}
	if got := readFile(t, path+".1"); got != "third\n" {
		t.Fatalf("expected backup 1 to be the newest backup, got %q", got)
	}
	if got := readFile(t, path+".2"); got != "second\n" {
		t.Fatalf("expected backup 2 to be older, got %q", got)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatalf("expected no third backup, got %v", err)
	}
}

func TestRotatingFileWithoutBackupsTruncates(t *testing.T) {
	r, path := newSmallRotatingFile(t, 0, false)
	writeLines(t, r, "first", "second")
	if got := readFile(t, path); got != "second\n" {
		t.Fatalf("expected truncation, got %q", got)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Fatalf("expected no backups, got %v", err)
	}
}

func TestRotatingFileCompressesBackups(t *testing.T) {
	r, path := newSmallRotatingFile(t, 1, true)
	writeLines(t, r, "first", "second")

	file, err := os.Open(path + ".1.gz")
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer file.Close()
	gz, err := gzip.NewReader(file)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(data) != "first\n" {
		t.Fatalf("unexpected backup contents %q", data)
	}
}

func TestRotatingFilePrunesExpiredBackups(t *testing.T) {
	r, path := newSmallRotatingFile(t, 3, false)
	writeLines(t, r, "first", "second")
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path+".1", old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	r.maxAge = 24 * time.Hour

	writeLines(t, r, "third")

	if got := readFile(t, path+".1"); got != "second\n" {
		t.Fatalf("expected a fresh backup 1, got %q", got)
	}
	if _, err := os.Stat(path + ".2"); !os.IsNotExist(err) {
		t.Fatalf("expected the expired backup to be pruned, got %v", err)
	}
}
