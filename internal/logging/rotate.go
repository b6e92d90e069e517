package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"capturerig/director/internal/config"
)

// rotatingFile appends to path and, once a write would exceed maxSize, shifts
// older backups up by one (path.1 is always the newest) before reopening.
type rotatingFile struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int
	maxAge     time.Duration
	compress   bool
	file       *os.File
	size       int64
	now        func() time.Time
}

func openRotatingFile(cfg config.LoggingConfig) (*rotatingFile, error) {
	switch {
	case cfg.MaxSizeMB <= 0:
		return nil, errors.New("DIRECTOR_LOG_MAX_SIZE_MB must be positive")
	case cfg.MaxBackups < 0:
		return nil, errors.New("DIRECTOR_LOG_MAX_BACKUPS must be non-negative")
	case cfg.MaxAgeDays < 0:
		return nil, errors.New("DIRECTOR_LOG_MAX_AGE_DAYS must be non-negative")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	r := &rotatingFile{
		path:       cfg.Path,
		maxSize:    int64(cfg.MaxSizeMB) << 20,
		maxBackups: cfg.MaxBackups,
		maxAge:     time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		compress:   cfg.Compress,
		now:        time.Now,
	}
	if err := r.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open(mode int) error {
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}
	r.file = file
	r.size = info.Size()
	return nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return 0, errors.New("log file closed")
	}
	if r.size > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate %s: %w", r.path, err)
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

// Close flushes and closes the current file; later writes fail.
func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *rotatingFile) backupName(index int) string {
	name := fmt.Sprintf("%s.%d", r.path, index)
	if r.compress {
		name += ".gz"
	}
	return name
}

func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil

	//1.- With no backups kept the live file is simply truncated.
	if r.maxBackups == 0 {
		return r.open(os.O_TRUNC)
	}

	//2.- Shift path.N-1 to path.N so the oldest backup falls off the end.
	_ = os.Remove(r.backupName(r.maxBackups))
	for i := r.maxBackups - 1; i >= 1; i-- {
		if err := os.Rename(r.backupName(i), r.backupName(i+1)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	//3.- The live file becomes backup 1, gzipped when compression is on.
	if r.compress {
		if err := gzipFile(r.path, r.backupName(1)); err != nil {
			return err
		}
		if err := os.Remove(r.path); err != nil {
			return err
		}
	} else if err := os.Rename(r.path, r.backupName(1)); err != nil {
		return err
	}

	r.pruneExpired()
	return r.open(os.O_TRUNC)
}

// pruneExpired removes backups older than maxAge. Backups age with their index
// so the first expired one ends the scan.
func (r *rotatingFile) pruneExpired() {
	if r.maxAge <= 0 {
		return
	}
	cutoff := r.now().Add(-r.maxAge)
	for i := 1; i <= r.maxBackups; i++ {
		info, err := os.Stat(r.backupName(i))
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		for j := i; j <= r.maxBackups; j++ {
			_ = os.Remove(r.backupName(j))
		}
		return
	}
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		_ = gz.Close()
		_ = out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
