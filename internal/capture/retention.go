package capture

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"capturerig/director/internal/logging"
)

// RetentionPolicy defines how many capture segments are retained on disk.
type RetentionPolicy struct {
	MaxSegments int
	MaxAge      time.Duration
}

// StorageStats summarises the disk footprint of persisted segments.
type StorageStats struct {
	Segments  int       `json:"segments"`
	Bytes     int64     `json:"bytes"`
	Removed   int       `json:"removed"`
	LastSweep time.Time `json:"last_sweep"`
}

// Retention periodically prunes segment directories according to a policy.
type Retention struct {
	mu     sync.RWMutex
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	stats  StorageStats
	// protect reports directories that must survive a sweep, such as the open segment.
	protect func(path string) bool
}

// NewRetention constructs a retention sweeper for the capture root.
func NewRetention(dir string, policy RetentionPolicy, logger *logging.Logger) *Retention {
	if logger == nil {
		logger = logging.L()
	}
	return &Retention{dir: dir, policy: policy, log: logger, now: time.Now}
}

// Protect keeps the recorder's running segment out of every sweep.
func (c *Retention) Protect(recorder *Recorder) {
	if c == nil || recorder == nil {
		return
	}
	c.protect = func(path string) bool { return recorder.Stats().CurrentSegment == path }
}

// Run executes retention sweeps until the context is cancelled.
func (c *Retention) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	//1.- Perform an eager sweep so retention applies immediately on startup.
	c.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// RunOnce performs a single retention sweep.
func (c *Retention) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

// Stats returns the last recorded storage statistics.
func (c *Retention) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type segmentDir struct {
	path    string
	size    int64
	modTime time.Time
}

func (c *Retention) sweep() {
	if c == nil || strings.TrimSpace(c.dir) == "" {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("capture retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	segments := c.collect(entries)
	now := c.now()
	stats := StorageStats{LastSweep: now}
	kept := 0
	for _, seg := range segments {
		remove, reasons := c.shouldRemove(seg, now, kept)
		if remove && (c.protect == nil || !c.protect(seg.path)) {
			if err := os.RemoveAll(seg.path); err != nil {
				c.log.Warn("capture retention removal failed", logging.Error(err), logging.String("segment", seg.path))
			} else {
				c.log.Info("capture retention removed segment", logging.String("segment", seg.path), logging.String("reason", reasons))
				stats.Removed++
				continue
			}
		}
		kept++
		stats.Segments++
		stats.Bytes += seg.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

// collect lists segment directories, recognised by their manifest, newest first.
func (c *Retention) collect(entries []os.DirEntry) []segmentDir {
	segments := make([]segmentDir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		info, err := os.Stat(filepath.Join(path, manifestFile))
		if err != nil {
			continue
		}
		size, err := directorySize(path)
		if err != nil {
			c.log.Warn("capture retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		segments = append(segments, segmentDir{path: path, size: size, modTime: info.ModTime()})
	}
	//1.- Sort newest-first so retention limits favour recent segments.
	sort.Slice(segments, func(i, j int) bool { return segments[i].modTime.After(segments[j].modTime) })
	return segments
}

func (c *Retention) shouldRemove(seg segmentDir, now time.Time, kept int) (bool, string) {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(seg.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxSegments > 0 && kept >= c.policy.MaxSegments {
		reasons = append(reasons, fmt.Sprintf(">=%d segments", c.policy.MaxSegments))
	}
	return len(reasons) > 0, strings.Join(reasons, ", ")
}

func directorySize(root string) (int64, error) {
	var total int64
	walkErr := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, walkErr
}
