package replay

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

	"robotarena/server/internal/logging"
)

// RetentionPolicy defines how many replay bundles are retained on disk.
type RetentionPolicy struct {
	MaxBundles int
	MaxAge     time.Duration
}

// StorageStats summarises the disk footprint of persisted replays.
type StorageStats struct {
	Bundles   int
	Bytes     int64
	Removed   int
	LastSweep time.Time
}

// Cleaner periodically prunes replay bundles according to a retention policy.
type Cleaner struct {
	mu        sync.RWMutex
	dir       string
	policy    RetentionPolicy
	log       *logging.Logger
	now       func() time.Time
	stats     StorageStats
	protected map[string]struct{}
}

// NewCleaner constructs a cleaner for the provided replay directory.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now, protected: make(map[string]struct{})}
}

// WithClock overrides the sweep clock.
func (c *Cleaner) WithClock(clock func() time.Time) *Cleaner {
	if c != nil && clock != nil {
		c.now = clock
	}
	return c
}

// Protect keeps the bundle at path out of every sweep, typically the one being written.
func (c *Cleaner) Protect(path string) {
	if c == nil || path == "" {
		return
	}
	c.mu.Lock()
	c.protected[filepath.Clean(path)] = struct{}{}
	c.mu.Unlock()
}

// Release makes a protected bundle eligible for retention again.
func (c *Cleaner) Release(path string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.protected, filepath.Clean(path))
	c.mu.Unlock()
}

// Run executes retention sweeps until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
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
func (c *Cleaner) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

// Stats returns the last recorded storage statistics.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type bundleDir struct {
	path    string
	size    int64
	modTime time.Time
}

func (c *Cleaner) sweep() {
	if c == nil || strings.TrimSpace(c.dir) == "" {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("replay retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	bundles := c.collect(entries)
	now := c.now()
	kept := 0
	stats := StorageStats{LastSweep: now}

	c.mu.RLock()
	protected := make(map[string]struct{}, len(c.protected))
	for path := range c.protected {
		protected[path] = struct{}{}
	}
	c.mu.RUnlock()

	for _, bundle := range bundles {
		_, active := protected[filepath.Clean(bundle.path)]
		if !active {
			if remove, reasons := c.shouldRemove(bundle, now, kept); remove {
				if err := os.RemoveAll(bundle.path); err != nil {
					c.log.Warn("replay retention removal failed", logging.Error(err), logging.String("bundle", bundle.path))
				} else {
					c.log.Info("replay retention removed bundle", logging.String("bundle", filepath.Base(bundle.path)), logging.String("reason", reasons))
					stats.Removed++
					continue
				}
			}
		}
		kept++
		stats.Bundles++
		stats.Bytes += bundle.size
	}
	c.mu.Lock()
	//1.- Publish the refreshed statistics so metrics handlers can report storage usage.
	c.stats = stats
	c.mu.Unlock()
}

// collect lists the bundle directories newest first. Anything without a manifest is not a
// bundle and is left alone.
func (c *Cleaner) collect(entries []os.DirEntry) []bundleDir {
	bundles := make([]bundleDir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		if _, err := os.Stat(filepath.Join(path, ManifestFile)); err != nil {
			continue
		}
		size, modTime, err := directoryUsage(path)
		if err != nil {
			c.log.Warn("replay retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		bundles = append(bundles, bundleDir{path: path, size: size, modTime: modTime})
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].modTime.After(bundles[j].modTime) })
	return bundles
}

func (c *Cleaner) shouldRemove(bundle bundleDir, now time.Time, kept int) (bool, string) {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(bundle.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	//1.- Enforce the bundle count after accounting for age removals.
	if c.policy.MaxBundles > 0 && kept >= c.policy.MaxBundles {
		reasons = append(reasons, fmt.Sprintf(">=%d bundles", c.policy.MaxBundles))
	}
	return len(reasons) > 0, strings.Join(reasons, ", ")
}

// directoryUsage sums the file sizes under root and finds the newest modification time.
func directoryUsage(root string) (int64, time.Time, error) {
	var (
		total  int64
		newest time.Time
	)
	walkErr := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		if !d.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, newest, walkErr
}
