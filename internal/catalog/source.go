package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events editors emit on save.
const reloadDelay = 100 * time.Millisecond

// SeedSource hands out copies of the current seed dataset. When backed by a
// file, Watch reloads it on change; sessions opened afterwards see the new data.
type SeedSource struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	seed *TableSet
}

// NewSeedSource loads path, or uses the built-in Seed when path is empty.
func NewSeedSource(path string, logger *slog.Logger) (*SeedSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SeedSource{path: path, logger: logger}
	if path == "" {
		s.seed = Seed()
		return s, nil
	}
	ts, err := LoadSeedFile(path)
	if err != nil {
		return nil, err
	}
	s.seed = ts
	return s, nil
}

// Current returns a deep copy of the current seed.
func (s *SeedSource) Current() *TableSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seed.Clone()
}

// Reload re-reads the seed file. On error the previous seed stays in place.
func (s *SeedSource) Reload() error {
	if s.path == "" {
		return nil
	}
	ts, err := LoadSeedFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.seed = ts
	s.mu.Unlock()
	s.logger.Info("catalog: seed reloaded", "path", s.path, "tables", len(ts.Names()))
	return nil
}

// Watch reloads the seed whenever its file is written, until ctx is done.
// It watches the parent directory so editors that replace the file still
// trigger a reload.
func (s *SeedSource) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("catalog: watch %s: %w", target, err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				if err := s.Reload(); err != nil {
					s.logger.Error("catalog: seed reload failed, keeping previous seed", "path", s.path, "err", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("catalog: watcher error", "err", err)
		}
	}
}
