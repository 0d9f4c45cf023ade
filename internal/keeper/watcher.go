package keeper

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watcherBridge adapts fsnotify to the scheduler's needs: registration by
// single file, and a drain that never blocks the tick. Watch and unwatch
// failures are logged, never fatal — a missing file just means no
// retrigger until the host hands out a new path.
type watcherBridge struct {
	w   *fsnotify.Watcher
	log *zap.SugaredLogger
}

func newWatcherBridge(log *zap.SugaredLogger) (*watcherBridge, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &watcherBridge{w: w, log: log}, nil
}

func (b *watcherBridge) Watch(path string) {
	if err := b.w.Add(path); err != nil {
		b.log.Errorf("Failed to watch path %s: %v", path, err)
	}
}

func (b *watcherBridge) Unwatch(path string) {
	if err := b.w.Remove(path); err != nil {
		b.log.Errorf("Failed to unwatch path %s: %v", path, err)
	}
}

// Drain returns the paths of all queued events without blocking. Watcher
// errors are consumed here too so the channels never back up.
func (b *watcherBridge) Drain() []string {
	var paths []string
	for {
		select {
		case event, ok := <-b.w.Events:
			if !ok {
				return paths
			}
			paths = append(paths, event.Name)
		case err, ok := <-b.w.Errors:
			if ok && err != nil {
				b.log.Errorf("Watcher error: %v", err)
			}
			if !ok {
				return paths
			}
		default:
			return paths
		}
	}
}

func (b *watcherBridge) Close() {
	b.w.Close()
}
