package classifier

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Reloader watches a rule file and swaps the classifier's table when the
// file changes. Edits are debounced; a file that fails to parse leaves
// the previous table in place.
type Reloader struct {
	path       string
	classifier *Classifier
	debounce   time.Duration
	watcher    *fsnotify.Watcher
	timer      *time.Timer
	mu         sync.Mutex
	done       chan struct{}
	stopOnce   sync.Once
	logger     *zap.Logger
}

// NewReloader creates a reloader for path updating c.
func NewReloader(path string, c *Classifier, logger *zap.Logger) *Reloader {
	return &Reloader{
		path:       path,
		classifier: c,
		debounce:   defaultDebounce,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (r *Reloader) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	r.watcher = watcher
	if err := watcher.Add(r.path); err != nil {
		_ = watcher.Close()
		return err
	}
	r.logger.Debug("rule reloader started", zap.String("path", r.path))

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				r.scheduleReload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("rule watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// Stop stops the reloader. Safe to call more than once.
func (r *Reloader) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Reloader) scheduleReload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, r.reload)
}

func (r *Reloader) reload() {
	rules, err := LoadRules(r.path)
	if err != nil {
		r.logger.Warn("rule reload failed, keeping previous table",
			zap.String("path", r.path), zap.Error(err))
		return
	}
	r.classifier.Replace(rules)
	r.logger.Info("classifier rules reloaded",
		zap.String("path", r.path), zap.Int("rules", len(rules)))
}
