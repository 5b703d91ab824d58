// Package watch re-runs the export pipeline whenever the checkpoint
// directory changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/born-ml/bornconvert/internal/checkpoint"
	"github.com/born-ml/bornconvert/internal/export"
)

// DefaultDebounce batches the event bursts a checkpoint save produces
// (create, several writes, rename) into one export.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a watcher.
type Options struct {
	// Export holds the pipeline settings used for each run.
	Export export.Options
	// Debounce delays exports after an event. Zero means DefaultDebounce.
	Debounce time.Duration
	// Logger receives progress messages. Nil means slog.Default.
	Logger *slog.Logger
}

// Watcher exports on checkpoint-directory changes.
type Watcher struct {
	opts    Options
	logger  *slog.Logger
	exports atomic.Uint32
}

// New creates a watcher. It does not start watching; call Run.
func New(opts Options) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Export.Logger == nil {
		opts.Export.Logger = logger
	}
	return &Watcher{opts: opts, logger: logger}
}

// ExportCount returns the number of completed export attempts.
func (w *Watcher) ExportCount() uint32 { return w.exports.Load() }

// Run exports once, then blocks re-exporting on directory changes until
// the context is canceled. An empty directory at startup is not fatal:
// the watcher waits for the first checkpoint to appear.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := export.Run(ctx, w.opts.Export); err != nil {
		if !errors.Is(err, checkpoint.ErrNoCheckpoints) {
			return err
		}
		w.logger.Info("no checkpoints yet, waiting", "dir", w.opts.Export.SavesDir)
	} else {
		w.exports.Add(1)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.opts.Export.SavesDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.opts.Export.SavesDir, err)
	}
	w.logger.Info("watching for checkpoints", "dir", w.opts.Export.SavesDir)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	// Debounced exports run on the loop goroutine via this channel so
	// runs never overlap.
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("checkpoint directory changed", "event", event.Op.String(), "path", event.Name)
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.opts.Debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.export(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// relevant filters the event stream down to checkpoint file changes.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	return checkpoint.IsCheckpointFile(event.Name)
}

func (w *Watcher) export(ctx context.Context) {
	if _, err := export.Run(ctx, w.opts.Export); err != nil {
		w.logger.Error("export failed", "error", err)
		return
	}
	w.exports.Add(1)
}
