// Package watch turns a drop folder into a stream of files to upload.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must see no Create or Write events
// before it is reported.
const DefaultSettle = 500 * time.Millisecond

// Watcher reports files in a directory that pass an extension filter once
// they have stopped changing.
type Watcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	settle     time.Duration
	logger     *slog.Logger
}

// Option configures a Watcher
type Option func(*Watcher)

// WithSettle sets the quiet period a file needs before it is reported.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// New creates a watcher for the given extensions (".pdf", ".txt", ...).
func New(extensions []string, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{watcher: fw, extensions: extensions, settle: DefaultSettle, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

type pending struct {
	timer *time.Timer
	gen   int
}

type settled struct {
	path string
	gen  int
}

// Watch starts monitoring dir. The returned channel carries the path of every
// matching file that was created or written and then left alone for the settle
// period. It is closed when ctx is done or the watcher stops.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan string, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	paths := make(chan string, 16)

	go func() {
		defer close(paths)

		inflight := make(map[string]*pending)
		quiet := make(chan settled)
		done := make(chan struct{})
		defer close(done)
		defer func() {
			for _, p := range inflight {
				p.timer.Stop()
			}
		}()

		arm := func(path string, gen int) *time.Timer {
			return time.AfterFunc(w.settle, func() {
				select {
				case quiet <- settled{path: path, gen: gen}:
				case <-done:
				}
			})
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !(event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) || !w.matches(event.Name) {
					continue
				}
				p, seen := inflight[event.Name]
				if !seen {
					w.logger.Debug("drop folder file created", "path", event.Name)
					p = &pending{}
					inflight[event.Name] = p
				} else {
					p.timer.Stop()
					p.gen++
				}
				p.timer = arm(event.Name, p.gen)

			case s := <-quiet:
				p, seen := inflight[s.path]
				if !seen || p.gen != s.gen {
					// superseded by a later write
					continue
				}
				delete(inflight, s.path)

				if _, err := os.Stat(s.path); err != nil {
					w.logger.Warn("drop folder file vanished", "path", s.path, "error", err)
					continue
				}
				w.logger.Debug("drop folder file settled", "path", s.path)
				select {
				case paths <- s.path:
				case <-ctx.Done():
					return
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("drop folder watch error", "dir", dir, "error", err)
			}
		}
	}()

	return paths, nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
