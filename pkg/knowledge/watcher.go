package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher rebuilds an index when markdown files under its root change.
// Change bursts are debounced into a single reindex.
type Watcher struct {
	index    *Index
	watcher  *fsnotify.Watcher
	debounce time.Duration
	timer    *time.Timer
	timerMu  sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher starts watching the index's root and its space directories.
func NewWatcher(index *Index) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		index:    index,
		watcher:  fsw,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	if err := fsw.Add(index.Root()); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	for _, space := range index.Spaces() {
		if err := fsw.Add(filepath.Join(index.Root(), space.ID)); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}

	go w.run()

	return w, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}

			log.Debug().
				Str("file", filepath.Base(event.Name)).
				Str("op", event.Op.String()).
				Msg("Knowledge change detected")

			// A new space directory must itself be watched.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}

			w.scheduleReindex()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Knowledge watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	// Directory events matter for new or removed spaces; otherwise only
	// markdown files do.
	if filepath.Ext(event.Name) == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(event.Name), ".md")
}

func (w *Watcher) scheduleReindex() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.index.Reindex(); err != nil {
			log.Error().Err(err).Msg("Knowledge reindex failed")
		}
	})
}
