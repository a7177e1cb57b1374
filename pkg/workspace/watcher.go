package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jinjals/pkg/index"
)

// FileEventType represents the type of file system event
type FileEventType int

const (
	FileEventCreate FileEventType = iota
	FileEventWrite
	FileEventRemove
	FileEventRename
)

func (t FileEventType) String() string {
	switch t {
	case FileEventCreate:
		return "create"
	case FileEventWrite:
		return "write"
	case FileEventRemove:
		return "remove"
	}
	return "rename"
}

// Watcher keeps files that are not open in an editor in sync with the disk.
type Watcher struct {
	ws       *Workspace
	watcher  *fsnotify.Watcher
	onChange func(ctx context.Context, path string)
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Watch starts watching the configured roots. onChange is called with the
// path of every file whose index entry was updated or removed.
func (w *Workspace) Watch(ctx context.Context, onChange func(ctx context.Context, path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Errorf("creating file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	fw := &Watcher{ws: w, watcher: fsw, onChange: onChange, cancel: cancel}

	for root := range w.roots() {
		if err := fw.addWatches(ctx, root); err != nil {
			cancel()
			fsw.Close()
			return nil, errors.Errorf("watching %s: %w", root, err)
		}
	}

	fw.wg.Add(1)
	go fw.processEvents(ctx)

	zerolog.Ctx(ctx).Debug().Int("roots", len(w.roots())).Msg("file watcher started")
	return fw, nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (fw *Watcher) Stop() error {
	fw.cancel()
	err := fw.watcher.Close()
	fw.wg.Wait()
	if err != nil {
		return errors.Errorf("closing file watcher: %w", err)
	}
	return nil
}

// addWatches adds a watch for every directory under root that is not excluded.
func (fw *Watcher) addWatches(ctx context.Context, root string) error {
	return afero.Walk(fw.ws.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if fw.ignored(root, path) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("failed to add watch")
		}
		return nil
	})
}

func (fw *Watcher) ignored(root, path string) bool {
	if path == root {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return fw.ws.finder.Excluded(filepath.ToSlash(rel))
}

// rootOf returns the watched root containing path.
func (fw *Watcher) rootOf(path string) (string, bool) {
	for root := range fw.ws.roots() {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return root, true
		}
	}
	return "", false
}

func (fw *Watcher) processEvents(ctx context.Context) {
	defer fw.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(ctx, event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			zerolog.Ctx(ctx).Warn().Err(err).Msg("file watcher error")
		}
	}
}

func eventType(op fsnotify.Op) (FileEventType, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return FileEventCreate, true
	case op&fsnotify.Write != 0:
		return FileEventWrite, true
	case op&fsnotify.Remove != 0:
		return FileEventRemove, true
	case op&fsnotify.Rename != 0:
		return FileEventRename, true
	}
	return 0, false
}

func (fw *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	typ, ok := eventType(event.Op)
	if !ok {
		return
	}
	path := filepath.Clean(event.Name)
	root, ok := fw.rootOf(path)
	if !ok || fw.ignored(root, path) {
		return
	}

	if typ == FileEventCreate {
		if dir, err := afero.IsDir(fw.ws.fs, path); err == nil && dir {
			if err := fw.addWatches(ctx, path); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("failed to watch new directory")
			}
			return
		}
	}

	if fw.ws.Sync(ctx, path, typ) {
		zerolog.Ctx(ctx).Debug().Str("path", path).Stringer("event", typ).Msg("file updated from disk")
		if fw.onChange != nil {
			fw.onChange(ctx, path)
		}
	}
}

// Sync brings one file's index entry in line with the disk after a file
// event. Files open in an editor are left alone. It reports whether the
// index changed.
func (w *Workspace) Sync(ctx context.Context, path string, typ FileEventType) bool {
	if state, ok := w.Index().Get(path); ok && state.Origin == index.Editor {
		return false
	}
	if _, ok := w.Kind(path); !ok {
		return false
	}

	exists, err := afero.Exists(w.fs, path)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("checking file")
		return false
	}

	if typ == FileEventRemove || typ == FileEventRename || !exists {
		w.mu.RLock()
		defer w.mu.RUnlock()
		if _, ok := w.gen.index.Get(path); !ok {
			return false
		}
		w.gen.index.Remove(ctx, path)
		return true
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if err := w.loadFile(ctx, w.gen, path); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("reindexing file")
		return false
	}
	return true
}
